// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package rlbridge

import (
	"bytes"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/vmfuzz/mutate"
	"github.com/bradleyjkemp/vmfuzz/prng"
)

func TestStateFraming(t *testing.T) {
	for _, n := range []int{0, 1, 99} {
		vec := make([]float32, n)
		for i := range vec {
			vec[i] = float32(i) - 0.5
		}
		buf := EncodeState(vec)
		require.Len(t, buf, 1+4+4*n)
		assert.Equal(t, MsgState, buf[0])
		msg, err := ReadMessage(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, MsgState, msg.Type)
		assert.Len(t, msg.State, n)
		if n != 0 {
			if diff := cmp.Diff(vec, msg.State); diff != "" {
				t.Fatal(diff)
			}
		}
	}
}

func TestRewardFraming(t *testing.T) {
	buf := EncodeReward(-0.25)
	assert.Equal(t, []byte{MsgReward, 0x00, 0x00, 0x80, 0xbe}, buf)
	msg, err := ReadMessage(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, MsgReward, msg.Type)
	assert.Equal(t, float32(-0.25), msg.Reward)
}

func TestActionsFraming(t *testing.T) {
	actions := []mutate.Action{{Tier: 0, Op: 3}, {Tier: -1, Op: 2147483647}, {Tier: 2, Op: -7}}
	buf := EncodeActions(actions)
	require.Len(t, buf, 24)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf[8:12])
	got, err := ReadActions(bytes.NewReader(buf), 3)
	require.NoError(t, err)
	assert.Equal(t, actions, got)
}

func TestTruncatedInput(t *testing.T) {
	_, err := ReadActions(bytes.NewReader(make([]byte, 20)), 3)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	_, err = ReadActions(bytes.NewReader(nil), 1)
	assert.ErrorIs(t, err, io.EOF)

	state := EncodeState([]float32{1, 2, 3})
	_, err = ReadMessage(bytes.NewReader(state[:len(state)-1]))
	assert.Error(t, err)
	_, err = ReadMessage(bytes.NewReader([]byte{7, 0, 0, 0, 0}))
	assert.Error(t, err)
	_, err = ReadMessage(bytes.NewReader([]byte{MsgState, 0xff, 0xff, 0xff, 0xff}))
	assert.Error(t, err)
}

// fakePolicy answers every state with the given actions and records rewards.
func fakePolicy(t *testing.T, conn net.Conn, actions []mutate.Action, rewards chan<- float32) {
	defer conn.Close()
	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			close(rewards)
			return
		}
		switch msg.Type {
		case MsgState:
			if _, err := conn.Write(EncodeActions(actions)); err != nil {
				t.Errorf("write failed: %v", err)
			}
		case MsgReward:
			rewards <- msg.Reward
		}
	}
}

func TestClientOverSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rl.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()
	want := []mutate.Action{{Tier: 1, Op: 2}, {Tier: 2, Op: 10}, {Tier: 0, Op: 0}}
	rewards := make(chan float32, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		fakePolicy(t, conn, want, rewards)
	}()

	c, err := Dial(path, time.Second)
	require.NoError(t, err)
	src := NewRemote(c)
	assert.Equal(t, "remote", src.Name())
	got, err := src.Actions(make([]float32, 99), 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, src.Reward(1.5))
	assert.Equal(t, float32(1.5), <-rewards)
	require.NoError(t, src.Close())
	_, ok := <-rewards
	assert.False(t, ok)
}

func TestDialFailure(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	assert.Error(t, err)
}

func TestPeerClosedNeverBlocks(t *testing.T) {
	client, server := net.Pipe()
	c := NewClient(client, time.Second)
	go func() {
		ReadMessage(server)
		server.Close()
	}()
	require.NoError(t, c.SendState([]float32{1}))
	_, err := c.RecvActions(3)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF), "%v", err)
	assert.Error(t, c.SendReward(1))
}

func TestDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewClient(client, 50*time.Millisecond)
	start := time.Now()
	// Nobody reads from the other end.
	err := c.SendState(make([]float32, 10))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUniform(t *testing.T) {
	u := NewUniform(prng.New(3))
	assert.Equal(t, "uniform", u.Name())
	actions, err := u.Actions(nil, 5)
	require.NoError(t, err)
	require.Len(t, actions, 5)
	for _, a := range actions {
		tier, op := mutate.Resolve(a)
		assert.Equal(t, mutate.Tier(a.Tier), tier)
		assert.NotEmpty(t, op.Name)
	}
	assert.NoError(t, u.Reward(1))
	assert.NoError(t, u.Close())
}
