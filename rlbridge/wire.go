// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package rlbridge talks to the external policy process.
//
// Every message starts with a type byte. A state message is followed by a
// uint32 value count and that many float32 values, a reward message by a
// single float32. The policy answers a state with count pairs of int32
// (tier, op). All integers and floats are little-endian.
package rlbridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bradleyjkemp/vmfuzz/mutate"
)

const (
	MsgState  byte = 0
	MsgReward byte = 1
)

// maxStateLen bounds state vectors accepted by ReadMessage.
const maxStateLen = 1 << 16

func EncodeState(vec []float32) []byte {
	buf := make([]byte, 5+4*len(vec))
	buf[0] = MsgState
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[5+4*i:], math.Float32bits(v))
	}
	return buf
}

func EncodeReward(r float32) []byte {
	buf := make([]byte, 5)
	buf[0] = MsgReward
	binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(r))
	return buf
}

func EncodeActions(actions []mutate.Action) []byte {
	buf := make([]byte, 8*len(actions))
	for i, a := range actions {
		binary.LittleEndian.PutUint32(buf[8*i:], uint32(a.Tier))
		binary.LittleEndian.PutUint32(buf[8*i+4:], uint32(a.Op))
	}
	return buf
}

// ReadActions reads exactly n actions.
func ReadActions(r io.Reader, n int) ([]mutate.Action, error) {
	buf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}
	actions := make([]mutate.Action, n)
	for i := range actions {
		actions[i].Tier = int32(binary.LittleEndian.Uint32(buf[8*i:]))
		actions[i].Op = int32(binary.LittleEndian.Uint32(buf[8*i+4:]))
	}
	return actions, nil
}

// Message is a decoded fuzzer-to-policy message.
type Message struct {
	Type   byte
	State  []float32
	Reward float32
}

// ReadMessage decodes one message. It is the policy side of the protocol.
func ReadMessage(r io.Reader) (*Message, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	v := binary.LittleEndian.Uint32(hdr[1:])
	switch hdr[0] {
	case MsgReward:
		return &Message{Type: MsgReward, Reward: math.Float32frombits(v)}, nil
	case MsgState:
		if v > maxStateLen {
			return nil, fmt.Errorf("state vector too long: %v", v)
		}
		buf := make([]byte, 4*v)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read state: %w", err)
		}
		vec := make([]float32, v)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		return &Message{Type: MsgState, State: vec}, nil
	}
	return nil, fmt.Errorf("unknown message type %v", hdr[0])
}
