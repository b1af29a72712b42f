// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package sandbox

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox finishes with final after the given number of polls.
// A negative count never finishes.
type fakeSandbox struct {
	polls    int
	final    Status
	spawnErr error
	pollErr  error
	// reaped is what Kill returns; nil means SIGKILL.
	reaped  *Status
	killErr error

	spawned int
	polled  int
	killed  int
}

func (f *fakeSandbox) Spawn(input []byte) (*Handle, error) {
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}
	f.spawned++
	return &Handle{Pid: 42, Start: time.Now()}, nil
}

func (f *fakeSandbox) Poll(h *Handle) (Status, error) {
	f.polled++
	if f.pollErr != nil {
		return Status{}, f.pollErr
	}
	if f.polls >= 0 && f.polled > f.polls {
		return f.final, nil
	}
	return Status{Outcome: Running}, nil
}

func (f *fakeSandbox) Kill(h *Handle) (Status, error) {
	f.killed++
	if f.killErr != nil {
		return Status{}, f.killErr
	}
	if f.reaped != nil {
		return *f.reaped, nil
	}
	return Status{Outcome: Signaled, Signal: syscall.SIGKILL}, nil
}

func TestExecuteExit(t *testing.T) {
	sb := &fakeSandbox{polls: 3, final: Status{Outcome: Exited, Code: 20}}
	st, err := Execute(context.Background(), sb, nil, time.Minute, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Exited, st.Outcome)
	assert.Equal(t, 20, st.Code)
	assert.Equal(t, 4, sb.polled)
	assert.Zero(t, sb.killed)
	assert.Greater(t, st.Duration, time.Duration(0))
}

func TestExecuteSignal(t *testing.T) {
	sb := &fakeSandbox{polls: 0, final: Status{Outcome: Signaled, Signal: syscall.SIGSEGV}}
	st, err := Execute(context.Background(), sb, nil, time.Minute, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Signaled, st.Outcome)
	assert.Equal(t, syscall.SIGSEGV, st.Signal)
}

func TestExecuteTimeout(t *testing.T) {
	sb := &fakeSandbox{polls: -1}
	st, err := Execute(context.Background(), sb, nil, 20*time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, st.Outcome)
	assert.Equal(t, syscall.SIGKILL, st.Signal)
	assert.Equal(t, 1, sb.killed)
	assert.GreaterOrEqual(t, st.Duration, 20*time.Millisecond)
}

func TestExecuteTimeoutRace(t *testing.T) {
	sb := &fakeSandbox{polls: -1, reaped: &Status{Outcome: Exited, Code: 0}}
	st, err := Execute(context.Background(), sb, nil, 5*time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Exited, st.Outcome)
	assert.Zero(t, st.Code)
	assert.Equal(t, 1, sb.killed)

	boom := errors.New("no such process")
	sb = &fakeSandbox{polls: -1, killErr: boom}
	_, err = Execute(context.Background(), sb, nil, 5*time.Millisecond, time.Millisecond)
	assert.ErrorIs(t, err, boom)
}

func TestExecuteErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Execute(context.Background(), &fakeSandbox{spawnErr: boom}, nil, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, boom)

	sb := &fakeSandbox{pollErr: boom}
	_, err = Execute(context.Background(), sb, nil, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sb.killed)

	// A failing kill is logged; the poll error still wins.
	sb = &fakeSandbox{pollErr: boom, killErr: errors.New("kill failed")}
	_, err = Execute(context.Background(), sb, nil, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sb.killed)
}

func TestExecuteCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sb := &fakeSandbox{polls: -1}
	_, err := Execute(ctx, sb, nil, time.Minute, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sb.killed)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "exited with 3 after 1s", Status{Outcome: Exited, Code: 3, Duration: time.Second}.String())
	assert.Equal(t, "timed out by killed after 0s", Status{Outcome: TimedOut, Signal: syscall.SIGKILL}.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
