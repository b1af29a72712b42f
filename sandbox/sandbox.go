// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package sandbox runs candidates in an isolated child process.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/bradleyjkemp/vmfuzz/log"
)

// Outcome is the lifecycle state of a spawned execution.
type Outcome int

const (
	Running Outcome = iota
	Exited
	Signaled
	TimedOut
)

var outcomeNames = [...]string{"running", "exited", "signaled", "timed out"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

type Status struct {
	Outcome Outcome
	// Code is the exit code when the child exited.
	Code int
	// Signal that terminated the child, SIGKILL for timed out children.
	Signal   syscall.Signal
	Duration time.Duration
}

func (s Status) String() string {
	switch s.Outcome {
	case Exited:
		return fmt.Sprintf("exited with %v after %v", s.Code, s.Duration)
	case Signaled, TimedOut:
		return fmt.Sprintf("%v by %v after %v", s.Outcome, s.Signal, s.Duration)
	}
	return s.Outcome.String()
}

// Handle identifies one spawned execution.
type Handle struct {
	Pid   int
	Start time.Time

	proc   *os.Process
	done   bool
	status Status
}

// Sandbox spawns one child at a time and reports how it terminated.
type Sandbox interface {
	Spawn(input []byte) (*Handle, error)
	// Poll must not block.
	Poll(h *Handle) (Status, error)
	Kill(h *Handle) (Status, error)
}

// Execute runs input to completion. Children still running after timeout
// are killed and reported as TimedOut. Cancelling ctx kills the child.
func Execute(ctx context.Context, sb Sandbox, input []byte, timeout, poll time.Duration) (Status, error) {
	h, err := sb.Spawn(input)
	if err != nil {
		return Status{}, err
	}
	for {
		st, err := sb.Poll(h)
		if err != nil {
			kill(sb, h)
			return Status{}, err
		}
		if st.Outcome != Running {
			st.Duration = time.Since(h.Start)
			return st, nil
		}
		if time.Since(h.Start) >= timeout {
			st, err := sb.Kill(h)
			if err != nil {
				return Status{}, err
			}
			// A child that exited just before the kill keeps its own status.
			if st.Outcome != Exited {
				st.Outcome = TimedOut
				st.Signal = syscall.SIGKILL
			}
			st.Duration = time.Since(h.Start)
			return st, nil
		}
		select {
		case <-ctx.Done():
			kill(sb, h)
			return Status{}, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// kill cleans up a child whose result is no longer wanted.
func kill(sb Sandbox, h *Handle) {
	if _, err := sb.Kill(h); err != nil {
		log.Logf(0, "failed to kill child %v: %v", h.Pid, err)
	}
}
