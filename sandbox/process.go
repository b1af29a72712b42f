// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bradleyjkemp/vmfuzz/log"
)

// Process re-executes the current binary in child mode for every input.
type Process struct {
	region     *Region
	inputPath  string
	stderrPath string
	stderr     *os.File
	bin        string
	env        []string
}

func NewProcess(region *Region, inputPath, stderrPath string) (*Process, error) {
	bin, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	stderr, err := os.OpenFile(stderrPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open child stderr: %w", err)
	}
	env := []string{ChildEnv + "=" + inputPath, "GOTRACEBACK=crash"}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, ChildEnv+"=") || strings.HasPrefix(kv, "GOTRACEBACK=") {
			continue
		}
		env = append(env, kv)
	}
	return &Process{
		region:     region,
		inputPath:  inputPath,
		stderrPath: stderrPath,
		stderr:     stderr,
		bin:        bin,
		env:        env,
	}, nil
}

func (p *Process) Close() error {
	return p.stderr.Close()
}

// Stderr returns what the last child wrote to its stderr.
func (p *Process) Stderr() ([]byte, error) {
	return os.ReadFile(p.stderrPath)
}

func (p *Process) Spawn(input []byte) (*Handle, error) {
	if err := os.WriteFile(p.inputPath, input, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write input: %w", err)
	}
	if err := p.stderr.Truncate(0); err != nil {
		return nil, fmt.Errorf("failed to truncate child stderr: %w", err)
	}
	p.region.ResetResult()
	proc, err := os.StartProcess(p.bin, []string{p.bin}, &os.ProcAttr{
		Env:   p.env,
		Files: []*os.File{nil, p.stderr, p.stderr, p.region.File()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start child: %w", err)
	}
	log.Logf(3, "spawned child %v", proc.Pid)
	return &Handle{Pid: proc.Pid, Start: time.Now(), proc: proc}, nil
}

func (p *Process) Poll(h *Handle) (Status, error) {
	if h.done {
		return h.status, nil
	}
	var ws unix.WaitStatus
	pid, err := unix.Wait4(h.Pid, &ws, unix.WNOHANG, nil)
	if errors.Is(err, unix.EINTR) {
		return Status{Outcome: Running}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("wait4 failed: %w", err)
	}
	if pid == 0 {
		return Status{Outcome: Running}, nil
	}
	return p.reap(h, ws), nil
}

func (p *Process) Kill(h *Handle) (Status, error) {
	if h.done {
		return h.status, nil
	}
	if err := unix.Kill(h.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return Status{}, fmt.Errorf("failed to kill child: %w", err)
	}
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(h.Pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return Status{}, fmt.Errorf("wait4 failed: %w", err)
		}
		break
	}
	return p.reap(h, ws), nil
}

func (p *Process) reap(h *Handle, ws unix.WaitStatus) Status {
	st := Status{Outcome: Running}
	switch {
	case ws.Exited():
		st = Status{Outcome: Exited, Code: ws.ExitStatus()}
	case ws.Signaled():
		st = Status{Outcome: Signaled, Signal: syscall.Signal(ws.Signal())}
	}
	h.done = true
	h.status = st
	h.proc.Release()
	log.Logf(3, "child %v: %v", h.Pid, st.Outcome)
	return st
}
