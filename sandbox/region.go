// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package sandbox

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bradleyjkemp/vmfuzz/coverage"
	"github.com/bradleyjkemp/vmfuzz/state"
)

// Region layout.
const (
	vmOff      = 0
	asmOff     = vmOff + coverage.CoverSize
	resultOff  = asmOff + coverage.CoverSize
	stepsOff   = resultOff + 4
	stateOff   = stepsOff + 4
	RegionSize = stateOff + state.Size
)

// Region is the memory shared between the fuzzer and the child.
// The child is the only writer while it runs; the parent reads after reaping it.
type Region struct {
	f   *os.File
	mem []byte
}

// NewRegion creates an anonymous shared mapping backed by a memfd.
func NewRegion() (*Region, error) {
	fd, err := unix.MemfdCreate("vmfuzz-region", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to do memfd_create: %w", err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("/proc/self/fd/%d", fd))
	if err := f.Truncate(int64(RegionSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate region: %w", err)
	}
	return mapRegion(f)
}

// OpenRegion maps a region inherited from the parent.
func OpenRegion(f *os.File) (*Region, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat region: %w", err)
	}
	if st.Size() < int64(RegionSize) {
		return nil, fmt.Errorf("region is too small: %v < %v", st.Size(), RegionSize)
	}
	return mapRegion(f)
}

func mapRegion(f *os.File) (*Region, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap region: %w", err)
	}
	return &Region{f: f, mem: mem}, nil
}

func (r *Region) Close() error {
	err := unix.Munmap(r.mem)
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Region) File() *os.File {
	return r.f
}

func (r *Region) VM() []byte {
	return r.mem[vmOff:asmOff]
}

func (r *Region) ASM() []byte {
	return r.mem[asmOff:resultOff]
}

func (r *Region) State() []byte {
	return r.mem[stateOff:RegionSize]
}

func (r *Region) Result() uint32 {
	return binary.LittleEndian.Uint32(r.mem[resultOff:])
}

func (r *Region) SetResult(v uint32) {
	binary.LittleEndian.PutUint32(r.mem[resultOff:], v)
}

func (r *Region) Steps() uint32 {
	return binary.LittleEndian.Uint32(r.mem[stepsOff:])
}

func (r *Region) SetSteps(v uint32) {
	binary.LittleEndian.PutUint32(r.mem[stepsOff:], v)
}

// ResetResult clears the result code and step count before a run.
func (r *Region) ResetResult() {
	clear(r.mem[resultOff:stateOff])
}

// Recorder returns a coverage recorder over the two coverage maps.
func (r *Region) Recorder() *coverage.Recorder {
	return coverage.NewRecorder(r.VM(), r.ASM())
}
