// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import "fmt"

const virginUnseen = 0xFF

// Virgin remembers every slot ever observed during the run. A slot holds
// 0xFF until its edge is seen and 0 afterwards.
type Virgin struct {
	bits []byte
	seen int
}

func NewVirgin() *Virgin {
	v := &Virgin{bits: make([]byte, CoverSize)}
	for i := range v.bits {
		v.bits[i] = virginUnseen
	}
	return v
}

// Merge marks every slot hit in m as seen and returns how many were new.
func (v *Virgin) Merge(m *Map) int {
	n := 0
	for i, c := range m.counters {
		if c != 0 && v.bits[i] == virginUnseen {
			v.bits[i] = 0
			n++
		}
	}
	v.seen += n
	return n
}

// Seen returns the number of distinct edges observed so far.
func (v *Virgin) Seen() int {
	return v.seen
}

// Recorder owns one live map and one virgin map per stage.
// Virgin maps are allocated lazily, so a child process that only records
// does not pay for them.
type Recorder struct {
	maps   [NumMaps]*Map
	virgin [NumMaps]*Virgin
}

// NewRecorder wraps the VM and ASM counter tables.
func NewRecorder(vm, asm []byte) *Recorder {
	r := &Recorder{}
	r.maps[VM] = NewMap(vm)
	r.maps[ASM] = NewMap(asm)
	return r
}

func (r *Recorder) Map(id MapID) *Map {
	return r.maps[id]
}

func (r *Recorder) RecordEdge(id MapID, loc uint32) {
	r.maps[id].Record(loc)
}

// RecordEncode records an encoded instruction in the ASM map. The location
// combines the opcode with the instruction index.
func (r *Recorder) RecordEncode(opcode, line int) {
	r.maps[ASM].Record(uint32(opcode)<<16 | uint32(line)&0xFFFF)
}

// Reset clears one live map. The virgin map is never reset.
func (r *Recorder) Reset(id MapID) {
	r.maps[id].Reset()
}

func (r *Recorder) ResetAll() {
	for id := MapID(0); id < NumMaps; id++ {
		r.Reset(id)
	}
}

// DiffAgainstVirgin returns the number of slots hit in the live map that
// were never seen before, and marks them seen.
func (r *Recorder) DiffAgainstVirgin(id MapID) int {
	if r.virgin[id] == nil {
		r.virgin[id] = NewVirgin()
	}
	return r.virgin[id].Merge(r.maps[id])
}

// Covered returns the number of distinct edges seen in a map during the run.
func (r *Recorder) Covered(id MapID) int {
	if r.virgin[id] == nil {
		return 0
	}
	return r.virgin[id].Seen()
}

func (r *Recorder) String() string {
	return fmt.Sprintf("vm=%v asm=%v", r.Covered(VM), r.Covered(ASM))
}
