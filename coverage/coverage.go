// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage records edge coverage for the two instrumented stages of
// the target: program execution (VM) and instruction encoding (ASM).
package coverage

import (
	"fmt"
	"os"
)

const CoverSize = 64 << 10

// MapID selects one of the coverage maps.
type MapID int

const (
	VM MapID = iota
	ASM
	NumMaps
)

func (id MapID) String() string {
	switch id {
	case VM:
		return "vm"
	case ASM:
		return "asm"
	}
	return fmt.Sprintf("map%d", int(id))
}

// HashEdge mixes the previous and current location into a table index.
// The previous location is stored pre-shifted, so A->B and B->A differ.
func HashEdge(prev, cur uint32) uint32 {
	x := cur ^ (prev >> 1)
	x ^= x >> 4
	x ^= x << 10
	x ^= x >> 7
	return x % CoverSize
}

// Map is a table of saturating hit counters. The counters may live in
// memory shared with a child process.
type Map struct {
	counters []byte
	// prev holds the previous location id, shifted right by one.
	prev uint32
}

// NewMap wraps mem, which must be exactly CoverSize bytes.
func NewMap(mem []byte) *Map {
	if len(mem) != CoverSize {
		panic(fmt.Sprintf("bad cover table size (%v)", len(mem)))
	}
	return &Map{counters: mem}
}

// Record counts the edge from the previous location to loc.
func (m *Map) Record(loc uint32) {
	idx := HashEdge(m.prev, loc)
	if m.counters[idx] != 0xFF {
		m.counters[idx]++
	}
	m.prev = loc >> 1
}

func (m *Map) Reset() {
	clear(m.counters)
	m.prev = 0
}

func (m *Map) Bytes() []byte {
	return m.counters
}

// CountBits returns the number of slots that were hit at least once.
func (m *Map) CountBits() int {
	n := 0
	for _, v := range m.counters {
		if v != 0 {
			n++
		}
	}
	return n
}

// WriteFile dumps the raw counter table, one byte per slot.
func (m *Map) WriteFile(path string) error {
	if err := os.WriteFile(path, m.counters, 0o644); err != nil {
		return fmt.Errorf("failed to write coverage map: %w", err)
	}
	return nil
}
