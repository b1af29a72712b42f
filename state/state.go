// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package state holds the fuzzing-state feature vector sent to the policy.
//
// The vector is a view over a byte slice so that it can live in memory
// shared with the sandboxed child. Values are little-endian float32.
package state

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bradleyjkemp/vmfuzz/target"
)

// Numeric feature slots.
const (
	OperandCount = iota
	ImmSum
	ImmMean
	ImmMin
	ImmMax
	ProgramSize
	StepCount
	SafeReward
	StructuralReward
	ChaosReward
	NumNumeric
)

// Offsets of each section, in values.
const (
	numericOff   = 0
	histogramOff = numericOff + NumNumeric
	classOff     = histogramOff + int(target.NumOpcodes)
	rejectionOff = classOff + int(target.NumClasses)
	runtimeOff   = rejectionOff + int(target.NumKinds)
	coverageOff  = runtimeOff + int(target.NumKinds)
	crashOff     = coverageOff + 1

	// Len is the number of values in a serialized vector.
	Len = crashOff + 1
	// Size is the number of bytes backing a vector.
	Size = Len * 4
)

// immLimit bounds which immediates contribute to operand statistics.
const immLimit = 100000

type State struct {
	mem []byte
}

// New wraps mem, which must hold at least Size bytes.
func New(mem []byte) *State {
	if len(mem) < Size {
		panic(fmt.Sprintf("state region too small: %v < %v", len(mem), Size))
	}
	return &State{mem: mem[:Size]}
}

func (s *State) get(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(s.mem[i*4:]))
}

func (s *State) set(i int, v float32) {
	binary.LittleEndian.PutUint32(s.mem[i*4:], math.Float32bits(v))
}

func (s *State) Reset() {
	clear(s.mem)
}

func (s *State) Numeric(slot int) float32 {
	return s.get(numericOff + slot)
}

func (s *State) SetNumeric(slot int, v float32) {
	s.set(numericOff+slot, v)
}

func (s *State) AddNumeric(slot int, d float32) {
	s.set(numericOff+slot, s.get(numericOff+slot)+d)
}

func (s *State) Histogram(op target.Opcode) float32 {
	return s.get(histogramOff + int(op))
}

func (s *State) ClassCount(c target.Class) float32 {
	return s.get(classOff + int(c))
}

// SetRejection marks the assembler error kind of the last execution.
func (s *State) SetRejection(k target.Kind) {
	if k >= 0 && k < target.NumKinds {
		s.set(rejectionOff+int(k), 1)
	}
}

// SetRuntime marks the VM error kind of the last execution.
func (s *State) SetRuntime(k target.Kind) {
	if k >= 0 && k < target.NumKinds {
		s.set(runtimeOff+int(k), 1)
	}
}

func (s *State) Rejection(k target.Kind) float32 {
	return s.get(rejectionOff + int(k))
}

func (s *State) Runtime(k target.Kind) float32 {
	return s.get(runtimeOff + int(k))
}

// SetRunStats records the coverage delta and crash flag of the last execution.
func (s *State) SetRunStats(vmNew, asmNew int, crashed bool) {
	s.set(coverageOff, float32(vmNew)+float32(asmNew))
	if crashed {
		s.set(crashOff, 1)
	} else {
		s.set(crashOff, 0)
	}
}

func (s *State) CoverageDelta() float32 {
	return s.get(coverageOff)
}

func (s *State) Crashed() bool {
	return s.get(crashOff) != 0
}

// Observe records the static features of an assembled program.
func (s *State) Observe(p *target.Program) {
	var operands, sum, count float32
	min, max := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for i := range p.Instrs {
		in := &p.Instrs[i]
		s.set(histogramOff+int(in.Op), s.get(histogramOff+int(in.Op))+1)
		if c := in.Op.Class(); c != target.ClassOther {
			s.set(classOff+int(c), s.get(classOff+int(c))+1)
		}
		for j := 0; j < in.N; j++ {
			arg := in.Args[j]
			operands++
			if arg.Kind != target.Imm || arg.Imm < -immLimit || arg.Imm > immLimit {
				continue
			}
			v := float32(arg.Imm)
			count++
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	var mean float32
	if count > 0 {
		mean = sum / count
	} else {
		min, max = 0, 0
	}
	s.SetNumeric(OperandCount, operands)
	s.SetNumeric(ImmSum, sum)
	s.SetNumeric(ImmMean, mean)
	s.SetNumeric(ImmMin, min)
	s.SetNumeric(ImmMax, max)
	s.SetNumeric(ProgramSize, float32(p.Len()))
}

// Serialize returns the vector in wire order: numeric features, opcode
// histogram, class counts, rejection one-hot, runtime one-hot, coverage
// delta, crash flag.
func (s *State) Serialize() []float32 {
	out := make([]float32, Len)
	for i := range out {
		out[i] = s.get(i)
	}
	return out
}
