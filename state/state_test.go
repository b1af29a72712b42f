// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/vmfuzz/target"
)

func TestLayout(t *testing.T) {
	assert.Equal(t, 99, Len)
	assert.Equal(t, Len*4, Size)
	assert.Panics(t, func() { New(make([]byte, Size-1)) })
}

func TestObserve(t *testing.T) {
	p, err := target.Assemble([]byte("psh 10\npsh -4\npsh 500000\nadd\nset A 6\nlabel top\njmp top\ncall top\nhlt\n"))
	require.NoError(t, err)
	s := New(make([]byte, Size))
	s.Observe(p)

	assert.Equal(t, float32(3), s.Histogram(target.Psh))
	assert.Equal(t, float32(1), s.Histogram(target.Hlt))
	assert.Equal(t, float32(3), s.ClassCount(target.ClassStack))
	assert.Equal(t, float32(1), s.ClassCount(target.ClassArith))
	assert.Equal(t, float32(1), s.ClassCount(target.ClassLabel))
	assert.Equal(t, float32(1), s.ClassCount(target.ClassJump))
	assert.Equal(t, float32(1), s.ClassCount(target.ClassCallstack))

	assert.Equal(t, float32(8), s.Numeric(OperandCount))
	assert.Equal(t, float32(12), s.Numeric(ImmSum))
	assert.Equal(t, float32(4), s.Numeric(ImmMean))
	assert.Equal(t, float32(-4), s.Numeric(ImmMin))
	assert.Equal(t, float32(10), s.Numeric(ImmMax))
	assert.Equal(t, float32(9), s.Numeric(ProgramSize))
}

func TestObserveWithoutImmediates(t *testing.T) {
	p, err := target.Assemble([]byte("hlt\n"))
	require.NoError(t, err)
	s := New(make([]byte, Size))
	s.Observe(p)
	assert.Zero(t, s.Numeric(ImmMin))
	assert.Zero(t, s.Numeric(ImmMax))
	assert.Zero(t, s.Numeric(ImmMean))
}

func TestSerializeOrderAndReset(t *testing.T) {
	s := New(make([]byte, Size))
	s.SetNumeric(OperandCount, 2)
	s.AddNumeric(ChaosReward, 1)
	s.AddNumeric(ChaosReward, -0.25)
	s.SetRejection(target.Syntax)
	s.SetRuntime(target.StackOverflow)
	s.SetRejection(target.NumKinds)
	s.SetRunStats(3, 4, true)

	v := s.Serialize()
	require.Len(t, v, Len)
	assert.Equal(t, float32(2), v[OperandCount])
	assert.Equal(t, float32(0.75), v[ChaosReward])
	assert.Equal(t, float32(1), v[rejectionOff+int(target.Syntax)])
	assert.Equal(t, float32(1), v[runtimeOff+int(target.StackOverflow)])
	assert.Equal(t, float32(7), v[Len-2])
	assert.Equal(t, float32(1), v[Len-1])
	assert.True(t, s.Crashed())

	s.Reset()
	for i, x := range s.Serialize() {
		assert.Zero(t, x, "slot %v", i)
	}
}

func TestSharedView(t *testing.T) {
	mem := make([]byte, Size)
	a, b := New(mem), New(mem)
	a.SetNumeric(StepCount, 42)
	assert.Equal(t, float32(42), b.Numeric(StepCount))
}
