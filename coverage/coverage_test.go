// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder() *Recorder {
	return NewRecorder(make([]byte, CoverSize), make([]byte, CoverSize))
}

func nonzero(m *Map) map[int]bool {
	res := make(map[int]bool)
	for i, v := range m.Bytes() {
		if v != 0 {
			res[i] = true
		}
	}
	return res
}

func TestHashEdgeInRange(t *testing.T) {
	for prev := uint32(0); prev < 300; prev += 7 {
		for cur := uint32(0); cur < 300; cur += 3 {
			assert.Less(t, HashEdge(prev, cur), uint32(CoverSize))
		}
	}
}

func TestRecordTwiceIsSuperset(t *testing.T) {
	seq := []uint32{1, 2, 3, 5, 8, 13, 21, 2, 3}
	r := newRecorder()
	for _, loc := range seq {
		r.RecordEdge(VM, loc)
	}
	once := nonzero(r.Map(VM))

	r.Reset(VM)
	for i := 0; i < 2; i++ {
		for _, loc := range seq {
			r.RecordEdge(VM, loc)
		}
	}
	twice := nonzero(r.Map(VM))
	for idx := range once {
		assert.True(t, twice[idx], "slot %v lost", idx)
	}
	assert.GreaterOrEqual(t, len(twice), len(once))
}

func TestCountersSaturate(t *testing.T) {
	r := newRecorder()
	for j := 0; j < 300; j++ {
		r.RecordEdge(VM, 0)
	}
	idx := HashEdge(0, 0)
	assert.Equal(t, byte(0xFF), r.Map(VM).Bytes()[idx])
}

func TestResetClearsCursor(t *testing.T) {
	r := newRecorder()
	r.RecordEdge(VM, 100)
	r.RecordEdge(VM, 200)
	first := nonzero(r.Map(VM))
	r.Reset(VM)
	assert.Equal(t, 0, r.Map(VM).CountBits())
	r.RecordEdge(VM, 100)
	r.RecordEdge(VM, 200)
	assert.Equal(t, first, nonzero(r.Map(VM)))
}

func TestDiffAgainstVirgin(t *testing.T) {
	r := newRecorder()
	for _, loc := range []uint32{4, 9, 16} {
		r.RecordEdge(ASM, loc)
	}
	n := r.DiffAgainstVirgin(ASM)
	assert.Equal(t, r.Map(ASM).CountBits(), n)
	assert.Positive(t, n)
	assert.Equal(t, 0, r.DiffAgainstVirgin(ASM))
	assert.Equal(t, n, r.Covered(ASM))
	assert.Equal(t, 0, r.Covered(VM))

	r.Reset(ASM)
	for _, loc := range []uint32{4, 9, 16} {
		r.RecordEdge(ASM, loc)
	}
	assert.Equal(t, 0, r.DiffAgainstVirgin(ASM))
}

func TestRecordEncodeUsesOpcodeAndLine(t *testing.T) {
	a, b := newRecorder(), newRecorder()
	a.RecordEncode(3, 1)
	b.RecordEdge(ASM, 3<<16|1)
	assert.Equal(t, a.Map(ASM).Bytes(), b.Map(ASM).Bytes())
}

func TestWriteFile(t *testing.T) {
	r := newRecorder()
	r.RecordEdge(VM, 77)
	path := filepath.Join(t.TempDir(), "vm_coverage.bin")
	require.NoError(t, r.Map(VM).WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Map(VM).Bytes(), data)
}

func TestNewMapRejectsBadSize(t *testing.T) {
	assert.Panics(t, func() { NewMap(make([]byte, 10)) })
}
