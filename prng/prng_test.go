// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package prng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(r *Rand) []int {
	var out []int
	for i := 0; i < 200; i++ {
		out = append(out, r.Range(-50, 50), r.Index(17))
		if r.Chance(30) {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func TestDeterminism(t *testing.T) {
	a := drain(New(42))
	b := drain(New(42))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, drain(New(43)))
}

func TestReseed(t *testing.T) {
	r := New(7)
	first := drain(r)
	r.Seed(7)
	assert.Equal(t, first, drain(r))
	assert.Equal(t, uint64(7), r.SeedValue())
}

func TestBounds(t *testing.T) {
	r := New(1)
	for i := 0; i < 10000; i++ {
		v := r.Range(-3, 3)
		require.True(t, v >= -3 && v <= 3, "range %v", v)
		idx := r.Index(5)
		require.True(t, idx >= 0 && idx < 5, "index %v", idx)
		c := r.ASCII()
		require.True(t, c >= 32 && c <= 126, "ascii %v", c)
		f := r.Float64()
		require.True(t, f >= 0 && f < 1, "float %v", f)
	}
	assert.Equal(t, 0, r.Index(0))
	assert.Equal(t, 0, r.Index(-4))
	v := r.Range(9, 2)
	assert.True(t, v >= 2 && v <= 9)
}

func TestChanceExtremes(t *testing.T) {
	r := New(3)
	for i := 0; i < 1000; i++ {
		require.False(t, r.Chance(0))
		require.True(t, r.Chance(100))
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	r := New(11)
	s := []int{0, 1, 2, 3, 4, 5, 6, 7}
	r.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, s)
}

func TestNewFromOS(t *testing.T) {
	r, err := NewFromOS()
	require.NoError(t, err)
	r.Uint32()
}
