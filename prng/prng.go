// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package prng provides the seedable random source shared by the mutator,
// the corpus scheduler and the fallback action source.
package prng

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Rand is a permuted congruential generator with helpers tuned for mutation.
// It is not safe for concurrent use.
type Rand struct {
	src  *rand.PCG
	seed uint64
}

// New returns a generator that produces the same sequence for the same seed.
func New(seed uint64) *Rand {
	r := &Rand{src: rand.NewPCG(0, 0)}
	r.Seed(seed)
	return r
}

// NewFromOS seeds a generator from OS entropy.
func NewFromOS() (*Rand, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	return New(binary.LittleEndian.Uint64(b[:])), nil
}

// Seed resets the generator state.
func (r *Rand) Seed(seed uint64) {
	r.seed = seed
	r.src.Seed(seed, seed^0xda3e39cb94b95bdb)
}

// SeedValue returns the seed the generator was last reset with.
func (r *Rand) SeedValue() uint64 {
	return r.seed
}

func (r *Rand) Uint32() uint32 {
	return uint32(r.src.Uint64() >> 32)
}

// Index returns a value in [0, n). It returns 0 for n <= 0.
func (r *Rand) Index(n int) int {
	if n <= 0 {
		return 0
	}
	return int((uint64(r.Uint32()) * uint64(n)) >> 32)
}

// Range returns a value in [min, max], both ends inclusive.
func (r *Rand) Range(min, max int) int {
	if min > max {
		min, max = max, min
	}
	return min + r.Index(max-min+1)
}

func (r *Rand) Bool() bool {
	return r.Uint32()&1 == 1
}

// Chance reports true with probability pct/100.
func (r *Rand) Chance(pct int) bool {
	return r.Index(100) < pct
}

func (r *Rand) Byte() byte {
	return byte(r.Uint32())
}

// ASCII returns a printable character in [32, 126].
func (r *Rand) ASCII() byte {
	return byte(r.Range(32, 126))
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint32()) / (1 << 32)
}

// Shuffle permutes n elements with Fisher-Yates.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, r.Index(i+1))
	}
}
