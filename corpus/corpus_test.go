// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/vmfuzz/prng"
	"github.com/bradleyjkemp/vmfuzz/target"
)

func newCorpus(t *testing.T, files map[string]string) *Corpus {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
	c := New(prng.New(1), DefaultWeights(), 0)
	require.NoError(t, c.LoadSeeds(dir))
	return c
}

func TestLoadSeeds(t *testing.T) {
	c := newCorpus(t, map[string]string{
		"seed_add.asm": "psh 1\nhlt\n",
		"other.asm":    "hlt\n",
	})
	require.Equal(t, 2, c.Len())
	// Entries are sorted by name.
	assert.False(t, c.Entry(0).Seed)
	assert.Equal(t, "other.asm", filepath.Base(c.Entry(0).Path))
	assert.True(t, c.Entry(1).Seed)
}

func TestLoadSeedsMissingDir(t *testing.T) {
	c := New(prng.New(1), DefaultWeights(), 0)
	assert.Error(t, c.LoadSeeds(filepath.Join(t.TempDir(), "missing")))
}

func TestPickEmpty(t *testing.T) {
	c := New(prng.New(1), DefaultWeights(), 0)
	require.NoError(t, c.LoadSeeds(t.TempDir()))
	assert.Equal(t, -1, c.Pick(0))
}

func TestPickBounds(t *testing.T) {
	c := newCorpus(t, map[string]string{"a": "hlt", "b": "hlt", "seed_c": "hlt"})
	counts := make([]int, c.Len())
	for i := 0; i < 3000; i++ {
		idx := c.Pick(i)
		require.True(t, idx >= 0 && idx < c.Len())
		counts[idx]++
	}
	// The seed carries the largest weight.
	assert.Greater(t, counts[2], counts[0])
	assert.Greater(t, counts[2], counts[1])
}

func TestWeight(t *testing.T) {
	c := New(prng.New(1), DefaultWeights(), 0)
	e := &Entry{LastUsed: 0}
	assert.InDelta(t, 3.0, c.Weight(e, 10), 1e-9)
	assert.InDelta(t, 1.0, c.Weight(e, 1000), 1e-9)
	e.Seed = true
	assert.InDelta(t, 6.0, c.Weight(e, 1000), 1e-9)
	e.RecentYield = 2
	e.TotalYield = 10
	assert.InDelta(t, 6.0+10+1, c.Weight(e, 1000), 1e-9)
}

func TestWeightMonotonic(t *testing.T) {
	c := New(prng.New(1), DefaultWeights(), 0)
	prev := -1.0
	for y := 0.0; y < 50; y += 0.5 {
		w := c.Weight(&Entry{RecentYield: y, TotalYield: y}, 5000)
		assert.Greater(t, w, prev)
		prev = w
	}
}

func TestUpdateDecay(t *testing.T) {
	c := newCorpus(t, map[string]string{"a": "hlt", "b": "hlt"})
	c.Update(0, 5, 0, 1)
	c.Update(0, 5, 0, 2)
	e := c.Entry(0)
	assert.InDelta(t, 9.5, e.RecentYield, 1e-9)
	assert.InDelta(t, 10.0, e.TotalYield, 1e-9)
	assert.Equal(t, 2, e.LastUsed)
	assert.Equal(t, 2, e.Execs)

	c.Update(1, 0, 3, 3)
	assert.InDelta(t, 9.5*0.9, c.Entry(0).RecentYield, 1e-9)
	assert.InDelta(t, 3.0, c.Entry(1).RecentYield, 1e-9)
}

func TestRecordAndPromote(t *testing.T) {
	c := newCorpus(t, map[string]string{"a": "hlt", "b": "hlt", "seed_c": "hlt"})
	assert.False(t, c.Promote(0))
	c.Record(0, target.Clean)
	c.Record(0, target.Runtime)
	c.Record(0, target.Rejection)
	assert.Equal(t, 1, c.Entry(0).Successes)
	assert.Equal(t, 1, c.Entry(0).RuntimeErrors)
	assert.False(t, c.Promote(0))
	c.Record(0, target.Clean)
	assert.True(t, c.Promote(0))
	assert.True(t, c.Entry(0).Seed)
	assert.False(t, c.Promote(0))

	c.Update(1, 2, 0, 10)
	assert.True(t, c.Promote(1))
	assert.False(t, c.Promote(2))
}

func TestReloadKeepsStats(t *testing.T) {
	c := newCorpus(t, map[string]string{"a": "hlt"})
	c.Update(0, 4, 0, 7)
	path, err := c.Save([]byte("psh 1\nhlt\n"), Header{Run: 7, VMEdges: 4, ASMEdges: 1, TotalRuns: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	require.NoError(t, c.Reload())
	require.Equal(t, 2, c.Len())
	assert.InDelta(t, 4.0, c.Entry(0).RecentYield, 1e-9)
	assert.Equal(t, path, c.Entry(1).Path)
	assert.Regexp(t, `corpus_5_\d+\.txt$`, path)
}

func TestMaxEntries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	c := New(prng.New(1), DefaultWeights(), 2)
	require.NoError(t, c.LoadSeeds(dir))
	assert.Equal(t, 2, c.Len())
}

func TestHeaderRoundTrip(t *testing.T) {
	c := newCorpus(t, nil)
	prog := "psh 1\n\npsh 2\nhlt\n"
	path, err := c.Save([]byte(prog), Header{Run: 3, VMEdges: 2, ASMEdges: 5, TotalRuns: 4})
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "; Responsible run was 3\n"+
		"; Program found 2 new edges in VM, 5 in ASM || Total: 7\n"+
		"; Total runs: 4\n\n"+prog, string(raw))
	data, err := ReadCandidate(path)
	require.NoError(t, err)
	assert.Equal(t, prog, string(data))

	assert.Equal(t, "; user comment\n\nhlt", string(StripHeader([]byte("; user comment\n\nhlt"))))
	_, err = ReadCandidate(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
