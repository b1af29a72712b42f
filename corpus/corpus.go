// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus schedules which on-disk candidate is mutated next.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bradleyjkemp/vmfuzz/log"
	"github.com/bradleyjkemp/vmfuzz/prng"
	"github.com/bradleyjkemp/vmfuzz/target"
)

// SeedPrefix marks files that are permanent seeds.
const SeedPrefix = "seed"

// Weights are the scheduling constants.
type Weights struct {
	Base        float64 `yaml:"base"`
	Recent      float64 `yaml:"recent"`
	Cumulative  float64 `yaml:"cumulative"`
	Fresh       float64 `yaml:"fresh"`
	FreshWindow int     `yaml:"fresh_window"`
	Seed        float64 `yaml:"seed"`
	Decay       float64 `yaml:"decay"`
	// An entry is promoted once its recent yield exceeds PromoteYield or
	// it ran cleanly PromoteSuccesses times.
	PromoteYield     float64 `yaml:"promote_yield"`
	PromoteSuccesses int     `yaml:"promote_successes"`
}

func DefaultWeights() Weights {
	return Weights{
		Base:             1,
		Recent:           5,
		Cumulative:       0.1,
		Fresh:            2,
		FreshWindow:      1000,
		Seed:             5,
		Decay:            0.9,
		PromoteYield:     1,
		PromoteSuccesses: 2,
	}
}

// Entry is one scheduled candidate file.
type Entry struct {
	Path          string
	TotalYield    float64
	RecentYield   float64
	LastUsed      int
	Execs         int
	Successes     int
	RuntimeErrors int
	Seed          bool
}

// Corpus owns the entries discovered in one directory.
type Corpus struct {
	dir        string
	w          Weights
	r          *prng.Rand
	maxEntries int
	entries    []*Entry
	byPath     map[string]*Entry
}

// DefaultMaxEntries caps the number of tracked entries.
const DefaultMaxEntries = 512

func New(r *prng.Rand, w Weights, maxEntries int) *Corpus {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Corpus{
		w:          w,
		r:          r,
		maxEntries: maxEntries,
		byPath:     make(map[string]*Entry),
	}
}

// LoadSeeds scans dir and tracks every regular file in it.
func (c *Corpus) LoadSeeds(dir string) error {
	c.dir = dir
	return c.Reload()
}

// Reload rescans the corpus directory. Entries already known keep their
// statistics.
func (c *Corpus) Reload() error {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read corpus dir: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	added := 0
	for _, f := range files {
		if !f.Type().IsRegular() {
			continue
		}
		path := filepath.Join(c.dir, f.Name())
		if _, ok := c.byPath[path]; ok {
			continue
		}
		if len(c.entries) >= c.maxEntries {
			log.Logf(1, "corpus is full (%v entries), ignoring %v", len(c.entries), path)
			break
		}
		e := &Entry{Path: path, Seed: strings.HasPrefix(f.Name(), SeedPrefix)}
		c.entries = append(c.entries, e)
		c.byPath[path] = e
		added++
	}
	log.Logf(2, "corpus reload: %v new entries, %v total", added, len(c.entries))
	return nil
}

func (c *Corpus) Len() int {
	return len(c.entries)
}

func (c *Corpus) Entry(idx int) *Entry {
	return c.entries[idx]
}

func (c *Corpus) Dir() string {
	return c.dir
}

// Weight is the selection weight of e at the given iteration.
func (c *Corpus) Weight(e *Entry, iteration int) float64 {
	w := c.w.Base + c.w.Recent*e.RecentYield + c.w.Cumulative*e.TotalYield
	if iteration-e.LastUsed < c.w.FreshWindow {
		w += c.w.Fresh
	}
	if e.Seed {
		w += c.w.Seed
	}
	return w
}

// Pick samples an entry index proportionally to its weight.
// It returns -1 when the corpus is empty.
func (c *Corpus) Pick(iteration int) int {
	if len(c.entries) == 0 {
		return -1
	}
	total := 0.0
	for _, e := range c.entries {
		total += c.Weight(e, iteration)
	}
	draw := c.r.Float64() * total
	acc := 0.0
	for i, e := range c.entries {
		acc += c.Weight(e, iteration)
		if draw < acc {
			return i
		}
	}
	return len(c.entries) - 1
}

// Update credits the entry with the new edges its mutant found. Recent
// yields of all entries decay first, so older discoveries fade.
func (c *Corpus) Update(idx, vmNew, asmNew, iteration int) {
	for _, e := range c.entries {
		e.RecentYield *= c.w.Decay
	}
	e := c.entries[idx]
	gain := float64(vmNew + asmNew)
	e.RecentYield += gain
	e.TotalYield += gain
	e.LastUsed = iteration
	e.Execs++
}

// Record tallies the outcome family of an execution derived from the entry.
func (c *Corpus) Record(idx int, family target.Family) {
	e := c.entries[idx]
	switch family {
	case target.Clean:
		e.Successes++
	case target.Runtime:
		e.RuntimeErrors++
	}
}

// Promote turns a productive entry into a permanent seed.
// It reports whether the entry was promoted by this call.
func (c *Corpus) Promote(idx int) bool {
	e := c.entries[idx]
	if e.Seed {
		return false
	}
	if e.RecentYield > c.w.PromoteYield || e.Successes >= c.w.PromoteSuccesses {
		e.Seed = true
		log.Logf(2, "promoted %v to seed (recent=%.2f successes=%v)", e.Path, e.RecentYield, e.Successes)
		return true
	}
	return false
}
