// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads the fuzzer configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bradleyjkemp/vmfuzz/corpus"
	"github.com/bradleyjkemp/vmfuzz/mutate"
)

// DefaultFile is read from the working directory when present.
const DefaultFile = "vmfuzz.yaml"

type Config struct {
	// Workdir is the base for all relative paths below.
	Workdir     string `yaml:"workdir"`
	CorpusDir   string `yaml:"corpus_dir"`
	CrashDir    string `yaml:"crash_dir"`
	CoverageDir string `yaml:"coverage_dir"`
	StatsFile   string `yaml:"stats_file"`
	TraceFile   string `yaml:"trace_file"`
	StderrFile  string `yaml:"stderr_file"`
	InputFile   string `yaml:"input_file"`

	MaxIterations int `yaml:"max_iterations"`
	// Timeout is the wall-clock limit of one child execution.
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Actions is the number of mutations applied per iteration.
	Actions     int `yaml:"actions"`
	ReloadEvery int `yaml:"reload_every"`
	LogEvery    int `yaml:"log_every"`
	MaxEntries  int `yaml:"max_entries"`

	// Socket of the policy process. Empty disables the bridge.
	Socket        string        `yaml:"socket"`
	BridgeTimeout time.Duration `yaml:"bridge_timeout"`

	// Seed of the PRNG, 0 means seed from OS entropy.
	Seed      uint64 `yaml:"seed"`
	Verbosity int    `yaml:"verbosity"`
	// MetricsAddr enables the prometheus endpoint, e.g. ":9100".
	MetricsAddr string `yaml:"metrics_addr"`

	Mutate mutate.Config  `yaml:"mutate"`
	Corpus corpus.Weights `yaml:"corpus"`
	Reward Reward         `yaml:"reward"`
}

// Reward holds the reward shaping constants. Crash is added for signal deaths;
// zero leaves them with the coverage term only.
type Reward struct {
	CoverageScale   float64 `yaml:"coverage_scale"`
	NoCoverage      float64 `yaml:"no_coverage"`
	RuntimeCoverage float64 `yaml:"runtime_coverage"`
	RuntimeNoCover  float64 `yaml:"runtime_no_coverage"`
	RejectSmall     float64 `yaml:"reject_small"`
	RejectLarge     float64 `yaml:"reject_large"`
	RejectSizeLimit int     `yaml:"reject_size_limit"`
	Clean           float64 `yaml:"clean"`
	Hang            float64 `yaml:"hang"`
	Crash           float64 `yaml:"crash"`
	SizeBonus       float64 `yaml:"size_bonus"`
	SizeBonusCap    int     `yaml:"size_bonus_cap"`
}

func DefaultReward() Reward {
	return Reward{
		CoverageScale:   5,
		NoCoverage:      -0.5,
		RuntimeCoverage: 0.5,
		RuntimeNoCover:  -0.3,
		RejectSmall:     -0.1,
		RejectLarge:     -0.5,
		RejectSizeLimit: 20,
		Clean:           0.5,
		Hang:            -1,
		SizeBonus:       0.001,
		SizeBonusCap:    200,
	}
}

func Default() *Config {
	return &Config{
		Workdir:       ".",
		CorpusDir:     "corpus",
		CrashDir:      "crashes",
		CoverageDir:   "coverage",
		StatsFile:     "fuzz_stats.txt",
		TraceFile:     "rl_fuzzer_log.csv",
		StderrFile:    "fuzz_stderr.log",
		InputFile:     "fuzz_input.asm",
		MaxIterations: 30000,
		Timeout:       5 * time.Second,
		PollInterval:  10 * time.Millisecond,
		Actions:       3,
		ReloadEvery:   1000,
		LogEvery:      100,
		MaxEntries:    corpus.DefaultMaxEntries,
		Socket:        "/tmp/rl_fuzzer.sock",
		BridgeTimeout: 5 * time.Second,
		Mutate:        mutate.DefaultConfig(),
		Corpus:        corpus.DefaultWeights(),
		Reward:        DefaultReward(),
	}
}

// Load returns the defaults overridden by the YAML file at path.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative")
	}
	if c.Timeout <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("timeout and poll_interval must be positive")
	}
	if c.Actions <= 0 {
		return fmt.Errorf("actions must be positive")
	}
	if c.ReloadEvery <= 0 || c.LogEvery <= 0 {
		return fmt.Errorf("reload_every and log_every must be positive")
	}
	for _, pct := range []int{c.Mutate.ValidRegisterPct, c.Mutate.ValidInstructionPct} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("mutation ratios must be within [0, 100], got %v", pct)
		}
	}
	return nil
}

// Path resolves a configured path against Workdir.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workdir, p)
}
