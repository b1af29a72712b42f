// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

// Package fuzzer drives the mutate, execute and score loop.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bradleyjkemp/vmfuzz/buffer"
	"github.com/bradleyjkemp/vmfuzz/config"
	"github.com/bradleyjkemp/vmfuzz/corpus"
	"github.com/bradleyjkemp/vmfuzz/coverage"
	"github.com/bradleyjkemp/vmfuzz/log"
	"github.com/bradleyjkemp/vmfuzz/mutate"
	"github.com/bradleyjkemp/vmfuzz/prng"
	"github.com/bradleyjkemp/vmfuzz/rlbridge"
	"github.com/bradleyjkemp/vmfuzz/sandbox"
	"github.com/bradleyjkemp/vmfuzz/state"
	"github.com/bradleyjkemp/vmfuzz/target"
)

// fallbackSeed is mutated while the corpus is empty.
var fallbackSeed = []byte("hlt\n")

type Fuzzer struct {
	cfg   *config.Config
	runID string
	rnd   *prng.Rand

	region *sandbox.Region
	proc   *sandbox.Process
	sb     sandbox.Sandbox
	rec    *coverage.Recorder
	state  *state.State

	corpus *corpus.Corpus
	mut    *mutate.Mutator
	src    rlbridge.Source
	trace  *Trace

	Stats    *Stats
	Registry *prometheus.Registry
}

// New prepares the working directories, the shared region and the policy
// connection. Failing to reach the policy is not fatal.
func New(cfg *config.Config, runID string) (*Fuzzer, error) {
	for _, dir := range []string{cfg.CorpusDir, cfg.CrashDir, cfg.CoverageDir} {
		if err := os.MkdirAll(cfg.Path(dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %v: %w", dir, err)
		}
	}
	rnd := prng.New(cfg.Seed)
	if cfg.Seed == 0 {
		var err error
		if rnd, err = prng.NewFromOS(); err != nil {
			return nil, err
		}
	}
	region, err := sandbox.NewRegion()
	if err != nil {
		return nil, err
	}
	proc, err := sandbox.NewProcess(region, cfg.Path(cfg.InputFile), cfg.Path(cfg.StderrFile))
	if err != nil {
		region.Close()
		return nil, err
	}
	f := &Fuzzer{
		cfg:      cfg,
		runID:    runID,
		rnd:      rnd,
		region:   region,
		proc:     proc,
		sb:       proc,
		rec:      region.Recorder(),
		state:    state.New(region.State()),
		corpus:   corpus.New(rnd, cfg.Corpus, cfg.MaxEntries),
		mut:      mutate.New(rnd, cfg.Mutate),
		src:      rlbridge.NewUniform(rnd),
		Stats:    NewStats(),
		Registry: prometheus.NewRegistry(),
	}
	if err := f.init(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (f *Fuzzer) init() error {
	f.state.Reset()
	if err := f.Stats.Register(f.Registry); err != nil {
		return err
	}
	if err := f.corpus.LoadSeeds(f.cfg.Path(f.cfg.CorpusDir)); err != nil {
		return err
	}
	trace, err := NewTrace(f.cfg.Path(f.cfg.TraceFile))
	if err != nil {
		return err
	}
	f.trace = trace
	if f.cfg.Socket != "" {
		c, err := rlbridge.Dial(f.cfg.Socket, f.cfg.BridgeTimeout)
		if err != nil {
			log.Logf(0, "running without policy: %v", err)
		} else {
			f.src = rlbridge.NewRemote(c)
		}
	}
	log.Logf(0, "run %v: seed=%v corpus=%v policy=%v", f.runID, f.rnd.SeedValue(), f.corpus.Len(), f.src.Name())
	return nil
}

func (f *Fuzzer) Close() error {
	var errs []error
	if f.src != nil {
		errs = append(errs, f.src.Close())
	}
	if f.trace != nil {
		errs = append(errs, f.trace.Close())
	}
	errs = append(errs, f.proc.Close(), f.region.Close())
	return errors.Join(errs...)
}

// Loop runs the configured number of iterations or until ctx is cancelled,
// then writes the summary.
func (f *Fuzzer) Loop(ctx context.Context) error {
	var err error
	for i := 0; i < f.cfg.MaxIterations && ctx.Err() == nil; i++ {
		if err = f.iteration(ctx, i); err != nil {
			break
		}
	}
	if errors.Is(err, context.Canceled) {
		log.Logf(0, "interrupted after %v runs", f.Stats.Runs.Load())
		err = nil
	}
	if serr := f.Stats.WriteSummary(f.cfg.Path(f.cfg.StatsFile), f.runID); err == nil {
		err = serr
	}
	return err
}

func (f *Fuzzer) iteration(ctx context.Context, i int) error {
	if (i+1)%f.cfg.ReloadEvery == 0 {
		if err := f.corpus.Reload(); err != nil {
			log.Logf(0, "corpus reload failed: %v", err)
		} else {
			log.Logf(1, "reloaded corpus: %v files", f.corpus.Len())
		}
	}
	idx := f.corpus.Pick(i)
	data := fallbackSeed
	if idx >= 0 {
		var err error
		if data, err = corpus.ReadCandidate(f.corpus.Entry(idx).Path); err != nil {
			log.Logf(0, "skipping unreadable corpus entry: %v", err)
			return nil
		}
	}
	buf := buffer.New(data)
	actions := f.actions()
	f.state.Reset()
	applied := f.mut.Apply(buf, actions)

	o, err := f.execute(ctx, buf.Bytes())
	if err != nil {
		return err
	}
	f.persist(buf.Bytes(), o)
	f.Stats.Record(o)
	f.shapeTiers(applied, o)
	if idx >= 0 {
		f.corpus.Update(idx, o.VMNew, o.ASMNew, i)
		f.corpus.Record(idx, o.family())
		f.corpus.Promote(idx)
	}
	reward := Reward(f.cfg.Reward, o)
	f.Stats.SetReward(reward)
	if err := f.src.Reward(float32(reward)); err != nil {
		f.degrade(err)
	}
	if (i+1)%f.cfg.LogEvery == 0 {
		if err := f.trace.Append(i+1, f.Stats, reward); err != nil {
			log.Logf(0, "%v", err)
		}
		log.Logf(0, "%v", f.Stats.Progress(i+1, f.cfg.MaxIterations))
	}
	return nil
}

// actions sends the previous iteration's state and returns the policy's
// choice, falling back to uniform actions once the bridge fails.
func (f *Fuzzer) actions() []mutate.Action {
	actions, err := f.src.Actions(f.state.Serialize(), f.cfg.Actions)
	if err != nil {
		f.degrade(err)
		actions, _ = f.src.Actions(nil, f.cfg.Actions)
	}
	return actions
}

func (f *Fuzzer) degrade(err error) {
	log.Logf(0, "policy bridge failed, continuing with uniform actions: %v", err)
	f.src.Close()
	f.src = rlbridge.NewUniform(f.rnd)
}

func (f *Fuzzer) execute(ctx context.Context, input []byte) (*Outcome, error) {
	f.rec.ResetAll()
	st, err := sandbox.Execute(ctx, f.sb, input, f.cfg.Timeout, f.cfg.PollInterval)
	if err != nil {
		return nil, err
	}
	f.Stats.ObserveExec(st.Duration)
	o := classify(st)
	o.VMNew = f.rec.DiffAgainstVirgin(coverage.VM)
	o.ASMNew = f.rec.DiffAgainstVirgin(coverage.ASM)
	o.Size = int(f.state.Numeric(state.ProgramSize))
	o.Steps = int(f.region.Steps())
	switch o.Kind.Family() {
	case target.Rejection:
		f.state.SetRejection(o.Kind)
		o.Fault = f.childFault()
	case target.Runtime:
		f.state.SetRuntime(o.Kind)
		o.Fault = f.childFault()
	}
	f.state.SetRunStats(o.VMNew, o.ASMNew, o.Crashed)
	if o.Fault != nil {
		log.Logf(3, "executed: %v, %v error %v at %v (%q): %v, new edges vm=%v asm=%v",
			st, o.Fault.Stage, o.Fault.Error, o.Fault.IP, o.Fault.Instr, o.Fault.Msg, o.VMNew, o.ASMNew)
	} else {
		log.Logf(3, "executed: %v, new edges vm=%v asm=%v", st, o.VMNew, o.ASMNew)
	}
	return o, nil
}

// childFault reads the error record the child left on stderr.
func (f *Fuzzer) childFault() *sandbox.ErrorLine {
	out, err := f.proc.Stderr()
	if err != nil {
		log.Logf(0, "failed to read child stderr: %v", err)
		return nil
	}
	rec, _ := sandbox.ParseErrorLine(out)
	return rec
}

// persist keeps interesting inputs. Failures are logged, the run goes on.
func (f *Fuzzer) persist(data []byte, o *Outcome) {
	runs := f.Stats.Runs.Load() + 1
	crashDir := f.cfg.Path(f.cfg.CrashDir)
	switch {
	case o.Hung:
		path, err := saveHang(crashDir, int(f.Stats.Hangs.Load())+1, f.cfg.Timeout, runs, data)
		f.logSaved("hang", path, err)
		return
	case o.Crashed:
		stderr, err := f.proc.Stderr()
		if err != nil {
			log.Logf(0, "failed to read child stderr: %v", err)
		}
		path, err := saveCrash(crashDir, int(f.Stats.Crashes.Load())+1, o.Status.Signal, runs, data, stderr)
		f.logSaved("crash", path, err)
	}
	if o.NewEdges() == 0 {
		return
	}
	path, err := f.corpus.Save(data, corpus.Header{
		Run:       int(runs),
		VMEdges:   o.VMNew,
		ASMEdges:  o.ASMNew,
		TotalRuns: int(runs),
	})
	f.logSaved("new corpus", path, err)
	covDir := f.cfg.Path(f.cfg.CoverageDir)
	if o.VMNew > 0 {
		if err := f.rec.Map(coverage.VM).WriteFile(filepath.Join(covDir, "vm_coverage.bin")); err != nil {
			log.Logf(0, "%v", err)
		}
	}
	if o.ASMNew > 0 {
		if err := f.rec.Map(coverage.ASM).WriteFile(filepath.Join(covDir, "asm_coverage.bin")); err != nil {
			log.Logf(0, "%v", err)
		}
	}
}

func (f *Fuzzer) logSaved(what, path string, err error) {
	if err != nil {
		log.Logf(0, "%v", err)
		return
	}
	log.Logf(1, "saved %v to %v", what, path)
}

// shapeTiers updates the per-tier reward accumulators in the state.
func (f *Fuzzer) shapeTiers(applied []mutate.Applied, o *Outcome) {
	var used [mutate.NumTiers]bool
	for _, a := range applied {
		used[a.Tier] = true
	}
	newCov := o.NewEdges() > 0
	faulted := o.Kind.Family() == target.Runtime
	if used[mutate.Safe] {
		f.state.AddNumeric(state.SafeReward, pick(newCov, 1, -0.1))
	}
	if used[mutate.Structural] {
		f.state.AddNumeric(state.StructuralReward, pick(faulted, 1, -0.2))
	}
	if used[mutate.Chaos] {
		f.state.AddNumeric(state.ChaosReward, pick(newCov, 1, -0.2))
	}
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
