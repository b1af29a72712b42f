// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bradleyjkemp/vmfuzz/target"
)

// Category groups error kinds for reporting.
type Category int

const (
	CatSyntax Category = iota
	CatLabel
	CatStackOverflow
	CatStackUnderflow
	CatDivideByZero
	CatInfiniteLoop
	CatRegister
	CatEmptyProgram
	NumCategories
	CatNone Category = -1
)

var categoryNames = [NumCategories]string{
	"syntax", "label", "stack overflow", "stack underflow",
	"divide by zero", "infinite loop", "register", "empty program",
}

func (c Category) String() string {
	if c < 0 || c >= NumCategories {
		return "none"
	}
	return categoryNames[c]
}

func CategoryOf(k target.Kind) Category {
	switch k {
	case target.Syntax, target.InvalidToken, target.TooFewOperands, target.TooManyOperands,
		target.LineTooLong, target.TokenTooLong, target.InvalidLiteral, target.OperandOutOfRange,
		target.TooManyLines:
		return CatSyntax
	case target.DuplicateLabel, target.UnresolvedLabel, target.TooManyLabels, target.LabelTooLong:
		return CatLabel
	case target.StackOverflow:
		return CatStackOverflow
	case target.StackUnderflow:
		return CatStackUnderflow
	case target.DivideByZero:
		return CatDivideByZero
	case target.MaxInstructions:
		return CatInfiniteLoop
	case target.InvalidRegister, target.RegisterOutOfBounds:
		return CatRegister
	case target.EmptyProgram:
		return CatEmptyProgram
	}
	return CatNone
}

const histogramBuckets = 255

// Stats are the run-wide counters. The fuzz loop is the only writer;
// the metrics endpoint reads concurrently.
type Stats struct {
	Start time.Time

	Runs          atomic.Int64
	Successes     atomic.Int64
	Crashes       atomic.Int64
	Hangs         atomic.Int64
	Rejections    atomic.Int64
	RuntimeErrors atomic.Int64
	VMEdges       atomic.Int64
	ASMEdges      atomic.Int64
	Kinds         [target.NumKinds]atomic.Int64
	Categories    [NumCategories]atomic.Int64

	reward atomic.Uint64

	histMu   sync.Mutex
	execTime *gohistogram.NumericHistogram
}

func NewStats() *Stats {
	return &Stats{
		Start:    time.Now(),
		execTime: gohistogram.NewHistogram(histogramBuckets),
	}
}

// Record accounts one classified execution.
func (s *Stats) Record(o *Outcome) {
	s.Runs.Add(1)
	s.VMEdges.Add(int64(o.VMNew))
	s.ASMEdges.Add(int64(o.ASMNew))
	s.Kinds[o.Kind].Add(1)
	switch {
	case o.Hung:
		s.Hangs.Add(1)
		return
	case o.Crashed || o.Kind.Family() == target.Infrastructure:
		s.Crashes.Add(1)
		return
	}
	if c := CategoryOf(o.Kind); c != CatNone {
		s.Categories[c].Add(1)
	}
	switch o.Kind.Family() {
	case target.Clean:
		s.Successes.Add(1)
	case target.Rejection:
		s.Rejections.Add(1)
	case target.Runtime:
		s.RuntimeErrors.Add(1)
	}
}

func (s *Stats) SetReward(r float64) {
	s.reward.Store(math.Float64bits(r))
}

func (s *Stats) Reward() float64 {
	return math.Float64frombits(s.reward.Load())
}

func (s *Stats) ObserveExec(d time.Duration) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.execTime.Add(d.Seconds())
}

// ExecTime returns the q-quantile of execution times.
func (s *Stats) ExecTime(q float64) time.Duration {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	if s.execTime.Count() == 0 {
		return 0
	}
	return time.Duration(s.execTime.Quantile(q) * float64(time.Second))
}

func (s *Stats) ExecsPerSec() float64 {
	elapsed := time.Since(s.Start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Runs.Load()) / elapsed
}

// perSuccess is coverage per clean run, zero before the first one.
func perSuccess(cov, success int64) float64 {
	if success == 0 {
		return 0
	}
	return float64(cov) / float64(success)
}

// Progress is the periodic one-line status.
func (s *Stats) Progress(iteration, max int) string {
	return fmt.Sprintf("[%d/%d] Crashes: %d | Hangs: %d | ASM: %d | VM: %d | OK: %d | VM_Cov: %d | ASM_Cov: %d",
		iteration, max, s.Crashes.Load(), s.Hangs.Load(), s.Rejections.Load(), s.RuntimeErrors.Load(),
		s.Successes.Load(), s.VMEdges.Load(), s.ASMEdges.Load())
}

// WriteSummary writes the key: value summary file.
func (s *Stats) WriteSummary(path, runID string) error {
	buf := new(strings.Builder)
	fmt.Fprintf(buf, "run_id: %v\n", runID)
	fmt.Fprintf(buf, "total_runs: %d\n", s.Runs.Load())
	fmt.Fprintf(buf, "elapsed_sec: %.2f\n", time.Since(s.Start).Seconds())
	fmt.Fprintf(buf, "crashes: %d\n", s.Crashes.Load())
	fmt.Fprintf(buf, "hangs: %d\n", s.Hangs.Load())
	fmt.Fprintf(buf, "vm_edge_coverage: %d\n", s.VMEdges.Load())
	fmt.Fprintf(buf, "asm_edge_coverage: %d\n", s.ASMEdges.Load())
	fmt.Fprintf(buf, "asm_errors: %d\n", s.Rejections.Load())
	fmt.Fprintf(buf, "vm_errors: %d\n", s.RuntimeErrors.Load())
	fmt.Fprintf(buf, "successful: %d\n", s.Successes.Load())
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}

func pct(v, total int64) string {
	return fmt.Sprintf("%d (%.1f%%)", v, 100*float64(v)/float64(total+1))
}

// Report renders the final statistics table.
func (s *Stats) Report(w io.Writer) {
	runs := s.Runs.Load()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "value"})
	table.Append([]string{"total runs", fmt.Sprint(runs)})
	table.Append([]string{"time elapsed", time.Since(s.Start).Round(time.Millisecond).String()})
	table.Append([]string{"execs/sec", fmt.Sprintf("%.2f", s.ExecsPerSec())})
	table.Append([]string{"exec time p50/p99", fmt.Sprintf("%v / %v", s.ExecTime(0.5), s.ExecTime(0.99))})
	table.Append([]string{"successful", pct(s.Successes.Load(), runs)})
	table.Append([]string{"crashes", pct(s.Crashes.Load(), runs)})
	table.Append([]string{"hangs", pct(s.Hangs.Load(), runs)})
	table.Append([]string{"vm edges", fmt.Sprint(s.VMEdges.Load())})
	table.Append([]string{"asm edges", fmt.Sprint(s.ASMEdges.Load())})
	table.Append([]string{"assembler errors", pct(s.Rejections.Load(), runs)})
	table.Append([]string{"vm errors", pct(s.RuntimeErrors.Load(), runs)})
	for c := Category(0); c < NumCategories; c++ {
		table.Append([]string{"  " + c.String(), fmt.Sprint(s.Categories[c].Load())})
	}
	table.Render()
}

// collector exports Stats to prometheus.
type collector struct {
	s       *Stats
	counter map[*prometheus.Desc]*atomic.Int64
	kinds   *prometheus.Desc
	reward  *prometheus.Desc
	exec    *prometheus.Desc
}

func newCollector(s *Stats) *collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("vmfuzz_"+name, help, nil, nil)
	}
	return &collector{
		s: s,
		counter: map[*prometheus.Desc]*atomic.Int64{
			desc("runs_total", "Executions of the target."):                  &s.Runs,
			desc("successes_total", "Executions that exited cleanly."):       &s.Successes,
			desc("crashes_total", "Executions terminated by a signal."):      &s.Crashes,
			desc("hangs_total", "Executions killed after the timeout."):      &s.Hangs,
			desc("rejections_total", "Programs rejected by the assembler."):  &s.Rejections,
			desc("runtime_errors_total", "Programs that faulted in the VM."): &s.RuntimeErrors,
			desc("vm_edges_total", "New VM edges discovered."):               &s.VMEdges,
			desc("asm_edges_total", "New assembler edges discovered."):       &s.ASMEdges,
		},
		kinds:  prometheus.NewDesc("vmfuzz_errors_total", "Executions by error kind.", []string{"kind"}, nil),
		reward: desc("last_reward", "Reward of the last iteration."),
		exec:   desc("exec_seconds_mean", "Mean execution time."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for d := range c.counter {
		ch <- d
	}
	ch <- c.kinds
	ch <- c.reward
	ch <- c.exec
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for d, v := range c.counter {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v.Load()))
	}
	for k := target.Kind(0); k < target.NumKinds; k++ {
		ch <- prometheus.MustNewConstMetric(c.kinds, prometheus.CounterValue,
			float64(c.s.Kinds[k].Load()), k.String())
	}
	ch <- prometheus.MustNewConstMetric(c.reward, prometheus.GaugeValue, c.s.Reward())
	c.s.histMu.Lock()
	mean := c.s.execTime.Mean()
	c.s.histMu.Unlock()
	if math.IsNaN(mean) {
		mean = 0
	}
	ch <- prometheus.MustNewConstMetric(c.exec, prometheus.GaugeValue, mean)
}

// Register exports the stats through reg.
func (s *Stats) Register(reg prometheus.Registerer) error {
	return reg.Register(newCollector(s))
}
