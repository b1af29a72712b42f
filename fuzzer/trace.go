// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

var traceHeader = []string{
	"iteration", "crashes", "hangs", "asm_errors", "vm_errors", "successful", "reward",
	"vm_cov", "asm_cov", "asm_cov_per_success", "vm_cov_per_success",
}

// Trace is the periodic CSV log of run statistics.
type Trace struct {
	f *os.File
	w *csv.Writer
}

func NewTrace(path string) (*Trace, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace: %w", err)
	}
	t := &Trace{f: f, w: csv.NewWriter(f)}
	if err := t.write(traceHeader); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Trace) write(row []string) error {
	t.w.Write(row)
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// Append logs the stats after the given iteration.
func (t *Trace) Append(iteration int, s *Stats, reward float64) error {
	ok := s.Successes.Load()
	vm, asm := s.VMEdges.Load(), s.ASMEdges.Load()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return t.write([]string{
		strconv.Itoa(iteration),
		strconv.FormatInt(s.Crashes.Load(), 10),
		strconv.FormatInt(s.Hangs.Load(), 10),
		strconv.FormatInt(s.Rejections.Load(), 10),
		strconv.FormatInt(s.RuntimeErrors.Load(), 10),
		strconv.FormatInt(ok, 10),
		f(reward),
		strconv.FormatInt(vm, 10),
		strconv.FormatInt(asm, 10),
		f(perSuccess(asm, ok)),
		f(perSuccess(vm, ok)),
	})
}

func (t *Trace) Close() error {
	return t.f.Close()
}
