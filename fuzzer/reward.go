// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"math"

	"github.com/bradleyjkemp/vmfuzz/config"
	"github.com/bradleyjkemp/vmfuzz/sandbox"
	"github.com/bradleyjkemp/vmfuzz/target"
)

// Outcome is the classified result of one execution. Exactly one of clean,
// rejection, runtime error, crash or hang holds.
type Outcome struct {
	Status sandbox.Status
	// Kind is the child's exit code, Unknown for crashes and Timeout for hangs.
	Kind    target.Kind
	Crashed bool
	Hung    bool
	VMNew   int
	ASMNew  int
	// Size is the number of assembled instructions, zero when assembly failed.
	Size  int
	Steps int
	// Fault is the child's own error record, set for rejections and runtime errors.
	Fault *sandbox.ErrorLine
}

func classify(st sandbox.Status) *Outcome {
	o := &Outcome{Status: st}
	switch st.Outcome {
	case sandbox.Exited:
		o.Kind = target.Unknown
		if st.Code >= 0 && st.Code < int(target.NumKinds) {
			o.Kind = target.Kind(st.Code)
		}
		// The harness itself failed; there is no verdict on the candidate.
		o.Crashed = o.Kind.Family() == target.Infrastructure
	case sandbox.TimedOut:
		o.Kind = target.Timeout
		o.Hung = true
	default:
		o.Kind = target.Unknown
		o.Crashed = true
	}
	return o
}

func (o *Outcome) NewEdges() int {
	return o.VMNew + o.ASMNew
}

// family is the corpus view of the outcome; signals count as infrastructure.
func (o *Outcome) family() target.Family {
	if o.Crashed || o.Hung {
		return target.Infrastructure
	}
	return o.Kind.Family()
}

// Reward scores an outcome for the policy.
func Reward(w config.Reward, o *Outcome) float64 {
	cov := o.NewEdges()
	r := 0.0
	if cov > 0 {
		r += w.CoverageScale * math.Log1p(float64(cov))
	} else {
		r += w.NoCoverage
	}
	switch {
	case o.Hung:
		r += w.Hang
	case o.Crashed:
		r += w.Crash
	case o.Kind.Family() == target.Runtime:
		if cov > 0 {
			r += w.RuntimeCoverage
		} else {
			r += w.RuntimeNoCover
		}
	case o.Kind.Family() == target.Rejection:
		if o.Size < w.RejectSizeLimit {
			r += w.RejectSmall
		} else {
			r += w.RejectLarge
		}
	case o.Kind == target.OK:
		r += w.Clean
	}
	r += w.SizeBonus * float64(min(w.SizeBonusCap, o.Size))
	return r
}
