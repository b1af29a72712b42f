// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bradleyjkemp/vmfuzz/coverage"
	"github.com/bradleyjkemp/vmfuzz/state"
	"github.com/bradleyjkemp/vmfuzz/target"
)

// ChildEnv carries the input path to a child process.
const ChildEnv = "VMFUZZ_CHILD_INPUT"

// regionFD is where the child finds the shared region.
const regionFD = 3

func IsChild() bool {
	return os.Getenv(ChildEnv) != ""
}

// ChildMain runs the target on the input named by ChildEnv and exits with
// the resulting error kind.
func ChildMain() {
	region, err := OpenRegion(os.NewFile(regionFD, "region"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "child: %v\n", err)
		os.Exit(int(target.IO))
	}
	os.Exit(int(RunChild(os.Getenv(ChildEnv), region, os.Stderr)))
}

// RunChild assembles and executes the program at inputPath, recording
// coverage and static features into region.
func RunChild(inputPath string, region *Region, stderr io.Writer) target.Kind {
	rec := region.Recorder()
	st := state.New(region.State())
	kind := runTarget(inputPath, rec, st, region, stderr)
	region.SetResult(uint32(kind))
	return kind
}

func runTarget(inputPath string, rec *coverage.Recorder, st *state.State, region *Region, stderr io.Writer) target.Kind {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return report(stderr, &target.Error{Kind: target.IO, Stage: "io", Msg: err.Error()})
	}
	asm := &target.Assembler{
		OnEncode: func(op target.Opcode, idx int) {
			rec.RecordEncode(int(op), idx)
		},
	}
	prog, err := asm.Assemble(data)
	if err != nil {
		return report(stderr, err)
	}
	st.Observe(prog)
	m := target.NewMachine()
	m.OnStep = func(ip int) {
		rec.RecordEdge(coverage.VM, uint32(ip))
	}
	err = m.Run(prog)
	region.SetSteps(uint32(m.Steps))
	st.SetNumeric(state.StepCount, float32(m.Steps))
	if err != nil {
		return report(stderr, err)
	}
	return target.OK
}

func report(w io.Writer, err error) target.Kind {
	var terr *target.Error
	if !errors.As(err, &terr) {
		terr = &target.Error{Kind: target.Unknown, Stage: "child", Msg: err.Error()}
	}
	line, _ := json.Marshal(ErrorLine{
		Stage: terr.Stage,
		Error: terr.Kind.String(),
		IP:    terr.IP,
		Instr: terr.Instr,
		Msg:   terr.Msg,
	})
	fmt.Fprintf(w, "%s\n", line)
	return terr.Kind
}
