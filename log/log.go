// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log wraps the standard logger with a global verbosity level.
package log

import (
	golog "log"
	"sync/atomic"
)

var verbosity atomic.Int32

// SetVerbosity sets the highest level that Logf still prints.
func SetVerbosity(v int) {
	verbosity.Store(int32(v))
}

func V(v int) bool {
	return int32(v) <= verbosity.Load()
}

func Logf(v int, msg string, args ...interface{}) {
	if V(v) {
		golog.Printf(msg, args...)
	}
}

func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}
