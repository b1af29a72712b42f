// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package sandbox

import (
	"bytes"
	"encoding/json"
)

// ErrorLine is the JSON record a failing child writes to stderr.
type ErrorLine struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
	IP    int    `json:"ip"`
	Instr string `json:"instruction"`
	Msg   string `json:"msg"`
}

// ParseErrorLine finds the child's error record in its stderr output.
func ParseErrorLine(out []byte) (*ErrorLine, bool) {
	for _, line := range bytes.Split(out, []byte{'\n'}) {
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var rec ErrorLine
		if json.Unmarshal(line, &rec) == nil && rec.Error != "" {
			return &rec, true
		}
	}
	return nil, false
}
