// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutate

import (
	"github.com/bradleyjkemp/vmfuzz/buffer"
)

// instrLine is a line with at least one token.
type instrLine struct {
	span   buffer.Span
	fields []buffer.Span
}

func (l instrLine) opcode() buffer.Span {
	return l.fields[0]
}

func instrLines(b *buffer.Buffer) []instrLine {
	var res []instrLine
	for _, line := range b.Lines() {
		if fields := b.Fields(line); len(fields) != 0 {
			res = append(res, instrLine{line, fields})
		}
	}
	return res
}

// linesWithOpcode returns instruction lines whose mnemonic is one of names.
func linesWithOpcode(b *buffer.Buffer, names ...string) []instrLine {
	var res []instrLine
	for _, l := range instrLines(b) {
		op := string(b.Slice(l.opcode()))
		for _, name := range names {
			if op == name {
				res = append(res, l)
				break
			}
		}
	}
	return res
}

// boundaries returns every offset at which a whole line may be inserted.
func boundaries(b *buffer.Buffer) []int {
	res := []int{0}
	data := b.Bytes()
	for i, c := range data {
		if c == '\n' {
			res = append(res, i+1)
		}
	}
	if n := len(data); n != 0 && data[n-1] != '\n' {
		res = append(res, n)
	}
	return res
}

// insertLines inserts newline-terminated text at a line boundary, adding
// a separating newline when appending to an unterminated last line.
func insertLines(b *buffer.Buffer, pos int, text string) bool {
	if pos > 0 && pos == b.Len() && b.At(pos-1) != '\n' {
		text = "\n" + text
	}
	return b.Insert(pos, []byte(text))
}

// insertBeforeHalt places text before the first hlt line, or at the end.
func insertBeforeHalt(b *buffer.Buffer, text string) bool {
	if halts := linesWithOpcode(b, "hlt"); len(halts) != 0 {
		return insertLines(b, halts[0].span.Start, text)
	}
	return insertLines(b, b.Len(), text)
}

// declaredLabels collects the names of all label declarations.
func declaredLabels(b *buffer.Buffer) []string {
	var names []string
	for _, l := range linesWithOpcode(b, "label") {
		if len(l.fields) > 1 {
			names = append(names, string(b.Slice(l.fields[1])))
		}
	}
	return names
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
