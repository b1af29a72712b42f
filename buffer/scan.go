// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package buffer

// Span is a half-open byte range [Start, End) into a buffer.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

func IsSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Slice returns the bytes covered by s.
func (b *Buffer) Slice(s Span) []byte {
	return b.data[s.Start:s.End]
}

// Lines returns every line without its terminating newline.
// A trailing newline does not produce an extra empty line.
func (b *Buffer) Lines() []Span {
	var lines []Span
	start := 0
	for i, c := range b.data {
		if c == '\n' {
			lines = append(lines, Span{start, i})
			start = i + 1
		}
	}
	if start < len(b.data) {
		lines = append(lines, Span{start, len(b.data)})
	}
	return lines
}

// WithNewline extends a line span over its terminating newline, if any.
func (b *Buffer) WithNewline(line Span) Span {
	if line.End < len(b.data) && b.data[line.End] == '\n' {
		line.End++
	}
	return line
}

// Fields splits a line into whitespace-separated tokens, stopping at a ';' comment.
func (b *Buffer) Fields(line Span) []Span {
	var fields []Span
	i := line.Start
	for i < line.End {
		c := b.data[i]
		if c == ';' {
			break
		}
		if IsSpace(c) {
			i++
			continue
		}
		start := i
		for i < line.End && !IsSpace(b.data[i]) && b.data[i] != ';' {
			i++
		}
		fields = append(fields, Span{start, i})
	}
	return fields
}

// Numbers finds decimal literals that begin a token: at the buffer start or
// after whitespace, an optional '-' followed by at least one digit.
func (b *Buffer) Numbers() []Span {
	var nums []Span
	for i := 0; i < len(b.data); i++ {
		if i > 0 && !IsSpace(b.data[i-1]) {
			continue
		}
		j := i
		if b.data[j] == '-' {
			j++
		}
		if j >= len(b.data) || !isDigit(b.data[j]) {
			continue
		}
		for j < len(b.data) && isDigit(b.data[j]) {
			j++
		}
		nums = append(nums, Span{i, j})
		i = j - 1
	}
	return nums
}
