// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package buffer implements the growable byte sequence that mutators operate on.
package buffer

import "bytes"

const minCapacity = 64

// Buffer owns its storage. Every editing method either applies the change
// and returns true, or leaves the content untouched and returns false.
type Buffer struct {
	data []byte
}

// New returns a buffer holding a copy of data.
func New(data []byte) *Buffer {
	b := &Buffer{}
	b.grow(len(data))
	b.data = append(b.data, data...)
	return b
}

func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the current content. The slice is only valid until the next edit.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) String() string {
	return string(b.data)
}

func (b *Buffer) Equal(data []byte) bool {
	return bytes.Equal(b.data, data)
}

// At returns the byte at pos; pos must be in range.
func (b *Buffer) At(pos int) byte {
	return b.data[pos]
}

// grow makes room for n more bytes, doubling capacity as needed.
func (b *Buffer) grow(n int) {
	need := len(b.data) + n
	if need <= cap(b.data) {
		return
	}
	c := cap(b.data)
	if c < minCapacity {
		c = minCapacity
	}
	for c < need {
		c *= 2
	}
	data := make([]byte, len(b.data), c)
	copy(data, b.data)
	b.data = data
}

// Insert places p before pos, pos in [0, Len()].
func (b *Buffer) Insert(pos int, p []byte) bool {
	if pos < 0 || pos > len(b.data) || len(p) == 0 {
		return false
	}
	b.grow(len(p))
	n := len(b.data)
	b.data = b.data[:n+len(p)]
	copy(b.data[pos+len(p):], b.data[pos:n])
	copy(b.data[pos:], p)
	return true
}

// Delete removes n bytes starting at pos. The range must lie within the buffer.
func (b *Buffer) Delete(pos, n int) bool {
	if pos < 0 || n <= 0 || pos+n > len(b.data) {
		return false
	}
	copy(b.data[pos:], b.data[pos+n:])
	b.data = b.data[:len(b.data)-n]
	return true
}

// Replace substitutes the n bytes at pos with p. It is the same as Delete
// followed by Insert at pos, and reports false when the content would not change.
func (b *Buffer) Replace(pos, n int, p []byte) bool {
	if pos < 0 || n < 0 || pos+n > len(b.data) {
		return false
	}
	if bytes.Equal(b.data[pos:pos+n], p) {
		return false
	}
	if len(p) > n {
		b.grow(len(p) - n)
	}
	tail := append([]byte(nil), b.data[pos+n:]...)
	b.data = append(append(b.data[:pos], p...), tail...)
	return true
}

// Set overwrites a single byte.
func (b *Buffer) Set(pos int, c byte) bool {
	if pos < 0 || pos >= len(b.data) || b.data[pos] == c {
		return false
	}
	b.data[pos] = c
	return true
}

func (b *Buffer) Append(p []byte) bool {
	return b.Insert(len(b.data), p)
}
