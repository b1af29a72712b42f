// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutate

import (
	"strconv"
	"strings"

	"github.com/bradleyjkemp/vmfuzz/buffer"
	"github.com/bradleyjkemp/vmfuzz/target"
)

const maxChunk = 32

func (m *Mutator) flipBit(b *buffer.Buffer) bool {
	if b.Len() == 0 {
		return false
	}
	pos := m.r.Index(b.Len())
	return b.Set(pos, b.At(pos)^(1<<m.r.Index(8)))
}

func (m *Mutator) flipByte(b *buffer.Buffer) bool {
	if b.Len() == 0 {
		return false
	}
	pos := m.r.Index(b.Len())
	return b.Set(pos, b.At(pos)^byte(m.r.Range(1, 255)))
}

func (m *Mutator) insertByte(b *buffer.Buffer) bool {
	return b.Insert(m.r.Index(b.Len()+1), []byte{m.r.Byte()})
}

func (m *Mutator) deleteByte(b *buffer.Buffer) bool {
	if b.Len() == 0 {
		return false
	}
	return b.Delete(m.r.Index(b.Len()), 1)
}

func (m *Mutator) duplicateChunk(b *buffer.Buffer) bool {
	if b.Len() == 0 {
		return false
	}
	n := m.r.Range(1, min(maxChunk, b.Len()))
	src := m.r.Index(b.Len() - n + 1)
	chunk := append([]byte(nil), b.Bytes()[src:src+n]...)
	return b.Insert(m.r.Index(b.Len()+1), chunk)
}

// uniqueName returns an identifier unlikely to collide with existing labels.
func (m *Mutator) uniqueName(prefix string) string {
	return prefix + strconv.Itoa(m.r.Range(0, 999999))
}

// stackOverflow prepends more pushes than the stack can hold.
func (m *Mutator) stackOverflow(b *buffer.Buffer) bool {
	return insertLines(b, 0, strings.Repeat("psh 1\n", target.StackSize+16))
}

func (m *Mutator) stackUnderflow(b *buffer.Buffer) bool {
	return insertLines(b, 0, strings.Repeat("pop\n", m.r.Range(2, 5)))
}

func (m *Mutator) divideByZero(b *buffer.Buffer) bool {
	return insertBeforeHalt(b, "psh 1\npsh 0\ndiv\n")
}

func (m *Mutator) integerOverflow(b *buffer.Buffer) bool {
	return insertBeforeHalt(b, "psh 2147483647\npsh 1\nadd\n")
}

// uninitializedRegister reads a register that nothing in the program set.
func (m *Mutator) uninitializedRegister(b *buffer.Buffer) bool {
	reg := string(rune('A' + m.r.Index(target.NumRegs)))
	pos := boundaries(b)
	return insertLines(b, pos[m.r.Index(len(pos))], "load "+reg+"\n")
}

func (m *Mutator) infiniteLoop(b *buffer.Buffer) bool {
	name := m.uniqueName("spin")
	return insertLines(b, 0, "label "+name+"\njmp "+name+"\n")
}

// missingHalt deletes every hlt line.
func (m *Mutator) missingHalt(b *buffer.Buffer) bool {
	halts := linesWithOpcode(b, "hlt")
	for i := len(halts) - 1; i >= 0; i-- {
		s := b.WithNewline(halts[i].span)
		b.Delete(s.Start, s.Len())
	}
	return len(halts) != 0
}

func (m *Mutator) callstackOverflow(b *buffer.Buffer) bool {
	name := m.uniqueName("rec")
	return insertLines(b, 0, "label "+name+"\ncall "+name+"\n")
}

func (m *Mutator) invalidJump(b *buffer.Buffer) bool {
	pos := boundaries(b)
	return insertLines(b, pos[m.r.Index(len(pos))], "jmp "+m.uniqueName("nowhere")+"\n")
}

func (m *Mutator) duplicateLabel(b *buffer.Buffer) bool {
	labels := linesWithOpcode(b, "label")
	pos := boundaries(b)
	if len(labels) == 0 {
		name := m.uniqueName("dup")
		return insertLines(b, pos[m.r.Index(len(pos))], "label "+name+"\nlabel "+name+"\n")
	}
	l := labels[m.r.Index(len(labels))]
	return insertLines(b, pos[m.r.Index(len(pos))], string(b.Slice(l.span))+"\n")
}
