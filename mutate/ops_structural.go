// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutate

import (
	"github.com/bradleyjkemp/vmfuzz/buffer"
	"github.com/bradleyjkemp/vmfuzz/target"
)

func (m *Mutator) corruptOpcode(b *buffer.Buffer) bool {
	lines := instrLines(b)
	if len(lines) == 0 {
		return false
	}
	op := lines[m.r.Index(len(lines))].opcode()
	pos := op.Start + m.r.Index(op.Len())
	c := b.At(pos)
	switch m.r.Index(4) {
	case 0:
		if op.Len() > 1 {
			keep := m.r.Range(1, op.Len()-1)
			return b.Delete(op.Start+keep, op.Len()-keep)
		}
	case 1:
		if isAlpha(c) {
			return b.Set(pos, c^0x20)
		}
	case 2:
		if m.r.Bool() {
			return b.Set(pos, c+2)
		}
		return b.Set(pos, c-2)
	}
	return b.Insert(pos, []byte{c})
}

func (m *Mutator) deleteInstruction(b *buffer.Buffer) bool {
	lines := instrLines(b)
	if len(lines) == 0 {
		return false
	}
	s := b.WithNewline(lines[m.r.Index(len(lines))].span)
	return b.Delete(s.Start, s.Len())
}

var labelUsers = []string{"label", "jmp", "je", "jne", "jg", "jge", "jl", "jle", "call"}

// breakLabel corrupts the label operand of a declaration, jump or call.
func (m *Mutator) breakLabel(b *buffer.Buffer) bool {
	var cands []buffer.Span
	for _, l := range linesWithOpcode(b, labelUsers...) {
		if len(l.fields) > 1 {
			cands = append(cands, l.fields[1])
		}
	}
	if len(cands) == 0 {
		return false
	}
	f := cands[m.r.Index(len(cands))]
	if m.r.Bool() {
		return b.Insert(f.End, []byte{byte('a' + m.r.Index(26))})
	}
	pos := f.Start + m.r.Index(f.Len())
	c := byte('a' + m.r.Index(26))
	if b.At(pos) == c {
		c = '_'
	}
	return b.Set(pos, c)
}

func (m *Mutator) lonelyReturn(b *buffer.Buffer) bool {
	return insertLines(b, 0, "ret\n")
}

var invalidRegisters = []string{"F", "Z", "a", "e", "AA", "R1", "%", "_"}

// invalidRegister rewrites a single-letter register operand.
func (m *Mutator) invalidRegister(b *buffer.Buffer) bool {
	var regs []buffer.Span
	for _, l := range instrLines(b) {
		for _, f := range l.fields[1:] {
			if f.Len() == 1 && isAlpha(b.At(f.Start)) {
				regs = append(regs, f)
			}
		}
	}
	if len(regs) == 0 {
		return false
	}
	f := regs[m.r.Index(len(regs))]
	cur := b.At(f.Start)
	var repl string
	if m.r.Chance(m.cfg.ValidRegisterPct) {
		c := byte('A' + m.r.Index(target.NumRegs))
		if c == cur {
			c = 'A' + (c-'A'+1)%target.NumRegs
		}
		repl = string(c)
	} else {
		repl = invalidRegisters[m.r.Index(len(invalidRegisters))]
	}
	return b.Replace(f.Start, f.Len(), []byte(repl))
}
