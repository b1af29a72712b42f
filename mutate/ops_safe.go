// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutate

import (
	"strconv"
	"strings"

	"github.com/bradleyjkemp/vmfuzz/buffer"
	"github.com/bradleyjkemp/vmfuzz/target"
)

// boundaryValues targets integer edges of the operand parser, including
// values one past each edge and forms the parser must reject.
var boundaryValues = []string{
	"0", "1", "-1",
	"127", "-128", "128", "-129",
	"255", "256",
	"32767", "-32768", "32768", "-32769",
	"65535", "65536",
	"2147483647", "-2147483648", "2147483648", "-2147483649",
	"99999999999999",
	"0x10", "1.5",
}

// interestingImms is the subset of boundaryValues that assembles.
var interestingImms = []string{
	"0", "1", "-1", "127", "-128", "255", "32767", "-32768", "65535",
	"2147483647", "-2147483648",
}

func (m *Mutator) boundaryValue(b *buffer.Buffer) bool {
	nums := b.Numbers()
	if len(nums) == 0 {
		return false
	}
	s := nums[m.r.Index(len(nums))]
	for try := 0; try < 4; try++ {
		v := boundaryValues[m.r.Index(len(boundaryValues))]
		if b.Replace(s.Start, s.Len(), []byte(v)) {
			return true
		}
	}
	return false
}

func (m *Mutator) swapOperands(b *buffer.Buffer) bool {
	var cands []instrLine
	for _, l := range instrLines(b) {
		if len(l.fields) == 3 {
			cands = append(cands, l)
		}
	}
	if len(cands) == 0 {
		return false
	}
	l := cands[m.r.Index(len(cands))]
	a, c := l.fields[1], l.fields[2]
	swapped := string(b.Slice(c)) + string(b.Slice(buffer.Span{Start: a.End, End: c.Start})) + string(b.Slice(a))
	return b.Replace(a.Start, c.End-a.Start, []byte(swapped))
}

func (m *Mutator) genOperand(mask target.ArgMask, labels []string) string {
	var kinds []target.ArgMask
	for _, k := range []target.ArgMask{target.ArgImm, target.ArgReg, target.ArgLabel} {
		if mask&k != 0 {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return ""
	}
	switch kinds[m.r.Index(len(kinds))] {
	case target.ArgImm:
		if m.r.Chance(20) {
			return interestingImms[m.r.Index(len(interestingImms))]
		}
		return strconv.Itoa(m.r.Range(-100, 100))
	case target.ArgReg:
		return string(rune('A' + m.r.Index(target.NumRegs)))
	default:
		if len(labels) != 0 && m.r.Chance(80) {
			return labels[m.r.Index(len(labels))]
		}
		return "L" + strconv.Itoa(m.r.Range(0, 9999))
	}
}

func (m *Mutator) randomText(min, max int) string {
	n := m.r.Range(min, max)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		c := m.r.ASCII()
		if c == ';' {
			c = '_'
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func (m *Mutator) genGarbage() string {
	name := target.Templates[m.r.Index(int(target.NumOpcodes))].Name
	switch m.r.Index(4) {
	case 0:
		return m.randomText(1, 16)
	case 1:
		return name + " 1 2 3"
	case 2:
		return name + " " + m.randomText(1, 8)
	default:
		return name + strings.Repeat(" ", m.r.Range(0, 3))
	}
}

// genInstruction emits a template-valid instruction or adversarial garbage.
func (m *Mutator) genInstruction(labels []string) string {
	if !m.r.Chance(m.cfg.ValidInstructionPct) {
		return m.genGarbage()
	}
	t := target.Templates[m.r.Index(int(target.NumOpcodes))]
	s := t.Name
	for i := 0; i < t.Max; i++ {
		s += " " + m.genOperand(t.Args[i], labels)
	}
	return s
}

func (m *Mutator) insertInstruction(b *buffer.Buffer) bool {
	pos := boundaries(b)
	return insertLines(b, pos[m.r.Index(len(pos))], m.genInstruction(declaredLabels(b))+"\n")
}

func (m *Mutator) duplicateInstruction(b *buffer.Buffer) bool {
	lines := instrLines(b)
	if len(lines) == 0 {
		return false
	}
	l := lines[m.r.Index(len(lines))]
	text := string(b.Slice(l.span)) + "\n"
	return insertLines(b, b.WithNewline(l.span).End, text)
}

func (m *Mutator) shuffleInstructions(b *buffer.Buffer) bool {
	lines := b.Lines()
	if len(lines) < 2 {
		return false
	}
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = string(b.Slice(l))
	}
	m.r.Shuffle(len(texts), func(i, j int) { texts[i], texts[j] = texts[j], texts[i] })
	res := strings.Join(texts, "\n")
	if b.At(b.Len()-1) == '\n' {
		res += "\n"
	}
	return b.Replace(0, b.Len(), []byte(res))
}

func (m *Mutator) swapOpcode(b *buffer.Buffer) bool {
	lines := instrLines(b)
	if len(lines) == 0 {
		return false
	}
	op := lines[m.r.Index(len(lines))].opcode()
	cur := string(b.Slice(op))
	name := target.Templates[m.r.Index(int(target.NumOpcodes))].Name
	if name == cur {
		name = target.Templates[(m.r.Index(int(target.NumOpcodes)-1)+1+int(mustOpcode(cur)))%int(target.NumOpcodes)].Name
	}
	return b.Replace(op.Start, op.Len(), []byte(name))
}

// mustOpcode returns the opcode for a known mnemonic.
func mustOpcode(name string) target.Opcode {
	op, _ := target.LookupOpcode(name)
	return op
}

func (m *Mutator) excessWhitespace(b *buffer.Buffer) bool {
	lines := instrLines(b)
	if len(lines) == 0 {
		return false
	}
	l := lines[m.r.Index(len(lines))]
	f := l.fields[m.r.Index(len(l.fields))]
	var ws []byte
	for n := m.r.Range(2, 8); n > 0; n-- {
		if m.r.Bool() {
			ws = append(ws, ' ')
		} else {
			ws = append(ws, '\t')
		}
	}
	pos := f.Start
	if m.r.Bool() {
		pos = f.End
	}
	return b.Insert(pos, ws)
}

func (m *Mutator) longLine(b *buffer.Buffer) bool {
	comment := " ;" + strings.Repeat(string(rune('A'+m.r.Index(26))), m.r.Range(200, 400))
	lines := b.Lines()
	if len(lines) == 0 {
		return b.Insert(0, []byte(comment+"\n"))
	}
	return b.Insert(lines[m.r.Index(len(lines))].End, []byte(comment))
}

func (m *Mutator) emptyLines(b *buffer.Buffer) bool {
	pos := boundaries(b)
	return insertLines(b, pos[m.r.Index(len(pos))], strings.Repeat("\n", m.r.Range(2, 6)))
}

var comments = []string{
	"; push the operands first",
	"; loop until the counter hits zero",
	"; result is left on the stack",
	"; bounds checked by caller",
	"; clobbers A",
}

func (m *Mutator) injectComment(b *buffer.Buffer) bool {
	lines := instrLines(b)
	if len(lines) == 0 {
		return false
	}
	l := lines[m.r.Index(len(lines))]
	pos := m.r.Range(l.span.Start, l.span.End)
	return b.Insert(pos, []byte(" "+comments[m.r.Index(len(comments))]+" "))
}
