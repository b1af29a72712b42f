// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutate implements the tiered mutation operators.
//
// Every operator reports whether it changed the buffer. An operator that
// returns false leaves the buffer byte-for-byte unchanged.
package mutate

import (
	"fmt"

	"github.com/bradleyjkemp/vmfuzz/buffer"
	"github.com/bradleyjkemp/vmfuzz/prng"
)

// Tier groups operators by how destructive they are expected to be.
type Tier int

const (
	Safe Tier = iota
	Structural
	Chaos
	NumTiers
)

func (t Tier) String() string {
	switch t {
	case Safe:
		return "safe"
	case Structural:
		return "structural"
	case Chaos:
		return "chaos"
	}
	return fmt.Sprintf("tier%d", int(t))
}

// Op is a single mutation. It must only edit b through Buffer methods.
type Op func(m *Mutator, b *buffer.Buffer) bool

type Operator struct {
	Name string
	Fn   Op
}

var tiers = [NumTiers][]Operator{
	Safe: {
		{"boundary_value", (*Mutator).boundaryValue},
		{"swap_operands", (*Mutator).swapOperands},
		{"insert_instruction", (*Mutator).insertInstruction},
		{"duplicate_instruction", (*Mutator).duplicateInstruction},
		{"shuffle_instructions", (*Mutator).shuffleInstructions},
		{"swap_opcode", (*Mutator).swapOpcode},
		{"excess_whitespace", (*Mutator).excessWhitespace},
		{"long_line", (*Mutator).longLine},
		{"empty_lines", (*Mutator).emptyLines},
		{"inject_comment", (*Mutator).injectComment},
	},
	Structural: {
		{"corrupt_opcode", (*Mutator).corruptOpcode},
		{"delete_instruction", (*Mutator).deleteInstruction},
		{"break_label", (*Mutator).breakLabel},
		{"lonely_return", (*Mutator).lonelyReturn},
		{"invalid_register", (*Mutator).invalidRegister},
	},
	Chaos: {
		{"flip_bit", (*Mutator).flipBit},
		{"flip_byte", (*Mutator).flipByte},
		{"insert_byte", (*Mutator).insertByte},
		{"delete_byte", (*Mutator).deleteByte},
		{"duplicate_chunk", (*Mutator).duplicateChunk},
		{"stack_overflow", (*Mutator).stackOverflow},
		{"stack_underflow", (*Mutator).stackUnderflow},
		{"divide_by_zero", (*Mutator).divideByZero},
		{"uninitialized_register", (*Mutator).uninitializedRegister},
		{"infinite_loop", (*Mutator).infiniteLoop},
		{"missing_halt", (*Mutator).missingHalt},
		{"callstack_overflow", (*Mutator).callstackOverflow},
		{"integer_overflow", (*Mutator).integerOverflow},
		{"invalid_jump", (*Mutator).invalidJump},
		{"duplicate_label", (*Mutator).duplicateLabel},
	},
}

// Operators returns the ordered operator list of a tier.
func Operators(t Tier) []Operator {
	return tiers[t]
}

// Lookup finds an operator by name.
func Lookup(name string) (Tier, Operator, bool) {
	for t, ops := range tiers {
		for _, op := range ops {
			if op.Name == name {
				return Tier(t), op, true
			}
		}
	}
	return 0, Operator{}, false
}

// Action is a policy decision: a tier selector and an operator index.
// Any pair of integers is valid; Resolve folds it onto an operator.
type Action struct {
	Tier int32
	Op   int32
}

func mod(v int32, n int) int {
	r := int(v) % n
	if r < 0 {
		r += n
	}
	return r
}

// Resolve maps an action onto a tier and operator deterministically.
func Resolve(a Action) (Tier, Operator) {
	t := Tier(mod(a.Tier, int(NumTiers)))
	ops := tiers[t]
	return t, ops[mod(a.Op, len(ops))]
}

// Config tunes operator behavior.
type Config struct {
	// ValidRegisterPct is the chance that invalid_register substitutes
	// another valid register instead of an invalid token.
	ValidRegisterPct int `yaml:"valid_register_pct"`
	// ValidInstructionPct is the chance that insert_instruction emits a
	// well-formed instruction instead of garbage.
	ValidInstructionPct int `yaml:"valid_instruction_pct"`
}

func DefaultConfig() Config {
	return Config{ValidRegisterPct: 70, ValidInstructionPct: 70}
}

// Mutator applies operators with a shared random source.
type Mutator struct {
	r   *prng.Rand
	cfg Config
}

func New(r *prng.Rand, cfg Config) *Mutator {
	return &Mutator{r: r, cfg: cfg}
}

// Applied describes one executed action.
type Applied struct {
	Tier    Tier
	Name    string
	Changed bool
}

// Apply runs every action in order against b.
func (m *Mutator) Apply(b *buffer.Buffer, actions []Action) []Applied {
	res := make([]Applied, 0, len(actions))
	for _, a := range actions {
		t, op := Resolve(a)
		res = append(res, Applied{Tier: t, Name: op.Name, Changed: op.Fn(m, b)})
	}
	return res
}

// RandomActions draws n actions uniformly, for use without a policy.
func RandomActions(r *prng.Rand, n int) []Action {
	actions := make([]Action, n)
	for i := range actions {
		t := r.Index(int(NumTiers))
		actions[i] = Action{Tier: int32(t), Op: int32(r.Index(len(tiers[t])))}
	}
	return actions
}
