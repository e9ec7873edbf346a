package il

import (
	"fmt"
	"slices"
	"strings"
)

// Label marks an instruction as a branch target.
type Label struct {
	ID int
}

func (l Label) String() string {
	return fmt.Sprintf("L%d", l.ID)
}

// BlockKind is the kind of protected-region marker.
type BlockKind uint8

const (
	BlockTry BlockKind = iota + 1
	BlockCatch
	BlockFilter
	BlockFinally
	BlockFault
	BlockEnd
)

var blockNames = [...]string{
	BlockTry:     "try",
	BlockCatch:   "catch",
	BlockFilter:  "filter",
	BlockFinally: "finally",
	BlockFault:   "fault",
	BlockEnd:     "end",
}

func (k BlockKind) String() string {
	if int(k) < len(blockNames) && blockNames[k] != "" {
		return blockNames[k]
	}
	return fmt.Sprintf("block(%d)", k)
}

// Block is a protected-region marker attached to the instruction that
// starts or ends the region.
type Block struct {
	Kind BlockKind
	// CatchType names the caught type for BlockCatch.
	CatchType string
}

// Instruction is one operation of an instruction stream.
type Instruction struct {
	Op      OpCode
	Operand any

	Labels []Label
	Blocks []Block

	// Offset is the instruction's position in the host encoding, or -1 for
	// instructions that were not decoded from one.
	Offset int
	// Meta is host data carried through the rewrite. The engine never looks
	// at it.
	Meta any
}

// New returns an instruction with no labels or blocks.
func New(op OpCode, operand any) *Instruction {
	return &Instruction{Op: op, Operand: operand, Offset: -1}
}

// LoadString returns a string-constant load.
func LoadString(s string) *Instruction {
	return New(OpLoadString, s)
}

// StringOperand returns the operand of a string-constant load.
func (in *Instruction) StringOperand() (string, bool) {
	if in == nil || in.Op != OpLoadString {
		return "", false
	}
	s, ok := in.Operand.(string)
	return s, ok
}

// Clone returns a copy of in that shares nothing mutable with it.
func (in *Instruction) Clone() *Instruction {
	out := *in
	out.Labels = slices.Clone(in.Labels)
	out.Blocks = slices.Clone(in.Blocks)
	return &out
}

// WithOperand returns a new instruction with the same opcode, labels,
// blocks, offset and host data as in, and the given operand.
func (in *Instruction) WithOperand(operand any) *Instruction {
	out := in.Clone()
	out.Operand = operand
	return out
}

// IsTarget reports whether the instruction carries a label.
func (in *Instruction) IsTarget() bool {
	return len(in.Labels) > 0
}

func (in *Instruction) String() string {
	var b strings.Builder
	for _, l := range in.Labels {
		fmt.Fprintf(&b, "%s: ", l)
	}
	for _, blk := range in.Blocks {
		fmt.Fprintf(&b, "[%s] ", blk.Kind)
	}
	b.WriteString(in.Op.String())
	switch v := in.Operand.(type) {
	case nil:
	case string:
		fmt.Fprintf(&b, " %q", v)
	case []byte:
		fmt.Fprintf(&b, " % x", v)
	default:
		fmt.Fprintf(&b, " %v", v)
	}
	return b.String()
}

// HasControlFlow reports whether any instruction in body is a branch target
// or carries a protected-region marker.
func HasControlFlow(body []*Instruction) bool {
	for _, in := range body {
		if len(in.Labels) > 0 || len(in.Blocks) > 0 {
			return true
		}
	}
	return false
}

// Strings returns the operands of every string-constant load in body, in
// order.
func Strings(body []*Instruction) []string {
	var out []string
	for _, in := range body {
		if s, ok := in.StringOperand(); ok {
			out = append(out, s)
		}
	}
	return out
}
