package il

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Difference is a position where two streams disagree. A or B is nil when
// one stream is shorter.
type Difference struct {
	Index int
	A, B  *Instruction
}

// Differences lists the positions where two streams disagree.
type Differences []Difference

// Err returns nil when there are no differences.
func (d Differences) Err() error {
	errs := []error{}
	for _, diff := range d {
		errs = append(errs, fmt.Errorf("instruction %d: %v != %v", diff.Index, diff.A, diff.B))
	}
	return errors.Join(errs...)
}

func (d Differences) String() string {
	var b strings.Builder
	for _, diff := range d {
		fmt.Fprintf(&b, "%04d  - %v\n      + %v\n", diff.Index, diff.A, diff.B)
	}
	return b.String()
}

// Diff compares two streams position by position. Host data (Meta) and
// offsets are not compared.
func Diff(a, b []*Instruction) Differences {
	var out Differences
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		var x, y *Instruction
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if !Equal(x, y) {
			out = append(out, Difference{Index: i, A: x, B: y})
		}
	}
	return out
}

// Equal reports whether two instructions have the same opcode, operand,
// labels and blocks.
func Equal(a, b *Instruction) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Op == b.Op &&
		reflect.DeepEqual(a.Operand, b.Operand) &&
		slices.Equal(a.Labels, b.Labels) &&
		slices.Equal(a.Blocks, b.Blocks)
}
