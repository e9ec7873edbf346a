package il

import (
	"fmt"
	"strings"
)

// Disassemble renders body one instruction per line.
func Disassemble(body []*Instruction) string {
	var b strings.Builder
	for i, in := range body {
		if i > 0 {
			b.WriteByte('\n')
		}
		offset := in.Offset
		if offset < 0 {
			offset = i
		}
		fmt.Fprintf(&b, "%04d  %s", offset, in)
	}
	return b.String()
}
