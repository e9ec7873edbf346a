package retext

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"

	"github.com/pboyd/retext/il"
)

const opcodeINT3 = 0xcc

// lengthWindow is how many instructions away from a LEA its length
// immediate may be.
const lengthWindow = 3

// abiRegs lists the integer argument and result registers in order. A
// string is passed as a pointer in one register and its length in the
// next.
var abiRegs = map[x86asm.Reg]int{
	x86asm.RAX: 1, x86asm.EAX: 1,
	x86asm.RBX: 2, x86asm.EBX: 2,
	x86asm.RCX: 3, x86asm.ECX: 3,
	x86asm.RDI: 4, x86asm.EDI: 4,
	x86asm.RSI: 5, x86asm.ESI: 5,
	x86asm.R8: 6, x86asm.R8L: 6,
	x86asm.R9: 7, x86asm.R9L: 7,
	x86asm.R10: 8, x86asm.R10L: 8,
	x86asm.R11: 9, x86asm.R11L: 9,
}

// x86Inst is an instruction and its offset from the function entry.
type x86Inst struct {
	x86asm.Inst
	Off int
}

// end is the offset of the next instruction.
func (in x86Inst) end() int {
	return in.Off + in.Len
}

// stringLoad is the host data of an OpLoadString: the LEA loading the
// string's address and the MOV loading its length.
type stringLoad struct {
	lea    x86Inst
	length x86Inst
	text   string
}

// x86Decoder turns machine code into an instruction stream.
type x86Decoder struct {
	// base is the address the code runs at.
	base uintptr
	// str reads n bytes of string data at addr. It returns false when addr
	// does not hold string data.
	str func(addr uintptr, n int) (string, bool)
	// name names the function at pc. It may be nil.
	name func(pc uintptr) string
}

func (d *x86Decoder) decode(code []byte) ([]*il.Instruction, error) {
	insts, err := decodeAll(code)
	if err != nil {
		return nil, err
	}

	body := make([]*il.Instruction, len(insts))
	byOffset := make(map[int]int, len(insts))
	for i, in := range insts {
		byOffset[in.Off] = i
		body[i] = &il.Instruction{Op: il.OpNative, Operand: in.Inst, Offset: in.Off, Meta: in}
	}

	for i, in := range insts {
		if load, ok := d.stringLoad(code, insts, i); ok {
			body[i].Op = il.OpLoadString
			body[i].Operand = load.text
			body[i].Meta = load
			continue
		}

		switch in.Op {
		case x86asm.RET:
			body[i].Op = il.OpReturn
			body[i].Operand = nil
		case x86asm.CALL:
			rel, ok := in.Args[0].(x86asm.Rel)
			if !ok {
				continue
			}
			body[i].Op = il.OpCall
			target := d.base + uintptr(in.end()) + uintptr(int64(rel))
			if d.name != nil {
				if name := d.name(target); name != "" {
					body[i].Operand = name
					continue
				}
			}
			body[i].Operand = target
		}
	}

	// Branch targets inside the function become labels, numbered in code
	// order.
	targets := map[int]il.Label{}
	for _, in := range insts {
		if off, ok := branchTarget(in); ok {
			if _, inside := byOffset[off]; inside {
				targets[off] = il.Label{}
			}
		}
	}
	next := 0
	for _, in := range insts {
		if _, ok := targets[in.Off]; ok {
			next++
			targets[in.Off] = il.Label{ID: next}
			body[byOffset[in.Off]].Labels = []il.Label{{ID: next}}
		}
	}
	for i, in := range insts {
		off, ok := branchTarget(in)
		if !ok {
			continue
		}
		label, inside := targets[off]
		if !inside {
			continue
		}
		if in.Op == x86asm.JMP {
			body[i].Op = il.OpBranch
		} else {
			body[i].Op = il.OpBranchTrue
		}
		body[i].Operand = label
	}

	return body, nil
}

// decodeAll decodes code up to the INT3 padding at its end.
func decodeAll(code []byte) ([]x86Inst, error) {
	var insts []x86Inst
	for off := 0; off < len(code); {
		if code[off] == opcodeINT3 && isPadding(code[off:]) {
			break
		}
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return nil, fmt.Errorf("decode error at offset %d: %w", off, err)
		}
		insts = append(insts, x86Inst{Inst: inst, Off: off})
		off += inst.Len
	}
	return insts, nil
}

func isPadding(code []byte) bool {
	for _, b := range code {
		if b != opcodeINT3 {
			return false
		}
	}
	return true
}

// branchTarget returns the offset a relative jump goes to.
func branchTarget(in x86Inst) (int, bool) {
	if in.Op == x86asm.CALL {
		return 0, false
	}
	rel, ok := in.Args[0].(x86asm.Rel)
	if !ok {
		return 0, false
	}
	return in.end() + int(rel), true
}

// stringLoad recognizes a LEA of string data at insts[i] and finds the MOV
// that loads the string's length.
func (d *x86Decoder) stringLoad(code []byte, insts []x86Inst, i int) (*stringLoad, bool) {
	lea := insts[i]
	if lea.Op != x86asm.LEA || lea.DataSize != 64 {
		return nil, false
	}
	dst, ok := lea.Args[0].(x86asm.Reg)
	if !ok {
		return nil, false
	}
	mem, ok := lea.Args[1].(x86asm.Mem)
	if !ok || mem.Base != x86asm.RIP || mem.Index != 0 {
		return nil, false
	}
	addr := d.base + uintptr(int64(lea.end())+mem.Disp)

	try := func(j int) (*stringLoad, bool) {
		if j < 0 || j >= len(insts) || j == i {
			return nil, false
		}
		n, ok := lengthImm(code, insts[j], dst)
		if !ok {
			return nil, false
		}
		text, ok := d.str(addr, n)
		if !ok {
			return nil, false
		}
		return &stringLoad{lea: lea, length: insts[j], text: text}, true
	}

	for j := i + 1; j <= i+lengthWindow; j++ {
		if load, ok := try(j); ok {
			return load, true
		}
	}
	for j := i - 1; j >= i-lengthWindow; j-- {
		if load, ok := try(j); ok {
			return load, true
		}
	}
	return nil, false
}

// lengthImm reports whether in moves a positive 32-bit immediate into the
// register after ptrReg, or into memory, and returns the immediate.
func lengthImm(code []byte, in x86Inst, ptrReg x86asm.Reg) (int, bool) {
	if in.Op != x86asm.MOV || in.Len < 5 {
		return 0, false
	}
	imm, ok := in.Args[1].(x86asm.Imm)
	if !ok || imm <= 0 || imm > math.MaxInt32 {
		return 0, false
	}

	switch dst := in.Args[0].(type) {
	case x86asm.Reg:
		p, ok := abiRegs[ptrReg]
		if !ok || abiRegs[dst] != p+1 {
			return 0, false
		}
	case x86asm.Mem:
		if dst.Base == x86asm.RIP {
			return 0, false
		}
	default:
		return 0, false
	}

	// The immediate must be the last four bytes of the encoding so it can
	// be rewritten in place.
	if binary.LittleEndian.Uint32(code[in.end()-4:]) != uint32(imm) {
		return 0, false
	}
	return int(imm), true
}

// encodeStrings writes the changed string loads of body into code, which
// runs at base. intern returns the address of a copy of a string. It
// returns the number of loads changed.
func encodeStrings(code []byte, base uintptr, body []*il.Instruction, intern func(string) (uintptr, error)) (int, error) {
	n := 0
	for i, in := range body {
		if in == nil || in.Op != il.OpLoadString {
			continue
		}
		load, ok := in.Meta.(*stringLoad)
		if !ok {
			return n, fmt.Errorf("instruction %d: string load has no machine code", i)
		}
		s, ok := in.Operand.(string)
		if !ok {
			return n, fmt.Errorf("instruction %d: operand is %T, not a string", i, in.Operand)
		}
		if s == load.text {
			continue
		}
		if len(s) > math.MaxInt32 {
			return n, fmt.Errorf("instruction %d: string too long", i)
		}

		addr, err := intern(s)
		if err != nil {
			return n, err
		}
		disp := int64(addr) - int64(base+uintptr(load.lea.end()))
		if disp < math.MinInt32 || disp > math.MaxInt32 {
			return n, fmt.Errorf("instruction %d: string at %#x is out of reach of %#x", i, addr, base)
		}

		dispOff := load.lea.end() - 4
		if load.lea.PCRel == 4 {
			dispOff = load.lea.Off + load.lea.PCRelOff
		}
		binary.LittleEndian.PutUint32(code[dispOff:], uint32(int32(disp)))
		binary.LittleEndian.PutUint32(code[load.length.end()-4:], uint32(int32(len(s))))
		n++
	}
	return n, nil
}

func disassemble(code []byte, base uintptr) (string, error) {
	var buf bytes.Buffer

	insts, err := decodeAll(code)
	if err != nil {
		return "", err
	}
	for _, in := range insts {
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", base+uintptr(in.Off), hex.EncodeToString(code[in.Off:in.end()]), in.Inst.String())
	}
	return buf.String(), nil
}
