package il

import "fmt"

// OpCode is the operation performed by an instruction.
type OpCode uint8

const (
	OpNop        OpCode = 0x00 // no operation
	OpLoadString OpCode = 0x01 // push a string constant
	OpLoadConst  OpCode = 0x02 // push a non-string constant
	OpLoadLocal  OpCode = 0x03 // push a local or argument
	OpStoreLocal OpCode = 0x04 // pop into a local
	OpLoadField  OpCode = 0x05 // push a field
	OpStoreField OpCode = 0x06 // pop into a field
)

// Calls
const (
	OpCall     OpCode = 0x10 // call a method
	OpCallVirt OpCode = 0x11 // virtual call
	OpNewObj   OpCode = 0x12 // construct an object
)

// Control flow
const (
	OpBranch      OpCode = 0x20 // unconditional branch to a label
	OpBranchTrue  OpCode = 0x21 // pop, branch if true
	OpBranchFalse OpCode = 0x22 // pop, branch if false
	OpSwitch      OpCode = 0x23 // pop, branch through a label table
	OpLeave       OpCode = 0x24 // exit a protected region
	OpReturn      OpCode = 0x25 // return
	OpThrow       OpCode = 0x26 // throw
)

// OpNative is an instruction the host did not map to any other opcode. Its
// operand is host specific.
const OpNative OpCode = 0xff

// OperandKind describes what an instruction's operand holds.
type OperandKind uint8

const (
	OperandNone   OperandKind = iota
	OperandString             // string
	OperandValue              // any constant value
	OperandIndex              // local, argument or field reference
	OperandMember             // method or constructor reference
	OperandLabel              // Label
	OperandLabels             // []Label
	OperandRaw                // host specific
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string
	Operand OperandKind
	// Branches is set for opcodes whose operand names a branch target.
	Branches bool
}

var opcodeTable = map[OpCode]OpcodeInfo{
	OpNop:        {"nop", OperandNone, false},
	OpLoadString: {"ldstr", OperandString, false},
	OpLoadConst:  {"ldc", OperandValue, false},
	OpLoadLocal:  {"ldloc", OperandIndex, false},
	OpStoreLocal: {"stloc", OperandIndex, false},
	OpLoadField:  {"ldfld", OperandIndex, false},
	OpStoreField: {"stfld", OperandIndex, false},

	OpCall:     {"call", OperandMember, false},
	OpCallVirt: {"callvirt", OperandMember, false},
	OpNewObj:   {"newobj", OperandMember, false},

	OpBranch:      {"br", OperandLabel, true},
	OpBranchTrue:  {"brtrue", OperandLabel, true},
	OpBranchFalse: {"brfalse", OperandLabel, true},
	OpSwitch:      {"switch", OperandLabels, true},
	OpLeave:       {"leave", OperandLabel, true},
	OpReturn:      {"ret", OperandNone, false},
	OpThrow:       {"throw", OperandNone, false},

	OpNative: {"native", OperandRaw, false},
}

// Info returns the metadata for an opcode.
func (op OpCode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown_%02x", byte(op)), Operand: OperandRaw}
}

func (op OpCode) String() string {
	return op.Info().Name
}
