package il

// Builder constructs instruction streams. Labels and blocks are attached to
// the next instruction emitted after Mark or Begin.
type Builder struct {
	body      []*Instruction
	nextLabel int

	pendingLabels []Label
	pendingBlocks []Block
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{body: make([]*Instruction, 0, 16)}
}

// NewLabel allocates a label that is not yet attached to an instruction.
func (b *Builder) NewLabel() Label {
	b.nextLabel++
	return Label{ID: b.nextLabel}
}

// Mark attaches l to the next emitted instruction.
func (b *Builder) Mark(l Label) {
	b.pendingLabels = append(b.pendingLabels, l)
}

// Begin attaches a protected-region marker to the next emitted instruction.
func (b *Builder) Begin(kind BlockKind) {
	b.pendingBlocks = append(b.pendingBlocks, Block{Kind: kind})
}

// BeginCatch attaches a catch marker for catchType.
func (b *Builder) BeginCatch(catchType string) {
	b.pendingBlocks = append(b.pendingBlocks, Block{Kind: BlockCatch, CatchType: catchType})
}

// Emit appends an instruction.
func (b *Builder) Emit(op OpCode, operand any) *Instruction {
	in := New(op, operand)
	in.Offset = len(b.body)
	if len(b.pendingLabels) > 0 {
		in.Labels = b.pendingLabels
		b.pendingLabels = nil
	}
	if len(b.pendingBlocks) > 0 {
		in.Blocks = b.pendingBlocks
		b.pendingBlocks = nil
	}
	b.body = append(b.body, in)
	return in
}

// EmitString appends a string-constant load.
func (b *Builder) EmitString(s string) *Instruction {
	return b.Emit(OpLoadString, s)
}

// EmitBranch appends a branch to l.
func (b *Builder) EmitBranch(op OpCode, l Label) *Instruction {
	return b.Emit(op, l)
}

// Len returns the number of emitted instructions.
func (b *Builder) Len() int {
	return len(b.body)
}

// Body returns the stream. Labels or blocks still pending are attached to a
// trailing nop.
func (b *Builder) Body() []*Instruction {
	if len(b.pendingLabels) > 0 || len(b.pendingBlocks) > 0 {
		b.Emit(OpNop, nil)
	}
	return b.body
}
