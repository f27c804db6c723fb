package ir

// NewMVM creates an MVM operation reading operand (a MVMUDim-wide input
// tile) through weightTile, producing a tile of weightTile.Height scalars.
func (m *Model) NewMVM(weightTile *MatrixTile, operand *Operation) (*Operation, error) {
	if operand.Length != weightTile.Width {
		return nil, newModelError("MVM", "operand width does not match matrix tile width")
	}
	op := newOp(m, KindMVM, weightTile.Height)
	op.MatrixTile = weightTile
	m.AddOperand(op, operand)
	weightTile.AddUser(op.ID)
	m.addOperationRecord(op)
	return op, nil
}

// NewTrainingMatrixOp creates a training-matrix operation of the given
// opType. FwdMVM/BwdMVMTranspose take one operand and produce a value;
// OuterProduct takes two operands (x1, x2) and produces nothing.
func (m *Model) NewTrainingMatrixOp(weightTile *MatrixTile, opType TrainingOpType, operands ...*Operation) (*Operation, error) {
	length := 0
	switch opType {
	case FwdMVM:
		length = weightTile.Height
	case BwdMVMTranspose:
		length = weightTile.Width
	case OuterProduct:
		length = 0
	}
	op := newOp(m, KindTrainingMatrix, length)
	op.TrainingOpType = opType
	op.MatrixTile = weightTile
	for _, o := range operands {
		m.AddOperand(op, o)
	}
	weightTile.AddUser(op.ID)
	m.addOperationRecord(op)
	return op, nil
}

// NewALU creates a vector ALU operation. For MULI, imm holds the immediate
// scalar and exactly one operand (the vector) is expected; other binary ops
// take two operands, unary ops (NOT, SIG, TANH, ...) take one.
func (m *Model) NewALU(opcode ALUOpcode, length int, imm float64, operands ...*Operation) *Operation {
	op := newOp(m, KindALU, length)
	op.ALUOp = opcode
	op.Immediate = imm
	for _, o := range operands {
		m.AddOperand(op, o)
	}
	m.addOperationRecord(op)
	return op
}

// NewSetImmediate creates a producer that materializes a constant value into
// a register (typically an address for Load/Store address operands).
func (m *Model) NewSetImmediate(imm float64) *Operation {
	op := newOp(m, KindSetImmediate, 1)
	op.Immediate = imm
	m.addOperationRecord(op)
	return op
}

// NewCopy creates a register-to-register move of operand's value, used by
// the Partitioner/Linearizer/RegisterAllocator to break live-range or
// scheduling conflicts.
func (m *Model) NewCopy(operand *Operation) *Operation {
	op := newOp(m, KindCopy, operand.Length)
	m.AddOperand(op, operand)
	m.addOperationRecord(op)
	return op
}

// NewLoad creates a scratchpad-read operation over write's tile memory.
func (m *Model) NewLoad(write *Operation) *Operation {
	op := newOp(m, KindLoad, write.Length)
	m.AddSrc(op, write)
	m.addOperationRecord(op)
	return op
}

// NewStore creates a scratchpad-write operation of operand's value.
func (m *Model) NewStore(operand *Operation) *Operation {
	op := newOp(m, KindStore, operand.Length)
	m.AddOperand(op, operand)
	m.addOperationRecord(op)
	return op
}

// NewSend creates a tile-to-tile send reading write's tile memory.
func (m *Model) NewSend(write *Operation) *Operation {
	op := newOp(m, KindSend, write.Length)
	m.AddSrc(op, write)
	m.addOperationRecord(op)
	return op
}

// NewReceive creates a tile-to-tile receive at the far end of send,
// recording the link as a Src so the Code Generator can recover each side's
// physical tile once the Placer runs (send's own Readers() then resolves
// straight to this Receive, and this Receive's Src(0) resolves straight
// back to send).
func (m *Model) NewReceive(send *Operation) *Operation {
	op := newOp(m, KindReceive, send.Length)
	m.AddSrc(op, send)
	m.addOperationRecord(op)
	return op
}

// NewWriteInput creates a materialization of a named external input tile
// into tile 0's scratchpad.
func (m *Model) NewWriteInput(name string, length int) *Operation {
	op := newOp(m, KindWriteInput, length)
	op.IOName = name
	m.addOperationRecord(op)
	return op
}

// NewReadOutput creates the terminal sink reading write's tile memory into
// a named external output tile.
func (m *Model) NewReadOutput(name string, write *Operation) *Operation {
	op := newOp(m, KindReadOutput, write.Length)
	op.IOName = name
	m.AddSrc(op, write)
	m.addOperationRecord(op)
	return op
}

// NewPseudoInput/NewPseudoOutput create transient placeholder nodes that the
// Partitioner's legalization pass replaces with real I/O + communication
// chains; downstream passes never observe them.
func (m *Model) NewPseudoInput(name string, length int) *Operation {
	op := newOp(m, KindPseudoInput, length)
	op.IOName = name
	m.addOperationRecord(op)
	return op
}

func (m *Model) NewPseudoOutput(name string, operand *Operation) *Operation {
	op := newOp(m, KindPseudoOutput, operand.Length)
	op.IOName = name
	m.AddOperand(op, operand)
	m.addOperationRecord(op)
	return op
}

// operations is the canonical registration set (mirrors ModelImpl::operations_,
// a std::set<Operation*> in the upstream compiler). newOp already appends to
// m.order/m.Ops; addOperationRecord exists as a named hook so intent reads
// clearly at each constructor's call site and mirrors ModelImpl::addOperation.
func (m *Model) addOperationRecord(op *Operation) {}
