package ir

import "fmt"

// OpID is an arena handle for an Operation. IDs are handed out from 0 in
// creation order, so the first operation of a Model has ID 0; code that needs
// a "no operation" marker uses -1. Model.Ops is keyed by OpID rather than by
// pointer so that
// back-edges (consumer sets, tile-memory reader sets) can live in side
// tables instead of forming pointer cycles.
type OpID int

// Kind tags the concrete variant of an Operation, replacing the dynamic_cast
// based classification of the upstream compiler's virtual multiple
// inheritance with a single switchable enum.
type Kind int

const (
	KindMVM Kind = iota
	KindTrainingMatrix
	KindALU
	KindSetImmediate
	KindCopy
	KindLoad
	KindStore
	KindSend
	KindReceive
	KindWriteInput
	KindReadOutput
	KindPseudoInput
	KindPseudoOutput
)

func (k Kind) String() string {
	switch k {
	case KindMVM:
		return "MVM"
	case KindTrainingMatrix:
		return "TrainingMatrix"
	case KindALU:
		return "ALU"
	case KindSetImmediate:
		return "SetImmediate"
	case KindCopy:
		return "Copy"
	case KindLoad:
		return "Load"
	case KindStore:
		return "Store"
	case KindSend:
		return "Send"
	case KindReceive:
		return "Receive"
	case KindWriteInput:
		return "WriteInput"
	case KindReadOutput:
		return "ReadOutput"
	case KindPseudoInput:
		return "PseudoInput"
	case KindPseudoOutput:
		return "PseudoOutput"
	default:
		return "Unknown"
	}
}

// TrainingOpType distinguishes the three training-matrix operation flavors.
type TrainingOpType int

const (
	FwdMVM TrainingOpType = iota
	BwdMVMTranspose
	OuterProduct
)

// ALUOpcode enumerates the vector ALU operations.
type ALUOpcode int

const (
	ALUAdd ALUOpcode = iota
	ALUSub
	ALUMul
	ALUDiv
	ALUMulImmediate
	ALUAnd
	ALUOr
	ALUNot
	ALUEq
	ALUNeq
	ALULt
	ALULeq
	ALUGt
	ALUGeq
	ALUMin
	ALUMax
	ALUMse
	ALUSig
	ALUTanh
	ALUExp
	ALULog
	ALURelu
	ALUReluD
	ALULogSoftmax
	ALULogSoftmaxD
	ALURndCmp
)

var aluMnemonics = map[ALUOpcode]string{
	ALUAdd: "add", ALUSub: "sub", ALUMul: "mul", ALUDiv: "div", ALUMulImmediate: "mul",
	ALUAnd: "and", ALUOr: "or", ALUNot: "not", ALUEq: "eq", ALUNeq: "neq",
	ALULt: "lt", ALULeq: "leq", ALUGt: "gt", ALUGeq: "geq", ALUMin: "min", ALUMax: "max",
	ALUMse: "mse", ALUSig: "sig", ALUTanh: "tanh", ALUExp: "exp", ALULog: "log",
	ALURelu: "relu", ALUReluD: "relud", ALULogSoftmax: "log_softmax",
	ALULogSoftmaxD: "log_softmaxd", ALURndCmp: "rndcmp",
}

func (op ALUOpcode) Mnemonic() string { return aluMnemonics[op] }

// unassigned is the sentinel for not-yet-assigned virtual/physical unit ids
// and tile-memory / register addresses.
const unassigned = -1

// Operation is the single concrete node type for every DAG variant. Instead
// of the deep multiple-inheritance hierarchy of the upstream compiler,
// capability membership (Producer, Consumer, TileMemoryRead/Write,
// Input/Output, Core/Tile) is expressed as predicate methods that switch on
// Kind, and cross-cutting relations (consumer sets, reader sets) are kept in
// side tables on Model rather than as fields here.
type Operation struct {
	ID    OpID
	Kind  Kind
	Model *Model

	// Length is the number of scalars this op produces/consumes per firing.
	Length int

	// Operands holds the ordered list of producer OpIDs a Consumer reads.
	// For Load/Store, operand index conventions match the upstream
	// compiler: Load's tile-memory address SetImmediate lives at index 0,
	// Store's at index 1 (see memalloc).
	Operands []OpID

	// ALU / training / immediate payload.
	ALUOp          ALUOpcode
	Immediate      float64
	TrainingOpType TrainingOpType

	// Matrix tile this MVM/TrainingMatrix op reads its weights from.
	MatrixTile *MatrixTile

	// I/O binding name for WriteInput/ReadOutput/PseudoInput/PseudoOutput.
	IOName string

	// Send/Receive/WriteInput/ReadOutput sources, ordered (mirrors
	// TileMemoryReadOperation::numSrcs/getSrc in the upstream compiler).
	Srcs []OpID

	// Placement metadata, written monotonically by Partitioner then Placer.
	VMVMU, VCore, VTile    int
	PMVMU, PCore, PTile    int
	hasVMVMU, hasVCore, hasVTile bool
	hasPMVMU, hasPCore, hasPTile bool

	// Tile-memory address, written by the Memory Allocator.
	TileMemoryAddress int
	hasTileMemoryAddr bool

	// Register allocation results.
	Register    int
	hasRegister bool

	// Coalescing back-link; nil if this op was never coalesced.
	CoalescedSet interface{}
}

func newOp(m *Model, kind Kind, length int) *Operation {
	id := m.nextID
	m.nextID++
	op := &Operation{
		ID: id, Kind: kind, Model: m, Length: length,
		VMVMU: unassigned, VCore: unassigned, VTile: unassigned,
		PMVMU: unassigned, PCore: unassigned, PTile: unassigned,
	}
	m.Ops[id] = op
	m.order = append(m.order, id)
	return op
}

// --- capability predicates -------------------------------------------------

func (op *Operation) IsProducer() bool {
	switch op.Kind {
	case KindMVM, KindALU, KindSetImmediate, KindCopy, KindLoad:
		return true
	case KindTrainingMatrix:
		return op.TrainingOpType != OuterProduct
	default:
		return false
	}
}

func (op *Operation) IsConsumer() bool {
	switch op.Kind {
	case KindMVM, KindTrainingMatrix, KindALU, KindCopy, KindLoad, KindStore:
		return true
	default:
		return false
	}
}

func (op *Operation) IsTileMemoryWrite() bool {
	switch op.Kind {
	case KindStore, KindReceive, KindWriteInput:
		return true
	default:
		return false
	}
}

func (op *Operation) IsTileMemoryRead() bool {
	switch op.Kind {
	case KindLoad, KindSend, KindReadOutput:
		return true
	default:
		return false
	}
}

func (op *Operation) IsInput() bool  { return op.Kind == KindWriteInput || op.Kind == KindPseudoInput }
func (op *Operation) IsOutput() bool { return op.Kind == KindReadOutput || op.Kind == KindPseudoOutput }
func (op *Operation) IsPseudo() bool { return op.Kind == KindPseudoInput || op.Kind == KindPseudoOutput }

func (op *Operation) IsMatrixOp() bool { return op.Kind == KindMVM || op.Kind == KindTrainingMatrix }

// IsCoreOp reports whether this op executes on a core (as opposed to a tile
// controller); the complement of IsTileOp for every non-pseudo variant.
func (op *Operation) IsCoreOp() bool {
	switch op.Kind {
	case KindMVM, KindTrainingMatrix, KindALU, KindSetImmediate, KindCopy, KindLoad, KindStore:
		return true
	default:
		return false
	}
}

func (op *Operation) IsTileOp() bool {
	switch op.Kind {
	case KindSend, KindReceive, KindWriteInput, KindReadOutput:
		return true
	default:
		return false
	}
}

// --- accessors --------------------------------------------------------------

func (op *Operation) NumOperands() int          { return len(op.Operands) }
func (op *Operation) Operand(i int) *Operation  { return op.Model.Ops[op.Operands[i]] }
func (op *Operation) NumSrcs() int              { return len(op.Srcs) }
func (op *Operation) Src(i int) *Operation      { return op.Model.Ops[op.Srcs[i]] }

// Users returns this producer's consumer set, read from the Model's
// side table (see Model.consumers).
func (op *Operation) Users() []*Operation {
	ids := op.Model.consumers[op.ID]
	out := make([]*Operation, 0, len(ids))
	for _, id := range ids {
		out = append(out, op.Model.Ops[id])
	}
	return out
}

// Readers returns the set of TileMemoryRead ops reading this
// TileMemoryWrite op, from the Model's side table.
func (op *Operation) Readers() []*Operation {
	ids := op.Model.readers[op.ID]
	out := make([]*Operation, 0, len(ids))
	for _, id := range ids {
		out = append(out, op.Model.Ops[id])
	}
	return out
}

// Uses reports whether op reads candidate as one of its operands.
func (op *Operation) Uses(candidate *Operation) bool {
	for _, id := range op.Operands {
		if id == candidate.ID {
			return true
		}
	}
	return false
}

func (op *Operation) String() string {
	return fmt.Sprintf("%s#%d", op.Kind, op.ID)
}

// --- virtual/physical assignment --------------------------------------------

func (op *Operation) HasVMVMU() bool { return op.hasVMVMU }
func (op *Operation) HasVCore() bool { return op.hasVCore }
func (op *Operation) HasVTile() bool { return op.hasVTile }

func (op *Operation) SetVMVMU(v int) { op.VMVMU, op.hasVMVMU = v, true }
func (op *Operation) SetVCore(v int) { op.VCore, op.hasVCore = v, true }
func (op *Operation) SetVTile(v int) { op.VTile, op.hasVTile = v, true }

func (op *Operation) HasPMVMU() bool { return op.hasPMVMU }
func (op *Operation) HasPCore() bool { return op.hasPCore }
func (op *Operation) HasPTile() bool { return op.hasPTile }

func (op *Operation) SetPMVMU(v int) { op.PMVMU, op.hasPMVMU = v, true }
func (op *Operation) SetPCore(v int) { op.PCore, op.hasPCore = v, true }
func (op *Operation) SetPTile(v int) { op.PTile, op.hasPTile = v, true }

func (op *Operation) HasTileMemoryAddress() bool { return op.hasTileMemoryAddr }
func (op *Operation) SetTileMemoryAddress(a int) { op.TileMemoryAddress, op.hasTileMemoryAddr = a, true }

func (op *Operation) HasRegister() bool  { return op.hasRegister }
func (op *Operation) SetRegister(r int)  { op.Register, op.hasRegister = r, true }
