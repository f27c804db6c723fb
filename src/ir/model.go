package ir

import (
	"fmt"
)

// ModelType records whether a Model mixes inference-only or training-only
// matrices; the two may never coexist (see SetModelType).
type ModelType int

const (
	Unspecialized ModelType = iota
	Inference
	Training
)

// HintSet is a coalesceable hint set recorded at IR-construction time: a
// group of MVM (or, degenerately, TrainingMatrix) ops that share an input
// vector's tiles and can therefore fire together if the Placer lands them on
// distinct MVMUs of the same core.
type HintSet struct {
	Members []OpID
}

// Model owns every Operation and tensor created for one compiled program. It
// is the arena referenced in DESIGN.md: Operations are stored by OpID rather
// than linked by pointer cycles, and cross-cutting relations (consumer
// sets, tile-memory reader sets) live in side tables keyed by OpID.
type Model struct {
	Name      string
	ModelType ModelType

	Ops    map[OpID]*Operation
	order  []OpID
	nextID OpID

	consumers map[OpID][]OpID // producer -> ordered consumer ids
	readers   map[OpID][]OpID // tile-memory write -> ordered reader ids

	InputVectors  []*InputVector
	Vectors       []*Vector
	OutputVectors []*OutputVector

	InputImagePixelStreams  []*InputImagePixelStream
	ImagePixelStreams       []*ImagePixelStream
	OutputImagePixelStreams []*OutputImagePixelStream

	ConstantMatrices   []*ConstantMatrix
	ConvMatrices       []*ConvolutionalConstantMatrix
	TrainingMatrices   []*TrainingMatrix

	HintSets []*HintSet
}

// NewModel creates an empty Model, ready for DSL construction.
func NewModel(name string) *Model {
	return &Model{
		Name:      name,
		ModelType: Unspecialized,
		Ops:       make(map[OpID]*Operation),
		consumers: make(map[OpID][]OpID),
		readers:   make(map[OpID][]OpID),
	}
}

// Error is a model-construction invariant violation (mixing model types,
// producer/consumer length mismatches, oversized matrix tiles).
type Error struct {
	Stage_  string
	Entity_ string
	Msg     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage_, e.Entity_, e.Msg)
}
func (e *Error) Stage() string  { return e.Stage_ }
func (e *Error) Entity() string { return e.Entity_ }

func newModelError(entity, msg string) error {
	return &Error{Stage_: "model", Entity_: entity, Msg: msg}
}

// SetModelType records that entity requires the model to be of type t,
// erroring if the model was already committed to the other specialization.
// A Model starts Unspecialized and locks in on its first ConstantMatrix or
// TrainingMatrix declaration (mirrors ModelImpl::addConstantMatrixImpl and
// ModelImpl::addTrainingMatrixImpl's assertions).
func (m *Model) SetModelType(t ModelType, entity string) error {
	if m.ModelType == Unspecialized {
		m.ModelType = t
		return nil
	}
	if m.ModelType != t {
		return newModelError(entity, "cannot mix inference and training matrices in the same model")
	}
	return nil
}

// OrderedOps iterates operations in creation order, mirroring the upstream
// compiler's std::set<Operation*> iteration (which is pointer-ordered there;
// here creation order is used deterministically instead).
func (m *Model) OrderedOps() []*Operation {
	out := make([]*Operation, 0, len(m.order))
	for _, id := range m.order {
		if op, ok := m.Ops[id]; ok {
			out = append(out, op)
		}
	}
	return out
}

// addConsumerEdge records that consumer reads producer as one of its
// operands, updating the producer's Users() side table. AddOperand (and, for
// tile-memory sources, AddSrc via addReaderEdge) appends to Operands/Srcs and
// records the back-edge in the same call so the two representations never
// drift.
func (m *Model) addConsumerEdge(producer, consumer OpID) {
	m.consumers[producer] = append(m.consumers[producer], consumer)
}

func (m *Model) removeConsumerEdge(producer, consumer OpID) {
	list := m.consumers[producer]
	for i, id := range list {
		if id == consumer {
			m.consumers[producer] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (m *Model) addReaderEdge(write, reader OpID) {
	m.readers[write] = append(m.readers[write], reader)
}

// AddOperand appends producer as the next operand of consumer and records
// the corresponding back-edge.
func (m *Model) AddOperand(consumer, producer *Operation) {
	consumer.Operands = append(consumer.Operands, producer.ID)
	m.addConsumerEdge(producer.ID, consumer.ID)
}

// AddSrc appends src as the next tile-memory source of a TileMemoryRead op
// (Load, Send, ReadOutput), recording the write->reader back-edge.
func (m *Model) AddSrc(reader, write *Operation) {
	reader.Srcs = append(reader.Srcs, write.ID)
	m.addReaderEdge(write.ID, reader.ID)
}

// ReplaceOperand rewires every operand slot of consumer that referenced
// oldProducer to instead reference newProducer, maintaining the consumer
// side table on both ends. It mirrors ProducerOperation::replaceOperand.
func (m *Model) ReplaceOperand(consumer *Operation, oldProducer, newProducer *Operation) {
	replaced := false
	for i, id := range consumer.Operands {
		if id == oldProducer.ID {
			consumer.Operands[i] = newProducer.ID
			replaced = true
		}
	}
	if replaced {
		m.removeConsumerEdge(oldProducer.ID, consumer.ID)
		m.addConsumerEdge(newProducer.ID, consumer.ID)
	}
}

// ReplaceSrc rewires reader's tile-memory source from oldWrite to newWrite.
func (m *Model) ReplaceSrc(reader *Operation, oldWrite, newWrite *Operation) {
	replaced := false
	for i, id := range reader.Srcs {
		if id == oldWrite.ID {
			reader.Srcs[i] = newWrite.ID
			replaced = true
		}
	}
	if replaced {
		list := m.readers[oldWrite.ID]
		for i, id := range list {
			if id == reader.ID {
				m.readers[oldWrite.ID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		m.addReaderEdge(newWrite.ID, reader.ID)
	}
}

// Unlink removes op from the model entirely; used when replacing pseudo ops.
func (m *Model) Unlink(op *Operation) {
	for _, producer := range op.Operands {
		m.removeConsumerEdge(producer, op.ID)
	}
	for _, write := range op.Srcs {
		list := m.readers[write]
		for i, id := range list {
			if id == op.ID {
				m.readers[write] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	delete(m.Ops, op.ID)
	for i, id := range m.order {
		if id == op.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	delete(m.consumers, op.ID)
	delete(m.readers, op.ID)
}

// AddHintSet records a coalesceable hint set built during DSL lowering.
func (m *Model) AddHintSet(members ...OpID) *HintSet {
	hs := &HintSet{Members: members}
	m.HintSets = append(m.HintSets, hs)
	return hs
}

func checkLength(a, b int, entity string) error {
	if a != b {
		return newModelError(entity, fmt.Sprintf("length mismatch: %d != %d", a, b))
	}
	return nil
}
