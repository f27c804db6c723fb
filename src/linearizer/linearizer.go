// Package linearizer produces, for each physical core and physical tile, an
// ordered instruction list from the coalesced, placed operation DAG.
// Grounded on original_source/src/linearizer.cpp's
// linearizeWithPredecessors/addConsumersToList traversal.
package linearizer

import (
	"github.com/illinois-impact/puma-compiler/src/coalescer"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// Linearizer walks the DAG from its sinks and builds one ordered op list per
// physical core and per physical tile.
type Linearizer struct {
	Model *ir.Model

	CoreOps map[[2]int][]ir.OpID // (pTile, pCore) -> ordered op ids
	TileOps map[int][]ir.OpID    // pTile -> ordered op ids

	addedEarly map[ir.OpID]bool
	added      map[ir.OpID]bool
}

func New(model *ir.Model) *Linearizer {
	return &Linearizer{
		Model:      model,
		CoreOps:    make(map[[2]int][]ir.OpID),
		TileOps:    make(map[int][]ir.OpID),
		addedEarly: make(map[ir.OpID]bool),
		added:      make(map[ir.OpID]bool),
	}
}

// Run linearizes from every sink (ReadOutput, and training OUTER_PRODUCT).
func (l *Linearizer) Run() error {
	for _, op := range l.Model.OrderedOps() {
		if isSink(op) {
			l.linearizeWithPredecessors(op, true)
		}
	}
	return nil
}

func isSink(op *ir.Operation) bool {
	if op.Kind == ir.KindReadOutput {
		return true
	}
	if op.Kind == ir.KindTrainingMatrix && op.TrainingOpType == ir.OuterProduct {
		return true
	}
	return false
}

// coalescedSet returns op's coalesced set if it has one, else nil.
func coalescedSet(op *ir.Operation) *coalescer.Set {
	if op.CoalescedSet == nil {
		return nil
	}
	if s, ok := op.CoalescedSet.(*coalescer.Set); ok {
		return s
	}
	return nil
}

// linearizeWithPredecessors is the core recursive step: it ensures every
// predecessor of op is placed before op, then places op itself (unless
// addSelf is false or op was already emitted early by a matrix-op input
// packing step).
func (l *Linearizer) linearizeWithPredecessors(op *ir.Operation, addSelf bool) {
	if l.added[op.ID] {
		return
	}
	if op.IsMatrixOp() {
		l.linearizeMatrixOp(op, addSelf)
		return
	}

	for i := 0; i < op.NumOperands(); i++ {
		l.linearizeWithPredecessors(op.Operand(i), true)
	}
	for i := 0; i < op.NumSrcs(); i++ {
		l.linearizeWithPredecessors(op.Src(i), true)
	}

	if addSelf && !l.addedEarly[op.ID] {
		l.addToList(op)
		l.addConsumersToList(op)
	}
}

// linearizeMatrixOp implements matrix-op input packing: recurse into every
// operand's predecessor subgraph without emitting the operands, then emit
// each operand immediately before the matrix op(s), then emit the matrix
// op(s) in the coalesced set together, then emit their consumers.
func (l *Linearizer) linearizeMatrixOp(op *ir.Operation, addSelf bool) {
	set := coalescedSet(op)
	members := []ir.OpID{op.ID}
	if set != nil {
		members = set.Members()
	}

	// Recurse into every member's operand predecessor subgraphs first,
	// without emitting the operands.
	for _, id := range members {
		m := l.Model.Ops[id]
		for i := 0; i < m.NumOperands(); i++ {
			l.linearizeWithPredecessors(m.Operand(i), false)
		}
	}
	// Now emit each operand not yet in the list immediately before the
	// matrix op. An operand already emitted early by a different matrix op
	// is skipped; no Copy is inserted for it.
	for _, id := range members {
		m := l.Model.Ops[id]
		for i := 0; i < m.NumOperands(); i++ {
			operand := m.Operand(i)
			if l.addedEarly[operand.ID] {
				continue // already emitted by an earlier matrix op's packing
			}
			if !l.added[operand.ID] {
				l.addToList(operand)
				l.addedEarly[operand.ID] = true
			}
		}
	}
	// Emit the matrix op(s) themselves.
	for _, id := range members {
		m := l.Model.Ops[id]
		if !l.added[m.ID] {
			l.addToList(m)
		}
	}
	// Emit consumers of every member.
	for _, id := range members {
		l.addConsumersToList(l.Model.Ops[id])
	}
}

// addConsumersToList adds op's consumers immediately after op if every one
// of them has all of its operands already placed; otherwise it inserts a
// Copy and rewires every consumer to read from the copy, deferring them.
func (l *Linearizer) addConsumersToList(op *ir.Operation) {
	users := op.Users()
	if len(users) == 0 {
		return
	}
	allReady := true
	for _, u := range users {
		if !l.operandsReady(u, op) {
			allReady = false
			break
		}
	}
	if allReady {
		for _, u := range users {
			if !l.added[u.ID] {
				l.linearizeWithPredecessors(u, true)
				l.addedEarly[u.ID] = true
			}
		}
		return
	}

	cp := l.Model.NewCopy(op)
	if op.HasVCore() {
		cp.SetVCore(op.VCore)
	}
	if op.HasVTile() {
		cp.SetVTile(op.VTile)
	}
	for _, u := range users {
		l.Model.ReplaceOperand(u, op, cp)
	}
	l.addToList(cp)
}

// operandsReady reports whether every operand of consumer other than
// exclude (the producer just placed) has already been added to a list.
func (l *Linearizer) operandsReady(consumer *ir.Operation, exclude *ir.Operation) bool {
	for i := 0; i < consumer.NumOperands(); i++ {
		operand := consumer.Operand(i)
		if operand.ID == exclude.ID {
			continue
		}
		if !l.added[operand.ID] {
			return false
		}
	}
	return true
}

// addToList appends op to its owning core or tile operation list, per its
// IsCoreOp/IsTileOp capability, and marks it added.
func (l *Linearizer) addToList(op *ir.Operation) {
	if l.added[op.ID] {
		return
	}
	l.added[op.ID] = true
	switch {
	case op.IsCoreOp():
		key := [2]int{op.PTile, op.PCore}
		l.CoreOps[key] = append(l.CoreOps[key], op.ID)
	case op.IsTileOp():
		l.TileOps[op.PTile] = append(l.TileOps[op.PTile], op.ID)
	}
}
