package coalescer

import "github.com/illinois-impact/puma-compiler/src/ir"

// reversePostOrder walks upstream from every sink (ReadOutput, and training
// OUTER_PRODUCT ops, which are side-effect sinks with no consumers) and
// returns every op satisfying keep, in reverse post-order -- the same
// traversal shape the Linearizer performs, reused here so Phase B visits
// candidates in a schedule-consistent order.
func reversePostOrder(m *ir.Model, keep func(*ir.Operation) bool) []ir.OpID {
	visited := make(map[ir.OpID]bool)
	var post []ir.OpID

	var visit func(op *ir.Operation)
	visit = func(op *ir.Operation) {
		if visited[op.ID] {
			return
		}
		visited[op.ID] = true
		for i := 0; i < op.NumOperands(); i++ {
			visit(op.Operand(i))
		}
		for i := 0; i < op.NumSrcs(); i++ {
			visit(op.Src(i))
		}
		if keep(op) {
			post = append(post, op.ID)
		}
	}

	for _, op := range m.OrderedOps() {
		if isSink(op) {
			visit(op)
		}
	}
	// Cover anything unreachable from a recognized sink (e.g. a candidate
	// with no consumer yet, in a partially built or test-only model).
	for _, op := range m.OrderedOps() {
		visit(op)
	}

	out := make([]ir.OpID, len(post))
	for i, id := range post {
		out[len(post)-1-i] = id
	}
	return out
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
