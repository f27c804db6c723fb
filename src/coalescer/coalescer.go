// Package coalescer groups MVM (or TrainingMatrix) operations placed on
// distinct physical MVMUs of the same physical core so a single instruction
// fires all of them together. Grounded on the two-phase algorithm described
// in original_source/src/coalescer.cpp: a hint-based Phase A followed by a
// dependence-aware greedy Phase B.
package coalescer

import "github.com/illinois-impact/puma-compiler/src/ir"

// Set is a group of MVM (inference) or TrainingMatrix (training) ops slotted
// by physical MVMU (inference) or physical MVMU * 3 + opType (training),
// sharing one physical core. Only the leader -- the lexicographically first
// non-empty slot -- emits an instruction at code generation time; every
// other member emits nothing.
type Set struct {
	ID           int
	PTile, PCore int
	Training     bool
	Slots        []ir.OpID // -1 where empty
}

// Leader returns the first non-empty slot's op id, or -1 if the set is
// somehow empty.
func (s *Set) Leader() ir.OpID {
	for _, id := range s.Slots {
		if id >= 0 {
			return id
		}
	}
	return -1
}

// Members returns every non-empty slot's op id, in slot order.
func (s *Set) Members() []ir.OpID {
	var out []ir.OpID
	for _, id := range s.Slots {
		if id >= 0 {
			out = append(out, id)
		}
	}
	return out
}

func trainingSlot(pMVMU int, opType ir.TrainingOpType) int { return pMVMU*3 + int(opType) }

// Coalescer runs Phase A then Phase B over a fully placed Model.
type Coalescer struct {
	Model *ir.Model

	Sets []*Set

	slotsPerCore int
}

// New prepares a Coalescer. slotsPerCore is NConstantMVMUsPerCore for
// inference or NTrainingMVMUsPerCore*3 for training; callers pass it in
// from src/common so this package stays free of a direct common import
// cycle concern and easy to unit test with small synthetic core sizes.
func New(model *ir.Model, slotsPerCore int) *Coalescer {
	return &Coalescer{Model: model, slotsPerCore: slotsPerCore}
}

func (c *Coalescer) isMatrixCandidate(op *ir.Operation) bool {
	if c.Model.ModelType == ir.Training {
		return op.Kind == ir.KindTrainingMatrix && op.TrainingOpType != ir.OuterProduct
	}
	return op.Kind == ir.KindMVM
}

func (c *Coalescer) slotIndex(op *ir.Operation) int {
	if c.Model.ModelType == ir.Training {
		return trainingSlot(op.PMVMU, op.TrainingOpType)
	}
	return op.PMVMU
}

// Run executes Phase A (hint-based) then Phase B (dependence-aware greedy)
// and records the resulting sets on each member op's CoalescedSet field.
func (c *Coalescer) Run() error {
	assigned := make(map[ir.OpID]*Set)

	c.phaseA(assigned)
	if err := c.phaseB(assigned); err != nil {
		return err
	}

	for id, set := range assigned {
		c.Model.Ops[id].CoalescedSet = set
	}
	return nil
}

// phaseA groups each hint set's members by (pTile, pCore) and keeps only
// the groups that fill every slot; incomplete groups are demolished back to
// individually-coalescable candidates for Phase B.
func (c *Coalescer) phaseA(assigned map[ir.OpID]*Set) {
	for _, hs := range c.Model.HintSets {
		groups := map[[2]int][]ir.OpID{}
		for _, id := range hs.Members {
			op := c.Model.Ops[id]
			if !c.isMatrixCandidate(op) || !op.HasPTile() || !op.HasPCore() {
				continue
			}
			key := [2]int{op.PTile, op.PCore}
			groups[key] = append(groups[key], id)
		}
		for key, members := range groups {
			slots := make([]ir.OpID, c.slotsPerCore)
			for i := range slots {
				slots[i] = -1
			}
			filled := 0
			for _, id := range members {
				op := c.Model.Ops[id]
				idx := c.slotIndex(op)
				if idx < 0 || idx >= c.slotsPerCore || slots[idx] != -1 {
					filled = -1 << 30 // force incomplete on any collision/out-of-range
					break
				}
				slots[idx] = id
				filled++
			}
			if filled != c.slotsPerCore {
				continue // demolished: members stay uncoalesced for Phase B
			}
			set := &Set{ID: len(c.Sets), PTile: key[0], PCore: key[1], Training: c.Model.ModelType == ir.Training, Slots: slots}
			c.Sets = append(c.Sets, set)
			for _, id := range members {
				assigned[id] = set
			}
		}
	}
}

// phaseB walks every candidate not already coalesced by Phase A, in reverse
// post-order from the model's sinks, and greedily assigns each to an
// existing set on its (pTile, pCore) with a free slot and no ≺-relationship
// with any current member, or starts a new set.
func (c *Coalescer) phaseB(assigned map[ir.OpID]*Set) error {
	order := reversePostOrder(c.Model, c.isMatrixCandidate)

	setsByCore := map[[2]int][]*Set{}
	for _, s := range c.Sets {
		key := [2]int{s.PTile, s.PCore}
		setsByCore[key] = append(setsByCore[key], s)
	}

	for _, id := range order {
		if _, ok := assigned[id]; ok {
			continue
		}
		op := c.Model.Ops[id]
		if !c.isMatrixCandidate(op) || !op.HasPTile() || !op.HasPCore() {
			continue
		}
		idx := c.slotIndex(op)
		key := [2]int{op.PTile, op.PCore}

		var placed *Set
		for _, s := range setsByCore[key] {
			if idx < 0 || idx >= len(s.Slots) || s.Slots[idx] != -1 {
				continue
			}
			if c.conflictsWithSet(op, s, assigned) {
				continue
			}
			placed = s
			break
		}
		if placed == nil {
			slots := make([]ir.OpID, c.slotsPerCore)
			for i := range slots {
				slots[i] = -1
			}
			placed = &Set{ID: len(c.Sets), PTile: key[0], PCore: key[1], Training: c.Model.ModelType == ir.Training, Slots: slots}
			c.Sets = append(c.Sets, placed)
			setsByCore[key] = append(setsByCore[key], placed)
		}
		if idx >= 0 && idx < len(placed.Slots) {
			placed.Slots[idx] = id
		}
		assigned[id] = placed
	}
	return nil
}

// conflictsWithSet reports whether op has a ≺-relationship, in either
// direction, with any current member of s: op is an ancestor of a member,
// or a member is an ancestor of op. Both directions are answered from each
// member's own ancestorSet, which already folds in every coalescing decision
// made so far (see ancestorSet), so a transitively-induced conflict through
// some other set is caught exactly like a direct base-graph one.
func (c *Coalescer) conflictsWithSet(op *ir.Operation, s *Set, assigned map[ir.OpID]*Set) bool {
	opAncestors := c.ancestorSet(op.ID, assigned)
	for _, memberID := range s.Members() {
		if opAncestors[memberID] {
			return true
		}
		if c.ancestorSet(memberID, assigned)[op.ID] {
			return true
		}
	}
	return false
}

// ancestorSet returns the set of matrix-candidate op ids that must fire
// before id, walking upstream through Operands and Srcs. At every node
// already placed into a coalesced set, the walk also fans out to that set's
// other members: since a set fires as one atomic instruction, anything
// upstream of one member is effectively upstream of every member, and this
// step is what makes that transitive update visible to every future
// conflictsWithSet call without having to patch every previously-computed
// ancestor set by hand. Computed fresh each call (not memoized) because the
// set of coalescing decisions -- and therefore the answer -- changes as
// Phase B proceeds.
func (c *Coalescer) ancestorSet(id ir.OpID, assigned map[ir.OpID]*Set) map[ir.OpID]bool {
	result := map[ir.OpID]bool{}
	visited := map[ir.OpID]bool{}

	var walk func(ir.OpID)
	walk = func(cur ir.OpID) {
		if visited[cur] {
			return
		}
		visited[cur] = true

		op := c.Model.Ops[cur]
		visitUpstream(op, func(up *ir.Operation) {
			if c.isMatrixCandidate(up) {
				result[up.ID] = true
			}
			walk(up.ID)
		})
		if set, ok := assigned[cur]; ok {
			for _, mate := range set.Members() {
				walk(mate)
			}
		}
	}
	walk(id)
	return result
}

func visitUpstream(op *ir.Operation, visit func(*ir.Operation)) {
	for i := 0; i < op.NumOperands(); i++ {
		visit(op.Operand(i))
	}
	for i := 0; i < op.NumSrcs(); i++ {
		visit(op.Src(i))
	}
}
