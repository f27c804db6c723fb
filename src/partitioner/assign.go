package partitioner

import (
	"math/rand"

	"github.com/illinois-impact/puma-compiler/src/ir"
)

// assignVirtualMVMUs gives every matrix tile its own virtual MVMU (ids start
// at 2; 0 and 1 are reserved for input/output I/O), then spreads that
// assignment along the DAG to non-matrix core ops.
func (p *Partitioner) assignVirtualMVMUs() error {
	tiles := p.enumerateMatrixTiles()
	for _, t := range tiles {
		vm := p.nextVMVMU
		p.nextVMVMU++
		for _, opID := range t.Users {
			op := p.Model.Ops[opID]
			op.SetVMVMU(vm)
		}
	}
	p.spreadAffinity()
	p.assignRemainingCoreOps()
	return nil
}

// enumerateMatrixTiles walks every matrix in the model, matrix-major, in the
// (h, w) or (w, h) order the scheme calls for, optionally permuted randomly.
func (p *Partitioner) enumerateMatrixTiles() []*ir.MatrixTile {
	var tiles []*ir.MatrixTile
	colMajor := p.Options.Scheme == ColMajor

	appendGrid := func(grid [][]*ir.MatrixTile) {
		if !colMajor {
			for h := range grid {
				for w := range grid[h] {
					tiles = append(tiles, grid[h][w])
				}
			}
			return
		}
		if len(grid) == 0 {
			return
		}
		for w := range grid[0] {
			for h := range grid {
				tiles = append(tiles, grid[h][w])
			}
		}
	}

	for _, m := range p.Model.ConstantMatrices {
		appendGrid(m.Tiles)
	}
	for _, c := range p.Model.ConvMatrices {
		for kh := range c.Tiles {
			for kw := range c.Tiles[kh] {
				appendGrid(c.Tiles[kh][kw])
			}
		}
	}
	for _, m := range p.Model.TrainingMatrices {
		appendGrid(m.Tiles)
	}

	if p.Options.Scheme == Random {
		r := p.Options.Rand
		if r == nil {
			r = rand.New(rand.NewSource(1))
		}
		r.Shuffle(len(tiles), func(i, j int) { tiles[i], tiles[j] = tiles[j], tiles[i] })
	}
	return tiles
}

// spreadAffinity propagates a matrix op's virtual MVMU to non-matrix
// neighbors (operands and users), iterating to a fixed point, per
// spreadVMVMUAffinityToOperands/spreadVMVMUAffinityToUsers in
// original_source/src/partitioner.cpp: a node only adopts a neighbor's
// vMVMU once every one of its OTHER neighbors already agrees on it, so an
// op sitting between two different matrix ops' fan-out is never claimed by
// whichever one happens to settle first.
func (p *Partitioner) spreadAffinity() {
	ops := p.Model.OrderedOps()
	for {
		changed := false
		for _, op := range ops {
			if !op.IsCoreOp() || op.IsMatrixOp() || op.HasVMVMU() {
				continue
			}
			if vm, ok := readyNeighborVMVMU(op); ok {
				op.SetVMVMU(vm)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// readyNeighborVMVMU returns the vMVMU op should adopt: every one of its
// neighbors (operands and users) must already be assigned and agree on the
// same vMVMU. A node with no neighbors yet, or with neighbors disagreeing,
// is left unassigned for a later spreadAffinity iteration (once more
// neighbors settle) or assignRemainingCoreOps to fall back on.
func readyNeighborVMVMU(op *ir.Operation) (int, bool) {
	neighbors := coreNeighbors(op)
	if len(neighbors) == 0 {
		return 0, false
	}
	vm := -1
	for _, n := range neighbors {
		if !n.HasVMVMU() {
			return 0, false
		}
		if vm == -1 {
			vm = n.VMVMU
		} else if n.VMVMU != vm {
			return 0, false
		}
	}
	return vm, true
}

func coreNeighbors(op *ir.Operation) []*ir.Operation {
	var out []*ir.Operation
	for i := 0; i < op.NumOperands(); i++ {
		out = append(out, op.Operand(i))
	}
	out = append(out, op.Users()...)
	return out
}

// firstAssignedNeighbor returns the virtual MVMU of the first assigned
// operand or user of op, in operand-then-user order. Used only as
// assignRemainingCoreOps's fallback heuristic for ops spreadAffinity's
// stricter agreement rule could never settle (e.g. sitting between two
// different vMVMUs' fan-out with no majority) -- first assigned neighbor
// wins on that residual ambiguity.
func firstAssignedNeighbor(op *ir.Operation) (int, bool) {
	for i := 0; i < op.NumOperands(); i++ {
		if operand := op.Operand(i); operand.HasVMVMU() {
			return operand.VMVMU, true
		}
	}
	for _, user := range op.Users() {
		if user.HasVMVMU() {
			return user.VMVMU, true
		}
	}
	return 0, false
}

// assignRemainingCoreOps handles any core op the affinity spread's fixed
// point left unassigned (e.g. an ALU chain with no matrix-op neighbor at
// all, or one caught between disagreeing neighbors): fall back to the
// first assigned operand or user, walking transitively.
func (p *Partitioner) assignRemainingCoreOps() {
	for _, op := range p.Model.OrderedOps() {
		if op.IsCoreOp() && !op.HasVMVMU() {
			if vm, ok := firstAssignedNeighbor(op); ok {
				op.SetVMVMU(vm)
			}
		}
	}
}
