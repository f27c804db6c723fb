// Package regalloc assigns register-file addresses to every value-producing
// operation on a physical core: reserved input/output registers for matrix
// operands and results, then general registers (with tile-memory spilling)
// for everything else. Grounded on original_source/src/regalloc.cpp.
package regalloc

import "github.com/illinois-impact/puma-compiler/src/ir"

// Report summarizes spilling activity for the human-readable compile
// report, mirroring RegisterAllocator::printReport.
type Report struct {
	LoadBytesReloaded int
	StoreBytesSpilled int
	NumSpilled        int
}

// RegisterAllocator runs the three-pass allocation over a linearized,
// coalesced, placed Model.
type RegisterAllocator struct {
	Model   *ir.Model
	CoreOps map[[2]int][]ir.OpID // (pTile, pCore) -> linearized op ids
	Report  Report

	tileSpillStart map[int]int
}

func New(model *ir.Model, coreOps map[[2]int][]ir.OpID) *RegisterAllocator {
	return &RegisterAllocator{Model: model, CoreOps: coreOps, tileSpillStart: make(map[int]int)}
}

// Run executes reserved-register passes 1 and 2 first, then pass 3 (general
// registers with spilling) independently for each physical core.
func (r *RegisterAllocator) Run() error {
	if err := r.assignReservedRegisters(); err != nil {
		return err
	}
	for key, ops := range r.CoreOps {
		newOps, err := r.allocateGeneralRegisters(key[0], key[1], ops)
		if err != nil {
			return err
		}
		r.CoreOps[key] = newOps
	}
	return nil
}

// spillAddressStart returns the first tile-memory address on pTile not
// already claimed by the Memory Allocator's bump allocation, so spill
// stores never collide with ordinary tile-memory writes. It is computed
// lazily and cached per tile.
func (r *RegisterAllocator) spillAddressStart(pTile int) int {
	if start, ok := r.tileSpillStart[pTile]; ok {
		return start
	}
	max := 0
	for _, op := range r.Model.OrderedOps() {
		if op.HasTileMemoryAddress() && op.HasPTile() && op.PTile == pTile {
			end := op.TileMemoryAddress + op.Length
			if end > max {
				max = end
			}
		}
	}
	r.tileSpillStart[pTile] = max
	return max
}
