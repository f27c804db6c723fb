// Package memalloc assigns tile-memory addresses to every TileMemoryWrite
// operation with a simple per-tile bump allocator, and synthesizes the
// SetImmediate address operands Load and Store need. Grounded on
// original_source/src/memalloc.cpp.
package memalloc

import "github.com/illinois-impact/puma-compiler/src/ir"

// MemoryAllocator bump-allocates tile-memory addresses, one free pointer per
// virtual tile; it never frees, matching the upstream compiler.
type MemoryAllocator struct {
	Model *ir.Model

	available map[int]int // virtual tile -> next free address
}

func New(model *ir.Model) *MemoryAllocator {
	return &MemoryAllocator{Model: model, available: make(map[int]int)}
}

// Run allocates an address for every TileMemoryWrite op in DAG creation
// order and synthesizes the address SetImmediate operand for every Store
// (operand index 1) and Load (operand index 0) that touches it.
func (a *MemoryAllocator) Run() error {
	for _, op := range a.Model.OrderedOps() {
		if !op.IsTileMemoryWrite() {
			continue
		}
		vtile := 0
		if op.HasVTile() {
			vtile = op.VTile
		}
		address := a.alloc(vtile, op.Length)
		op.SetTileMemoryAddress(address)

		if op.Kind == ir.KindStore {
			addrOp := a.Model.NewSetImmediate(float64(address))
			if op.HasVCore() {
				addrOp.SetVCore(op.VCore)
			}
			if op.HasVTile() {
				addrOp.SetVTile(op.VTile)
			}
			a.Model.AddOperand(op, addrOp)
		}

		for _, reader := range op.Readers() {
			if reader.Kind != ir.KindLoad {
				continue
			}
			addrOp := a.Model.NewSetImmediate(float64(address))
			if reader.HasVCore() {
				addrOp.SetVCore(reader.VCore)
			}
			if reader.HasVTile() {
				addrOp.SetVTile(reader.VTile)
			}
			a.Model.AddOperand(reader, addrOp)
		}
	}
	return nil
}

func (a *MemoryAllocator) alloc(vtile, size int) int {
	address := a.available[vtile]
	a.available[vtile] = address + size
	return address
}
