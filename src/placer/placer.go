// Package placer assigns physical MVMU/core/tile ids to a virtually
// partitioned Model. Grounded on original_source/src/placer.cpp: tile 0/1
// map identically to physical input/output tiles, and everything else packs
// in ascending order within the fixed physical capacities.
package placer

import (
	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// Placer assigns physical ids to every core op's virtual MVMU/core/tile.
type Placer struct {
	Model *ir.Model

	vtileToPTile map[int]int
	vcoreToPCore map[int]map[int]int // per physical tile
	vmvmuToPMVMU map[int]map[int]int // per physical core
	coresUsed    map[int]int         // physical tile -> next physical core
	mvmusUsed    map[int]int         // physical core (global key coreKey: ptile*10_000+pcore) -> next physical mvmu
}

func New(model *ir.Model) *Placer {
	return &Placer{
		Model:        model,
		vtileToPTile: make(map[int]int),
		vcoreToPCore: make(map[int]map[int]int),
		vmvmuToPMVMU: make(map[int]map[int]int),
		coresUsed:    make(map[int]int),
		mvmusUsed:    make(map[int]int),
	}
}

func coreKey(pTile, pCore int) int { return pTile*10_000 + pCore }

// NumPTiles returns the number of distinct physical tiles assigned by Run.
func (p *Placer) NumPTiles() int { return len(p.vtileToPTile) }

// Run assigns physical tile ids first (0 and 1 pinned to virtual 0 and 1,
// every other virtual tile identity-mapped), then physical cores within each
// tile, then physical MVMUs within each core, both in ascending packing
// order.
func (p *Placer) Run() error {
	for _, op := range p.Model.OrderedOps() {
		if !op.HasVTile() {
			continue
		}
		if _, ok := p.vtileToPTile[op.VTile]; ok {
			continue
		}
		switch op.VTile {
		case 0:
			p.vtileToPTile[0] = 0
		case 1:
			p.vtileToPTile[1] = 1
		default:
			p.vtileToPTile[op.VTile] = op.VTile
		}
	}

	for _, op := range p.Model.OrderedOps() {
		if !op.IsCoreOp() {
			continue
		}
		if !op.HasVCore() || !op.HasVTile() {
			return errors.Errorf("placer: %s has no virtual core/tile assignment", op)
		}
		pTile := p.vtileToPTile[op.VTile]
		if p.vcoreToPCore[pTile] == nil {
			p.vcoreToPCore[pTile] = make(map[int]int)
		}
		if _, ok := p.vcoreToPCore[pTile][op.VCore]; !ok {
			pCore := p.coresUsed[pTile]
			if pCore >= common.NCoresPerTile {
				return errors.Errorf("placer: physical tile %d exceeds %d cores", pTile, common.NCoresPerTile)
			}
			p.vcoreToPCore[pTile][op.VCore] = pCore
			p.coresUsed[pTile]++
		}
	}

	for _, op := range p.Model.OrderedOps() {
		if !op.IsCoreOp() {
			continue
		}
		if !op.HasVMVMU() || !op.HasVCore() || !op.HasVTile() {
			return errors.Errorf("placer: %s has no virtual mvmu/core/tile assignment", op)
		}
		pTile := p.vtileToPTile[op.VTile]
		pCore := p.vcoreToPCore[pTile][op.VCore]
		key := coreKey(pTile, pCore)
		if p.vmvmuToPMVMU[key] == nil {
			p.vmvmuToPMVMU[key] = make(map[int]int)
		}
		if _, ok := p.vmvmuToPMVMU[key][op.VMVMU]; !ok {
			pMVMU := p.mvmusUsed[key]
			limit := common.NConstantMVMUsPerCore
			if p.Model.ModelType == ir.Training {
				limit = common.NTrainingMVMUsPerCore
			}
			if pMVMU >= limit {
				return errors.Errorf("placer: physical core (%d,%d) exceeds %d mvmus", pTile, pCore, limit)
			}
			p.vmvmuToPMVMU[key][op.VMVMU] = pMVMU
			p.mvmusUsed[key]++
		}
	}

	for _, op := range p.Model.OrderedOps() {
		if op.HasVTile() {
			op.SetPTile(p.vtileToPTile[op.VTile])
		}
		if op.IsCoreOp() && op.HasVCore() && op.HasVTile() {
			pTile := p.vtileToPTile[op.VTile]
			op.SetPCore(p.vcoreToPCore[pTile][op.VCore])
		}
		if op.IsCoreOp() && op.HasVMVMU() && op.HasVCore() && op.HasVTile() {
			pTile := p.vtileToPTile[op.VTile]
			pCore := p.vcoreToPCore[pTile][op.VCore]
			op.SetPMVMU(p.vmvmuToPMVMU[coreKey(pTile, pCore)][op.VMVMU])
		}
	}
	return nil
}
