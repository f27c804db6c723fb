package partitioner

import (
	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// rollup packs virtual MVMUs into virtual cores and virtual cores into
// virtual tiles, either in VMVMU-order or via the KaHIP oracle.
func (p *Partitioner) rollup() error {
	if p.Options.Scheme == KaHIP {
		return p.rollupKaHIP()
	}
	return p.rollupVMVMUOrder()
}

func (p *Partitioner) mvmusPerCore() int {
	if p.Model.ModelType == ir.Training {
		return common.NTrainingMVMUsPerCore
	}
	return common.NConstantMVMUsPerCore
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func ceilDiv(a, b int) int {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}

// rollupVMVMUOrder packs consecutive virtual MVMU ids into cores and
// consecutive virtual core ids into tiles.
func (p *Partitioner) rollupVMVMUOrder() error {
	perCore := p.mvmusPerCore()
	vmvmuToVCore := make(map[int]int)
	nCores := 2
	for vm := 2; vm < p.nextVMVMU; vm++ {
		vcore := 2 + (vm-2)/perCore
		vmvmuToVCore[vm] = vcore
		nCores = maxInt(nCores, vcore+1)
	}

	vcoreToVTile := make(map[int]int)
	nTiles := 2
	for vc := 2; vc < nCores; vc++ {
		vtile := 2 + (vc-2)/common.NCoresPerTile
		vcoreToVTile[vc] = vtile
		nTiles = maxInt(nTiles, vtile+1)
	}

	p.nextVCore = maxInt(p.nextVCore, nCores)
	p.nextVTile = maxInt(p.nextVTile, nTiles)

	for _, op := range p.Model.OrderedOps() {
		if !op.IsCoreOp() {
			continue
		}
		if !op.HasVMVMU() {
			return errors.Errorf("partitioning error: %s has no virtual mvmu assignment", op)
		}
		vc := vmvmuToVCore[op.VMVMU]
		op.SetVCore(vc)
		op.SetVTile(vcoreToVTile[vc])
	}
	p.assignIOVTiles()
	return nil
}

// rollupKaHIP builds the MVMU-level affinity graph, asks the oracle for a
// core-sized partitioning, then repeats at the core level for tiles.
func (p *Partitioner) rollupKaHIP() error {
	if p.Options.KaHIP == nil {
		return errors.New("kahip scheme selected without a KaHIPRunner")
	}
	perCore := p.mvmusPerCore()
	nMVMUs := p.nextVMVMU - 2
	if nMVMUs == 0 {
		p.assignIOVTiles()
		return nil
	}

	mvmuGraph := p.buildAffinityGraph(func(op *ir.Operation) (int, bool) {
		if !op.HasVMVMU() {
			return 0, false
		}
		return op.VMVMU - 2, true
	}, nMVMUs)

	k := ceilDiv(nMVMUs, perCore)
	mvmuToCore, err := p.Options.KaHIP.Partition(mvmuGraph, k, p.Options.KaHIPImbalance)
	if err != nil {
		return errors.Wrap(err, "kahip: mvmu-to-core partition")
	}
	nCores := 2
	vmvmuToVCore := make(map[int]int, nMVMUs)
	for vm := 2; vm < p.nextVMVMU; vm++ {
		vcore := 2 + mvmuToCore[vm-2]
		vmvmuToVCore[vm] = vcore
		nCores = maxInt(nCores, vcore+1)
	}
	p.nextVCore = maxInt(p.nextVCore, nCores)

	nCoreNodes := nCores - 2
	k2 := ceilDiv(nCoreNodes, common.NCoresPerTile)
	var coreToTile []int
	if nCoreNodes > 0 {
		// vcore must be assigned before the tile-level graph can read it.
		for _, op := range p.Model.OrderedOps() {
			if op.IsCoreOp() && op.HasVMVMU() {
				op.SetVCore(vmvmuToVCore[op.VMVMU])
			}
		}
		coreGraph := p.buildAffinityGraph(func(op *ir.Operation) (int, bool) {
			if !op.HasVCore() {
				return 0, false
			}
			return op.VCore - 2, true
		}, nCoreNodes)
		coreToTile, err = p.Options.KaHIP.Partition(coreGraph, k2, p.Options.KaHIPImbalance)
		if err != nil {
			return errors.Wrap(err, "kahip: core-to-tile partition")
		}
	}

	nTiles := 2
	vcoreToVTile := make(map[int]int, nCoreNodes)
	for vc := 2; vc < nCores; vc++ {
		vtile := 2 + coreToTile[vc-2]
		vcoreToVTile[vc] = vtile
		nTiles = maxInt(nTiles, vtile+1)
	}
	p.nextVTile = maxInt(p.nextVTile, nTiles)

	for _, op := range p.Model.OrderedOps() {
		if op.IsCoreOp() && op.HasVCore() {
			op.SetVTile(vcoreToVTile[op.VCore])
		}
	}
	p.assignIOVTiles()
	return nil
}

// buildAffinityGraph sums producer lengths of data edges crossing pairs of
// nodes, where node(op) maps an op to its graph node index. Both endpoints
// are always derived from their own operation's assignment, never reused
// across the edge -- this is the fix for the upstream self-edge bug (see
// DESIGN.md Open Question 1).
func (p *Partitioner) buildAffinityGraph(node func(*ir.Operation) (int, bool), numNodes int) Graph {
	g := Graph{NumNodes: numNodes}
	for _, op := range p.Model.OrderedOps() {
		if !op.IsProducer() {
			continue
		}
		pu, ok := node(op)
		if !ok {
			continue
		}
		for _, user := range op.Users() {
			vu, ok := node(user)
			if !ok || vu == pu {
				continue
			}
			g.AddEdge(pu, vu, op.Length)
		}
	}
	return g
}

// assignIOVTiles pins WriteInput ops to virtual tile 0 and ReadOutput ops to
// virtual tile 1, independent of the core/tile rollup mode.
func (p *Partitioner) assignIOVTiles() {
	for _, op := range p.Model.OrderedOps() {
		if op.IsInput() {
			op.SetVTile(0)
		}
		if op.IsOutput() {
			op.SetVTile(1)
		}
	}
}
