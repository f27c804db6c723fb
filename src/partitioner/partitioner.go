// Package partitioner assigns virtual MVMU/core/tile ids to every operation
// in a Model and legalizes the DAG so cross-unit data flow only happens
// through explicit Load/Store/Send/Receive operations. It is grounded on
// original_source/src/partitioner.cpp.
package partitioner

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/ir"
)

// Scheme selects the virtual MVMU enumeration and core/tile rollup strategy.
type Scheme int

const (
	RowMajor Scheme = iota
	ColMajor
	Random
	KaHIP
)

func (s Scheme) String() string {
	switch s {
	case RowMajor:
		return "row-major"
	case ColMajor:
		return "col-major"
	case Random:
		return "random"
	case KaHIP:
		return "kahip"
	default:
		return "unknown"
	}
}

// KaHIPRunner is the interface the KaHIP rollup calls into; src/kahip.Client
// satisfies it. Kept as an interface here so partitioner never imports the
// subprocess client package directly (avoids a needless dependency on
// exec.Cmd machinery for the RowMajor/ColMajor/Random paths).
type KaHIPRunner interface {
	Partition(g Graph, k int, imbalance float64) ([]int, error)
}

// Graph is a simple undirected weighted graph passed to the KaHIP client.
type Graph struct {
	NumNodes int
	Edges    []Edge
}

// Edge is one undirected weighted edge, u < v by convention.
type Edge struct {
	U, V   int
	Weight int
}

// AddEdge accumulates weight onto an existing (u, v) edge or appends a new
// one; used by buildAffinityGraph to sum crossing data-edge lengths.
func (g *Graph) AddEdge(u, v, weight int) {
	if u == v {
		return
	}
	if u > v {
		u, v = v, u
	}
	for i := range g.Edges {
		if g.Edges[i].U == u && g.Edges[i].V == v {
			g.Edges[i].Weight += weight
			return
		}
	}
	g.Edges = append(g.Edges, Edge{U: u, V: v, Weight: weight})
}

// Options controls partitioner behavior; a subset of the compiler's overall
// CompilerOptions (see src/compiler).
type Options struct {
	Scheme         Scheme
	KaHIPImbalance float64
	KaHIP          KaHIPRunner // required when Scheme == KaHIP
	Rand           *rand.Rand  // used when Scheme == Random; nil uses a fixed seed
}

// Report summarizes partitioning decisions for the human-readable compile
// report, mirroring Partitioner::printReport in the upstream compiler.
type Report struct {
	NumVirtualMVMUs  int
	NumVirtualCores  int
	NumVirtualTiles  int
	NumLoads         int
	NumStores        int
	NumSends         int
	NumReceives      int
	NumCopiesInserted int
	BytesMoved       int
}

// Partitioner runs the virtual-assignment and legalization passes over one
// Model.
type Partitioner struct {
	Model   *ir.Model
	Options Options
	Report  Report

	nextVMVMU int
	nextVCore int
	nextVTile int
}

// New reserves virtual MVMUs 0 and 1 for input/output I/O tiles, matching
// the upstream compiler's convention that vTile/vCore 0 is input and 1 is
// output.
func New(model *ir.Model, opts Options) *Partitioner {
	return &Partitioner{Model: model, Options: opts, nextVMVMU: 2, nextVCore: 2, nextVTile: 2}
}

// Run executes virtual MVMU assignment, core/tile rollup and DAG
// legalization, in that order.
func (p *Partitioner) Run() error {
	if err := p.assignVirtualMVMUs(); err != nil {
		return errors.Wrap(err, "partitioner: virtual mvmu assignment")
	}
	if err := p.checkVMVMUTotality(); err != nil {
		return err
	}
	if err := p.rollup(); err != nil {
		return errors.Wrap(err, "partitioner: virtual core/tile rollup")
	}
	if err := p.legalize(); err != nil {
		return errors.Wrap(err, "partitioner: dag legalization")
	}
	p.Report.NumVirtualMVMUs = p.nextVMVMU
	p.Report.NumVirtualCores = p.nextVCore
	p.Report.NumVirtualTiles = p.nextVTile
	return nil
}

// checkVMVMUTotality asserts every core op received a virtual MVMU during
// assignVirtualMVMUs, the invariant the rollup and legalization passes
// assume holds for every core op from here on. A core op with no path
// (through operands or users) to any matrix op can never receive one from
// spreadAffinity or assignRemainingCoreOps, and reaching this point without
// one is a partitioning error rather than something later stages should
// silently work around.
func (p *Partitioner) checkVMVMUTotality() error {
	for _, op := range p.Model.OrderedOps() {
		if op.IsCoreOp() && !op.HasVMVMU() {
			return errors.Errorf("partitioning error: %s has no virtual mvmu assignment", op)
		}
	}
	return nil
}
