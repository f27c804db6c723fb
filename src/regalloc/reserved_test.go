package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/ir"
)

// TestAssignReservedRegistersDetectsOverlappingLiveRanges pins down the
// pairwise live-range check added to assignReservedRegisters: two matrix
// ops sharing a physical MVMU only ever get disjoint reserved output
// registers if the second one's linearized position comes after every
// reader of the first's output. Scheduling a reader of mvm1 after mvm2
// clobbers the shared address before it is read, which must surface as a
// register allocation error rather than silently producing wrong results.
func TestAssignReservedRegistersDetectsOverlappingLiveRanges(t *testing.T) {
	m := ir.NewModel("reuse")

	tile := &ir.MatrixTile{Height: 1, Width: 1}

	in1 := m.NewSetImmediate(1)
	mvm1, err := m.NewMVM(tile, in1)
	require.NoError(t, err)
	mvm1.SetPMVMU(0)

	in2 := m.NewSetImmediate(2)
	mvm2, err := m.NewMVM(tile, in2)
	require.NoError(t, err)
	mvm2.SetPMVMU(0) // same physical mvmu as mvm1: shares reserved addresses

	// A late reader of mvm1's result, scheduled after mvm2 already fires and
	// clobbers the shared output register.
	reader := m.NewALU(ir.ALUAdd, 1, 0, mvm1, in2)

	ops := []ir.OpID{in1.ID, mvm1.ID, in2.ID, mvm2.ID, reader.ID}
	r := New(m, map[[2]int][]ir.OpID{{0, 0}: ops})

	err = r.assignReservedRegisters()
	require.Error(t, err)
	require.Contains(t, err.Error(), "live-range conflict")
}
