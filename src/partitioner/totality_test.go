package partitioner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/ir"
	"github.com/illinois-impact/puma-compiler/src/partitioner"
)

// TestRunErrorsOnIsolatedCoreOp pins down assignment totality: a core op
// with no operand or user path to any matrix op can never receive a
// virtual MVMU from affinity spreading, and Run must surface that as a
// partitioning error instead of silently leaving it unassigned for rollup
// or legalization to trip over later.
func TestRunErrorsOnIsolatedCoreOp(t *testing.T) {
	m := ir.NewModel("orphan")
	m.NewSetImmediate(1)

	p := partitioner.New(m, partitioner.Options{Scheme: partitioner.RowMajor})
	err := p.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "partitioning error")
}
