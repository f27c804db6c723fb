package partitioner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/dsl"
	"github.com/illinois-impact/puma-compiler/src/ir"
	"github.com/illinois-impact/puma-compiler/src/partitioner"
)

// TestInsertCopiesBreaksMatrixToMatrixOperand pins down that a Copy is
// inserted when a matrix op's operand is itself a matrix op -- the case that
// only checking the operand's (not the consumer's) variant catches.
func TestInsertCopiesBreaksMatrixToMatrixOperand(t *testing.T) {
	p := dsl.New("mm")
	in := p.NewInputVector("x", 1)

	mat1, err := p.NewConstantMatrix("W1", 1, 1)
	require.NoError(t, err)
	out1, err := p.MatrixVectorMultiply(mat1, in.Tiles)
	require.NoError(t, err)

	mat2, err := p.NewConstantMatrix("W2", 1, 1)
	require.NoError(t, err)
	out2, err := p.MatrixVectorMultiply(mat2, out1)
	require.NoError(t, err)

	part := partitioner.New(p.Model, partitioner.Options{Scheme: partitioner.RowMajor})
	require.NoError(t, part.Run())

	consumer := p.Model.Ops[out2[0]]
	require.Equal(t, ir.KindMVM, consumer.Kind)
	require.Len(t, consumer.Operands, 1)
	require.Equal(t, ir.KindCopy, consumer.Operand(0).Kind,
		"a matrix op reading straight from another matrix op's output must go through a copy")
	require.GreaterOrEqual(t, part.Report.NumCopiesInserted, 1)
}

// TestInsertCopiesBreaksSharedOperand pins down the second insertCopies
// trigger: an operand read by more than one consumer, at least one of which
// is a matrix op, must be materialized through a copy before that matrix op
// reads it.
func TestInsertCopiesBreaksSharedOperand(t *testing.T) {
	p := dsl.New("shared")
	in := p.NewInputVector("x", 1)

	alu := p.ElementwiseALU(ir.ALUAdd, 1, 0, in.Tiles[0], in.Tiles[0])
	sharedOp := p.Model.Ops[alu]

	mat, err := p.NewConstantMatrix("W", 1, 1)
	require.NoError(t, err)
	out, err := p.MatrixVectorMultiply(mat, []ir.OpID{sharedOp.ID})
	require.NoError(t, err)

	// Give the shared value a second consumer so it has more than one user.
	p.ElementwiseALU(ir.ALUAdd, 1, 0, sharedOp.ID, sharedOp.ID)

	part := partitioner.New(p.Model, partitioner.Options{Scheme: partitioner.RowMajor})
	require.NoError(t, part.Run())

	consumer := p.Model.Ops[out[0]]
	require.Equal(t, ir.KindCopy, consumer.Operand(0).Kind)
}
