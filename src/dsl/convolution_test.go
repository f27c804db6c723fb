package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/dsl"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// TestConvolutionAccumulatesOverKernelAndInChannelTiles pins down the shape
// of a Convolution lowering: one output pixel per valid (row, col) offset,
// an accumulation chain across every (kh, kw, inChannelTile) triple, and one
// hint set per (kh, kw, inChannelTile) triple of each output pixel, per
// SPEC_FULL §4.1's convolution supplement.
func TestConvolutionAccumulatesOverKernelAndInChannelTiles(t *testing.T) {
	p := dsl.New("conv")
	in := p.NewInputImagePixelStream("img", 4, 4, 1)

	mat, err := p.NewConvolutionalConstantMatrix("K", 2, 2, 1, 1)
	require.NoError(t, err)

	out, err := p.Convolution(mat, in)
	require.NoError(t, err)

	require.Equal(t, 3, out.ImageWidth)
	require.Equal(t, 3, out.ImageHeight)
	require.Len(t, out.Pixels, 3)
	require.Len(t, out.Pixels[0], 3)

	// A 2x2 kernel over a single in-channel tile accumulates 4 MVMs (one per
	// kernel position) via 3 chained adds.
	producer := p.Model.Ops[out.Pixels[0][0][0]]
	require.Equal(t, ir.KindALU, producer.Kind)
	require.Equal(t, ir.ALUAdd, producer.ALUOp)

	require.Len(t, p.Model.HintSets, 3*3*mat.NInChannelTiles()*mat.KernelHeight*mat.KernelWidth)
}

// TestConvolutionRejectsKernelLargerThanImage pins down the bounds check: a
// kernel that doesn't fit inside the input image at all must fail cleanly
// instead of producing a negative-sized output grid.
func TestConvolutionRejectsKernelLargerThanImage(t *testing.T) {
	p := dsl.New("conv")
	in := p.NewInputImagePixelStream("img", 2, 2, 1)

	mat, err := p.NewConvolutionalConstantMatrix("K", 3, 3, 1, 1)
	require.NoError(t, err)

	_, err = p.Convolution(mat, in)
	require.Error(t, err)
}

// TestTrainingOuterProductUpdateCoversEveryTilePair pins down that
// TrainingOuterProductUpdate emits exactly one OuterProduct op per
// (height_tile, width_tile) pair of the target matrix, each reading its
// row's x1 tile and its column's x2 tile.
func TestTrainingOuterProductUpdateCoversEveryTilePair(t *testing.T) {
	p := dsl.New("train")
	mat, err := p.NewTrainingMatrix("M", 4, 4)
	require.NoError(t, err)

	x1 := p.NewInputVector("x1", 4)
	x2 := p.NewInputVector("x2", 4)

	sinks, err := p.TrainingOuterProductUpdate(mat, x1.Tiles, x2.Tiles)
	require.NoError(t, err)
	require.Len(t, sinks, mat.NHeightTiles()*mat.NWidthTiles())

	sink := p.Model.Ops[sinks[0]]
	require.Equal(t, ir.KindTrainingMatrix, sink.Kind)
	require.Equal(t, ir.OuterProduct, sink.TrainingOpType)
	require.False(t, sink.IsProducer(), "an outer-product update is a side-effect sink, not a value producer")
}

// TestTrainingOuterProductUpdateRejectsTilingMismatch pins down the operand
// count check: x1/x2 must tile exactly the target matrix's height/width.
func TestTrainingOuterProductUpdateRejectsTilingMismatch(t *testing.T) {
	p := dsl.New("train")
	mat, err := p.NewTrainingMatrix("M", 4, 4)
	require.NoError(t, err)

	x1 := p.NewInputVector("x1", 4)
	x2 := p.NewInputVector("x2", 200) // spans two width tiles, mat only has one

	_, err = p.TrainingOuterProductUpdate(mat, x1.Tiles, x2.Tiles)
	require.Error(t, err)
}
