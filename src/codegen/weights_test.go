package codegen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/codegen"
	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

func TestFileNamesMatchDocumentedPattern(t *testing.T) {
	require.Equal(t, "resnet-tile3.puma", codegen.TileFileName("resnet", 3))
	require.Equal(t, "resnet-tile3-core1.puma", codegen.CoreFileName("resnet", 3, 1))
	require.Equal(t, "resnet-tile3-core1-mvmu0.weights", codegen.WeightsFileName("resnet", 3, 1, 0))
}

func TestWeightsFileIsSquareAndZeroPadded(t *testing.T) {
	tile := &ir.MatrixTile{Height: 2, Width: 2, Data: []float64{1, 2, 3, 4}}
	out := codegen.WeightsFile(tile)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, common.MVMUDim)
	for _, line := range lines {
		require.Len(t, strings.Fields(line), common.MVMUDim)
	}

	fields := strings.Fields(lines[0])
	require.Equal(t, "1", fields[0])
	require.Equal(t, "2", fields[1])
	require.Equal(t, "0", fields[2]) // zero-padded past tile.Width

	fields1 := strings.Fields(lines[1])
	require.Equal(t, "3", fields1[0])
	require.Equal(t, "4", fields1[1])

	fields2 := strings.Fields(lines[2])
	require.Equal(t, "0", fields2[0]) // zero-padded past tile.Height
}

func TestWeightsFileUnboundTileIsAllZeros(t *testing.T) {
	tile := &ir.MatrixTile{Height: 4, Width: 4}
	out := codegen.WeightsFile(tile)

	for _, field := range strings.Fields(out) {
		require.Equal(t, "0", field)
	}
}
