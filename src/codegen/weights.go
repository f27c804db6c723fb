package codegen

import (
	"fmt"
	"strings"

	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// TileFileName, CoreFileName and WeightsFileName match the emitted-file
// table exactly: <model>-tile<P>.puma, <model>-tile<P>-core<C>.puma,
// <model>-tile<P>-core<C>-mvmu<M>.weights.
func TileFileName(model string, pTile int) string {
	return fmt.Sprintf("%s-tile%d.puma", model, pTile)
}

func CoreFileName(model string, pTile, pCore int) string {
	return fmt.Sprintf("%s-tile%d-core%d.puma", model, pTile, pCore)
}

func WeightsFileName(model string, pTile, pCore, pMVMU int) string {
	return fmt.Sprintf("%s-tile%d-core%d-mvmu%d.weights", model, pTile, pCore, pMVMU)
}

// WeightsFile renders tile's bound Data as a 128x128 row-major,
// space-separated, zero-padded float matrix. tile.Data is expected to
// already be in row-major order for tile.Height x tile.Width real values;
// unbound tiles (Data == nil) render as all zeros.
func WeightsFile(tile *ir.MatrixTile) string {
	var b strings.Builder
	for row := 0; row < common.MVMUDim; row++ {
		for col := 0; col < common.MVMUDim; col++ {
			if col > 0 {
				b.WriteByte(' ')
			}
			var v float64
			if row < tile.Height && col < tile.Width && tile.Data != nil {
				idx := row*tile.Width + col
				if idx < len(tile.Data) {
					v = tile.Data[idx]
				}
			}
			fmt.Fprintf(&b, "%g", v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
