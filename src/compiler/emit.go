package compiler

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/illinois-impact/puma-compiler/src/codegen"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// emitCode writes every per-tile stream, per-core stream and per-MVMU
// weight file named per SPEC_FULL.md section 6.
func (c *Compiler) emitCode() error {
	gen := codegen.New(c.Model, c.coreOps, c.tileOps, c.numTiles)

	for pTile := range c.tileOps {
		path := filepath.Join(c.OutDir, codegen.TileFileName(c.Model.Name, pTile))
		if err := os.WriteFile(path, []byte(gen.TileStream(pTile)), 0o644); err != nil {
			return errors.Wrapf(err, "write tile %d stream", pTile)
		}
	}

	for key := range c.coreOps {
		pTile, pCore := key[0], key[1]
		path := filepath.Join(c.OutDir, codegen.CoreFileName(c.Model.Name, pTile, pCore))
		if err := os.WriteFile(path, []byte(gen.CoreStream(pTile, pCore)), 0o644); err != nil {
			return errors.Wrapf(err, "write tile %d core %d stream", pTile, pCore)
		}
	}

	return c.emitWeights()
}

// emitWeights writes one .weights file per bound matrix tile, keyed by the
// physical MVMU its first user op landed on (every user of a shared weight
// tile is placed on the same physical MVMU by construction).
func (c *Compiler) emitWeights() error {
	var tiles [][]*ir.MatrixTile
	for _, m := range c.Model.ConstantMatrices {
		tiles = append(tiles, m.Tiles...)
	}
	for _, m := range c.Model.TrainingMatrices {
		tiles = append(tiles, m.Tiles...)
	}
	for _, m := range c.Model.ConvMatrices {
		for _, kh := range m.Tiles {
			for _, kw := range kh {
				tiles = append(tiles, kw...)
			}
		}
	}

	for _, row := range tiles {
		for _, tile := range row {
			if len(tile.Users) == 0 {
				continue
			}
			user := c.Model.Ops[tile.Users[0]]
			if !user.HasPTile() || !user.HasPCore() || !user.HasPMVMU() {
				continue
			}
			name := codegen.WeightsFileName(c.Model.Name, user.PTile, user.PCore, user.PMVMU)
			path := filepath.Join(c.OutDir, name)
			if err := os.WriteFile(path, []byte(codegen.WeightsFile(tile)), 0o644); err != nil {
				return errors.Wrapf(err, "write weights for %s", tile.Owner)
			}
		}
	}
	return nil
}
