// Package compiler orchestrates the full pipeline over a built Model:
// Partitioner -> Placer -> Memory Allocator -> (optional) Coalescer ->
// Linearizer -> Register Allocator -> Code Generator, with stage logging,
// optional dot-graph snapshots and a final report. Grounded on
// original_source/src/model.cpp's ModelImpl::compile stage sequencing and
// on the teacher's compiler/compiler.go Init/Compile shape.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/illinois-impact/puma-compiler/src/coalescer"
	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
	"github.com/illinois-impact/puma-compiler/src/kahip"
	"github.com/illinois-impact/puma-compiler/src/linearizer"
	"github.com/illinois-impact/puma-compiler/src/memalloc"
	"github.com/illinois-impact/puma-compiler/src/misc"
	"github.com/illinois-impact/puma-compiler/src/partitioner"
	"github.com/illinois-impact/puma-compiler/src/placer"
	"github.com/illinois-impact/puma-compiler/src/regalloc"
)

// stageError wraps any pass error with the stage name that raised it, so
// cmd/pumac can map it to the exit codes listed in SPEC_FULL.md section 6
// without every pass package needing its own Stage/Entity-carrying type.
type stageError struct {
	stage  string
	entity string
	cause  error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.stage, e.entity, e.cause)
}
func (e *stageError) Stage() string  { return e.stage }
func (e *stageError) Entity() string { return e.entity }
func (e *stageError) Unwrap() error  { return e.cause }

func wrapStage(stage, entity string, err error) misc.StageError {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, entity: entity, cause: err}
}

// Compiler runs the pipeline once over Model and writes its artifacts under
// OutDir.
type Compiler struct {
	Model   *ir.Model
	Options misc.CompilerOptions
	OutDir  string

	logger zerolog.Logger

	partitionReport partitioner.Report
	registerReport  regalloc.Report
	coreOps         map[[2]int][]ir.OpID
	tileOps         map[int][]ir.OpID
	numTiles        int

	dotSnapshot int
	runID       string
}

func New(model *ir.Model, options misc.CompilerOptions, outDir string) *Compiler {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("model", model.Name).Logger()
	return &Compiler{Model: model, Options: options, OutDir: outDir, logger: logger}
}

// Compile runs every stage in order and writes the per-tile, per-core,
// weight and report files. It stops at the first stage that returns an
// error, wrapping it with that stage's name.
func (c *Compiler) Compile() error {
	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		return wrapStage("partition", c.Model.Name, errors.Wrap(err, "create output directory"))
	}
	if c.Options.PrintDebugInfo {
		c.runID = uuid.NewString()
	}

	var kahipRunner partitioner.KaHIPRunner
	if c.Options.GraphPartitioning == misc.KaHIP {
		client, err := kahip.NewClientWithBinary(c.OutDir, c.Options.KaHIPBinary)
		if err != nil {
			return wrapStage("partition", c.Model.Name, err)
		}
		kahipRunner = client
	}

	part := partitioner.New(c.Model, partitioner.Options{
		Scheme:         partitionerScheme(c.Options.GraphPartitioning),
		KaHIPImbalance: c.Options.KaHIPImbalance,
		KaHIP:          kahipRunner,
	})
	if err := part.Run(); err != nil {
		return wrapStage("partition", c.Model.Name, err)
	}
	c.partitionReport = part.Report
	c.logger.Info().Str("stage", "partition").Str("status", "done").
		Int("vmvmus", part.Report.NumVirtualMVMUs).Int("vcores", part.Report.NumVirtualCores).
		Int("vtiles", part.Report.NumVirtualTiles).Msg("partitioning complete")
	c.snapshot("partition")

	pl := placer.New(c.Model)
	if err := pl.Run(); err != nil {
		return wrapStage("place", c.Model.Name, err)
	}
	c.logger.Info().Str("stage", "place").Str("status", "done").Msg("placement complete")
	c.numTiles = pl.NumPTiles()
	c.snapshot("place")

	ma := memalloc.New(c.Model)
	if err := ma.Run(); err != nil {
		return wrapStage("memalloc", c.Model.Name, err)
	}
	c.logger.Info().Str("stage", "memalloc").Str("status", "done").Msg("memory allocation complete")
	c.snapshot("memalloc")

	if c.Options.CoalesceMVMOperations {
		co := coalescer.New(c.Model, slotsPerCore(c.Model))
		if err := co.Run(); err != nil {
			return wrapStage("coalesce", c.Model.Name, err)
		}
		c.logger.Info().Str("stage", "coalesce").Str("status", "done").
			Int("sets", len(co.Sets)).Msg("coalescing complete")
		c.snapshot("coalesce")
	} else {
		c.logger.Info().Str("stage", "coalesce").Str("status", "skipped").Msg("coalescing disabled")
	}

	lin := linearizer.New(c.Model)
	if err := lin.Run(); err != nil {
		return wrapStage("linearize", c.Model.Name, err)
	}
	c.coreOps = lin.CoreOps
	c.tileOps = lin.TileOps
	c.logger.Info().Str("stage", "linearize").Str("status", "done").Msg("linearization complete")
	c.snapshot("linearize")

	reg := regalloc.New(c.Model, c.coreOps)
	if err := reg.Run(); err != nil {
		return wrapStage("regalloc", c.Model.Name, err)
	}
	c.registerReport = reg.Report
	c.logger.Info().Str("stage", "regalloc").Str("status", "done").
		Int("spilled", reg.Report.NumSpilled).Msg("register allocation complete")
	c.snapshot("regalloc")

	if err := c.emitCode(); err != nil {
		return wrapStage("codegen", c.Model.Name, err)
	}
	c.logger.Info().Str("stage", "codegen").Str("status", "done").Msg("code generation complete")

	if err := c.writeReport(); err != nil {
		return wrapStage("codegen", c.Model.Name, err)
	}

	return nil
}

func partitionerScheme(g misc.GraphPartitioning) partitioner.Scheme {
	switch g {
	case misc.ColMajor:
		return partitioner.ColMajor
	case misc.Random:
		return partitioner.Random
	case misc.KaHIP:
		return partitioner.KaHIP
	default:
		return partitioner.RowMajor
	}
}

func slotsPerCore(m *ir.Model) int {
	if m.ModelType == ir.Training {
		return common.NTrainingMVMUsPerCore * common.NTrainingOperations
	}
	return common.NConstantMVMUsPerCore
}

// snapshot writes a Graphviz dot file of the current DAG state when
// PrintDebugInfo is set, named <model>-graphN-<stage>.dot (SPEC_FULL
// section 6) with the run id prepended as <runID>-<model>-graphN-<stage>.dot
// whenever the Compiler has one.
func (c *Compiler) snapshot(stage string) {
	if !c.Options.PrintDebugInfo {
		return
	}
	c.dotSnapshot++
	name := fmt.Sprintf("%s-graph%d-%s.dot", c.Model.Name, c.dotSnapshot, stage)
	if c.runID != "" {
		name = fmt.Sprintf("%s-%s", c.runID, name)
	}
	path := filepath.Join(c.OutDir, name)
	if err := os.WriteFile(path, []byte(renderDot(c.Model)), 0o644); err != nil {
		c.logger.Info().Str("stage", stage).Err(err).Msg("dot snapshot write failed")
	}
}
