package compiler_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/compiler"
	"github.com/illinois-impact/puma-compiler/src/dsl"
	"github.com/illinois-impact/puma-compiler/src/ir"
	"github.com/illinois-impact/puma-compiler/src/misc"
)

func buildSmallMVMProgram(t *testing.T, size int) *dsl.Program {
	t.Helper()
	p := dsl.New("smallmvm")
	in := p.NewInputVector("x", size)
	out := p.NewOutputVector("y", size)

	mat, err := p.NewConstantMatrix("W", size, size)
	require.NoError(t, err)

	products, err := p.MatrixVectorMultiply(mat, in.Tiles)
	require.NoError(t, err)
	for tIdx, id := range products {
		p.BindOutputTile(out, tIdx, p.Model.Ops[id])
	}

	for _, m := range p.Model.ConstantMatrices {
		require.NoError(t, p.BindMatrixData(m.Name(), make([]float64, m.Height*m.Width)))
	}
	require.NoError(t, p.GenerateData())
	return p
}

func TestCompileRowMajorEndToEnd(t *testing.T) {
	p := buildSmallMVMProgram(t, 64)

	dir := t.TempDir()
	opts := misc.DefaultCompilerOptions()
	c := compiler.New(p.Model, opts, dir)
	require.NoError(t, c.Compile())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	reportPath := filepath.Join(dir, "smallmvm-report.json")
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var report compiler.Report
	require.NoError(t, json.Unmarshal(data, &report))
	require.Equal(t, "smallmvm", report.Model)
	require.Equal(t, "row_major", report.GraphPartitioning)
	require.GreaterOrEqual(t, report.NumVirtualMVMUs, 1)

	_, err = os.Stat(filepath.Join(dir, "smallmvm-report.out"))
	require.NoError(t, err)
}

func TestCompileWithoutCoalescingSkipsThatStage(t *testing.T) {
	p := buildSmallMVMProgram(t, 32)

	dir := t.TempDir()
	opts := misc.DefaultCompilerOptions()
	opts.CoalesceMVMOperations = false
	c := compiler.New(p.Model, opts, dir)
	require.NoError(t, c.Compile())

	_, err := os.Stat(filepath.Join(dir, "smallmvm-report.json"))
	require.NoError(t, err)
}

func TestCompileDebugGraphsEmitsSnapshots(t *testing.T) {
	p := buildSmallMVMProgram(t, 32)

	dir := t.TempDir()
	opts := misc.DefaultCompilerOptions()
	opts.PrintDebugInfo = true
	c := compiler.New(p.Model, opts, dir)
	require.NoError(t, c.Compile())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".dot" {
			found = true
			break
		}
	}
	require.True(t, found, "expected at least one dot-graph snapshot when PrintDebugInfo is set")
}

// The following six tests are the concrete end-to-end scenarios named in
// SPEC_FULL.md section 8: E1 simple MVM, E2 two independent coalesceable
// MVMs, E3 a spilling chain, E4 cross-tile communication, E5 an LSTM cell
// and E6 a training outer-product update.

// TestScenarioE1SimpleMVM: a single 5x5 matrix-vector multiply, the smallest
// program that exercises every pipeline stage.
func TestScenarioE1SimpleMVM(t *testing.T) {
	p := dsl.New("e1")
	in := p.NewInputVector("x", 5)
	out := p.NewOutputVector("y", 5)

	mat, err := p.NewConstantMatrix("W", 5, 5)
	require.NoError(t, err)
	products, err := p.MatrixVectorMultiply(mat, in.Tiles)
	require.NoError(t, err)
	p.BindOutputTile(out, 0, p.Model.Ops[products[0]])

	require.NoError(t, p.BindMatrixData("W", make([]float64, 25)))
	require.NoError(t, p.GenerateData())

	dir := t.TempDir()
	c := compiler.New(p.Model, misc.DefaultCompilerOptions(), dir)
	require.NoError(t, c.Compile())

	report := readReport(t, dir, "e1")
	require.Equal(t, 3, report.NumVirtualMVMUs) // 2 reserved ids + 1 mvmu
}

// TestScenarioE2TwoIndependentCoalesceableMVMs: a 128x256 matrix produces
// two width-tile MVMs against the same input, sharing one hint set the
// Coalescer can pack onto distinct MVMU slots of the same core.
func TestScenarioE2TwoIndependentCoalesceableMVMs(t *testing.T) {
	p := dsl.New("e2")
	in := p.NewInputVector("x", 256)
	out := p.NewOutputVector("y", 128)

	mat, err := p.NewConstantMatrix("W", 256, 128)
	require.NoError(t, err)
	products, err := p.MatrixVectorMultiply(mat, in.Tiles)
	require.NoError(t, err)
	p.BindOutputTile(out, 0, p.Model.Ops[products[0]])

	require.Len(t, p.Model.HintSets, 1)
	require.Len(t, p.Model.HintSets[0].Members, 2)

	require.NoError(t, p.BindMatrixData("W", make([]float64, 256*128)))
	require.NoError(t, p.GenerateData())

	dir := t.TempDir()
	opts := misc.DefaultCompilerOptions()
	opts.CoalesceMVMOperations = true
	c := compiler.New(p.Model, opts, dir)
	require.NoError(t, c.Compile())

	report := readReport(t, dir, "e2")
	require.Equal(t, 4, report.NumVirtualMVMUs) // 2 reserved ids + 2 mvmus
}

// TestScenarioE3SpillingChain: sixteen taps derived independently from one
// MVM's output are all kept alive until a final reduction sums them, well
// past the register file's ~12-vector capacity for length-128 values, so
// the register allocator must spill some of them to tile memory and reload
// them for the reduction.
func TestScenarioE3SpillingChain(t *testing.T) {
	const numTaps = 16

	p := dsl.New("e3")
	in := p.NewInputVector("x", 128)
	out := p.NewOutputVector("y", 128)

	mat, err := p.NewConstantMatrix("W", 128, 128)
	require.NoError(t, err)
	base, err := p.MatrixVectorMultiply(mat, in.Tiles)
	require.NoError(t, err)

	taps := make([]ir.OpID, numTaps)
	for i := range taps {
		taps[i] = p.ElementwiseALU(ir.ALUMulImmediate, 128, float64(i+1), base[0])
	}

	acc := taps[0]
	for i := 1; i < numTaps; i++ {
		acc = p.ElementwiseALU(ir.ALUAdd, 128, 0, acc, taps[i])
	}
	p.BindOutputTile(out, 0, p.Model.Ops[acc])

	require.NoError(t, p.BindMatrixData("W", make([]float64, 128*128)))
	require.NoError(t, p.GenerateData())

	dir := t.TempDir()
	c := compiler.New(p.Model, misc.DefaultCompilerOptions(), dir)
	require.NoError(t, c.Compile())

	report := readReport(t, dir, "e3")
	require.Greater(t, report.NumSpilled, 0)
	require.Greater(t, report.StoreBytesSpilled, 0)
	require.Greater(t, report.LoadBytesReloaded, 0)
}

// TestScenarioE4CrossTileCommunication: sixty independent 128x128 MVMs
// exceed one tile's 48-MVMU capacity, and the last one reads the first
// one's output, so the Partitioner must legalize that edge into a
// Store/Send/Receive/Load chain across the tile boundary.
func TestScenarioE4CrossTileCommunication(t *testing.T) {
	const numMatrices = 60

	p := dsl.New("e4")
	out := p.NewOutputVector("y", 128)

	var first ir.OpID
	var last ir.OpID
	for i := 0; i < numMatrices; i++ {
		name := fmt.Sprintf("W%d", i)
		mat, err := p.NewConstantMatrix(name, 128, 128)
		require.NoError(t, err)
		require.NoError(t, p.BindMatrixData(name, make([]float64, 128*128)))

		var inTiles []ir.OpID
		if i == numMatrices-1 {
			inTiles = []ir.OpID{first}
		} else {
			in := p.NewInputVector(fmt.Sprintf("x%d", i), 128)
			inTiles = in.Tiles
		}

		products, err := p.MatrixVectorMultiply(mat, inTiles)
		require.NoError(t, err)
		if i == 0 {
			first = products[0]
		}
		if i == numMatrices-1 {
			last = products[0]
		}
	}
	p.BindOutputTile(out, 0, p.Model.Ops[last])
	require.NoError(t, p.GenerateData())

	dir := t.TempDir()
	c := compiler.New(p.Model, misc.DefaultCompilerOptions(), dir)
	require.NoError(t, c.Compile())

	report := readReport(t, dir, "e4")
	require.GreaterOrEqual(t, report.NumVirtualTiles, 4)
	require.Greater(t, report.NumSends, 0)
	require.Greater(t, report.NumReceives, 0)
}

// TestScenarioE5LSTMCell: one LSTM cell over 128-wide input and hidden
// state, each of the four gates computed as sigmoid/tanh of the sum of an
// input-weight and hidden-weight MVM, combined into the new cell and
// hidden states with elementwise multiplies.
func TestScenarioE5LSTMCell(t *testing.T) {
	p := dsl.New("e5")
	x := p.NewInputVector("x", 128)
	h := p.NewInputVector("h", 128)
	c := p.NewInputVector("c", 128)
	hOut := p.NewOutputVector("h_next", 128)
	cOut := p.NewOutputVector("c_next", 128)

	gate := func(nameSuffix string, activation ir.ALUOpcode) ir.OpID {
		wx, err := p.NewConstantMatrix("Wx_"+nameSuffix, 128, 128)
		require.NoError(t, err)
		wh, err := p.NewConstantMatrix("Wh_"+nameSuffix, 128, 128)
		require.NoError(t, err)
		require.NoError(t, p.BindMatrixData("Wx_"+nameSuffix, make([]float64, 128*128)))
		require.NoError(t, p.BindMatrixData("Wh_"+nameSuffix, make([]float64, 128*128)))

		fromX, err := p.MatrixVectorMultiply(wx, x.Tiles)
		require.NoError(t, err)
		fromH, err := p.MatrixVectorMultiply(wh, h.Tiles)
		require.NoError(t, err)
		pre := p.ElementwiseALU(ir.ALUAdd, 128, 0, fromX[0], fromH[0])
		return p.ElementwiseALU(activation, 128, 0, pre)
	}

	inputGate := gate("i", ir.ALUSig)
	forgetGate := gate("f", ir.ALUSig)
	candidate := gate("g", ir.ALUTanh)
	outputGate := gate("o", ir.ALUSig)

	forgetTerm := p.ElementwiseALU(ir.ALUMul, 128, 0, forgetGate, c.Tiles[0])
	inputTerm := p.ElementwiseALU(ir.ALUMul, 128, 0, inputGate, candidate)
	cNext := p.ElementwiseALU(ir.ALUAdd, 128, 0, forgetTerm, inputTerm)
	cNextTanh := p.ElementwiseALU(ir.ALUTanh, 128, 0, cNext)
	hNext := p.ElementwiseALU(ir.ALUMul, 128, 0, outputGate, cNextTanh)

	p.BindOutputTile(hOut, 0, p.Model.Ops[hNext])
	p.BindOutputTile(cOut, 0, p.Model.Ops[cNext])

	require.NoError(t, p.GenerateData())

	dir := t.TempDir()
	c2 := compiler.New(p.Model, misc.DefaultCompilerOptions(), dir)
	require.NoError(t, c2.Compile())

	report := readReport(t, dir, "e5")
	require.Equal(t, 10, report.NumVirtualMVMUs) // 2 reserved ids + 8 mvmus
}

// TestScenarioE6TrainingOuterProductUpdate: a single training-matrix outer
// product update, the side-effect-only op that never carries a register
// value of its own.
func TestScenarioE6TrainingOuterProductUpdate(t *testing.T) {
	p := dsl.New("e6")
	mat, err := p.NewTrainingMatrix("M", 128, 128)
	require.NoError(t, err)

	x1 := p.NewInputVector("x1", 128)
	x2 := p.NewInputVector("x2", 128)

	sinks, err := p.TrainingOuterProductUpdate(mat, x1.Tiles, x2.Tiles)
	require.NoError(t, err)
	require.Len(t, sinks, 1)

	require.NoError(t, p.BindMatrixData("M", make([]float64, 128*128)))
	require.NoError(t, p.GenerateData())

	dir := t.TempDir()
	c := compiler.New(p.Model, misc.DefaultCompilerOptions(), dir)
	require.NoError(t, c.Compile())

	report := readReport(t, dir, "e6")
	require.Equal(t, 3, report.NumVirtualMVMUs) // 2 reserved ids + 1 mvmu
}

func readReport(t *testing.T, dir, model string) compiler.Report {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, model+"-report.json"))
	require.NoError(t, err)
	var report compiler.Report
	require.NoError(t, json.Unmarshal(data, &report))
	return report
}

func TestCompileFailsWithoutBoundWeights(t *testing.T) {
	p := dsl.New("unbound")
	in := p.NewInputVector("x", 32)
	out := p.NewOutputVector("y", 32)
	mat, err := p.NewConstantMatrix("W", 32, 32)
	require.NoError(t, err)
	products, err := p.MatrixVectorMultiply(mat, in.Tiles)
	require.NoError(t, err)
	for tIdx, id := range products {
		p.BindOutputTile(out, tIdx, p.Model.Ops[id])
	}

	err = p.GenerateData()
	require.Error(t, err)

	var stageErr misc.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "io-binding", stageErr.Stage())
}
