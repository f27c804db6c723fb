// Package dsl is the front-end glue that builds an operation DAG from
// ordinary Go constructor calls, standing in for the operator-overloading
// DSL syntax of the original PUMA front end (out of scope per SPEC_FULL.md
// §1). It owns tensor creation and the lowering of matrix-vector multiplies,
// convolutions, elementwise math and training updates into ir.Operation
// graphs, recording coalesceable hint sets as it goes (SPEC_FULL §4.1).
package dsl

import (
	"github.com/illinois-impact/puma-compiler/src/common"
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// Program wraps an ir.Model with the front-end construction helpers. Most
// callers only need Program; ir.Model remains the type the compiler passes
// operate on.
type Program struct {
	Model *ir.Model
}

func New(name string) *Program {
	return &Program{Model: ir.NewModel(name)}
}

// NewInputVector declares a named external input of the given length,
// materialized as a pseudo-input tile per width-tile.
func (p *Program) NewInputVector(name string, length int) *ir.InputVector {
	v := &ir.InputVector{AbstractVector: ir.AbstractVector{Name_: name, Length: length}}
	for t := 0; t < v.NTiles(); t++ {
		tileLen := tileLength(length, t)
		v.Tiles = append(v.Tiles, p.Model.NewPseudoInput(name, tileLen).ID)
	}
	p.Model.InputVectors = append(p.Model.InputVectors, v)
	return v
}

// NewOutputVector declares a named external output of the given length. Its
// per-tile producers are bound with BindOutputTile as the model is built.
func (p *Program) NewOutputVector(name string, length int) *ir.OutputVector {
	v := &ir.OutputVector{AbstractVector: ir.AbstractVector{Name_: name, Length: length}}
	v.Tiles = make([]ir.OpID, v.NTiles())
	p.Model.OutputVectors = append(p.Model.OutputVectors, v)
	return v
}

// BindOutputTile records that producer computes output vector v's tile t,
// closing it with a pseudo-output that the Partitioner will later legalize
// into Store->Send->Receive->ReadOutput.
func (p *Program) BindOutputTile(v *ir.OutputVector, t int, producer *ir.Operation) {
	v.Tiles[t] = p.Model.NewPseudoOutput(v.Name(), producer).ID
}

// NewOutputImagePixelStream declares an external image output. Its per-pixel
// per-channel-tile producers are bound with BindOutputPixel.
func (p *Program) NewOutputImagePixelStream(name string, width, height, channels int) *ir.OutputImagePixelStream {
	s := &ir.OutputImagePixelStream{AbstractImagePixelStream: ir.AbstractImagePixelStream{
		Name_: name, ImageWidth: width, ImageHeight: height, NChannels: channels,
	}}
	s.Pixels = ir.NewOpIDPixelGrid(height, width, s.NTiles())
	p.Model.OutputImagePixelStreams = append(p.Model.OutputImagePixelStreams, s)
	return s
}

// BindOutputPixel closes output pixel (r, c, channel tile) t with a
// pseudo-output over producer.
func (p *Program) BindOutputPixel(s *ir.OutputImagePixelStream, r, c, t int, producer *ir.Operation) {
	s.Pixels[r][c][t] = p.Model.NewPseudoOutput(s.Name(), producer).ID
}

func tileLength(total, tileIdx int) int {
	if (tileIdx+1)*common.MVMUDim > total {
		return total - tileIdx*common.MVMUDim
	}
	return common.MVMUDim
}

// NewInputImagePixelStream declares an external image input, materialized as
// a pseudo-input tile per (row, col, channel tile).
func (p *Program) NewInputImagePixelStream(name string, width, height, channels int) *ir.InputImagePixelStream {
	s := &ir.InputImagePixelStream{AbstractImagePixelStream: ir.AbstractImagePixelStream{
		Name_: name, ImageWidth: width, ImageHeight: height, NChannels: channels,
	}}
	tiles := s.NTiles()
	s.Pixels = ir.NewOpIDPixelGrid(height, width, tiles)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			for t := 0; t < tiles; t++ {
				s.Pixels[r][c][t] = p.Model.NewPseudoInput(name, tileLength(channels, t)).ID
			}
		}
	}
	p.Model.InputImagePixelStreams = append(p.Model.InputImagePixelStreams, s)
	return s
}

// NewConvolutionalConstantMatrix declares a convolution kernel, tiled into a
// 4D grid of (kh, kw, outChannelTile, inChannelTile) weight tiles.
func (p *Program) NewConvolutionalConstantMatrix(name string, kernelWidth, kernelHeight, inChannels, outChannels int) (*ir.ConvolutionalConstantMatrix, error) {
	if err := p.Model.SetModelType(ir.Inference, name); err != nil {
		return nil, err
	}
	c := &ir.ConvolutionalConstantMatrix{
		Name_: name, KernelWidth: kernelWidth, KernelHeight: kernelHeight,
		NInChannels: inChannels, NOutChannels: outChannels,
	}
	outTiles, inTiles := c.NOutChannelTiles(), c.NInChannelTiles()
	c.Tiles = make([][][][]*ir.MatrixTile, kernelHeight)
	for kh := range c.Tiles {
		c.Tiles[kh] = make([][][]*ir.MatrixTile, kernelWidth)
		for kw := range c.Tiles[kh] {
			c.Tiles[kh][kw] = ir.MakeConstantMatrixGrid(outTiles, inTiles, outChannels, inChannels, name)
		}
	}
	p.Model.ConvMatrices = append(p.Model.ConvMatrices, c)
	return c, nil
}

// NewConstantMatrix declares an inference-time weight matrix, tiled into a
// 2D grid of MVMUDim-square tiles zero-padded at the edges.
func (p *Program) NewConstantMatrix(name string, width, height int) (*ir.ConstantMatrix, error) {
	if err := p.Model.SetModelType(ir.Inference, name); err != nil {
		return nil, err
	}
	m := &ir.ConstantMatrix{AbstractMatrix: ir.AbstractMatrix{Name_: name, Width: width, Height: height}}
	m.Tiles = ir.MakeConstantMatrixGrid(m.NHeightTiles(), m.NWidthTiles(), height, width, name)
	p.Model.ConstantMatrices = append(p.Model.ConstantMatrices, m)
	return m, nil
}

// NewTrainingMatrix declares a matrix updated in place by outer-product
// accumulation.
func (p *Program) NewTrainingMatrix(name string, width, height int) (*ir.TrainingMatrix, error) {
	if err := p.Model.SetModelType(ir.Training, name); err != nil {
		return nil, err
	}
	m := &ir.TrainingMatrix{AbstractMatrix: ir.AbstractMatrix{Name_: name, Width: width, Height: height}}
	m.Tiles = ir.MakeTrainingMatrixGrid(m.NHeightTiles(), m.NWidthTiles(), height, width, name)
	p.Model.TrainingMatrices = append(p.Model.TrainingMatrices, m)
	return m, nil
}

// MatrixVectorMultiply lowers out = M * in: one MVM per (height_tile,
// width_tile), with an ADD accumulation chain across width tiles per output
// height tile, and one coalesceable hint set per height tile (its members
// all read distinct width-tiles of the same input vector's tiles and can
// therefore fire together on distinct MVMUs of one core).
func (p *Program) MatrixVectorMultiply(mat *ir.ConstantMatrix, in []ir.OpID) ([]ir.OpID, error) {
	if len(in) != mat.NWidthTiles() {
		return nil, &ir.Error{Stage_: "dsl", Entity_: mat.Name(), Msg: "input tile count does not match matrix width tiles"}
	}
	out := make([]ir.OpID, mat.NHeightTiles())
	for h := 0; h < mat.NHeightTiles(); h++ {
		var hint []ir.OpID
		var acc *ir.Operation
		for w := 0; w < mat.NWidthTiles(); w++ {
			operand := p.Model.Ops[in[w]]
			mvm, err := p.Model.NewMVM(mat.Tiles[h][w], operand)
			if err != nil {
				return nil, err
			}
			hint = append(hint, mvm.ID)
			if acc == nil {
				acc = mvm
			} else {
				acc = p.Model.NewALU(ir.ALUAdd, acc.Length, 0, acc, mvm)
			}
		}
		p.Model.AddHintSet(hint...)
		out[h] = acc.ID
	}
	return out, nil
}

// Convolution lowers a convolution over an image pixel stream against a
// convolutional constant matrix: for each output pixel and each output
// channel tile, accumulate MVMs over (kh, kw, inChannelTile), recording one
// hint set per (kh, kw, inChannelTile) triple as SPEC_FULL §4.1 requires.
// This supplements the distilled spec's end-to-end scenarios, grounded in
// original_source/src/tensors.cpp and test/convmax-layer.cpp.
func (p *Program) Convolution(mat *ir.ConvolutionalConstantMatrix, in *ir.InputImagePixelStream) (*ir.ImagePixelStream, error) {
	outW := in.ImageWidth - mat.KernelWidth + 1
	outH := in.ImageHeight - mat.KernelHeight + 1
	if outW <= 0 || outH <= 0 {
		return nil, &ir.Error{Stage_: "dsl", Entity_: mat.Name(), Msg: "kernel larger than input image"}
	}
	out := &ir.ImagePixelStream{AbstractImagePixelStream: ir.AbstractImagePixelStream{
		Name_: mat.Name() + "-out", ImageWidth: outW, ImageHeight: outH, NChannels: mat.NOutChannels,
	}}
	out.Pixels = ir.NewOpIDPixelGrid(outH, outW, mat.NOutChannelTiles())

	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			// hints[(kh*KernelWidth+kw)*NInChannelTiles+it] collects, across every
			// output channel tile, the MVMs reading that one input pixel tile.
			hints := make([][]ir.OpID, mat.KernelHeight*mat.KernelWidth*mat.NInChannelTiles())
			for ot := 0; ot < mat.NOutChannelTiles(); ot++ {
				var acc *ir.Operation
				for kh := 0; kh < mat.KernelHeight; kh++ {
					for kw := 0; kw < mat.KernelWidth; kw++ {
						for it := 0; it < mat.NInChannelTiles(); it++ {
							pixel := in.Pixels[oh+kh][ow+kw][it]
							operand := p.Model.Ops[pixel]
							mvm, err := p.Model.NewMVM(mat.Tiles[kh][kw][ot][it], operand)
							if err != nil {
								return nil, err
							}
							k := (kh*mat.KernelWidth+kw)*mat.NInChannelTiles() + it
							hints[k] = append(hints[k], mvm.ID)
							if acc == nil {
								acc = mvm
							} else {
								acc = p.Model.NewALU(ir.ALUAdd, acc.Length, 0, acc, mvm)
							}
						}
					}
				}
				out.Pixels[oh][ow][ot] = acc.ID
			}
			for _, hint := range hints {
				p.Model.AddHintSet(hint...)
			}
		}
	}
	p.Model.ImagePixelStreams = append(p.Model.ImagePixelStreams, out)
	return out, nil
}

// TrainingOuterProductUpdate lowers M -= x1 (x) x2: one OuterProduct
// TrainingMatrix op per (height_tile, width_tile) pair, none of which
// produce a register value (they are side-effect sinks for the Linearizer).
func (p *Program) TrainingOuterProductUpdate(mat *ir.TrainingMatrix, x1, x2 []ir.OpID) ([]ir.OpID, error) {
	if len(x1) != mat.NHeightTiles() || len(x2) != mat.NWidthTiles() {
		return nil, &ir.Error{Stage_: "dsl", Entity_: mat.Name(), Msg: "outer product operand tiling mismatch"}
	}
	var sinks []ir.OpID
	for h := 0; h < mat.NHeightTiles(); h++ {
		for w := 0; w < mat.NWidthTiles(); w++ {
			op1 := p.Model.Ops[x1[h]]
			op2 := p.Model.Ops[x2[w]]
			sink, err := p.Model.NewTrainingMatrixOp(mat.Tiles[h][w], ir.OuterProduct, op1, op2)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink.ID)
		}
	}
	return sinks, nil
}

// ElementwiseALU is a thin wrapper for the general vector ALU ops that are
// not matrix-shaped, e.g. activation functions and elementwise arithmetic
// chains between MVM stages (used by the LSTM-cell scenario).
func (p *Program) ElementwiseALU(opcode ir.ALUOpcode, length int, imm float64, operands ...ir.OpID) ir.OpID {
	ops := make([]*ir.Operation, len(operands))
	for i, id := range operands {
		ops[i] = p.Model.Ops[id]
	}
	return p.Model.NewALU(opcode, length, imm, ops...).ID
}
