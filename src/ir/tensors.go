package ir

import "github.com/illinois-impact/puma-compiler/src/common"

// MatrixTile is a single MVMUDim x MVMUDim (or smaller, zero-padded) weight
// tile shared by every MVM/TrainingMatrix op that reads it. It plays the
// role of ConstantMatrixTile/TrainingMatrixTile in the upstream compiler;
// the two are unified here since the Partitioner/Placer/Coalescer treat
// them identically and only the Code Generator's weight emission needs to
// know which matrix it came from.
type MatrixTile struct {
	Owner     string // owning matrix's name, for diagnostics and file naming
	Height    int
	Width     int
	Users     []OpID
	Training  bool
	// Data holds the bound weight values in row-major order once
	// generateData binds a buffer; nil until bound.
	Data []float64
}

func (t *MatrixTile) AddUser(id OpID) { t.Users = append(t.Users, id) }

// AbstractVector is embedded by every vector-shaped tensor kind.
type AbstractVector struct {
	Name_  string
	Length int
}

func (v *AbstractVector) Name() string { return v.Name_ }
func (v *AbstractVector) NTiles() int  { return common.NTiles(v.Length) }

// InputVector is bound to an external input buffer at ModelInstance time.
type InputVector struct {
	AbstractVector
	Tiles []OpID // WriteInput/PseudoInput op per tile, filled by the DSL
}

// OutputVector is bound to an external output buffer at ModelInstance time.
type OutputVector struct {
	AbstractVector
	Tiles []OpID // ReadOutput/PseudoOutput op per tile
}

// Vector is an internal (hidden) vector value: each tile is simply the
// producer operation that computes it.
type Vector struct {
	AbstractVector
	Tiles []OpID
}

func (v *Vector) GetTile(t int) OpID    { return v.Tiles[t] }
func (v *Vector) SetTile(t int, id OpID) {
	for len(v.Tiles) <= t {
		v.Tiles = append(v.Tiles, -1)
	}
	v.Tiles[t] = id
}

// AbstractImagePixelStream is embedded by the pixel-stream tensor kinds used
// to lower convolutions.
type AbstractImagePixelStream struct {
	Name_       string
	ImageWidth  int
	ImageHeight int
	NChannels   int
}

func (s *AbstractImagePixelStream) Name() string { return s.Name_ }
func (s *AbstractImagePixelStream) NTiles() int  { return common.NTiles(s.NChannels) }

// InputImagePixelStream / ImagePixelStream / OutputImagePixelStream mirror
// InputVector/Vector/OutputVector but grid the tiles over (h, w, channel
// tile) as original_source/src/tensors.h does for convolution lowering.
type InputImagePixelStream struct {
	AbstractImagePixelStream
	Pixels [][][]OpID // [h][w][channel tile]
}

type ImagePixelStream struct {
	AbstractImagePixelStream
	Pixels [][][]OpID
}

type OutputImagePixelStream struct {
	AbstractImagePixelStream
	Pixels [][][]OpID
}

// NewOpIDPixelGrid allocates an [h][w][tiles] grid of OpID slots, each
// initialized to unassigned until the DSL binds a producer into it.
func NewOpIDPixelGrid(h, w, tiles int) [][][]OpID {
	grid := make([][][]OpID, h)
	for i := range grid {
		grid[i] = make([][]OpID, w)
		for j := range grid[i] {
			grid[i][j] = make([]OpID, tiles)
			for k := range grid[i][j] {
				grid[i][j][k] = -1
			}
		}
	}
	return grid
}

// AbstractMatrix is embedded by ConstantMatrix and TrainingMatrix.
type AbstractMatrix struct {
	Name_  string
	Width  int
	Height int
}

func (m *AbstractMatrix) Name() string      { return m.Name_ }
func (m *AbstractMatrix) NHeightTiles() int { return common.NTiles(m.Height) }
func (m *AbstractMatrix) NWidthTiles() int  { return common.NTiles(m.Width) }

// ConstantMatrix is a fixed (inference) weight matrix, tiled into a 2D grid
// of MatrixTiles zero-padded at the edges.
type ConstantMatrix struct {
	AbstractMatrix
	Tiles [][]*MatrixTile // [heightTile][widthTile]
}

// TrainingMatrix is a matrix updated by outer-product accumulation during
// training; also tiled 2D.
type TrainingMatrix struct {
	AbstractMatrix
	Tiles [][]*MatrixTile
}

// ConvolutionalConstantMatrix is a 4D tile grid indexed by
// (kernel_h, kernel_w, out_channel_tile, in_channel_tile), per
// original_source/src/tensors.h's ConvolutionalConstantMatrixImpl.
type ConvolutionalConstantMatrix struct {
	Name_          string
	KernelWidth    int
	KernelHeight   int
	NInChannels    int
	NOutChannels   int
	Tiles          [][][][]*MatrixTile // [kh][kw][outTile][inTile]
}

func (c *ConvolutionalConstantMatrix) Name() string        { return c.Name_ }
func (c *ConvolutionalConstantMatrix) NInChannelTiles() int  { return common.NTiles(c.NInChannels) }
func (c *ConvolutionalConstantMatrix) NOutChannelTiles() int { return common.NTiles(c.NOutChannels) }

// MakeConstantMatrixGrid builds the 2D tile grid for a ConstantMatrix.
func MakeConstantMatrixGrid(heightTiles, widthTiles, height, width int, name string) [][]*MatrixTile {
	return makeMatrixGrid(heightTiles, widthTiles, height, width, name, false)
}

// MakeTrainingMatrixGrid builds the 2D tile grid for a TrainingMatrix.
func MakeTrainingMatrixGrid(heightTiles, widthTiles, height, width int, name string) [][]*MatrixTile {
	return makeMatrixGrid(heightTiles, widthTiles, height, width, name, true)
}

func makeMatrixGrid(heightTiles, widthTiles, height, width int, name string, training bool) [][]*MatrixTile {
	grid := make([][]*MatrixTile, heightTiles)
	for h := range grid {
		grid[h] = make([]*MatrixTile, widthTiles)
		for w := range grid[h] {
			th := common.MVMUDim
			if (h+1)*common.MVMUDim > height {
				th = height - h*common.MVMUDim
			}
			tw := common.MVMUDim
			if (w+1)*common.MVMUDim > width {
				tw = width - w*common.MVMUDim
			}
			grid[h][w] = &MatrixTile{Owner: name, Height: th, Width: tw, Training: training}
		}
	}
	return grid
}
