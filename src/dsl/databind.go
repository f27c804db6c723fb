package dsl

import (
	"github.com/illinois-impact/puma-compiler/src/ir"
)

// BindMatrixData copies a row-major Height x Width buffer into the named
// ConstantMatrix or TrainingMatrix's per-tile Data slices, splitting at
// MVMUDim boundaries and leaving the zero-padded edges as zero. Mirrors
// original_source/src/tensors.cpp's ConstantMatrixImpl::setData tiling.
func (p *Program) BindMatrixData(name string, data []float64) error {
	for _, m := range p.Model.ConstantMatrices {
		if m.Name() == name {
			return bindMatrixGrid(m.Tiles, m.Height, m.Width, data)
		}
	}
	for _, m := range p.Model.TrainingMatrices {
		if m.Name() == name {
			return bindMatrixGrid(m.Tiles, m.Height, m.Width, data)
		}
	}
	return &ir.Error{Stage_: "io-binding", Entity_: name, Msg: "no constant or training matrix with this name"}
}

func bindMatrixGrid(tiles [][]*ir.MatrixTile, height, width int, data []float64) error {
	if len(data) != height*width {
		return &ir.Error{Stage_: "io-binding", Msg: "bound buffer length does not match matrix dimensions"}
	}
	for h, row := range tiles {
		for w, tile := range row {
			tile.Data = make([]float64, tile.Height*tile.Width)
			for r := 0; r < tile.Height; r++ {
				srcRow := h*128 + r
				for c := 0; c < tile.Width; c++ {
					srcCol := w*128 + c
					tile.Data[r*tile.Width+c] = data[srcRow*width+srcCol]
				}
			}
		}
	}
	return nil
}

// BindConvMatrixData copies a per-(kh,kw) row-major NOutChannels x
// NInChannels buffer into a ConvolutionalConstantMatrix's per-tile Data,
// indexed by kh*KernelWidth+kw, matching Tiles[kh][kw]'s layout.
func (p *Program) BindConvMatrixData(name string, perKernelPosition [][]float64) error {
	for _, m := range p.Model.ConvMatrices {
		if m.Name() != name {
			continue
		}
		if len(perKernelPosition) != m.KernelHeight*m.KernelWidth {
			return &ir.Error{Stage_: "io-binding", Entity_: name, Msg: "kernel position count mismatch"}
		}
		for kh := 0; kh < m.KernelHeight; kh++ {
			for kw := 0; kw < m.KernelWidth; kw++ {
				data := perKernelPosition[kh*m.KernelWidth+kw]
				if err := bindMatrixGrid(m.Tiles[kh][kw], m.NOutChannels, m.NInChannels, data); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return &ir.Error{Stage_: "io-binding", Entity_: name, Msg: "no convolutional matrix with this name"}
}

// GenerateData verifies every constant, training and convolutional matrix in
// the model has bound weight data, per SPEC_FULL §7's I/O binding error
// ("generateData called with no data bound for a named matrix").
func (p *Program) GenerateData() error {
	for _, m := range p.Model.ConstantMatrices {
		if err := requireBound(m.Tiles, m.Name()); err != nil {
			return err
		}
	}
	for _, m := range p.Model.TrainingMatrices {
		if err := requireBound(m.Tiles, m.Name()); err != nil {
			return err
		}
	}
	for _, m := range p.Model.ConvMatrices {
		for kh := range m.Tiles {
			for kw := range m.Tiles[kh] {
				if err := requireBound(m.Tiles[kh][kw], m.Name()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func requireBound(tiles [][]*ir.MatrixTile, name string) error {
	for _, row := range tiles {
		for _, tile := range row {
			if tile.Data == nil {
				return &ir.Error{Stage_: "io-binding", Entity_: name, Msg: "generateData called with no data bound for this matrix"}
			}
		}
	}
	return nil
}
