package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/dsl"
	"github.com/illinois-impact/puma-compiler/src/misc"
)

func TestBindMatrixDataTilesRowMajorBuffer(t *testing.T) {
	p := dsl.New("bind")
	mat, err := p.NewConstantMatrix("W", 4, 4)
	require.NoError(t, err)

	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i)
	}
	require.NoError(t, p.BindMatrixData("W", data))

	tile := mat.Tiles[0][0]
	require.NotNil(t, tile.Data)
	require.Equal(t, 5.0, tile.Data[1*tile.Width+1]) // row 1, col 1 of a 4x4 buffer -> data[5]
}

func TestBindMatrixDataRejectsWrongLength(t *testing.T) {
	p := dsl.New("bind")
	_, err := p.NewConstantMatrix("W", 4, 4)
	require.NoError(t, err)

	err = p.BindMatrixData("W", make([]float64, 10))
	require.Error(t, err)
}

func TestBindMatrixDataUnknownNameErrors(t *testing.T) {
	p := dsl.New("bind")
	_, err := p.NewConstantMatrix("W", 4, 4)
	require.NoError(t, err)

	err = p.BindMatrixData("does-not-exist", make([]float64, 16))
	require.Error(t, err)

	var stageErr misc.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "io-binding", stageErr.Stage())
}

func TestGenerateDataFailsUntilEveryMatrixIsBound(t *testing.T) {
	p := dsl.New("bind")
	_, err := p.NewConstantMatrix("W1", 4, 4)
	require.NoError(t, err)
	_, err = p.NewConstantMatrix("W2", 4, 4)
	require.NoError(t, err)

	require.Error(t, p.GenerateData())

	require.NoError(t, p.BindMatrixData("W1", make([]float64, 16)))
	require.Error(t, p.GenerateData(), "W2 is still unbound")

	require.NoError(t, p.BindMatrixData("W2", make([]float64, 16)))
	require.NoError(t, p.GenerateData())
}

func TestBindConvMatrixDataIndexesByKernelPosition(t *testing.T) {
	p := dsl.New("conv")
	mat, err := p.NewConvolutionalConstantMatrix("K", 2, 2, 3, 3)
	require.NoError(t, err)

	perPosition := make([][]float64, 4) // 2x2 kernel
	for i := range perPosition {
		perPosition[i] = make([]float64, 9) // 3 out x 3 in
	}
	perPosition[3][0] = 42 // (kh=1, kw=1)

	require.NoError(t, p.BindConvMatrixData("K", perPosition))

	tile := mat.Tiles[1][1][0][0]
	require.Equal(t, 42.0, tile.Data[0])
}

func TestBindConvMatrixDataRejectsWrongPositionCount(t *testing.T) {
	p := dsl.New("conv")
	_, err := p.NewConvolutionalConstantMatrix("K", 2, 2, 3, 3)
	require.NoError(t, err)

	err = p.BindConvMatrixData("K", make([][]float64, 3))
	require.Error(t, err)
}
