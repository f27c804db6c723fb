package main

import (
	"fmt"

	"github.com/illinois-impact/puma-compiler/src/dsl"
)

// programBuilder constructs a dsl.Program for one of the CLI's builtin
// programs. A real front end would parse an operator-overloading DSL source
// file into these same constructor calls (out of scope per SPEC_FULL.md
// section 1); pumac instead selects a builtin program by name, the same way
// the teacher's --benchmark flag selects a benchmark to build.
type programBuilder func(size int) (*dsl.Program, error)

var programs = map[string]programBuilder{
	"mvm":                    buildMVMProgram,
	"training-outer-product": buildTrainingOuterProductProgram,
}

func buildMVMProgram(size int) (*dsl.Program, error) {
	p := dsl.New("mvm")
	in := p.NewInputVector("x", size)
	out := p.NewOutputVector("y", size)

	mat, err := p.NewConstantMatrix("W", size, size)
	if err != nil {
		return nil, err
	}
	products, err := p.MatrixVectorMultiply(mat, in.Tiles)
	if err != nil {
		return nil, err
	}
	for t, id := range products {
		p.BindOutputTile(out, t, p.Model.Ops[id])
	}
	return p, nil
}

func buildTrainingOuterProductProgram(size int) (*dsl.Program, error) {
	p := dsl.New("training-outer-product")
	x1 := p.NewInputVector("x1", size)
	x2 := p.NewInputVector("x2", size)

	mat, err := p.NewTrainingMatrix("M", size, size)
	if err != nil {
		return nil, err
	}
	if _, err := p.TrainingOuterProductUpdate(mat, x1.Tiles, x2.Tiles); err != nil {
		return nil, err
	}
	return p, nil
}

// bindZeroWeights binds every declared matrix in p to a zero buffer, so
// GenerateData succeeds for programs built without a real weight source.
func bindZeroWeights(p *dsl.Program) error {
	for _, m := range p.Model.ConstantMatrices {
		if err := p.BindMatrixData(m.Name(), make([]float64, m.Height*m.Width)); err != nil {
			return err
		}
	}
	for _, m := range p.Model.TrainingMatrices {
		if err := p.BindMatrixData(m.Name(), make([]float64, m.Height*m.Width)); err != nil {
			return err
		}
	}
	for _, m := range p.Model.ConvMatrices {
		perPosition := make([][]float64, m.KernelHeight*m.KernelWidth)
		for i := range perPosition {
			perPosition[i] = make([]float64, m.NOutChannels*m.NInChannels)
		}
		if err := p.BindConvMatrixData(m.Name(), perPosition); err != nil {
			return err
		}
	}
	return nil
}

func lookupProgram(name string, size int) (*dsl.Program, error) {
	build, ok := programs[name]
	if !ok {
		return nil, fmt.Errorf("unknown program %q", name)
	}
	return build(size)
}
