package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/illinois-impact/puma-compiler/src/compiler"
	"github.com/illinois-impact/puma-compiler/src/misc"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile PROGRAM",
		Short: "Compile a builtin program into per-tile/per-core instruction streams",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}

	cmd.Flags().Int("size", 128, "vector/matrix dimension for the selected program")
	cmd.Flags().String("out", ".", "output directory for emitted artifacts")
	cmd.Flags().String("graph-partitioning", "row_major", "row_major|col_major|random|kahip")
	cmd.Flags().Bool("no-coalesce", false, "skip MVM/training-op coalescing")
	cmd.Flags().Bool("debug-graphs", false, "emit dot-graph snapshots after each stage")
	cmd.Flags().Float64("kahip-imbalance", 0.03, "--imbalance= passed to kaffpaE")
	cmd.Flags().String("kahip-binary", "kaffpaE", "path or name of the kaffpaE executable")

	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	program := args[0]
	size, _ := cmd.Flags().GetInt("size")
	outDir, _ := cmd.Flags().GetString("out")
	graphPartitioning, _ := cmd.Flags().GetString("graph-partitioning")
	noCoalesce, _ := cmd.Flags().GetBool("no-coalesce")
	debugGraphs, _ := cmd.Flags().GetBool("debug-graphs")
	kahipImbalance, _ := cmd.Flags().GetFloat64("kahip-imbalance")
	kahipBinary, _ := cmd.Flags().GetString("kahip-binary")

	parser := new(misc.CommandLineParser)
	parser.Init()
	parser.AddOption(misc.STRING, "graph_partitioning", "row_major", "virtual MVMU assignment scheme")
	parser.AddOption(misc.BOOL, "coalesce_mvm_operations", "true", "coalesce independent MVM/training ops sharing a core")
	parser.AddOption(misc.BOOL, "print_debug_info", "false", "emit dot-graph snapshots after each stage")
	parser.AddOption(misc.FLOAT, "kahip_imbalance", "0.03", "kaffpaE --imbalance=")
	parser.AddOption(misc.STRING, "kahip_binary", "kaffpaE", "kaffpaE executable")
	parser.AddOption(misc.STRING, "program", "", "builtin program to compile")
	parser.AddOption(misc.STRING, "bin_dirpath", ".", "output directory")

	parser.Set("graph_partitioning", strings.ToLower(graphPartitioning))
	parser.Set("coalesce_mvm_operations", fmt.Sprintf("%t", !noCoalesce))
	parser.Set("print_debug_info", fmt.Sprintf("%t", debugGraphs))
	parser.Set("kahip_imbalance", fmt.Sprintf("%g", kahipImbalance))
	parser.Set("kahip_binary", kahipBinary)
	parser.Set("program", program)
	parser.Set("bin_dirpath", outDir)

	if err := validateArgs(parser); err != nil {
		return exitForStageError(err)
	}

	p, err := lookupProgram(program, size)
	if err != nil {
		return exitForStageError(err)
	}

	if err := bindZeroWeights(p); err != nil {
		return exitForStageError(err)
	}
	if err := p.GenerateData(); err != nil {
		return exitForStageError(err)
	}

	options, err := misc.LoadCompilerOptions(parser)
	if err != nil {
		return exitForStageError(err)
	}

	c := compiler.New(p.Model, options, outDir)
	if err := c.Compile(); err != nil {
		return exitForStageError(err)
	}

	fmt.Printf("compiled %s -> %s\n", program, outDir)
	return nil
}

// validateArgs runs the flag-shaped checks in misc.CommandLineValidator,
// converting its panic-on-invalid idiom into a plain error at the CLI
// boundary, the same way the teacher's main.go is the sole recover point.
func validateArgs(parser *misc.CommandLineParser) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	validator := new(misc.CommandLineValidator)
	validator.Init(parser)
	validator.Validate()
	return nil
}
