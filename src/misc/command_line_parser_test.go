package misc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illinois-impact/puma-compiler/src/misc"
)

func newTestParser() *misc.CommandLineParser {
	p := new(misc.CommandLineParser)
	p.Init()
	p.AddOption(misc.STRING, "graph_partitioning", "row_major", "scheme")
	p.AddOption(misc.BOOL, "coalesce_mvm_operations", "true", "coalesce")
	p.AddOption(misc.FLOAT, "kahip_imbalance", "0.03", "imbalance")
	return p
}

func TestIsArgSetOnlyTrueAfterExplicitSet(t *testing.T) {
	p := newTestParser()
	require.False(t, p.IsArgSet("graph_partitioning"))
	require.Equal(t, "row_major", p.StringParameter("graph_partitioning"))

	p.Set("graph_partitioning", "kahip")
	require.True(t, p.IsArgSet("graph_partitioning"))
	require.Equal(t, "kahip", p.StringParameter("graph_partitioning"))
}

func TestTypedParametersParseTheirOption(t *testing.T) {
	p := newTestParser()
	require.True(t, p.BoolParameter("coalesce_mvm_operations"))
	require.InDelta(t, 0.03, p.FloatParameter("kahip_imbalance"), 1e-9)

	p.Set("kahip_imbalance", "0.1")
	require.InDelta(t, 0.1, p.FloatParameter("kahip_imbalance"), 1e-9)
}

func TestSetOnUnregisteredOptionPanics(t *testing.T) {
	p := newTestParser()
	require.Panics(t, func() { p.Set("does_not_exist", "1") })
}

func TestLoadCompilerOptionsAppliesOnlyExplicitOverrides(t *testing.T) {
	p := new(misc.CommandLineParser)
	p.Init()
	p.AddOption(misc.STRING, "graph_partitioning", "row_major", "scheme")
	p.AddOption(misc.BOOL, "coalesce_mvm_operations", "true", "coalesce")
	p.AddOption(misc.BOOL, "print_debug_info", "false", "debug")
	p.AddOption(misc.FLOAT, "kahip_imbalance", "0.03", "imbalance")
	p.AddOption(misc.STRING, "kahip_binary", "kaffpaE", "binary")

	p.Set("graph_partitioning", "col_major")

	opts, err := misc.LoadCompilerOptions(p)
	require.NoError(t, err)
	require.Equal(t, misc.ColMajor, opts.GraphPartitioning)
	require.True(t, opts.CoalesceMVMOperations) // untouched default
	require.Equal(t, 0.03, opts.KaHIPImbalance)  // untouched default
}

func TestLoadCompilerOptionsRejectsUnknownScheme(t *testing.T) {
	p := new(misc.CommandLineParser)
	p.Init()
	p.AddOption(misc.STRING, "graph_partitioning", "row_major", "scheme")
	p.Set("graph_partitioning", "not-a-real-scheme")

	_, err := misc.LoadCompilerOptions(p)
	require.Error(t, err)
}

func TestCommandLineValidatorPanicsOnNegativeImbalance(t *testing.T) {
	p := new(misc.CommandLineParser)
	p.Init()
	p.AddOption(misc.FLOAT, "kahip_imbalance", "0.03", "imbalance")
	p.AddOption(misc.STRING, "program", "mvm", "program")
	p.AddOption(misc.STRING, "bin_dirpath", ".", "out")
	p.Set("kahip_imbalance", "-1")

	v := new(misc.CommandLineValidator)
	v.Init(p)
	require.Panics(t, func() { v.Validate() })
}
