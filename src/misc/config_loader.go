package misc

import (
	"fmt"
	"strings"
)

// GraphPartitioning selects the Partitioner's virtual-MVMU assignment
// scheme (SPEC_FULL.md section 4.2).
type GraphPartitioning int

const (
	RowMajor GraphPartitioning = iota
	ColMajor
	Random
	KaHIP
)

func (g GraphPartitioning) String() string {
	switch g {
	case RowMajor:
		return "row_major"
	case ColMajor:
		return "col_major"
	case Random:
		return "random"
	case KaHIP:
		return "kahip"
	default:
		return "unknown"
	}
}

func GraphPartitioningFromString(s string) (GraphPartitioning, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "row_major", "rowmajor":
		return RowMajor, true
	case "col_major", "colmajor":
		return ColMajor, true
	case "random":
		return Random, true
	case "kahip":
		return KaHIP, true
	default:
		return 0, false
	}
}

// CompilerOptions is a per-Model configuration value, not a package-level
// global, since a process may compile several models with different
// partitioning schemes in one run (see DESIGN.md).
type CompilerOptions struct {
	GraphPartitioning     GraphPartitioning
	CoalesceMVMOperations bool
	PrintDebugInfo        bool
	KaHIPImbalance        float64
	KaHIPBinary           string
}

func DefaultCompilerOptions() CompilerOptions {
	return CompilerOptions{
		GraphPartitioning:     RowMajor,
		CoalesceMVMOperations: true,
		PrintDebugInfo:        false,
		KaHIPImbalance:        0.03,
		KaHIPBinary:           "kaffpaE",
	}
}

// LoadCompilerOptions reads a validated CommandLineParser into a
// CompilerOptions value, in the same "typed accessors over parsed flags"
// idiom as the teacher's ConfigLoader.
func LoadCompilerOptions(parser *CommandLineParser) (CompilerOptions, error) {
	opts := DefaultCompilerOptions()

	if parser.IsArgSet("graph_partitioning") {
		scheme, ok := GraphPartitioningFromString(parser.StringParameter("graph_partitioning"))
		if !ok {
			return opts, fmt.Errorf("graph_partitioning %s is not supported", parser.StringParameter("graph_partitioning"))
		}
		opts.GraphPartitioning = scheme
	}

	if parser.IsArgSet("coalesce_mvm_operations") {
		opts.CoalesceMVMOperations = parser.BoolParameter("coalesce_mvm_operations")
	}
	if parser.IsArgSet("print_debug_info") {
		opts.PrintDebugInfo = parser.BoolParameter("print_debug_info")
	}
	if parser.IsArgSet("kahip_imbalance") {
		opts.KaHIPImbalance = parser.FloatParameter("kahip_imbalance")
	}
	if parser.IsArgSet("kahip_binary") {
		opts.KaHIPBinary = parser.StringParameter("kahip_binary")
	}

	return opts, nil
}
