// Command pumac is the PUMA compiler's CLI entrypoint: pumac compile builds
// a program and runs it through the full pipeline, pumac report
// pretty-prints an existing report pair. Grounded on the teacher's
// main.go control flow (parse -> validate -> run stages -> dump artifacts),
// rebuilt on github.com/spf13/cobra per SPEC_FULL.md section 9.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illinois-impact/puma-compiler/src/misc"
)

// stageExitCodes maps a pipeline stage name to the process exit code
// SPEC_FULL.md section 6 assigns it, so scripting around the CLI can
// distinguish failure stages.
var stageExitCodes = map[string]int{
	"partition":  2,
	"place":      3,
	"memalloc":   4,
	"coalesce":   5,
	"linearize":  6,
	"regalloc":   7,
	"codegen":    8,
	"io-binding": 9,
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	root := &cobra.Command{
		Use:           "pumac",
		Short:         "PUMA compiler: lowers linear-algebra programs onto a tiled analog accelerator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCompileCmd())
	root.AddCommand(newReportCmd())
	return root
}

// exitForStageError maps a misc.StageError to its documented process exit
// code and prints a diagnostic, matching the teacher's main.go pattern of
// being the sole panic/exit boundary.
func exitForStageError(err error) error {
	if stageErr, ok := err.(misc.StageError); ok {
		code, known := stageExitCodes[stageErr.Stage()]
		if !known {
			code = 1
		}
		fmt.Fprintf(os.Stderr, "pumac: %s stage failed for %s: %v\n", stageErr.Stage(), stageErr.Entity(), stageErr)
		os.Exit(code)
	}
	fmt.Fprintf(os.Stderr, "pumac: %v\n", err)
	os.Exit(1)
	return nil
}
