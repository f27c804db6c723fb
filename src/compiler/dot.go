package compiler

import (
	"fmt"
	"strings"

	"github.com/illinois-impact/puma-compiler/src/ir"
)

// renderDot renders the current DAG as Graphviz text for a debug snapshot.
// One node per operation, one edge per data or tile-memory dependence.
func renderDot(m *ir.Model) string {
	var b strings.Builder
	b.WriteString("digraph model {\n")
	for _, op := range m.OrderedOps() {
		fmt.Fprintf(&b, "  n%d [label=%q];\n", op.ID, op.String())
		for i := 0; i < op.NumOperands(); i++ {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", op.Operands[i], op.ID)
		}
		for i := 0; i < op.NumSrcs(); i++ {
			fmt.Fprintf(&b, "  n%d -> n%d [style=dashed];\n", op.Srcs[i], op.ID)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
