package glee

import (
	"fmt"
	"io"
)

// DumpDOT writes a Graphviz dump of root's expression DAG to w: one node per
// distinct (already-interned) subexpression, with edges to its kids. Nodes
// shared by hash-consing appear once and fan in from every parent that
// references them, which is the point of looking at this as a graph rather
// than the tree an expression's String() prints. Grounded on KLEE's kleaver
// expression dumper (tools/kleaver), scaled down to the one built-in debug
// aid this engine needs: --debug-print-instructions=DIR.
func DumpDOT(w io.Writer, root Expr) error {
	return DumpDOTAll(w, []Expr{root})
}

// DumpDOTAll is DumpDOT over several roots sharing one graph, e.g. an
// ExecutionState's whole constraint list: any subexpression two
// constraints have in common (certain after hash-consing) appears once.
func DumpDOTAll(w io.Writer, roots []Expr) error {
	fmt.Fprintln(w, "digraph expr {")
	fmt.Fprintln(w, `  node [shape=box, fontname="monospace"];`)

	seen := make(map[Expr]bool)
	var visit func(e Expr) error
	visit = func(e Expr) error {
		if e == nil || seen[e] {
			return nil
		}
		seen[e] = true

		if _, err := fmt.Fprintf(w, "  %q [label=%q];\n", nodeID(e), nodeLabel(e)); err != nil {
			return err
		}
		for _, kid := range Kids(e) {
			if kid == nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "  %q -> %q;\n", nodeID(e), nodeID(kid)); err != nil {
				return err
			}
			if err := visit(kid); err != nil {
				return err
			}
		}
		return nil
	}

	for i, root := range roots {
		if _, err := fmt.Fprintf(w, "  %q [shape=plaintext, label=%q];\n", rootLabelID(i), fmt.Sprintf("constraint %d", i)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  %q -> %q;\n", rootLabelID(i), nodeID(root)); err != nil {
			return err
		}
		if err := visit(root); err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "}")
	return nil
}

func rootLabelID(i int) string { return fmt.Sprintf("root%d", i) }

// nodeID identifies e uniquely within one DumpDOT call. Interned nodes are
// deduplicated by structural hash, so two pointers to the "same" subgraph
// always produce the same node ID.
func nodeID(e Expr) string {
	return fmt.Sprintf("n%x", exprHash(e))
}

// nodeLabel is the short per-node text shown inside its box: the operator or
// kind plus any leaf payload (a ConstantExpr's value, an ExtractExpr's
// offset), but never its kids' labels (those are separate nodes and edges).
func nodeLabel(e Expr) string {
	switch e := e.(type) {
	case *ConstantExpr:
		return fmt.Sprintf("const %d:%d", e.Value, e.Width)
	case *BinaryExpr:
		return e.Op.String()
	case *SelectExpr:
		return "select"
	case *ExtractExpr:
		return fmt.Sprintf("extract[%d:%d]", e.Offset, e.Offset+e.Width)
	case *CastExpr:
		if e.Signed {
			return "sext"
		}
		return "zext"
	case *ConcatExpr:
		return "concat"
	case *NotExpr:
		return "not"
	case *NotOptimizedExpr:
		return "not_optimized"
	default:
		return e.String()
	}
}
