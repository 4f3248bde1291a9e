package helpers

import (
	"fmt"
	"strings"

	"github.com/coral-mesh/docteur/internal/deptree"
	"github.com/coral-mesh/docteur/internal/report"
)

// TreeOptions control RenderTree.
type TreeOptions struct {
	// MaxDepth limits the rendered depth; 0 means unlimited.
	MaxDepth int
	// SlowMs marks nodes whose own effective time reaches it.
	SlowMs float64
	// Label names a node; defaults to its identifier.
	Label func(*deptree.Node) string
}

// RenderTree renders the import tree in ASCII art format, heaviest subtree
// first. totalMs is used to calculate percentages.
func RenderTree(tree *deptree.Tree, totalMs float64, opts TreeOptions) string {
	if tree == nil || tree.Len() == 0 {
		return "No tree data available.\n"
	}
	if opts.Label == nil {
		opts.Label = func(n *deptree.Node) string { return n.ID }
	}

	r := treeRenderer{tree: tree, total: totalMs, opts: opts, seen: make(map[string]bool)}
	var buf strings.Builder
	roots := tree.SortedRoots()
	for i, root := range roots {
		r.node(&buf, root, "", i == len(roots)-1, 1)
	}
	buf.WriteString("\n" + renderTreeLegend())
	return buf.String()
}

type treeRenderer struct {
	tree  *deptree.Tree
	total float64
	opts  TreeOptions
	seen  map[string]bool
}

// node renders a single tree node with proper indentation. Modules imported
// from several places are expanded once.
func (r *treeRenderer) node(buf *strings.Builder, n *deptree.Node, prefix string, isLast bool, depth int) {
	// Determine the connector
	connector := "├─"
	if isLast {
		connector = "└─"
	}

	subtree := r.tree.SubtreeTime(n.ID)
	percentage := 0.0
	if r.total > 0 {
		percentage = subtree / r.total * 100
	}

	marker := ""
	switch {
	case n.Placeholder:
		marker = " (not loaded)"
	case r.seen[n.ID]:
		marker = " (see above)"
	case r.opts.SlowMs > 0 && n.Timing.EffectiveTime() >= r.opts.SlowMs:
		marker = " ← SLOW"
	}

	fmt.Fprintf(buf, "%s%s %s (%s, %s total, %.1f%%)%s\n",
		prefix,
		connector,
		r.opts.Label(n),
		report.FormatDuration(n.Timing.EffectiveTime()),
		report.FormatDuration(subtree),
		percentage,
		marker,
	)

	if r.seen[n.ID] {
		return
	}
	r.seen[n.ID] = true
	if r.opts.MaxDepth > 0 && depth >= r.opts.MaxDepth {
		return
	}

	// Prepare prefix for children
	childPrefix := prefix
	if isLast {
		childPrefix += "  "
	} else {
		childPrefix += "│ "
	}

	children := r.tree.SortedChildren(n.ID)
	for i, child := range children {
		r.node(buf, child, childPrefix, i == len(children)-1, depth+1)
	}
}

// renderTreeLegend renders the legend for the tree.
func renderTreeLegend() string {
	return `Legend:
  ├─ = intermediate node    │  = continuation
  └─ = last child           ← SLOW = exceeds the slow threshold
  (own time, subtree total, share of boot)
`
}
