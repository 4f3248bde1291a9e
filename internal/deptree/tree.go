// Package deptree reconstructs the import graph of a profiled boot.
//
// The graph is a DAG in the common case: a module imported from several
// places has several parents. Cycles are tolerated; every traversal tracks
// the identifiers it has visited.
package deptree

import (
	"sort"
	"sync"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Node is one module in the tree.
type Node struct {
	ID     string
	Timing timing.ModuleTiming
	// Placeholder is set for importers that were referenced as a parent but
	// never recorded themselves.
	Placeholder bool

	children []string
	parents  []string
}

// Children returns the identifiers this module imported, in load order.
func (n *Node) Children() []string {
	return append([]string(nil), n.children...)
}

// Parents returns the identifiers of every importer, primary parent first.
func (n *Node) Parents() []string {
	return append([]string(nil), n.parents...)
}

// IsRoot reports whether no importer was recorded for the module.
func (n *Node) IsRoot() bool {
	return len(n.parents) == 0
}

// Tree is a read-only view over a module list. Rebuild it when the
// underlying result changes.
type Tree struct {
	nodes map[string]*Node
	order []string
	roots []string

	mu      sync.Mutex
	subtree map[string]float64
}

// Build links every module under each of its recorded parents.
func Build(modules []timing.ModuleTiming) *Tree {
	t := &Tree{
		nodes:   make(map[string]*Node, len(modules)),
		subtree: make(map[string]float64),
	}

	for _, m := range modules {
		if m.ResolvedIdentifier == "" {
			continue
		}
		if n, ok := t.nodes[m.ResolvedIdentifier]; ok {
			n.Timing = n.Timing.Merge(m)
			continue
		}
		t.add(&Node{ID: m.ResolvedIdentifier, Timing: m})
	}

	// Snapshot the recorded ids first: placeholders are appended while linking.
	recorded := append([]string(nil), t.order...)
	for _, id := range recorded {
		child := t.nodes[id]
		for _, p := range child.Timing.Parents() {
			parent, ok := t.nodes[p]
			if !ok {
				parent = &Node{
					ID:          p,
					Timing:      timing.ModuleTiming{ResolvedIdentifier: p},
					Placeholder: true,
				}
				t.add(parent)
			}
			link(parent, child)
		}
	}

	for _, id := range t.order {
		if t.nodes[id].IsRoot() {
			t.roots = append(t.roots, id)
		}
	}
	return t
}

func (t *Tree) add(n *Node) {
	t.nodes[n.ID] = n
	t.order = append(t.order, n.ID)
}

func link(parent, child *Node) {
	if contains(parent.children, child.ID) {
		return
	}
	parent.children = append(parent.children, child.ID)
	child.parents = append(child.parents, parent.ID)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Get looks up a node by resolved identifier.
func (t *Tree) Get(id string) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Len returns the number of nodes, placeholders included.
func (t *Tree) Len() int {
	return len(t.order)
}

// Nodes returns every node in recording order, placeholders last.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, len(t.order))
	for i, id := range t.order {
		out[i] = t.nodes[id]
	}
	return out
}

// Roots returns the identifiers of modules without a recorded parent.
func (t *Tree) Roots() []string {
	return append([]string(nil), t.roots...)
}

// Children returns the nodes imported by id. Unknown ids yield nil.
func (t *Tree) Children(id string) []*Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return t.resolve(n.children)
}

// Parents returns the nodes importing id. Unknown ids yield nil.
func (t *Tree) Parents(id string) []*Node {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return t.resolve(n.parents)
}

func (t *Tree) resolve(ids []string) []*Node {
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = t.nodes[id]
	}
	return out
}

// SortedChildren returns the children of id, heaviest subtree first. Ties
// keep load order.
func (t *Tree) SortedChildren(id string) []*Node {
	return t.sortBySubtree(t.Children(id))
}

// SortedRoots returns the root nodes, heaviest subtree first.
func (t *Tree) SortedRoots() []*Node {
	return t.sortBySubtree(t.resolve(t.roots))
}

func (t *Tree) sortBySubtree(nodes []*Node) []*Node {
	weights := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		weights[n.ID] = t.SubtreeTime(n.ID)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return weights[nodes[i].ID] > weights[nodes[j].ID]
	})
	return nodes
}

// SubtreeTime returns the effective time of id plus every module reachable
// through its imports, each counted once. Results are memoized.
func (t *Tree) SubtreeTime(id string) float64 {
	if _, ok := t.nodes[id]; !ok {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.subtree[id]; ok {
		return v
	}

	total := 0.0
	visited := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		total += cur.Timing.EffectiveTime()
		for _, c := range cur.children {
			if !visited[c] {
				visited[c] = true
				stack = append(stack, c)
			}
		}
	}

	t.subtree[id] = total
	return total
}

// WalkFunc is called for each node reached by Walk. Returning false skips
// the node's children.
type WalkFunc func(n *Node, depth int) bool

// Walk visits id and its imports depth first, in load order. A node reached
// through several paths is visited once. maxDepth < 0 means unbounded.
func (t *Tree) Walk(id string, maxDepth int, fn WalkFunc) {
	if _, ok := t.nodes[id]; !ok {
		return
	}
	t.walk(id, 0, maxDepth, map[string]bool{}, fn)
}

func (t *Tree) walk(id string, depth, maxDepth int, visited map[string]bool, fn WalkFunc) {
	if visited[id] {
		return
	}
	visited[id] = true

	n := t.nodes[id]
	if !fn(n, depth) {
		return
	}
	if maxDepth >= 0 && depth >= maxDepth {
		return
	}
	for _, c := range n.children {
		t.walk(c, depth+1, maxDepth, visited, fn)
	}
}

// Path follows primary parents from id up to a root and returns the chain
// root first. It stops early when the chain loops.
func (t *Tree) Path(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}

	var rev []string
	seen := map[string]bool{}
	for n != nil && !seen[n.ID] {
		seen[n.ID] = true
		rev = append(rev, n.ID)
		if len(n.parents) == 0 {
			break
		}
		n = t.nodes[n.parents[0]]
	}

	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}
