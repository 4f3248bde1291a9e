// Package xray is an interactive terminal explorer for a profiling result.
// It walks the import graph in both directions: down into what a module
// imported and up to the modules that imported it.
package xray

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/deptree"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// view is the screen currently shown.
type view int

const (
	viewList view = iota
	viewModule
	viewComponents
)

// Model is the bubbletea model of the explorer. It never modifies the
// result it was built from.
type Model struct {
	result timing.ProfileResult
	tree   *deptree.Tree
	conv   collector.Conventions
	cwd    string

	// Navigation
	current view
	history []string // module ids, innermost last
	cursor  int
	offset  int
	parents bool // module view lists importers instead of imports

	// Search on the home list
	searching bool
	search    textinput.Model

	width    int
	height   int
	quitting bool
}

// New builds the explorer for result.
func New(result timing.ProfileResult, conv collector.Conventions, cwd string) Model {
	ti := textinput.New()
	ti.Placeholder = "filter modules..."
	ti.Prompt = "/ "
	ti.CharLimit = 200
	ti.Width = 60

	return Model{
		result: result,
		tree:   deptree.Build(result.Modules),
		conv:   conv,
		cwd:    cwd,
		search: ti,
		width:  100,
		height: 30,
	}
}

// Init initializes the model (Bubbletea interface).
func (m Model) Init() tea.Cmd {
	return nil
}

// Run starts the explorer on the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, m Model, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := p.Run()
	return err
}

// item is one selectable row.
type item struct {
	id      string
	label   string
	ms      float64 // own effective time
	subtree float64
	count   int // imports below the node
}

func (m Model) selected() (string, bool) {
	if len(m.history) == 0 {
		return "", false
	}
	return m.history[len(m.history)-1], true
}

// items returns the rows of the current screen.
func (m Model) items() []item {
	switch m.current {
	case viewModule:
		id, _ := m.selected()
		var nodes []*deptree.Node
		if m.parents {
			nodes = m.tree.Parents(id)
		} else {
			nodes = m.tree.SortedChildren(id)
		}
		return m.toItems(nodes)
	case viewComponents:
		return nil
	default:
		return m.homeItems()
	}
}

func (m Model) homeItems() []item {
	query := m.search.Value()
	var nodes []*deptree.Node
	for _, mod := range collector.SortByEffectiveTime(m.result.Modules) {
		if query != "" && !containsFold(mod.ResolvedIdentifier, query) {
			continue
		}
		if n, ok := m.tree.Get(mod.ResolvedIdentifier); ok {
			nodes = append(nodes, n)
		}
	}
	return m.toItems(nodes)
}

func (m Model) toItems(nodes []*deptree.Node) []item {
	out := make([]item, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, item{
			id:      n.ID,
			label:   m.conv.SimplifyURL(n.ID, m.cwd),
			ms:      n.Timing.EffectiveTime(),
			subtree: m.tree.SubtreeTime(n.ID),
			count:   len(n.Children()),
		})
	}
	return out
}
