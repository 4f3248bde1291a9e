package xray

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/report"
	"github.com/coral-mesh/docteur/pkg/timing"
)

var (
	// Styles.
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14")).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	slowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// View renders the UI (Bubbletea interface).
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("🩺 Docteur X-Ray"))
	b.WriteString(labelStyle.Render(fmt.Sprintf("  %d modules, boot %s", len(m.result.Modules), report.FormatDuration(m.result.TotalTime))))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", max(m.width, 20)))
	b.WriteString("\n")

	switch m.current {
	case viewModule:
		b.WriteString(m.renderModule())
	case viewComponents:
		b.WriteString(m.renderComponents())
	default:
		b.WriteString(m.renderHome())
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render(m.hint()))
	return b.String()
}

func (m Model) hint() string {
	switch m.current {
	case viewModule:
		what := "importers"
		if m.parents {
			what = "imports"
		}
		return fmt.Sprintf("[↑/↓ move, enter open, p show %s, ← back, c components, q quit]", what)
	case viewComponents:
		return "[c/← back, q quit]"
	default:
		return "[↑/↓ move, enter open, / search, c components, esc/q quit]"
	}
}

func (m Model) renderHome() string {
	var b strings.Builder
	if m.searching || m.search.Value() != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("Slowest modules"))
	b.WriteString("\n\n")
	b.WriteString(m.renderItems(m.items(), "No modules match"))
	return b.String()
}

func (m Model) renderModule() string {
	id, _ := m.selected()
	node, ok := m.tree.Get(id)
	if !ok {
		return "Module not found\n"
	}
	t := node.Timing

	var b strings.Builder
	b.WriteString(selectedStyle.Render(m.conv.SimplifyURL(id, m.cwd)))
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	field("Specifier", t.DisplaySpecifier())
	field("Origin", string(m.conv.Categorize(id)))
	if pkg, ok := m.conv.ExtractPackageName(id); ok {
		field("Package", pkg)
	} else if m.conv.Categorize(id) == timing.OriginUser {
		field("Category", collector.CategorizeAppFile(id).DisplayName())
	}
	field("Resolve", report.FormatDuration(t.ResolveDurationMs))
	field("Load", report.FormatDuration(t.LoadDurationMs))
	if t.ExecutionMs != nil {
		field("Execute", report.FormatDuration(*t.ExecutionMs))
	}
	field("With imports", report.FormatDuration(m.tree.SubtreeTime(id)))

	path := m.tree.Path(id)
	crumbs := make([]string, len(path))
	for i, p := range path {
		crumbs[i] = m.conv.SimplifyURL(p, m.cwd)
	}
	field("Import path", strings.Join(crumbs, " → "))
	b.WriteString("\n")

	if m.parents {
		b.WriteString(labelStyle.Render(fmt.Sprintf("Imported by (%d)", len(node.Parents()))))
	} else {
		b.WriteString(labelStyle.Render(fmt.Sprintf("Imports (%d)", len(node.Children()))))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderItems(m.items(), "None"))
	return b.String()
}

func (m Model) renderItems(items []item, empty string) string {
	if len(items) == 0 {
		return labelStyle.Render(empty) + "\n"
	}

	labelWidth := max(m.width-40, 20)
	end := min(m.offset+m.pageSize(), len(items))

	var b strings.Builder
	for i := m.offset; i < end; i++ {
		it := items[i]
		cursor := "  "
		label := it.label
		if lipgloss.Width(label) > labelWidth {
			r := []rune(label)
			label = "…" + string(r[max(len(r)-labelWidth+1, 0):])
		}
		line := fmt.Sprintf("%-*s %10s %10s", labelWidth, label, report.FormatDuration(it.ms), report.FormatDuration(it.subtree))
		if it.count > 0 {
			line += fmt.Sprintf("  +%d", it.count)
		}
		switch {
		case i == m.cursor:
			cursor = "▸ "
			line = selectedStyle.Render(line)
		case it.ms >= report.SlowMs:
			line = slowStyle.Render(line)
		}
		b.WriteString(cursor)
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(items) > end-m.offset {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %d-%d of %d", m.offset+1, end, len(items))))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderComponents() string {
	groups := collector.GroupComponents(m.result.Components)
	if len(groups) == 0 {
		return labelStyle.Render("No component lifecycle timings recorded") + "\n"
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("Components"))
	b.WriteString("\n\n")
	for _, g := range groups {
		b.WriteString(fmt.Sprintf("  %-35s %10s  ", g.Name, report.FormatDuration(g.TotalTime)))
		var phases []string
		for _, p := range timing.Phases() {
			if ms, ok := g.Phases[p]; ok {
				phases = append(phases, fmt.Sprintf("%s %s", p, report.FormatDuration(ms)))
			}
		}
		b.WriteString(labelStyle.Render(strings.Join(phases, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}
