// Package report renders a profiling result as a static terminal report.
package report

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/pkg/timing"
	"github.com/coral-mesh/docteur/pkg/version"
)

const (
	defaultWidth  = 100
	maxPackages   = 10
	ruleSegments  = 25
	moduleColumn  = 50
	packageColumn = 35
	timeColumn    = 12
)

// Context is what a reporter renders. Reporters never modify it.
type Context struct {
	Result    timing.ProfileResult
	Collector *collector.Collector
	Cwd       string
}

type styles struct {
	title  lipgloss.Style
	bold   lipgloss.Style
	dim    lipgloss.Style
	red    lipgloss.Style
	yellow lipgloss.Style
	cyan   lipgloss.Style
	green  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		bold:   r.NewStyle().Bold(true),
		dim:    r.NewStyle().Foreground(lipgloss.Color("241")),
		red:    r.NewStyle().Foreground(lipgloss.Color("9")),
		yellow: r.NewStyle().Foreground(lipgloss.Color("11")),
		cyan:   r.NewStyle().Foreground(lipgloss.Color("6")),
		green:  r.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// Console writes the human-readable cold-start report.
type Console struct {
	out      io.Writer
	plain    bool
	width    int
	styles   styles
	markdown *glamour.TermRenderer
}

// Option configures a Console.
type Option func(*Console)

// WithPlain disables colours and markdown styling.
func WithPlain(plain bool) Option {
	return func(c *Console) {
		c.plain = plain
	}
}

// WithWidth sets the wrap width of the recommendations section.
func WithWidth(width int) Option {
	return func(c *Console) {
		if width > 0 {
			c.width = width
		}
	}
}

// NewConsole creates a report writer. Output is plain unless out is a
// terminal and NO_COLOR is unset.
func NewConsole(out io.Writer, opts ...Option) (*Console, error) {
	c := &Console{
		out:   out,
		plain: !isTerminal(out) || os.Getenv("NO_COLOR") != "",
		width: defaultWidth,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.styles = newStyles(lipgloss.NewRenderer(out))

	rendererOpts := []glamour.TermRendererOption{glamour.WithWordWrap(c.width)}
	if c.plain {
		rendererOpts = append(rendererOpts, glamour.WithStylePath("notty"))
	} else {
		rendererOpts = append(rendererOpts, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(rendererOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	c.markdown = renderer
	return c, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) paint(style lipgloss.Style, s string) string {
	if c.plain {
		return s
	}
	return style.Render(s)
}

func (c *Console) severity(ms float64) lipgloss.Style {
	switch {
	case ms >= SlowMs:
		return c.styles.red
	case ms >= WarnMs:
		return c.styles.yellow
	case ms >= NoticeMs:
		return c.styles.cyan
	default:
		return c.styles.green
	}
}

func (c *Console) duration(ms float64) string {
	return c.paint(c.severity(ms), FormatDuration(ms))
}

func (c *Console) bar(ms, maxMs float64) string {
	return c.paint(c.severity(ms), Bar(ms, maxMs, barWidth))
}

// Render writes the full report.
func (c *Console) Render(ctx Context) error {
	var b strings.Builder

	c.header(&b)
	c.summary(&b, ctx.Result)
	c.appFiles(&b, ctx)
	c.slowestModules(&b, ctx)
	if ctx.Collector.Config().GroupByPackage {
		c.packages(&b, ctx)
	}
	c.components(&b, ctx.Result)
	c.recommendations(&b, ctx)
	c.footer(&b)

	_, err := io.WriteString(c.out, b.String())
	return err
}

func (c *Console) rule() string {
	return c.paint(c.styles.dim, leftMargin+strings.Repeat("─", ruleSegments*2))
}

func (c *Console) section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "%s\n\n", c.paint(c.styles.bold, leftMargin+title))
}

func (c *Console) header(b *strings.Builder) {
	fmt.Fprintf(b, "\n%s\n%s\n\n", c.paint(c.styles.title, leftMargin+"🩺 Docteur - Cold Start Analysis"), c.rule())
}

func (c *Console) summary(b *strings.Builder, r timing.ProfileResult) {
	c.section(b, "📊 Summary")

	widths := []int{24}
	line := func(label, value string) {
		fmt.Fprintln(b, row(widths, c.paint(c.styles.dim, label), value))
	}
	s := r.Summary
	line("Total boot time:", c.duration(r.TotalTime))
	line("Total modules loaded:", fmt.Sprint(s.TotalModules))
	line("  App modules:", fmt.Sprint(s.UserModules))
	line("  Third-party modules:", fmt.Sprint(s.ThirdPartyModules))
	line("  Framework modules:", fmt.Sprint(s.FrameworkModules))
	line("  Built-in modules:", fmt.Sprint(s.BuiltinModules))
	line("Module load time:", c.duration(s.TotalModuleTime))
	if len(r.Components) > 0 {
		line("Component boot time:", c.duration(s.TotalComponentTime))
	}
	if r.Process != nil {
		line("Memory (RSS):", FormatBytes(r.Process.RSSBytes))
		line("Threads:", fmt.Sprint(r.Process.NumThreads))
	}
	if r.DroppedEvents > 0 {
		line("Dropped events:", c.paint(c.styles.yellow, fmt.Sprint(r.DroppedEvents)))
	}
	if r.Partial {
		fmt.Fprintf(b, "\n%s\n", c.paint(c.styles.yellow, leftMargin+"⚠ Partial profile: the process exited before reporting results"))
	}
	b.WriteString("\n")
}

func (c *Console) appFiles(b *strings.Builder, ctx Context) {
	groups := ctx.Result.Summary.AppFileGroups
	if len(groups) == 0 {
		return
	}
	c.section(b, "📁 App Files by Category")

	conv := ctx.Collector.Conventions()
	widths := []int{43, timeColumn}
	for _, g := range groups {
		if len(g.Files) == 0 {
			continue
		}
		header := fmt.Sprintf("%s %s (%d files, %s)", categoryIcons[g.Category], g.DisplayName, len(g.Files), FormatDuration(g.TotalTime))
		fmt.Fprintln(b, c.paint(c.styles.bold, leftMargin+header))

		maxTime := g.Files[0].EffectiveTime()
		for _, f := range g.Files {
			name := path.Base(conv.SimplifyURL(f.ResolvedIdentifier, ctx.Cwd))
			t := f.EffectiveTime()
			fmt.Fprintln(b, leftMargin+row(widths, truncateLeft(name, widths[0]), c.duration(t), c.bar(t, maxTime)))
		}
		b.WriteString("\n")
	}
}

func (c *Console) slowestModules(b *strings.Builder, ctx Context) {
	col := ctx.Collector
	slowest := col.Top(ctx.Result.Modules)
	if len(slowest) == 0 {
		fmt.Fprintf(b, "%s\n\n", c.paint(c.styles.dim, leftMargin+"No modules found above the threshold"))
		return
	}
	c.section(b, fmt.Sprintf("🐢 Slowest Modules (top %d)", col.Config().TopModules))

	widths := []int{3, moduleColumn, timeColumn}
	fmt.Fprintln(b, row(widths, c.paint(c.styles.dim, "#"), c.paint(c.styles.dim, "Module"), c.paint(c.styles.dim, "Time")))
	maxTime := slowest[0].EffectiveTime()
	for i, m := range slowest {
		name := col.Conventions().SimplifyURL(m.ResolvedIdentifier, ctx.Cwd)
		t := m.EffectiveTime()
		fmt.Fprintln(b, row(widths,
			c.paint(c.styles.dim, fmt.Sprint(i+1)),
			truncateLeft(name, moduleColumn),
			c.duration(t),
			c.bar(t, maxTime),
		))
	}
	b.WriteString("\n")
}

func (c *Console) packages(b *strings.Builder, ctx Context) {
	col := ctx.Collector
	groups := col.GroupByPackage(col.Filter(ctx.Result.Modules))
	if len(groups) == 0 {
		return
	}
	if len(groups) > maxPackages {
		groups = groups[:maxPackages]
	}
	c.section(b, "📦 Slowest Packages")

	widths := []int{3, packageColumn, 8, timeColumn}
	fmt.Fprintln(b, row(widths,
		c.paint(c.styles.dim, "#"), c.paint(c.styles.dim, "Package"),
		c.paint(c.styles.dim, "Modules"), c.paint(c.styles.dim, "Total")))
	maxTime := groups[0].TotalTime
	for i, g := range groups {
		fmt.Fprintln(b, row(widths,
			c.paint(c.styles.dim, fmt.Sprint(i+1)),
			truncateRight(g.Name, packageColumn),
			c.paint(c.styles.dim, fmt.Sprint(len(g.Modules))),
			c.duration(g.TotalTime),
			c.bar(g.TotalTime, maxTime),
		))
	}
	b.WriteString("\n")
}

func (c *Console) components(b *strings.Builder, r timing.ProfileResult) {
	groups := collector.GroupComponents(r.Components)
	if len(groups) == 0 {
		return
	}
	c.section(b, "⚡ Component Lifecycle Times")

	// Only phases that occurred get a column.
	var phases []timing.Phase
	for _, p := range timing.Phases() {
		for _, g := range groups {
			if _, ok := g.Phases[p]; ok {
				phases = append(phases, p)
				break
			}
		}
	}

	widths := []int{3, packageColumn}
	head := []string{c.paint(c.styles.dim, "#"), c.paint(c.styles.dim, "Component")}
	for _, p := range phases {
		widths = append(widths, timeColumn)
		head = append(head, c.paint(c.styles.dim, strings.ToUpper(p.String()[:1])+p.String()[1:]))
	}
	widths = append(widths, timeColumn)
	head = append(head, c.paint(c.styles.dim, "Total"))
	fmt.Fprintln(b, row(widths, head...))

	maxTime := groups[0].TotalTime
	for i, g := range groups {
		cells := []string{c.paint(c.styles.dim, fmt.Sprint(i+1)), truncateRight(g.Name, packageColumn)}
		for _, p := range phases {
			if ms, ok := g.Phases[p]; ok {
				cells = append(cells, c.duration(ms))
			} else {
				cells = append(cells, c.paint(c.styles.dim, "-"))
			}
		}
		cells = append(cells, c.duration(g.TotalTime), c.bar(g.TotalTime, maxTime))
		fmt.Fprintln(b, row(widths, cells...))
	}
	b.WriteString("\n")
}

func (c *Console) recommendations(b *strings.Builder, ctx Context) {
	recs := ctx.Collector.Recommendations(ctx.Result)
	if len(recs) == 0 {
		fmt.Fprintf(b, "%s\n\n", c.paint(c.styles.green, leftMargin+"✅ No major issues detected!"))
		return
	}

	var md strings.Builder
	md.WriteString("## 💡 Recommendations\n\n")
	for _, rec := range recs {
		fmt.Fprintf(&md, "- **%s**: %s\n", rec.Title, rec.Detail)
	}

	rendered, err := c.markdown.Render(md.String())
	if err != nil {
		rendered = md.String()
	}
	b.WriteString(rendered)
	b.WriteString("\n")
}

func (c *Console) footer(b *strings.Builder) {
	fmt.Fprintf(b, "%s\n%s\n\n", c.rule(), c.paint(c.styles.dim, leftMargin+version.Short()+" · run with --help for more options"))
}
