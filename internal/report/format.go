package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Duration colour thresholds in milliseconds.
const (
	SlowMs   = 100.0
	WarnMs   = 50.0
	NoticeMs = 10.0
)

const (
	barWidth   = 20
	barFilled  = "█"
	barEmpty   = "░"
	ellipsis   = "…"
	columnGap  = " "
	leftMargin = "  "
)

var categoryIcons = map[timing.AppFileCategory]string{
	timing.CategoryController: "🎮",
	timing.CategoryService:    "⚙️",
	timing.CategoryModel:      "📦",
	timing.CategoryMiddleware: "🔗",
	timing.CategoryValidator:  "✅",
	timing.CategoryException:  "💥",
	timing.CategoryEvent:      "📡",
	timing.CategoryListener:   "👂",
	timing.CategoryMailer:     "📧",
	timing.CategoryPolicy:     "🔐",
	timing.CategoryCommand:    "⌨️",
	timing.CategoryProvider:   "🔌",
	timing.CategoryConfig:     "⚙️",
	timing.CategoryStart:      "🚀",
	timing.CategoryOther:      "📄",
}

// FormatDuration formats milliseconds for display.
func FormatDuration(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.2fms", ms)
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// Bar draws a bar of width cells proportional to ms/maxMs.
func Bar(ms, maxMs float64, width int) string {
	ratio := 1.0
	if maxMs > 0 {
		ratio = math.Min(ms/maxMs, 1)
	}
	if ratio < 0 {
		ratio = 0
	}
	filled := int(math.Round(ratio * float64(width)))
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// truncateLeft keeps the last width cells of s, which is the informative
// end of a path.
func truncateLeft(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	keep := width - 1
	if keep < 0 {
		keep = 0
	}
	return ellipsis + string(r[len(r)-keep:])
}

func truncateRight(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	keep := width - 1
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + ellipsis
}

// pad right-pads s to width visible cells.
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// row lays cells out in fixed-width columns. The last column is not padded.
func row(widths []int, cells ...string) string {
	var b strings.Builder
	b.WriteString(leftMargin)
	for i, c := range cells {
		if i > 0 {
			b.WriteString(columnGap)
		}
		if i < len(cells)-1 && i < len(widths) {
			c = pad(c, widths[i])
		}
		b.WriteString(c)
	}
	return strings.TrimRight(b.String(), " ")
}
