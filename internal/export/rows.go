package export

import (
	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// ModuleRow is the flat, display-ready form of a module used by the table
// and CSV formats.
type ModuleRow struct {
	Module      string   `json:"module" header:"MODULE"`
	Origin      string   `json:"origin" header:"ORIGIN"`
	Package     string   `json:"package" header:"PACKAGE"`
	ResolveMs   float64  `json:"resolveMs" header:"RESOLVE_MS"`
	LoadMs      float64  `json:"loadMs" header:"LOAD_MS"`
	ExecMs      *float64 `json:"execMs,omitempty" header:"EXEC_MS"`
	EffectiveMs float64  `json:"effectiveMs" header:"EFFECTIVE_MS"`
	Parent      string   `json:"parent,omitempty" header:"PARENT"`
}

// ModuleRows converts modules into rows, shortening identifiers relative to
// cwd.
func ModuleRows(modules []timing.ModuleTiming, conv collector.Conventions, cwd string) []ModuleRow {
	rows := make([]ModuleRow, len(modules))
	for i, m := range modules {
		pkg, ok := conv.ExtractPackageName(m.ResolvedIdentifier)
		if !ok {
			pkg = "-"
		}
		parent := ""
		if m.ParentIdentifier != "" {
			parent = conv.SimplifyURL(m.ParentIdentifier, cwd)
		}
		rows[i] = ModuleRow{
			Module:      conv.SimplifyURL(m.ResolvedIdentifier, cwd),
			Origin:      string(conv.Categorize(m.ResolvedIdentifier)),
			Package:     pkg,
			ResolveMs:   m.ResolveDurationMs,
			LoadMs:      m.LoadDurationMs,
			ExecMs:      m.ExecutionMs,
			EffectiveMs: m.EffectiveTime(),
			Parent:      parent,
		}
	}
	return rows
}
