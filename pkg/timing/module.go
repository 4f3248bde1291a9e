package timing

// ModuleTiming is the timing record of one module load attempt.
//
// A record may be built in two passes: the resolve hook fills specifier,
// parent and resolve duration, the load hook fills load duration and
// timestamps. Merge combines both passes without losing either.
type ModuleTiming struct {
	Specifier          string   `json:"specifier" header:"SPECIFIER"`
	ResolvedIdentifier string   `json:"resolvedIdentifier" header:"MODULE"`
	ParentIdentifier   string   `json:"parentIdentifier,omitempty" header:"PARENT"`
	OtherParents       []string `json:"otherParents,omitempty"`
	ResolveDurationMs  float64  `json:"resolveDurationMs" header:"RESOLVE_MS"`
	LoadDurationMs     float64  `json:"loadDurationMs" header:"LOAD_MS"`
	ExecutionMs        *float64 `json:"executionDurationMs,omitempty"`
	StartTimestamp     float64  `json:"startTimestamp"`
	EndTimestamp       float64  `json:"endTimestamp"`
	Resolved           bool     `json:"resolved"`
	Loaded             bool     `json:"loaded"`
}

// EffectiveTime returns the execution time when it was measured and the load
// time otherwise. It is the ranking metric used by every report.
func (m ModuleTiming) EffectiveTime() float64 {
	if m.ExecutionMs != nil {
		return *m.ExecutionMs
	}
	return m.LoadDurationMs
}

// HasExecution reports whether execution-time instrumentation measured this module.
func (m ModuleTiming) HasExecution() bool {
	return m.ExecutionMs != nil
}

// Merge folds other into m and returns the result. Fields captured by the
// resolve pass (specifier, parent, resolve duration) are filled once and never
// cleared; later importers of the same module are kept in OtherParents. Load
// pass fields are taken from whichever side carries them.
func (m ModuleTiming) Merge(other ModuleTiming) ModuleTiming {
	out := m
	out.OtherParents = append([]string(nil), m.OtherParents...)
	if out.ResolvedIdentifier == "" {
		out.ResolvedIdentifier = other.ResolvedIdentifier
	}
	if out.Specifier == "" {
		out.Specifier = other.Specifier
	}

	for _, p := range other.Parents() {
		out = out.withParent(p)
	}

	if other.Resolved && !out.Resolved {
		out.ResolveDurationMs = other.ResolveDurationMs
		out.Resolved = true
	}

	if other.Loaded {
		out.LoadDurationMs = other.LoadDurationMs
		out.StartTimestamp = other.StartTimestamp
		out.EndTimestamp = other.EndTimestamp
		out.Loaded = true
	}

	if other.ExecutionMs != nil {
		v := *other.ExecutionMs
		out.ExecutionMs = &v
	}

	return out
}

// Parents returns every recorded importer, primary parent first.
func (m ModuleTiming) Parents() []string {
	if m.ParentIdentifier == "" {
		return nil
	}
	out := make([]string, 0, 1+len(m.OtherParents))
	out = append(out, m.ParentIdentifier)
	return append(out, m.OtherParents...)
}

func (m ModuleTiming) withParent(p string) ModuleTiming {
	if p == "" || p == m.ResolvedIdentifier {
		return m
	}
	if m.ParentIdentifier == "" {
		m.ParentIdentifier = p
		return m
	}
	if m.ParentIdentifier == p {
		return m
	}
	for _, existing := range m.OtherParents {
		if existing == p {
			return m
		}
	}
	m.OtherParents = append(m.OtherParents, p)
	return m
}

// DisplaySpecifier returns the import specifier, falling back to the resolved
// identifier for records that never went through the resolve pass.
func (m ModuleTiming) DisplaySpecifier() string {
	if m.Specifier != "" {
		return m.Specifier
	}
	return m.ResolvedIdentifier
}

// Float64 returns a pointer to v. Handy for ExecutionMs literals.
func Float64(v float64) *float64 {
	return &v
}
