package collector

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// appPackage is the package name of modules outside the dependency directory.
const appPackage = "app"

// Collector applies a report configuration to module lists.
type Collector struct {
	cfg    timing.Config
	conv   Conventions
	where  *Predicate
	logger zerolog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithConventions replaces DefaultConventions. Empty fields keep defaults.
func WithConventions(c Conventions) Option {
	return func(col *Collector) {
		col.conv = c.withDefaults()
	}
}

// WithLogger sets the logger used to report predicate evaluation failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(col *Collector) {
		col.logger = logger.With().Str("component", "collector").Logger()
	}
}

// New creates a collector. It fails when the where expression is invalid.
func New(cfg timing.Config, opts ...Option) (*Collector, error) {
	c := &Collector{cfg: cfg, conv: DefaultConventions(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("threshold must not be negative, got %v", cfg.Threshold)
	}
	if cfg.Where != "" {
		p, err := CompilePredicate(cfg.Where)
		if err != nil {
			return nil, err
		}
		c.where = p
	}
	return c, nil
}

// Config returns the configuration the collector applies.
func (c *Collector) Config() timing.Config {
	return c.cfg
}

// Conventions returns the categorisation rules in use.
func (c *Collector) Conventions() Conventions {
	return c.conv
}

// Filter drops modules below the threshold, every built-in, dependency
// modules unless third-party modules are included, and modules the where
// expression rejects. Order is preserved.
func (c *Collector) Filter(modules []timing.ModuleTiming) []timing.ModuleTiming {
	out := make([]timing.ModuleTiming, 0, len(modules))
	for _, m := range modules {
		if m.EffectiveTime() < c.cfg.Threshold {
			continue
		}
		switch c.conv.Categorize(m.ResolvedIdentifier) {
		case timing.OriginBuiltin:
			continue
		case timing.OriginThirdParty, timing.OriginFramework:
			if !c.cfg.IncludeThirdParty {
				continue
			}
		}
		if c.where != nil {
			ok, err := c.where.Match(m, c.conv)
			if err != nil {
				c.logger.Debug().Err(err).Msg("Where expression failed, module excluded")
				continue
			}
			if !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// SortByEffectiveTime returns a copy sorted slowest first. Ties keep their
// original order.
func SortByEffectiveTime(modules []timing.ModuleTiming) []timing.ModuleTiming {
	out := make([]timing.ModuleTiming, len(modules))
	copy(out, modules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveTime() > out[j].EffectiveTime()
	})
	return out
}

// TopSlowest returns the n slowest modules. A negative n returns all of them.
func TopSlowest(modules []timing.ModuleTiming, n int) []timing.ModuleTiming {
	sorted := SortByEffectiveTime(modules)
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Top returns the configured number of slowest filtered modules.
func (c *Collector) Top(modules []timing.ModuleTiming) []timing.ModuleTiming {
	return TopSlowest(c.Filter(modules), c.cfg.TopModules)
}

func sumEffective(modules []timing.ModuleTiming) float64 {
	var total float64
	for _, m := range modules {
		total += m.EffectiveTime()
	}
	return total
}

// GroupByPackage buckets modules by dependency package ("app" for user
// code), slowest bucket first. Buckets with equal totals keep the order in
// which they were first seen.
func (c *Collector) GroupByPackage(modules []timing.ModuleTiming) []timing.PackageGroup {
	index := make(map[string]int)
	var groups []timing.PackageGroup
	for _, m := range modules {
		name, ok := c.conv.ExtractPackageName(m.ResolvedIdentifier)
		if !ok {
			name = appPackage
		}
		i, seen := index[name]
		if !seen {
			i = len(groups)
			index[name] = i
			groups = append(groups, timing.PackageGroup{Name: name})
		}
		groups[i].Modules = append(groups[i].Modules, m)
	}

	for i := range groups {
		groups[i].Modules = SortByEffectiveTime(groups[i].Modules)
		groups[i].TotalTime = sumEffective(groups[i].Modules)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].TotalTime > groups[j].TotalTime
	})
	return groups
}

// GroupAppFilesByCategory buckets user-code modules by semantic role,
// slowest bucket first with files sorted slowest first.
func (c *Collector) GroupAppFilesByCategory(modules []timing.ModuleTiming) []timing.AppFileGroup {
	index := make(map[timing.AppFileCategory]int)
	var groups []timing.AppFileGroup
	for _, m := range modules {
		if c.conv.Categorize(m.ResolvedIdentifier) != timing.OriginUser {
			continue
		}
		cat := CategorizeAppFile(m.ResolvedIdentifier)
		i, seen := index[cat]
		if !seen {
			i = len(groups)
			index[cat] = i
			groups = append(groups, timing.AppFileGroup{Category: cat, DisplayName: cat.DisplayName()})
		}
		groups[i].Files = append(groups[i].Files, m)
	}

	for i := range groups {
		groups[i].Files = SortByEffectiveTime(groups[i].Files)
		groups[i].TotalTime = sumEffective(groups[i].Files)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].TotalTime > groups[j].TotalTime
	})
	return groups
}

// GroupComponents gathers phase durations per component, slowest component
// first. Repeated phases of a component add up.
func GroupComponents(components []timing.ComponentPhaseTiming) []timing.ComponentGroup {
	index := make(map[string]int)
	var groups []timing.ComponentGroup
	for _, c := range components {
		i, seen := index[c.ComponentName]
		if !seen {
			i = len(groups)
			index[c.ComponentName] = i
			groups = append(groups, timing.ComponentGroup{Name: c.ComponentName, Phases: make(map[timing.Phase]float64)})
		}
		groups[i].Phases[c.Phase] += c.DurationMs
		groups[i].TotalTime += c.DurationMs
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].TotalTime > groups[j].TotalTime
	})
	return groups
}

// Summarize computes origin counts, totals and the app file breakdown in
// one pass over modules.
func (c *Collector) Summarize(modules []timing.ModuleTiming, components []timing.ComponentPhaseTiming) timing.ProfileSummary {
	s := timing.ProfileSummary{TotalModules: len(modules)}
	for _, m := range modules {
		s.TotalModuleTime += m.EffectiveTime()
		switch c.conv.Categorize(m.ResolvedIdentifier) {
		case timing.OriginBuiltin:
			s.BuiltinModules++
		case timing.OriginFramework:
			s.FrameworkModules++
		case timing.OriginThirdParty:
			s.ThirdPartyModules++
		case timing.OriginUser:
			s.UserModules++
		}
	}
	for _, comp := range components {
		s.TotalComponentTime += comp.DurationMs
	}
	s.AppFileGroups = c.GroupAppFilesByCategory(modules)
	if s.AppFileGroups == nil {
		s.AppFileGroups = []timing.AppFileGroup{}
	}
	return s
}

// CollectResults builds the immutable result of a session.
func (c *Collector) CollectResults(modules []timing.ModuleTiming, components []timing.ComponentPhaseTiming, start, end float64) timing.ProfileResult {
	mods := append([]timing.ModuleTiming{}, modules...)
	comps := append([]timing.ComponentPhaseTiming{}, components...)
	return timing.ProfileResult{
		TotalTime:      end - start,
		StartTimestamp: start,
		EndTimestamp:   end,
		Modules:        mods,
		Components:     comps,
		Summary:        c.Summarize(mods, comps),
	}
}
