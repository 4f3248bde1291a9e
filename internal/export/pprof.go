package export

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/deptree"
	"github.com/coral-mesh/docteur/internal/safe"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// Pprof sample types. Each module contributes one sample whose stack is its
// first-parent import chain, so pprof's cumulative view sums time under the
// importer that pulled a module in.
var pprofSampleTypes = []*profile.ValueType{
	{Type: "load", Unit: "nanoseconds"},
	{Type: "effective", Unit: "nanoseconds"},
}

// BuildProfile converts a result into a pprof profile.
func BuildProfile(result timing.ProfileResult, conv collector.Conventions, cwd string) *profile.Profile {
	prof := &profile.Profile{
		SampleType:        pprofSampleTypes,
		DefaultSampleType: "effective",
		PeriodType:        &profile.ValueType{Type: "module", Unit: "count"},
		Period:            1,
		DurationNanos:     msToNanos(result.TotalTime),
	}

	tree := deptree.Build(result.Modules)
	locations := make(map[string]*profile.Location)
	location := func(id string) *profile.Location {
		if loc, ok := locations[id]; ok {
			return loc
		}
		fn := &profile.Function{
			ID:         uint64(len(prof.Function) + 1),
			Name:       conv.SimplifyURL(id, cwd),
			SystemName: id,
			Filename:   id,
		}
		loc := &profile.Location{
			ID:   uint64(len(prof.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, loc)
		locations[id] = loc
		return loc
	}

	for _, m := range result.Modules {
		if m.ResolvedIdentifier == "" {
			continue
		}
		chain := tree.Path(m.ResolvedIdentifier)
		stack := make([]*profile.Location, 0, len(chain))
		for i := len(chain) - 1; i >= 0; i-- {
			stack = append(stack, location(chain[i]))
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: stack,
			Value:    []int64{msToNanos(m.LoadDurationMs), msToNanos(m.EffectiveTime())},
			Label:    map[string][]string{"origin": {string(conv.Categorize(m.ResolvedIdentifier))}},
		})
	}

	return prof
}

// WritePprof writes result as a gzipped pprof profile.
func WritePprof(w io.Writer, result timing.ProfileResult, conv collector.Conventions, cwd string) error {
	prof := BuildProfile(result, conv, cwd)
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid pprof profile: %w", err)
	}
	if err := prof.Write(w); err != nil {
		return fmt.Errorf("failed to write pprof profile: %w", err)
	}
	return nil
}

func msToNanos(ms float64) int64 {
	ns, _ := safe.MillisToNanos(ms)
	return ns
}
