package collector

import (
	"fmt"

	"github.com/coral-mesh/docteur/pkg/timing"
)

// Thresholds behind Recommendations.
const (
	SlowBootMs   = 2000.0
	ManyModules  = 500
	SlowModuleMs = 100.0
)

// Recommendation is one actionable finding.
type Recommendation struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Recommendations inspects a result for common cold-start problems.
func (c *Collector) Recommendations(result timing.ProfileResult) []Recommendation {
	var recs []Recommendation

	if result.TotalTime > SlowBootMs {
		recs = append(recs, Recommendation{
			Title:  "Slow boot",
			Detail: "Total boot time is over 2s. Consider lazy-loading some providers.",
		})
	}

	if result.Summary.TotalModules > ManyModules {
		recs = append(recs, Recommendation{
			Title:  "Many modules",
			Detail: fmt.Sprintf("Loading %d modules. Consider code splitting or lazy imports.", result.Summary.TotalModules),
		})
	}

	slow := 0
	for _, m := range c.Filter(result.Modules) {
		if m.EffectiveTime() > SlowModuleMs {
			slow++
		}
	}
	if slow > 0 {
		recs = append(recs, Recommendation{
			Title:  "Slow modules",
			Detail: fmt.Sprintf("%d module(s) took over 100ms to load. Check for heavy initialization code.", slow),
		})
	}

	if result.Partial {
		recs = append(recs, Recommendation{
			Title:  "Partial data",
			Detail: "The process exited before reporting results. Timings only cover what was streamed before exit.",
		})
	}

	return recs
}
