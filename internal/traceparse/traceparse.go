// Package traceparse reads module load timings from a Node.js trace event
// file (Chrome Trace Event Format) recorded with the node.module_timer
// category. It is an alternative timing source that needs no in-process
// instrumentation.
package traceparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/coral-mesh/docteur/internal/safe"
	"github.com/coral-mesh/docteur/pkg/timing"
)

const (
	// ModuleTimerCategory is the trace category Node uses for require timing.
	ModuleTimerCategory = "node.module_timer"

	requirePrefix = "require("
)

// EventType is the "ph" field of a trace event.
type EventType string

// Event types used by module timers.
const (
	TypeNestableStart EventType = "b"
	TypeNestableEnd   EventType = "e"
	TypeComplete      EventType = "X"
)

// TraceEvent is one entry of the traceEvents array. Timestamps are in
// microseconds.
type TraceEvent struct {
	Name      string    `json:"name"`
	Phase     EventType `json:"ph"`
	ProcessID int       `json:"pid"`
	ThreadID  int       `json:"tid"`
	Category  string    `json:"cat"`
	TimeStamp float64   `json:"ts"`
	Duration  float64   `json:"dur,omitempty"`
	ID        string    `json:"id,omitempty"`
}

// TraceFile is the top-level document Node writes.
type TraceFile struct {
	TraceEvents []TraceEvent `json:"traceEvents"`
}

// ModuleLoadTiming is one require() measured by the runtime.
type ModuleLoadTiming struct {
	Name       string  `json:"name" header:"MODULE"`
	LoadTimeUs float64 `json:"loadTimeUs" header:"LOAD_US"`
	LoadTimeMs float64 `json:"loadTimeMs" header:"LOAD_MS"`
}

// ParseFile parses the trace file at path.
func ParseFile(path string) ([]ModuleLoadTiming, error) {
	f, err := safe.Open(path, &safe.FileOptions{MaxSize: safe.MaxTraceFileSize, AllowSymlinks: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	return Parse(f)
}

// Parse decodes a trace document and pairs module timer events. Begin and
// end events are matched by thread id and name; complete events carry their
// own duration. Output is in completion order.
func Parse(r io.Reader) ([]ModuleLoadTiming, error) {
	var trace TraceFile
	if err := json.NewDecoder(r).Decode(&trace); err != nil {
		return nil, fmt.Errorf("failed to decode trace file: %w", err)
	}

	type key struct {
		tid  int
		name string
	}
	begins := make(map[key]TraceEvent)
	timings := make([]ModuleLoadTiming, 0)

	for _, ev := range trace.TraceEvents {
		if !strings.Contains(ev.Category, ModuleTimerCategory) || !strings.HasPrefix(ev.Name, requirePrefix) {
			continue
		}
		k := key{ev.ThreadID, ev.Name}
		switch ev.Phase {
		case TypeNestableStart:
			begins[k] = ev
		case TypeNestableEnd:
			begin, ok := begins[k]
			if !ok {
				continue
			}
			delete(begins, k)
			timings = append(timings, newTiming(ev.Name, ev.TimeStamp-begin.TimeStamp))
		case TypeComplete:
			timings = append(timings, newTiming(ev.Name, ev.Duration))
		}
	}
	return timings, nil
}

func newTiming(name string, us float64) ModuleLoadTiming {
	return ModuleLoadTiming{Name: name, LoadTimeUs: us, LoadTimeMs: us / 1000}
}

var requireName = regexp.MustCompile(`require\(['"](.+)['"]\)`)

// ExtractModuleName turns "require('lodash')" into "lodash". Names that do
// not match are returned unchanged.
func ExtractModuleName(traceName string) string {
	if m := requireName.FindStringSubmatch(traceName); m != nil {
		return m[1]
	}
	return traceName
}

// Aggregate sums load time per module name, in first-seen order.
func Aggregate(timings []ModuleLoadTiming) []ModuleLoadTiming {
	index := make(map[string]int)
	out := make([]ModuleLoadTiming, 0, len(timings))
	for _, t := range timings {
		name := ExtractModuleName(t.Name)
		i, ok := index[name]
		if !ok {
			index[name] = len(out)
			out = append(out, ModuleLoadTiming{Name: name})
			i = len(out) - 1
		}
		out[i].LoadTimeUs += t.LoadTimeUs
		out[i].LoadTimeMs += t.LoadTimeMs
	}
	return out
}

// SortByLoadTime orders aggregated timings slowest first. Ties keep their
// order.
func SortByLoadTime(timings []ModuleLoadTiming) []ModuleLoadTiming {
	out := make([]ModuleLoadTiming, len(timings))
	copy(out, timings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LoadTimeUs > out[j].LoadTimeUs
	})
	return out
}

// ToModuleTimings converts aggregated timings into module records so the
// collector and reporters can consume them. Trace files carry no parent
// links or timestamps.
func ToModuleTimings(timings []ModuleLoadTiming) []timing.ModuleTiming {
	out := make([]timing.ModuleTiming, len(timings))
	for i, t := range timings {
		name := ExtractModuleName(t.Name)
		out[i] = timing.ModuleTiming{
			Specifier:          name,
			ResolvedIdentifier: name,
			LoadDurationMs:     t.LoadTimeMs,
			Loaded:             true,
		}
	}
	return out
}

// Cleanup removes a trace file. A missing file is not an error.
func Cleanup(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove trace file: %w", err)
	}
	return nil
}
