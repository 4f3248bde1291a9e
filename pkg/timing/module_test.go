package timing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleTiming_EffectiveTime(t *testing.T) {
	tests := []struct {
		name string
		m    ModuleTiming
		want float64
	}{
		{"load only", ModuleTiming{LoadDurationMs: 12}, 12},
		{"execution wins", ModuleTiming{LoadDurationMs: 12, ExecutionMs: Float64(3)}, 3},
		{"zero execution still wins", ModuleTiming{LoadDurationMs: 12, ExecutionMs: Float64(0)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.EffectiveTime())
			assert.Equal(t, tt.m.ExecutionMs != nil, tt.m.HasExecution())
		})
	}
}

func TestModuleTiming_MergeResolveThenLoad(t *testing.T) {
	resolve := ModuleTiming{
		Specifier:          "./a.js",
		ResolvedIdentifier: "file:///app/a.js",
		ParentIdentifier:   "file:///app/main.js",
		ResolveDurationMs:  0.5,
		Resolved:           true,
	}
	load := ModuleTiming{
		ResolvedIdentifier: "file:///app/a.js",
		LoadDurationMs:     7,
		StartTimestamp:     10,
		EndTimestamp:       17,
		Loaded:             true,
	}

	got := resolve.Merge(load)
	assert.Equal(t, "./a.js", got.Specifier)
	assert.Equal(t, "file:///app/main.js", got.ParentIdentifier)
	assert.Equal(t, 0.5, got.ResolveDurationMs)
	assert.Equal(t, 7.0, got.LoadDurationMs)
	assert.Equal(t, 10.0, got.StartTimestamp)
	assert.Equal(t, 17.0, got.EndTimestamp)
	assert.True(t, got.Resolved)
	assert.True(t, got.Loaded)

	// Order of arrival must not matter.
	assert.Equal(t, got, load.Merge(resolve))
}

func TestModuleTiming_MergeKeepsFirstParent(t *testing.T) {
	first := ModuleTiming{
		Specifier: "lodash", ResolvedIdentifier: "lodash.js",
		ParentIdentifier: "a.js", ResolveDurationMs: 1, Resolved: true,
	}
	second := ModuleTiming{
		Specifier: "lodash", ResolvedIdentifier: "lodash.js",
		ParentIdentifier: "b.js", ResolveDurationMs: 9, Resolved: true,
	}

	got := first.Merge(second).Merge(second)
	assert.Equal(t, "a.js", got.ParentIdentifier)
	assert.Equal(t, []string{"b.js"}, got.OtherParents)
	assert.Equal(t, []string{"a.js", "b.js"}, got.Parents())
	assert.Equal(t, 1.0, got.ResolveDurationMs)
}

func TestModuleTiming_MergeIgnoresSelfParent(t *testing.T) {
	m := ModuleTiming{ResolvedIdentifier: "x.js"}
	got := m.Merge(ModuleTiming{ResolvedIdentifier: "x.js", ParentIdentifier: "x.js"})
	assert.Empty(t, got.ParentIdentifier)
	assert.Nil(t, got.Parents())
}

func TestModuleTiming_MergeDoesNotAlias(t *testing.T) {
	base := ModuleTiming{ResolvedIdentifier: "x.js", ParentIdentifier: "a.js", OtherParents: []string{"b.js"}}
	merged := base.Merge(ModuleTiming{ResolvedIdentifier: "x.js", ParentIdentifier: "c.js"})
	merged.OtherParents[0] = "mutated"
	assert.Equal(t, []string{"b.js"}, base.OtherParents)

	exec := ModuleTiming{ResolvedIdentifier: "x.js", ExecutionMs: Float64(4)}
	merged = base.Merge(exec)
	*exec.ExecutionMs = 99
	assert.Equal(t, 4.0, *merged.ExecutionMs)
}

func TestModuleTiming_DisplaySpecifier(t *testing.T) {
	assert.Equal(t, "./a", ModuleTiming{Specifier: "./a", ResolvedIdentifier: "/app/a.js"}.DisplaySpecifier())
	assert.Equal(t, "/app/a.js", ModuleTiming{ResolvedIdentifier: "/app/a.js"}.DisplaySpecifier())
}

func TestModuleSet(t *testing.T) {
	s := NewModuleSet()

	_, ok := s.Add(ModuleTiming{Specifier: "orphan"})
	assert.False(t, ok, "records without identifier are ignored")

	s.Add(ModuleTiming{ResolvedIdentifier: "b", Specifier: "./b", Resolved: true})
	s.Add(ModuleTiming{ResolvedIdentifier: "a", LoadDurationMs: 2, Loaded: true})
	merged, ok := s.Add(ModuleTiming{ResolvedIdentifier: "b", LoadDurationMs: 5, Loaded: true})
	require.True(t, ok)
	assert.Equal(t, "./b", merged.Specifier)
	assert.Equal(t, 5.0, merged.LoadDurationMs)

	assert.Equal(t, 2, s.Len())
	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].ResolvedIdentifier)
	assert.Equal(t, "a", snap[1].ResolvedIdentifier)

	snap[0].Specifier = "changed"
	got, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, "./b", got.Specifier)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestModuleSet_ConcurrentAdd(t *testing.T) {
	s := NewModuleSet()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Add(ModuleTiming{ResolvedIdentifier: "shared", Specifier: "shared", Resolved: true})
			} else {
				s.Add(ModuleTiming{ResolvedIdentifier: "shared", LoadDurationMs: 3, Loaded: true})
			}
		}(i)
	}
	wg.Wait()

	got, ok := s.Get("shared")
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())
	assert.True(t, got.Resolved)
	assert.True(t, got.Loaded)
	assert.Equal(t, "shared", got.Specifier)
}
