package testutil

import (
	"github.com/coral-mesh/docteur/pkg/timing"
)

// SampleModules returns a small boot graph: an entry that imports a
// controller and a route file, a framework package, a third-party package
// and a built-in.
func SampleModules() []timing.ModuleTiming {
	return []timing.ModuleTiming{
		{
			ResolvedIdentifier: "file:///app/bin/server.js",
			LoadDurationMs:     2,
			ExecutionMs:        timing.Float64(40),
			StartTimestamp:     1,
			EndTimestamp:       3,
			Resolved:           true,
			Loaded:             true,
		},
		{
			Specifier:          "#start/routes",
			ResolvedIdentifier: "file:///app/start/routes.js",
			ParentIdentifier:   "file:///app/bin/server.js",
			ResolveDurationMs:  0.5,
			LoadDurationMs:     8,
			StartTimestamp:     3,
			EndTimestamp:       11,
			Resolved:           true,
			Loaded:             true,
		},
		{
			Specifier:          "#controllers/users_controller",
			ResolvedIdentifier: "file:///app/app/controllers/users_controller.js",
			ParentIdentifier:   "file:///app/start/routes.js",
			LoadDurationMs:     12,
			StartTimestamp:     11,
			EndTimestamp:       23,
			Resolved:           true,
			Loaded:             true,
		},
		{
			Specifier:          "@adonisjs/core",
			ResolvedIdentifier: "file:///app/node_modules/@adonisjs/core/build/index.js",
			ParentIdentifier:   "file:///app/bin/server.js",
			LoadDurationMs:     30,
			StartTimestamp:     23,
			EndTimestamp:       53,
			Resolved:           true,
			Loaded:             true,
		},
		{
			Specifier:          "lodash",
			ResolvedIdentifier: "file:///app/node_modules/lodash/lodash.js",
			ParentIdentifier:   "file:///app/app/controllers/users_controller.js",
			LoadDurationMs:     5,
			StartTimestamp:     53,
			EndTimestamp:       58,
			Resolved:           true,
			Loaded:             true,
		},
		{
			Specifier:          "node:fs",
			ResolvedIdentifier: "node:fs",
			ParentIdentifier:   "file:///app/bin/server.js",
			ResolveDurationMs:  0.1,
			Resolved:           true,
		},
	}
}

// SampleComponents returns the lifecycle timings of two providers.
func SampleComponents() []timing.ComponentPhaseTiming {
	return []timing.ComponentPhaseTiming{
		{ComponentName: "AppProvider", Phase: timing.PhaseRegister, DurationMs: 1},
		{ComponentName: "AppProvider", Phase: timing.PhaseBoot, DurationMs: 4},
		{ComponentName: "DatabaseProvider", Phase: timing.PhaseBoot, DurationMs: 12},
		{ComponentName: "DatabaseProvider", Phase: timing.PhaseStart, DurationMs: 50},
	}
}

// SampleResult returns a complete profile built from SampleModules and
// SampleComponents.
func SampleResult() timing.ProfileResult {
	return timing.ProfileResult{
		SessionID:      "8c1f7f4e-5b7e-4d0a-9f59-3f8f2d3c1a10",
		TotalTime:      120,
		StartTimestamp: 0,
		EndTimestamp:   120,
		Modules:        SampleModules(),
		Components:     SampleComponents(),
		Summary: timing.ProfileSummary{
			TotalModules:       6,
			BuiltinModules:     1,
			UserModules:        3,
			ThirdPartyModules:  1,
			FrameworkModules:   1,
			TotalModuleTime:    97,
			TotalComponentTime: 67,
		},
		Process: &timing.ProcessStats{PID: 4242, RSSBytes: 64 << 20, VMSBytes: 1 << 30, NumThreads: 11},
	}
}
