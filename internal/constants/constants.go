// Package constants defines shared configuration constants and defaults.
package constants

import "time"

var (
	// ConfigFileNames are searched, in order, in the working directory.
	ConfigFileNames = []string{"docteur.yaml", ".docteur.yaml", ".docteur/config.yaml"}

	// DefaultEntryCandidates are tried, in order, when no entry is given.
	DefaultEntryCandidates = []string{"bin/server", "bin/server.js", "bin/server.ts", "server.js", "server.ts"}

	// DefaultCommand runs the entry under the host runtime.
	DefaultCommand = []string{"node"}
)

const (
	// EnvConfig overrides the configuration file location.
	EnvConfig = "DOCTEUR_CONFIG"

	// DefaultReadyPattern matches the line a booted HTTP server prints.
	DefaultReadyPattern = "started HTTP server"
)

// Timeouts - Default timeout values.
const (
	// DefaultTimeout bounds a whole profiling run.
	DefaultTimeout = 30 * time.Second

	// DefaultFallbackTimeout is how long to wait for readiness before
	// requesting results anyway.
	DefaultFallbackTimeout = 10 * time.Second

	// DefaultKillGrace separates SIGTERM from SIGKILL.
	DefaultKillGrace = 2 * time.Second

	// DefaultDrainTimeout bounds reading telemetry left in the pipes after
	// the child exits.
	DefaultDrainTimeout = 500 * time.Millisecond
)

// Report defaults.
const (
	DefaultTopModules = 20
	DefaultThreshold  = 1.0
)

// Collector conventions.
const (
	DefaultBuiltinPrefix  = "node:"
	DefaultDependencyDir  = "node_modules"
	DefaultFrameworkScope = "@adonisjs/"
)
