// Package config loads the docteur configuration from defaults, a YAML file
// and DOCTEUR_* environment variables, in that order of precedence.
package config

import (
	"time"

	"github.com/coral-mesh/docteur/internal/collector"
)

// Config is the complete docteur configuration.
type Config struct {
	Profile     ProfileConfig         `yaml:"profile" json:"profile"`
	Runtime     RuntimeConfig         `yaml:"runtime" json:"runtime"`
	Conventions collector.Conventions `yaml:"conventions" json:"conventions"`
	Logging     LoggingConfig         `yaml:"logging" json:"logging"`
}

// ProfileConfig controls what the report shows.
type ProfileConfig struct {
	TopModules        int     `yaml:"top_modules" json:"top_modules" env:"DOCTEUR_TOP_MODULES" jsonschema:"minimum=0,description=Number of slowest modules to display"`
	ThresholdMs       float64 `yaml:"threshold_ms" json:"threshold_ms" env:"DOCTEUR_THRESHOLD_MS" jsonschema:"minimum=0,description=Hide modules whose effective time is below this many milliseconds"`
	IncludeThirdParty bool    `yaml:"include_third_party" json:"include_third_party" env:"DOCTEUR_INCLUDE_THIRD_PARTY" jsonschema:"description=Keep third-party and framework modules in the report"`
	GroupByPackage    bool    `yaml:"group_by_package" json:"group_by_package" env:"DOCTEUR_GROUP_BY_PACKAGE" jsonschema:"description=Aggregate third-party modules per package"`
	Where             string  `yaml:"where,omitempty" json:"where,omitempty" env:"DOCTEUR_WHERE" jsonschema:"description=CEL predicate over the module variable"`
}

// RuntimeConfig describes how the target application is launched.
type RuntimeConfig struct {
	// Command is the runtime invocation. When empty the entry itself is
	// executed.
	Command []string `yaml:"command" json:"command" env:"DOCTEUR_COMMAND" envsep:" " jsonschema:"description=Runtime invocation placed before the entry"`
	// Preload arguments load the instrumentation before the entry.
	Preload         []string      `yaml:"preload,omitempty" json:"preload,omitempty" env:"DOCTEUR_PRELOAD" envsep:" "`
	Entry           string        `yaml:"entry,omitempty" json:"entry,omitempty" env:"DOCTEUR_ENTRY" jsonschema:"description=Application entry point"`
	EntryCandidates []string      `yaml:"entry_candidates" json:"entry_candidates" env:"DOCTEUR_ENTRY_CANDIDATES"`
	ReadyPattern    string        `yaml:"ready_pattern" json:"ready_pattern" env:"DOCTEUR_READY_PATTERN" jsonschema:"description=Regular expression matching the stdout line printed once the application is ready"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" env:"DOCTEUR_TIMEOUT"`
	FallbackTimeout time.Duration `yaml:"fallback_timeout" json:"fallback_timeout" env:"DOCTEUR_FALLBACK_TIMEOUT"`
	KillGrace       time.Duration `yaml:"kill_grace" json:"kill_grace" env:"DOCTEUR_KILL_GRACE"`
	// PTY attaches the child's stdout to a pseudo-terminal.
	PTY bool `yaml:"pty" json:"pty" env:"DOCTEUR_PTY"`
	// Passthrough copies the child's output to the terminal.
	Passthrough bool `yaml:"passthrough" json:"passthrough" env:"DOCTEUR_PASSTHROUGH"`
}

// LoggingConfig configures docteur's own logs.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"DOCTEUR_LOG_LEVEL" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`
	Pretty bool   `yaml:"pretty" json:"pretty" env:"DOCTEUR_LOG_PRETTY"`
}
