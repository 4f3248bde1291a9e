package config

import (
	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/constants"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Profile: ProfileConfig{
			TopModules:        constants.DefaultTopModules,
			ThresholdMs:       constants.DefaultThreshold,
			IncludeThirdParty: true,
			GroupByPackage:    true,
		},
		Runtime: RuntimeConfig{
			Command:         append([]string{}, constants.DefaultCommand...),
			EntryCandidates: append([]string{}, constants.DefaultEntryCandidates...),
			ReadyPattern:    constants.DefaultReadyPattern,
			Timeout:         constants.DefaultTimeout,
			FallbackTimeout: constants.DefaultFallbackTimeout,
			KillGrace:       constants.DefaultKillGrace,
		},
		Conventions: collector.DefaultConventions(),
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
