package config

import (
	"fmt"
	"regexp"

	"github.com/coral-mesh/docteur/internal/logging"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// TimingConfig returns the collector view of the profile section.
func (c *Config) TimingConfig() timing.Config {
	return timing.Config{
		TopModules:        c.Profile.TopModules,
		Threshold:         c.Profile.ThresholdMs,
		IncludeThirdParty: c.Profile.IncludeThirdParty,
		GroupByPackage:    c.Profile.GroupByPackage,
		Where:             c.Profile.Where,
	}
}

// ReadyRegexp compiles the readiness pattern.
func (c *Config) ReadyRegexp() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Runtime.ReadyPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid ready pattern %q: %w", c.Runtime.ReadyPattern, err)
	}
	return re, nil
}

// LoggerConfig returns the logger configuration for the logging section.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Logging.Level != "" {
		cfg.Level = c.Logging.Level
	}
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
