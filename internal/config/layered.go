package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/docteur/internal/constants"
	"github.com/coral-mesh/docteur/internal/safe"
)

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from a file.
	LayerFile Layer = "file"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"

	// LayerFlags represents configuration from command-line flags.
	LayerFlags Layer = "flags"
)

// LayeredLoader provides layered configuration loading.
// Configuration is loaded in the following order:
// 1. Defaults - hardcoded default values
// 2. File - configuration file (YAML)
// 3. Environment - DOCTEUR_* variables
// 4. Flags - applied by the command after loading
//
// Each layer overrides values from previous layers.
type LayeredLoader struct {
	enabledLayers map[Layer]bool
}

// NewLayeredLoader creates a new layered configuration loader.
// By default, all layers except flags are enabled.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerEnv:      true,
			LayerFlags:    false, // Flags belong to the command.
		},
	}
}

// EnableLayer enables a specific configuration layer.
func (l *LayeredLoader) EnableLayer(layer Layer) {
	l.enabledLayers[layer] = true
}

// DisableLayer disables a specific configuration layer.
func (l *LayeredLoader) DisableLayer(layer Layer) {
	l.enabledLayers[layer] = false
}

// Load loads the configuration with layered precedence. An empty or
// missing configPath skips the file layer.
func (l *LayeredLoader) Load(configPath string) (*Config, error) {
	var cfg *Config

	// Layer 1: Defaults
	if l.enabledLayers[LayerDefaults] {
		cfg = Default()
	} else {
		cfg = &Config{}
	}

	// Layer 2: File
	if l.enabledLayers[LayerFile] && configPath != "" {
		if err := l.mergeFromFile(cfg, configPath); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	// Layer 3: Environment
	if l.enabledLayers[LayerEnv] {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	return cfg, nil
}

// mergeFromFile loads configuration from a YAML file and merges it into cfg.
func (l *LayeredLoader) mergeFromFile(cfg *Config, filePath string) error {
	data, err := safe.ReadFile(filePath, &safe.FileOptions{AllowSymlinks: true})
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", filePath, err)
	}

	return nil
}

// ValidateConfig validates a configuration and returns detailed errors.
func (l *LayeredLoader) ValidateConfig(cfg Validator) error {
	return cfg.Validate()
}

// FindConfigFile returns the configuration file to use for dir: the
// DOCTEUR_CONFIG variable when set, otherwise the first of
// constants.ConfigFileNames present in dir. It returns "" when none exists.
func FindConfigFile(dir string) string {
	if path := os.Getenv(constants.EnvConfig); path != "" {
		return path
	}
	for _, name := range constants.ConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load resolves the configuration file for dir (unless configPath is set)
// and loads it with all default layers. The returned path is the file
// actually read, or "".
func Load(dir, configPath string) (*Config, string, error) {
	if configPath == "" {
		configPath = FindConfigFile(dir)
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, "", fmt.Errorf("config file %s: %w", configPath, err)
	}

	cfg, err := NewLayeredLoader().Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}
