package helpers

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/docteur/internal/config"
	"github.com/coral-mesh/docteur/internal/logging"
)

// Env is what every command starts from: the working directory, the
// layered configuration and a logger writing to the command's stderr.
type Env struct {
	Cwd        string
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
}

// Setup loads the configuration for the current directory and applies the
// persistent --config, --log-level and --log-pretty flags. Commands apply
// their own flags on top and validate afterwards.
func Setup(cmd *cobra.Command) (*Env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, path, err := config.Load(cwd, stringFlag(cmd, "config"))
	if err != nil {
		return nil, err
	}

	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if f := cmd.Flag("log-pretty"); f != nil && f.Changed {
		cfg.Logging.Pretty = f.Value.String() == "true"
	}

	logCfg := cfg.LoggerConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.NewWithComponent(logCfg, "cli")
	if path != "" {
		logger.Debug().Str("path", path).Msg("Loaded configuration file")
	}

	return &Env{
		Cwd:        cwd,
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
	}, nil
}

func stringFlag(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
