// Package config implements the 'docteur config' command family.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/docteur/internal/cli/helpers"
	"github.com/coral-mesh/docteur/internal/config"
	"github.com/coral-mesh/docteur/internal/constants"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect docteur configuration",
		Long: `Inspect docteur configuration.

Configuration Priority (highest first):
  1. Command-line flags
  2. DOCTEUR_* environment variables
  3. Configuration file (docteur.yaml, .docteur.yaml or .docteur/config.yaml)
  4. Built-in defaults

Environment Variables:
  DOCTEUR_CONFIG  Override the configuration file location`,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

// newShowCmd creates the 'config show' command.
func newShowCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the configuration file and
environment variables are merged.

Use --raw to output the merged config without annotations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.Setup(cmd)
			if err != nil {
				return err
			}
			return runShow(cmd.OutOrStdout(), env, raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Output raw YAML without annotations")

	return cmd
}

func runShow(out io.Writer, env *helpers.Env, raw bool) error {
	data, err := yaml.Marshal(env.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if !raw {
		source := env.ConfigPath
		if source == "" {
			source = "none (defaults and environment only)"
		}
		if _, err := fmt.Fprintf(out, "# Config file: %s\n#\n", source); err != nil {
			return err
		}
	}

	_, err = out.Write(data)
	return err
}

// newSchemaCmd creates the 'config schema' command.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration file",
		Example: `  docteur config schema > docteur.schema.json
  # then, at the top of docteur.yaml:
  # yaml-language-server: $schema=./docteur.schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Long: `Validate the merged configuration and report every problem found.

Checks:
- Non-negative thresholds and module counts
- Fallback timeout shorter than the timeout
- Ready pattern and where expression compile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.Setup(cmd)
			if err != nil {
				return err
			}
			if err := env.Config.Validate(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return err
		},
	}
}

// newInitCmd creates the 'config init' command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a docteur.yaml with the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			path := filepath.Join(cwd, constants.ConfigFileNames[0])
			if err := writeDefaults(path, force); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

// errConfigExists is returned by writeDefaults when path exists and force is unset.
var errConfigExists = errors.New("configuration file already exists (use --force to overwrite)")

func writeDefaults(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s: %w", path, errConfigExists)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- not a secret.
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
