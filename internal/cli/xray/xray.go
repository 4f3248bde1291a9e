// Package xray implements 'docteur xray', the interactive import explorer.
package xray

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coral-mesh/docteur/internal/cli/helpers"
	ierrors "github.com/coral-mesh/docteur/internal/errors"
	"github.com/coral-mesh/docteur/internal/safe"
	explorer "github.com/coral-mesh/docteur/internal/xray"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// ErrNotTerminal is returned when stdin or stdout is not a terminal.
var ErrNotTerminal = errors.New("xray needs an interactive terminal; use 'docteur diagnose' for a static report")

// NewXrayCmd creates the xray command.
func NewXrayCmd() *cobra.Command {
	var (
		entry string
		from  string
	)

	cmd := &cobra.Command{
		Use:   "xray [flags] [-- app-args...]",
		Short: "Explore the import graph of a cold start interactively",
		Long: `Boot the application once under instrumentation, then browse the
import graph: drill into what a module imports, see who imported it, search
modules by name and review component lifecycle phases.

Keys: enter/→ open, backspace/← back, p importers, c components, / search, q quit.`,
		Example: `  docteur xray
  docteur xray --entry bin/api.js
  docteur diagnose -o json > boot.json && docteur xray --from boot.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return ErrNotTerminal
			}

			env, err := helpers.Setup(cmd)
			if err != nil {
				return err
			}
			if err := env.Config.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			var result *timing.ProfileResult
			if from != "" {
				result, err = loadResult(from, env)
			} else {
				var profiled *helpers.Run
				profiled, err = env.Profile(cmd.Context(), entry, args, nil)
				if profiled != nil {
					result = profiled.Result
				}
			}
			if err != nil {
				return err
			}

			model := explorer.New(*result, env.Config.Conventions, env.Cwd)
			return explorer.Run(cmd.Context(), model, os.Stdin, os.Stdout)
		},
	}

	helpers.AddEntryFlag(cmd, &entry)
	cmd.Flags().StringVar(&from, "from", "", "Explore a result saved with 'docteur diagnose -o json' instead of profiling")

	return cmd
}

func loadResult(path string, env *helpers.Env) (*timing.ProfileResult, error) {
	f, err := safe.Open(path, &safe.FileOptions{MaxSize: safe.MaxResultFileSize, AllowSymlinks: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open result: %w", err)
	}
	defer ierrors.DeferClose(env.Logger, f, "failed to close result file")

	var result timing.ProfileResult
	if err := json.NewDecoder(f).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", path, err)
	}
	return &result, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
