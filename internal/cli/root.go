// Package cli wires the docteur commands together.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	configcmd "github.com/coral-mesh/docteur/internal/cli/config"
	"github.com/coral-mesh/docteur/internal/cli/diagnose"
	"github.com/coral-mesh/docteur/internal/cli/trace"
	versioncmd "github.com/coral-mesh/docteur/internal/cli/version"
	"github.com/coral-mesh/docteur/internal/cli/xray"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docteur",
		Short: "docteur - cold-start profiler for server applications",
		Long: `Find out why your server takes long to boot.

docteur starts the application once with module-level instrumentation,
waits until it reports ready, and attributes the boot time to every module
it loaded and to the lifecycle phases of its components.

Commands:
- diagnose: static report with recommendations (and JSON, CSV, pprof, OTLP exports)
- xray:     interactive exploration of the import graph
- trace:    module load times from a runtime trace-events file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file (default: docteur.yaml in the working directory, or $DOCTEUR_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", true, "Human-readable logs on stderr")

	rootCmd.AddCommand(diagnose.NewDiagnoseCmd())
	rootCmd.AddCommand(xray.NewXrayCmd())
	rootCmd.AddCommand(trace.NewTraceCmd())
	rootCmd.AddCommand(configcmd.NewConfigCmd())
	rootCmd.AddCommand(versioncmd.NewVersionCmd())

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
