// Package trace implements 'docteur trace', which reads module load times
// from a runtime trace-events file instead of profiling a boot.
package trace

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/docteur/internal/cli/helpers"
	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/export"
	"github.com/coral-mesh/docteur/internal/report"
	"github.com/coral-mesh/docteur/internal/traceparse"
)

// NewTraceCmd creates the trace command.
func NewTraceCmd() *cobra.Command {
	var (
		top      int
		format   string
		cleanup  bool
		asReport bool
	)

	cmd := &cobra.Command{
		Use:   "trace FILE",
		Short: "Summarise module load times from a trace-events file",
		Long: `Read a Chrome Trace Event Format file written by the runtime
(for Node.js: --trace-event-categories node.module_timer) and list the
slowest module loads. Loads of the same module are summed.`,
		Example: `  node --trace-event-categories node.module_timer bin/server.js
  docteur trace node_trace.1.log --top 15`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, export.SupportedFormats); err != nil {
				return err
			}
			env, err := helpers.Setup(cmd)
			if err != nil {
				return err
			}

			timings, err := traceparse.ParseFile(args[0])
			if err != nil {
				return err
			}
			timings = traceparse.SortByLoadTime(traceparse.Aggregate(timings))
			if asReport {
				return renderReport(cmd, env, timings, top)
			}
			if top > 0 && len(timings) > top {
				timings = timings[:top]
			}
			env.Logger.Debug().Int("modules", len(timings)).Str("file", args[0]).Msg("Parsed trace file")

			if cleanup {
				if err := traceparse.Cleanup(args[0]); err != nil {
					env.Logger.Warn().Err(err).Msg("Failed to remove trace file")
				}
			}

			if len(timings) == 0 && format == string(export.FormatTable) {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No module load events found.")
				return err
			}

			formatter, err := export.NewFormatter(export.OutputFormat(format))
			if err != nil {
				return err
			}
			return formatter.Format(timings, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&top, "top", 20, "Number of slowest modules to list (0 for all)")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove the trace file after reading it")
	cmd.Flags().BoolVar(&asReport, "report", false, "Render the static diagnose report from the trace instead of a table")
	helpers.AddFormatFlag(cmd, &format, export.FormatTable, export.SupportedFormats)

	return cmd
}

// renderReport feeds trace timings through the collector. Trace files carry
// no import links or lifecycle phases, so those sections stay empty.
func renderReport(cmd *cobra.Command, env *helpers.Env, timings []traceparse.ModuleLoadTiming, top int) error {
	cfg := env.Config.TimingConfig()
	if cmd.Flags().Changed("top") {
		cfg.TopModules = top
	}
	coll, err := collector.New(cfg,
		collector.WithConventions(env.Config.Conventions),
		collector.WithLogger(env.Logger),
	)
	if err != nil {
		return err
	}

	modules := traceparse.ToModuleTimings(timings)
	var total float64
	for _, t := range timings {
		total += t.LoadTimeMs
	}
	result := coll.CollectResults(modules, nil, 0, total)

	console, err := report.NewConsole(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return console.Render(report.Context{Result: result, Collector: coll, Cwd: env.Cwd})
}
