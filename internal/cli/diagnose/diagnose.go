// Package diagnose implements 'docteur diagnose', the one-shot cold-start
// report.
package diagnose

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/docteur/internal/cli/helpers"
	"github.com/coral-mesh/docteur/internal/collector"
	"github.com/coral-mesh/docteur/internal/deptree"
	ierrors "github.com/coral-mesh/docteur/internal/errors"
	"github.com/coral-mesh/docteur/internal/export"
	"github.com/coral-mesh/docteur/internal/report"
	"github.com/coral-mesh/docteur/pkg/timing"
)

type options struct {
	entry           string
	top             int
	threshold       float64
	thirdParty      bool
	group           bool
	where           string
	format          string
	pprofPath       string
	otlpPath        string
	timeout         time.Duration
	fallbackTimeout time.Duration
	ready           string
	pty             bool
	passthrough     bool
	tree            bool
	treeDepth       int
}

// NewDiagnoseCmd creates the diagnose command.
func NewDiagnoseCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "diagnose [flags] [-- app-args...]",
		Short: "Profile one cold start and print a report",
		Long: `Boot the application once under instrumentation and report where
the startup time went: module resolution and loading, application files by
role, third-party packages and the lifecycle phases of each component.

The application is stopped as soon as it reports readiness (or when the
fallback timeout expires). Arguments after -- are passed to the application.`,
		Example: `  # Profile the default entry point
  docteur diagnose

  # Only the slowest user modules
  docteur diagnose --third-party=false --top 10

  # Modules under the controllers directory slower than 5ms
  docteur diagnose --where 'module.category == "controller" && module.effective_ms > 5'

  # Machine-readable output and exports
  docteur diagnose -o json > boot.json
  docteur diagnose --pprof boot.pb.gz --otlp boot-trace.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	helpers.AddEntryFlag(cmd, &opts.entry)
	cmd.Flags().IntVar(&opts.top, "top", 0, "Number of slowest modules to display (default from config: 20)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Hide modules faster than this many milliseconds (default from config: 1)")
	cmd.Flags().BoolVar(&opts.thirdParty, "third-party", true, "Include third-party and framework modules")
	cmd.Flags().BoolVar(&opts.group, "group", true, "Group third-party modules by package")
	cmd.Flags().StringVar(&opts.where, "where", "", "CEL filter over the module variable")
	helpers.AddFormatFlag(cmd, &opts.format, export.FormatTable, export.SupportedFormats)
	cmd.Flags().StringVar(&opts.pprofPath, "pprof", "", "Also write a pprof profile of the import chains to this file")
	cmd.Flags().StringVar(&opts.otlpPath, "otlp", "", "Also write the boot as OTLP/JSON traces to this file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Hard limit for the whole run (default from config: 30s)")
	cmd.Flags().DurationVar(&opts.fallbackTimeout, "fallback-timeout", 0, "Request results after this long without readiness (default from config: 10s)")
	cmd.Flags().StringVar(&opts.ready, "ready", "", "Regular expression matching the readiness line on stdout")
	cmd.Flags().BoolVar(&opts.pty, "pty", false, "Give the application a pseudo-terminal as stdout")
	cmd.Flags().BoolVar(&opts.passthrough, "passthrough", false, "Show the application's output on stderr")
	cmd.Flags().BoolVar(&opts.tree, "tree", false, "Print the import tree after the report")
	cmd.Flags().IntVar(&opts.treeDepth, "tree-depth", 4, "Maximum depth of --tree")

	return cmd
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, env *helpers.Env, opts options) {
	cfg := env.Config
	overrides := map[string]func(){
		"top":              func() { cfg.Profile.TopModules = opts.top },
		"threshold":        func() { cfg.Profile.ThresholdMs = opts.threshold },
		"third-party":      func() { cfg.Profile.IncludeThirdParty = opts.thirdParty },
		"group":            func() { cfg.Profile.GroupByPackage = opts.group },
		"where":            func() { cfg.Profile.Where = opts.where },
		"timeout":          func() { cfg.Runtime.Timeout = opts.timeout },
		"fallback-timeout": func() { cfg.Runtime.FallbackTimeout = opts.fallbackTimeout },
		"ready":            func() { cfg.Runtime.ReadyPattern = opts.ready },
		"pty":              func() { cfg.Runtime.PTY = opts.pty },
		"passthrough":      func() { cfg.Runtime.Passthrough = opts.passthrough },
	}

	// Visit only walks flags set on the command line.
	cmd.Flags().Visit(func(f *pflag.Flag) {
		apply, ok := overrides[f.Name]
		if !ok {
			return
		}
		apply()
		env.Logger.Debug().Str("flag", f.Name).Str("value", f.Value.String()).Msg("Configuration overridden by flag")
	})
}

func run(cmd *cobra.Command, opts options, args []string) error {
	if err := helpers.ValidateFormat(opts.format, export.SupportedFormats); err != nil {
		return err
	}

	env, err := helpers.Setup(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd, env, opts)
	if err := env.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	coll, err := collector.New(env.Config.TimingConfig(),
		collector.WithConventions(env.Config.Conventions),
		collector.WithLogger(env.Logger),
	)
	if err != nil {
		return err
	}

	profiled, err := env.Profile(cmd.Context(), opts.entry, args, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	result := *profiled.Result

	if opts.pprofPath != "" {
		if err := writeFile(opts.pprofPath, env.Logger, func(w io.Writer) error {
			return export.WritePprof(w, result, env.Config.Conventions, env.Cwd)
		}); err != nil {
			return fmt.Errorf("failed to write pprof profile: %w", err)
		}
		env.Logger.Info().Str("path", opts.pprofPath).Msg("Wrote pprof profile")
	}
	if opts.otlpPath != "" {
		service := filepath.Base(env.Cwd)
		if err := writeFile(opts.otlpPath, env.Logger, func(w io.Writer) error {
			return export.WriteOTLP(w, result, service, profiled.StartedAt, env.Config.Conventions)
		}); err != nil {
			return fmt.Errorf("failed to write OTLP traces: %w", err)
		}
		env.Logger.Info().Str("path", opts.otlpPath).Msg("Wrote OTLP traces")
	}

	out := cmd.OutOrStdout()
	switch export.OutputFormat(opts.format) {
	case export.FormatJSON:
		return export.WriteJSON(out, result)
	case export.FormatCSV:
		formatter, err := export.NewFormatter(export.FormatCSV)
		if err != nil {
			return err
		}
		return formatter.Format(moduleRows(coll, result, env.Config.Conventions, env.Cwd), out)
	}

	console, err := report.NewConsole(out)
	if err != nil {
		return err
	}
	if err := console.Render(report.Context{Result: result, Collector: coll, Cwd: env.Cwd}); err != nil {
		return err
	}

	if opts.tree {
		conv := env.Config.Conventions
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprint(out, helpers.RenderTree(deptree.Build(result.Modules), result.TotalTime, helpers.TreeOptions{
			MaxDepth: opts.treeDepth,
			SlowMs:   report.SlowMs,
			Label: func(n *deptree.Node) string {
				return conv.SimplifyURL(n.ID, env.Cwd)
			},
		}))
	}
	return nil
}

// moduleRows lists the slowest modules that pass the collector filters.
func moduleRows(coll *collector.Collector, result timing.ProfileResult, conv collector.Conventions, cwd string) []export.ModuleRow {
	return export.ModuleRows(coll.Top(result.Modules), conv, cwd)
}

// writeFile creates path and hands it to write.
func writeFile(path string, logger zerolog.Logger, write func(io.Writer) error) error {
	// #nosec G304 -- path is an output file named on the command line.
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer ierrors.DeferClose(logger, f, "failed to close output file")
	return write(f)
}
