package helpers

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/docteur/internal/export"
)

func formatNames(formats []export.OutputFormat) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}

// AddFormatFlag registers --format/-o with shell completion over formats.
func AddFormatFlag(cmd *cobra.Command, target *string, def export.OutputFormat, formats []export.OutputFormat) {
	names := formatNames(formats)
	cmd.Flags().StringVarP(target, "format", "o", string(def),
		fmt.Sprintf("Output format (%s)", strings.Join(names, ", ")))
	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(names, cobra.ShellCompDirectiveNoFileComp))
}

// AddEntryFlag registers --entry/-e, completed with script files.
func AddEntryFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "entry", "e", "", "Application entry point (default: first existing entry candidate)")
	_ = cmd.MarkFlagFilename("entry", "js", "mjs", "cjs", "ts")
}

// ValidateFormat rejects formats the command does not support.
func ValidateFormat(format string, formats []export.OutputFormat) error {
	names := formatNames(formats)
	if slices.Contains(names, format) {
		return nil
	}
	return fmt.Errorf("unsupported format %q, must be one of: %s", format, strings.Join(names, ", "))
}
