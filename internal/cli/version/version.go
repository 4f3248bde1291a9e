// Package version implements 'docteur version'.
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/docteur/internal/cli/helpers"
	"github.com/coral-mesh/docteur/internal/export"
	"github.com/coral-mesh/docteur/pkg/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			supported := []export.OutputFormat{export.FormatTable, export.FormatJSON}
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}

			info := version.Get()
			if format == string(export.FormatJSON) {
				return export.WriteJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "docteur version %s\nGit commit: %s\nBuild date: %s\nGo version: %s\nPlatform: %s\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}

	helpers.AddFormatFlag(cmd, &format, export.FormatTable, []export.OutputFormat{export.FormatTable, export.FormatJSON})

	return cmd
}
