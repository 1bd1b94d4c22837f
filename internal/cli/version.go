package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/quorum/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		info := version.Current()
		return formatter.Emit(info, func(w io.Writer) error {
			outln(w, "quorum", info.String())
			return nil
		})
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
