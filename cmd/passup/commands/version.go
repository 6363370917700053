package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand prints build information.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "passup %s (commit: %s, built: %s)\n", version, commit, date)
			return err
		},
	}
}
