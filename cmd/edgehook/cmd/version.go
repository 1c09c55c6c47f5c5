package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/edgehook/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the release name and source-control revision",
	RunE: func(cmd *cobra.Command, args []string) error {
		rev, err := version.Revision(cmd.Context())
		if err != nil {
			rev = "unknown"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "edgehook %s (%s)\n", version.Version, rev)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
