package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shpitdev/site-classifier/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "siteclassify %s (%s)\n", version.Current, version.Commit)
		return err
	},
}
