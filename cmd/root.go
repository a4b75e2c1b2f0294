package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "orgmirror",
	Short: "orgmirror mirrors an organization's GitHub activity into SQLite",
	Long: `orgmirror incrementally synchronizes an organization's repositories,
issues, pull requests, reviews, comments, reactions, and review-request
events into a local SQLite database, so analytics can be computed without
re-querying the GitHub API on every read.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(initCmd)
}
