// Package cmd implements the concierge command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge - a personal assistant backend with conversational memory",
	Long: `Concierge answers user queries with a local language model, grounded in
each user's profile and their past conversations.

Every answered query is stored and indexed so later queries can be
answered with relevant history. Run "concierge serve" to start the
HTTP API, or use the subcommands directly from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
