// Package cmd implements the erasmo command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/erasmolabs/erasmo/internal/log"
)

var (
	verbose  bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "erasmo",
	Short: "Retrieval-grounded strategy and leadership advisor",
	Long: `Erasmo answers strategy and leadership questions from a private
knowledge base. Documents are chunked, embedded and stored in a pgvector
index; answers cite the passages they are grounded on and ambiguous
questions come back as clarification requests instead of guesses.

Running erasmo without a subcommand starts an interactive session.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log in JSON format")
}

// newLogger builds the process logger from the global flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: jsonLogs})
}
