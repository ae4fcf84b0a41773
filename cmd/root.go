// Package cmd implements byte's command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bytesec/byte/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "byte",
	Short: "BYTE - cybersecurity education assistant",
	Long: `BYTE is a streaming AI assistant that teaches cybersecurity.
It answers questions in simple or technical mode, consults threat
intelligence services, searches a curated knowledge base, and remembers
each user's security profile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger honoring the verbose flag.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}
