// Package main provides the octo CLI entry point.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/config"
	"github.com/matsen/octosphere/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	verbose     bool

	settings *config.Settings
	logger   *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "octo",
	Short: "Bridge Octopus publications into AT Protocol repositories",
	Long: `octo copies a researcher's Octopus publications into their AT Protocol
repository as social.octosphere.publication records.

Each publication is written under the key "octopus-<publication id>", so
re-running a sync replaces records instead of duplicating them. A local
SQLite ledger remembers which versions were already written.

All commands output JSON by default; pass --human for readable output.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/octosphere/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.Version = Version
}

// setup loads settings and builds the logger before any command runs.
// Logs go to stderr so stdout stays machine-readable.
func setup(cmd *cobra.Command, args []string) error {
	s, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	settings = s

	l, err := logging.New(os.Stderr, logging.Options{
		Level:      s.LogLevel,
		Format:     s.LogFormat,
		Production: s.IsProduction(),
		Verbose:    verbose,
	})
	if err != nil {
		exitWithError(ExitConfigError, "configuring logging: %v", err)
	}
	logger = l
	slog.SetDefault(l)
	return nil
}
