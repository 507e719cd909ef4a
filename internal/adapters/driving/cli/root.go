// Package cli provides the command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formsage/formsage/internal/config"
	"github.com/formsage/formsage/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "formsage",
	Short: "Tax document assistant backend",
	Long: `FormSage ingests tax documents, indexes them for semantic retrieval
and answers questions about them with streamed, cited responses.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "formsage.toml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configured TOML file with env overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
