// Package cmd defines and implements the CLI commands for the geodatasets
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/config"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geodatasets",
		Short: "GEO series metadata ingestion for the PubTrends project.",
		Long: `geodatasets keeps a local copy of GEO series metadata in sync with NCBI.
It discovers series updated in a date range, downloads their family archives
concurrently, parses the SOFT metadata, and upserts the records into Postgres.
It also serves an HTTP API that resolves datasets referenced by PubMed
publications.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override")

	cmd.AddCommand(newBackfillCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// setup loads configuration and builds the process logger shared by all
// subcommands.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
