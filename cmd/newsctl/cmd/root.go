// Package cmd contains all CLI commands for newsctl
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"news-orchestrator/internal/di"
	"news-orchestrator/internal/infra/config"
	"news-orchestrator/internal/infra/logger"
)

var (
	envFile string
	verbose bool
	cfg     *config.Config
	log     *slog.Logger
	version = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newsctl",
	Short: "Ask questions about the news corpus",
	Long: `newsctl drives the news orchestrator from a terminal.

Example usage:
  newsctl chat                         # Interactive conversation
  newsctl ask "articles by Jane Doe"   # One question, one answer
  newsctl index inspect                # Validate the embedding snapshot
  newsctl index sync                   # Load the snapshot into pgvector`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg = config.Load()

	level := "warn"
	if verbose {
		level = "debug"
	}
	// Logs go to stderr so answers on stdout stay clean.
	log = logger.NewWithWriter(os.Stderr, level)
	return nil
}

// wire connects the backends and builds the application. The returned func closes the backends.
func wire(ctx context.Context) (*di.ApplicationComponents, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	backends, err := di.ConnectBackends(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	app, err := di.NewApplicationComponents(cfg, backends, prometheus.NewRegistry(), log)
	if err != nil {
		_ = backends.Close(context.Background())
		return nil, nil, err
	}
	return app, func() { _ = backends.Close(context.Background()) }, nil
}
