// Package cmd defines and implements the CLI commands for the bindery
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bindery/internal/config"
	"bindery/internal/logging"
	"bindery/internal/source"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bindery",
		Short: "Fetches serialized web fiction into local book artifacts.",
		Long: `bindery resolves a story URL to a source adapter, fetches the catalog
and every chapter with per-source pacing and retries, and assembles the
result into a local book directory. Progress is durable: interrupted or
failed runs resume where they left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/bindery, $HOME/.bindery)")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newResumeListCmd())

	return cmd
}

// Execute is the main entry point. It installs signal handling so Ctrl-C
// pauses a run at the next chapter boundary instead of killing it.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config and builds the logger and adapter registry shared by
// every subcommand.
func setup() (config.Config, *zap.Logger, *source.Registry, error) {
	if err := config.Init(cfgFile); err != nil {
		return config.Config{}, nil, nil, err
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.DevelopmentLog)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, registry, nil
}
