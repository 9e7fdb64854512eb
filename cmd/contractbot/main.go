// Package main is the entry point for the contractbot CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/contractbot/internal/config"
	"github.com/szaher/contractbot/internal/runtime"
	"github.com/szaher/contractbot/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	verbose bool
	envFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "contractbot",
		Short: "Conversational contract and checklist intake",
		Long: `Contractbot collects the fields needed to create a contract, and the
checklist dates that follow it, from free-form chat turns. It can serve the
conversation engine over HTTP or run it interactively in the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newFlowsCmd())

	return root
}

// loadConfig reads configuration and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	base := telemetry.NewLogger(os.Stderr, cfg.LogLevel)
	logger := slog.New(telemetry.NewRedactHandler(base.Handler(), cfg.Secrets()...))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newRuntime loads configuration and assembles the runtime.
func newRuntime(ctx context.Context) (*runtime.Runtime, *config.Config, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := runtime.New(ctx, cfg, runtime.Options{Logger: logger, Version: version})
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
