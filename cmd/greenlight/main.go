package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greenlight-sh/greenlight/pkg/config"
	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/orchestrator"
	"github.com/greenlight-sh/greenlight/pkg/rollback"
	"github.com/greenlight-sh/greenlight/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		// Exit 2 is reserved for the fatal state; everything else
		// (aborted, rejected, operational failure) is 1
		if errors.Is(err, rollback.ErrFatal) || errors.Is(err, orchestrator.ErrFatalState) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "greenlight",
	Short: "Greenlight - blue/green release orchestrator",
	Long: `Greenlight orchestrates blue/green releases: it updates the idle
environment's spec, triggers a deployment, gates the new revision behind
a battery of health checks, and switches traffic only when the gate
passes, rolling back automatically when it does not.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Greenlight version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "greenlight.yaml", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(clearFatalCmd)
}

// setup loads the config, initializes logging, and opens the store
func setup() (*config.Config, *storage.BoltStore, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
