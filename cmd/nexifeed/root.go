// ABOUTME: Root Cobra command and global flags
// ABOUTME: Loads configuration, builds the logger, and opens the storage backend for every subcommand

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harper/nexifeed/internal/config"
	"github.com/harper/nexifeed/internal/logging"
	"github.com/harper/nexifeed/internal/storage"
)

// skipStoreAnnotation marks commands that run without configuration or storage.
const skipStoreAnnotation = "nexifeed/skip-store"

var (
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
	store      storage.Store
)

var rootCmd = &cobra.Command{
	Use:   "nexifeed",
	Short: "Feed ingestion and dedup pipeline with HTTP API and MCP integration",
	Long: `nexifeed polls RSS, Atom, YouTube, and podcast feeds, stores each item once,
and notifies subscribers about new items.

Run 'nexifeed serve' for the HTTP API and scheduler, or use the subcommands
to fetch, import, and inspect feeds directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipStoreAnnotation] == "true" {
			return nil
		}

		if err := closeStore(); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// stdout belongs to command output and the MCP transport.
		logger = logging.NewWithOutput(cfg.Log.Level, cfg.Log.Format, os.Stderr)

		store, err = cfg.OpenStorage(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to open %s storage: %w", cfg.GetBackend(), err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeStore()
	},
}

// Execute runs the CLI. Storage is closed even when a command fails,
// since cobra skips post-run hooks after an error.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := closeStore(); err == nil {
		err = cerr
	}
	return err
}

func closeStore() error {
	if store == nil {
		return nil
	}
	err := store.Close()
	store = nil
	if err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: ~/.config/nexifeed/config.yaml)")
}
