package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/grant-engine/factory"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/grant/store"
	"github.com/warp/grant-engine/store/sqlite"
)

var (
	flagDB       string
	flagConfig   string
	flagSnapshot string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "grantctl",
	Short:         "Grant compliance and financial analytics",
	Long:          "Budget burn, deadline alerts, outcome achievement and compliance scores for a grant portfolio.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "grants.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "TOML or JSON config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log engine runs to stderr")
}

func loadSettings() (factory.Settings, error) {
	settings, err := factory.Load(flagConfig)
	if err != nil {
		return factory.Settings{}, err
	}
	if flagDB != "" && rootCmd.PersistentFlags().Changed("db") {
		settings.Server.DBPath = flagDB
	}
	return settings, nil
}

func newLogger(settings factory.Settings) *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = settings.Server.LogLevel
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openReader returns the snapshot file as an in-memory store when
// --snapshot is set, otherwise the SQLite database.
func openReader(settings factory.Settings) (grant.Reader, func() error, error) {
	if flagSnapshot != "" {
		snap, err := readSnapshotFile(flagSnapshot)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMemoryFrom(snap), func() error { return nil }, nil
	}

	db, err := sqlite.New(settings.Server.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// readSnapshotFile decodes a portfolio exported as JSON, using the same
// collection and column names as the database. Records with undecodable
// fields come back as load issues; only invalid JSON is an error.
func readSnapshotFile(path string) (grant.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return grant.Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	snap, err := grant.DecodeSnapshotJSON(data)
	if err != nil {
		return grant.Snapshot{}, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return snap, nil
}
