/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the grant analytics server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load the config file
  2. Initialize SQLite store
  3. Build the engine (system clock) and service
  4. Start the refresh scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: grants.db)
           Use ":memory:" for in-memory database
  -config  TOML or JSON config file (thresholds, weights, server settings)

  Flags given explicitly override the config file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/grants.db"

  # Run with custom weights
  ./server -config=./grants.toml

SEE ALSO:
  - api/server.go: Router configuration
  - factory/config.go: Config file schema
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/grant-engine/analytics"
	"github.com/warp/grant-engine/api"
	"github.com/warp/grant-engine/factory"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "grants.db", "SQLite database path")
	configPath := flag.String("config", "", "TOML or JSON config file")
	flag.Parse()

	if err := run(*configPath, *port, *dbPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, dbPath string) error {
	settings, err := factory.Load(configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			settings.Server.Port = port
		case "db":
			settings.Server.DBPath = dbPath
		}
	})

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.Server.LogLevel}))
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(settings.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	engine, err := analytics.NewEngine(settings.Engine, grant.SystemClock{})
	if err != nil {
		return err
	}
	svc := analytics.NewService(store, engine, logger)
	svc.FetchTimeout = settings.Server.FetchTimeout

	handler := api.NewHandler(svc, store, logger)

	scheduler := api.NewRefreshScheduler(handler, logger)
	scheduler.Interval = settings.Server.RefreshInterval
	handler.Schedule = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", settings.Server.Port),
		Handler:      api.NewRouter(handler, settings.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", settings.Server.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
