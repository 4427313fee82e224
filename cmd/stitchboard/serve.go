package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/stitchboard"
	"github.com/jpalmerr/stitchboard/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the Stitchboard dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the Stitchboard dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Poll every configured source, retrying while the stitcher answers 404
  - Serve the dashboard UI, JSON API and Prometheus metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  stitchboard serve -c config.yaml
  stitchboard serve --config /etc/stitchboard/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().BoolP("verbose", "v", false, "log every retry and poll")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"sources", len(cfg.Sources),
		"grids", len(cfg.Grids),
	)

	sources, err := config.BuildSources(cfg)
	if err != nil {
		return fmt.Errorf("failed to build sources: %w", err)
	}

	if len(sources) == 0 {
		return fmt.Errorf("no sources configured")
	}

	opts := append(config.BoardOptions(cfg),
		stitchboard.WithSources(sources...),
		stitchboard.WithLogger(logger),
	)

	b, err := stitchboard.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	logger.Info("starting server",
		"port", b.Port(),
		"refresh_interval", b.RefreshInterval().String(),
		"sources", len(sources),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		return awaitShutdown(logger, errChan)
	}
}

func awaitShutdown(logger *slog.Logger, errChan <-chan error) error {
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
		return nil
	}
}
