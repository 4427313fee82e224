package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/stitchboard"
)

func main() {
	// start mock stitcher (see mock_server.go); summaries take 5s to compute
	go StartMockStitcher(":9999", 5*time.Second)
	time.Sleep(100 * time.Millisecond)

	metrics, err := stitchboard.NewSource("Metrics", stitchboard.KindMetrics,
		"http://localhost:9999/api/stitches/latest/metrics",
		stitchboard.WithBackoff(time.Second),
	)
	if err != nil {
		slog.Error("failed to create metrics source", "error", err)
		os.Exit(1)
	}

	dataSources, err := stitchboard.NewSource("Data Sources", stitchboard.KindDataSources,
		"http://localhost:9999/api/datasources",
	)
	if err != nil {
		slog.Error("failed to create data-source source", "error", err)
		os.Exit(1)
	}

	// per-label summaries: one source per label from one declaration
	labels, err := stitchboard.NewSourceGrid("Label", stitchboard.KindMetrics,
		stitchboard.WithURLTemplate("http://localhost:9999/api/stitches/latest/metrics/{{.label}}"),
		stitchboard.WithDimensions(map[string][]string{
			"label": {"S_DRUGBANK", "S_GSRS"},
		}),
		stitchboard.WithGridBackoff(time.Second),
	)
	if err != nil {
		slog.Error("failed to create label grid", "error", err)
		os.Exit(1)
	}

	sources := append([]stitchboard.Source{metrics, dataSources}, labels...)

	b, err := stitchboard.New(
		stitchboard.WithSources(sources...),
		stitchboard.WithRefreshInterval(10*time.Second),
		stitchboard.WithPort(8080),
		stitchboard.WithTitle("Stitcher Demo"),
		stitchboard.WithResultCallback(func(r stitchboard.Result) {
			if r.State == stitchboard.StateExhausted {
				slog.Warn("summary still computing", "source", r.SourceName, "requests", r.Requests)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create stitchboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Stitchboard Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println()
	fmt.Println("  Sources:")
	fmt.Println("  - metrics summary (404 for the first 5s, retried every 1s)")
	fmt.Println("  - data sources (no retry)")
	fmt.Println("  - 2 per-label summaries via a grid")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		slog.Error("stitchboard error", "error", err)
		os.Exit(1)
	}
}
