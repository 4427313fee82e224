package stitchboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/stitchboard/dashboard"
	"github.com/jpalmerr/stitchboard/internal/poller"
	"github.com/jpalmerr/stitchboard/internal/render"
	"github.com/jpalmerr/stitchboard/internal/server"
	"github.com/jpalmerr/stitchboard/internal/store"
	"github.com/jpalmerr/stitchboard/widget"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultPort            = 8080
	defaultMaxConcurrency  = 4
)

// Board polls stitcher sources and serves the dashboard.
//
// Board is created using [New] with functional options and started with
// [Board.Start]. The typical lifecycle is:
//
//	b, err := stitchboard.New(stitchboard.WithSource(src))
//	if err != nil {
//	    slog.Error("failed to create board", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Board struct {
	title           string
	sources         []Source
	refreshInterval time.Duration
	port            int
	maxConcurrency  int
	logger          *slog.Logger
	resultCallbacks []func(Result)
	registry        *prometheus.Registry
	metrics         *poller.Metrics
}

// New creates a [Board] with the given options.
//
// At least one source must be configured via [WithSource] or [WithSources].
// Source names must be unique and no two sources may publish the same
// widgets. Other options default to:
//   - Refresh interval: 30 seconds
//   - Port: 8080
//   - Max concurrency: 4
func New(opts ...Option) (*Board, error) {
	cfg := &boardConfig{
		sources:         []Source{},
		refreshInterval: defaultRefreshInterval,
		port:            defaultPort,
		maxConcurrency:  defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.sources) == 0 {
		return nil, errors.New("at least one source is required")
	}

	names := make(map[string]bool, len(cfg.sources))
	widgetIDs := make(map[string]string)
	for _, src := range cfg.sources {
		if src.name == "" {
			return nil, errors.New("source must be created with NewSource")
		}
		if names[src.name] {
			return nil, fmt.Errorf("duplicate source name: %q", src.name)
		}
		names[src.name] = true

		ids, err := widget.IDs(src.kind, src.widgetID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if other, ok := widgetIDs[id]; ok {
				return nil, fmt.Errorf("sources %q and %q both publish widget %q", other, src.name, id)
			}
			widgetIDs[id] = src.name
		}
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := poller.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Board{
		title:           cfg.title,
		sources:         cfg.sources,
		refreshInterval: cfg.refreshInterval,
		port:            cfg.port,
		maxConcurrency:  cfg.maxConcurrency,
		logger:          logger,
		resultCallbacks: cfg.resultCallbacks,
		registry:        reg,
		metrics:         metrics,
	}, nil
}

// Start begins polling sources and serving the dashboard.
//
// Start blocks until ctx is cancelled. Every source is fetched immediately
// and then once per refresh interval; a source that answers 404 is retried
// within the same refresh. The dashboard is served on the configured port.
//
// Returns nil on graceful shutdown, or an error if the HTTP server fails to
// start.
func (b *Board) Start(ctx context.Context) error {
	b.logger.Info("stitchboard starting", "source_count", len(b.sources))
	b.logger.Info("refresh configured", "interval", b.refreshInterval.String())
	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", b.port))

	if ctx.Err() != nil {
		return nil
	}

	infos := make([]poller.SourceInfo, len(b.sources))
	byName := make(map[string]Source, len(b.sources))
	for i, src := range b.sources {
		infos[i] = src.toInfo()
		byName[src.name] = src
	}

	resultStore := store.NewMemoryStore()

	scheduler := poller.NewScheduler(infos, b.refreshInterval, b.maxConcurrency, b.logger,
		poller.WithMetrics(b.metrics),
	)
	scheduler.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for pr := range scheduler.Results() {
			result := b.toResult(byName[pr.Source.Name], pr)

			// callbacks fire after the store holds the result
			resultStore.Update(toStoreResult(result))
			for _, cb := range b.resultCallbacks {
				b.invokeCallbackSafe(cb, result)
			}

			logAttrs := []any{
				"state", result.State,
				"source", result.SourceName,
				"url", result.URL,
				"requests", result.Requests,
				"latency_ms", result.Latency.Milliseconds(),
			}
			if result.Error != nil {
				b.logger.Warn("poll completed with error", append(logAttrs, "error", result.Error.Error())...)
			} else {
				b.logger.Debug("poll completed", logAttrs...)
			}
		}
	}()

	cleanup := func() {
		scheduler.Stop() // closes results channel
		wg.Wait()
	}

	httpServer := server.NewServer(resultStore, server.Config{
		Port:     b.port,
		Assets:   dashboard.Assets,
		Title:    b.title,
		Renderer: render.NewChartRenderer(),
		Gatherer: b.registry,
		Logger:   b.logger,
	})
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	b.logger.Info("stitchboard stopped")
	return nil
}

// Sources returns a copy of the configured sources.
func (b *Board) Sources() []Source {
	cp := make([]Source, len(b.sources))
	copy(cp, b.sources)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (b *Board) Port() int {
	return b.port
}

// RefreshInterval returns the configured interval between refreshes.
func (b *Board) RefreshInterval() time.Duration {
	return b.refreshInterval
}

// Registry returns the Prometheus registry holding the fetch metrics.
func (b *Board) Registry() *prometheus.Registry {
	return b.registry
}

// toResult reshapes a poll outcome into widgets. A payload that cannot be
// reshaped turns a successful fetch into a failed result.
func (b *Board) toResult(src Source, pr poller.SourceResult) Result {
	out := pr.Outcome
	result := Result{
		SourceName: pr.Source.Name,
		Kind:       pr.Source.Kind,
		URL:        pr.Source.URL,
		State:      stateOf(out.State),
		StatusCode: out.StatusCode,
		Requests:   out.Requests,
		Latency:    out.Latency,
		CheckedAt:  pr.CheckedAt,
		Error:      out.Err,
	}

	if out.State != poller.StateSucceeded {
		return result
	}

	result.Payload = append([]byte(nil), out.Payload...)
	widgets, err := widget.Decode(src.kind, src.widgetID, out.Payload)
	if err != nil {
		result.State = StateFailed
		result.Error = fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		return result
	}
	result.Widgets = widgets
	return result
}

// toStoreResult converts a public result to its storage form.
func toStoreResult(r Result) store.SourceResult {
	var errStr *string
	if r.Error != nil {
		s := r.Error.Error()
		errStr = &s
	}

	return store.SourceResult{
		Name:           r.SourceName,
		Kind:           r.Kind,
		URL:            r.URL,
		State:          r.State.String(),
		Widgets:        r.Widgets,
		Requests:       r.Requests,
		ResponseTimeMs: r.Latency.Milliseconds(),
		CheckedAt:      r.CheckedAt,
		Error:          errStr,
	}
}

// invokeCallbackSafe calls a result callback with panic recovery.
func (b *Board) invokeCallbackSafe(cb func(Result), result Result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("result callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"source", result.SourceName,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(result)
}
