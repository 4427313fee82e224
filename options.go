package stitchboard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// boardConfig holds mutable state during Board construction.
type boardConfig struct {
	title           string
	sources         []Source
	refreshInterval time.Duration
	port            int
	maxConcurrency  int
	logger          *slog.Logger
	resultCallbacks []func(Result)
	registry        *prometheus.Registry
}

// Option is a function that configures a [Board] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithSource], [WithSources], [WithRefreshInterval],
// [WithPort], [WithMaxConcurrency], [WithLogger], [WithTitle],
// [WithResultCallback], [WithRegistry].
type Option func(*boardConfig) error

// WithSource adds a single [Source] to the board.
//
// Can be called multiple times. At least one source must be configured for
// [New] to succeed.
func WithSource(s Source) Option {
	return func(cfg *boardConfig) error {
		cfg.sources = append(cfg.sources, s)
		return nil
	}
}

// WithSources adds multiple [Source] values to the board.
//
// Example:
//
//	b, err := stitchboard.New(
//	    stitchboard.WithSources(metrics, dataSources),
//	)
func WithSources(sources ...Source) Option {
	return func(cfg *boardConfig) error {
		cfg.sources = append(cfg.sources, sources...)
		return nil
	}
}

// WithRefreshInterval sets how often every source is polled again.
//
// Each refresh runs a complete fetch per source, retries included.
// Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *boardConfig) error {
		if d <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *boardConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency sets how many sources are fetched at once. Defaults to 4.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *boardConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *boardConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithResultCallback registers a function called after every poll.
//
// Callbacks run in registration order on a single goroutine, after the
// dashboard has been updated. They must not block. Panics are recovered and
// logged.
//
// Example:
//
//	b, err := stitchboard.New(
//	    stitchboard.WithSource(metrics),
//	    stitchboard.WithResultCallback(func(r stitchboard.Result) {
//	        if errors.Is(r.Error, stitchboard.ErrRetriesExhausted) {
//	            log.Printf("%s never became ready", r.SourceName)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithResultCallback(cb func(Result)) Option {
	return func(cfg *boardConfig) error {
		if cb == nil {
			return nil
		}
		cfg.resultCallbacks = append(cfg.resultCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "Stitchboard".
func WithTitle(title string) Option {
	return func(cfg *boardConfig) error {
		cfg.title = title
		return nil
	}
}

// WithRegistry sets the Prometheus registry that receives the fetch metrics
// and backs the /metrics route. Defaults to a registry private to the board.
//
// A registry can serve only one board: [New] returns an error when the
// registry already holds the metrics of another board.
//
// Returns an error if the registry is nil.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *boardConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}
