package stitchboard

import (
	"errors"
	"time"

	"github.com/jpalmerr/stitchboard/internal/poller"
)

// sourceConfig holds mutable state during source construction.
type sourceConfig struct {
	headers  map[string]string
	timeout  time.Duration
	retry    poller.RetryPolicy
	widgetID string
}

// SourceOption configures a [Source] during construction.
//
// Options are also accepted by [Fetch]. Options return an error if
// validation fails.
type SourceOption func(*sourceConfig) error

// WithHeaders adds custom HTTP headers sent with every request.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	src, err := stitchboard.NewSource("metrics", stitchboard.KindMetrics, url,
//	    stitchboard.WithHeaders("Authorization", "Bearer token123"),
//	)
func WithHeaders(keyValues ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the timeout of each request. Retries get a fresh timeout.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithRetryLimit sets how many times a not-ready (404) response is retried.
// A fetch issues at most limit+1 requests. Zero disables retries.
//
// Returns an error if limit is negative.
func WithRetryLimit(limit int) SourceOption {
	return func(cfg *sourceConfig) error {
		if limit < 0 {
			return errors.New("retry limit cannot be negative")
		}
		cfg.retry.Limit = limit
		return nil
	}
}

// WithBackoff sets the constant delay before each retry. Defaults to 2 seconds.
//
// Returns an error if the duration is negative.
func WithBackoff(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d < 0 {
			return errors.New("backoff cannot be negative")
		}
		cfg.retry.Backoff = d
		return nil
	}
}

// WithWidgetID places the source's widgets under id.
//
// For a data-source source id is the donut's container id, which defaults
// to "datasource-plot". For a metrics source id prefixes the fixed widget
// ids ("drugbank" yields "drugbank-entity-count"), so that several metrics
// sources can share a dashboard.
func WithWidgetID(id string) SourceOption {
	return func(cfg *sourceConfig) error {
		if id == "" {
			return errors.New("widget id cannot be empty")
		}
		cfg.widgetID = id
		return nil
	}
}
