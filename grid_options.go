package stitchboard

import (
	"errors"
	"fmt"
	"time"
)

// gridConfig holds configuration during source grid construction.
type gridConfig struct {
	urlTemplate string
	dimensions  map[string][]string
	headers     map[string]string
	timeout     time.Duration
	retryLimit  *int
	backoff     *time.Duration
}

// GridOption configures source grid generation for [NewSourceGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template for source generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("http://stitcher:9000/api/stitches/{{.version}}/metrics/{{.label}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key becomes a template variable.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridHeaders adds HTTP headers to all generated sources.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridTimeout sets the request timeout for all generated sources.
// Zero keeps the source default.
//
// Returns an error if the duration is negative.
func WithGridTimeout(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithGridRetryLimit sets the not-ready retry limit of all generated sources.
//
// Returns an error if limit is negative.
func WithGridRetryLimit(limit int) GridOption {
	return func(cfg *gridConfig) error {
		if limit < 0 {
			return errors.New("retry limit cannot be negative")
		}
		cfg.retryLimit = &limit
		return nil
	}
}

// WithGridBackoff sets the retry backoff of all generated sources.
//
// Returns an error if the duration is negative.
func WithGridBackoff(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("backoff cannot be negative")
		}
		cfg.backoff = &d
		return nil
	}
}
