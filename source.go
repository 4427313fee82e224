package stitchboard

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jpalmerr/stitchboard/internal/poller"
	"github.com/jpalmerr/stitchboard/widget"
)

const defaultSourceTimeout = 10 * time.Second

// Source kinds. The kind selects how a payload is reshaped into widgets.
const (
	// KindMetrics is a stitcher metrics summary: four counters and three
	// histograms.
	KindMetrics = widget.SourceMetrics

	// KindDataSources is a list of data sources with record counts.
	KindDataSources = widget.SourceDataSources
)

// Source is an upstream JSON endpoint polled by the dashboard.
//
// Source is immutable after creation via [NewSource]. Getters return copies
// of mutable data.
type Source struct {
	name     string
	kind     string
	url      string
	headers  map[string]string
	timeout  time.Duration
	retry    poller.RetryPolicy
	widgetID string
}

// Name returns the source's display name.
func (s Source) Name() string {
	return s.name
}

// Kind returns [KindMetrics] or [KindDataSources].
func (s Source) Kind() string {
	return s.kind
}

// URL returns the polled URL.
func (s Source) URL() string {
	return s.url
}

// Headers returns a copy of the custom HTTP headers.
func (s Source) Headers() map[string]string {
	return copyMap(s.headers)
}

// Timeout returns the per-request timeout.
func (s Source) Timeout() time.Duration {
	return s.timeout
}

// RetryLimit returns how many times a not-ready (404) response is retried.
func (s Source) RetryLimit() int {
	return s.retry.Limit
}

// Backoff returns the delay before each retry.
func (s Source) Backoff() time.Duration {
	return s.retry.Backoff
}

// WidgetID returns the container id of a data-source plot, or the prefix of
// the widget ids of a metrics source. Empty for a metrics source that uses
// the fixed ids.
func (s Source) WidgetID() string {
	return s.widgetID
}

// NewSource creates a [Source] with the given name, kind, URL and options.
//
// Metrics sources retry a not-ready response 5 times, 2 seconds apart.
// Data-source sources do not retry unless [WithRetryLimit] says so.
//
// Returns an error if the name is empty, the kind is unknown or the URL is
// invalid.
//
// Example:
//
//	src, err := stitchboard.NewSource("metrics", stitchboard.KindMetrics,
//	    "http://localhost:8080/api/stitches/latest/metrics",
//	    stitchboard.WithTimeout(5 * time.Second),
//	)
func NewSource(name, kind, rawURL string, opts ...SourceOption) (Source, error) {
	if name == "" {
		return Source{}, errors.New("source name cannot be empty")
	}
	if err := validateURL(rawURL); err != nil {
		return Source{}, err
	}

	cfg := &sourceConfig{
		headers: make(map[string]string),
		timeout: defaultSourceTimeout,
	}

	switch kind {
	case KindMetrics:
		cfg.retry = poller.DefaultRetryPolicy
	case KindDataSources:
		cfg.retry = poller.RetryPolicy{Backoff: poller.DefaultBackoff}
		cfg.widgetID = widget.DataSourcePlotID
	default:
		return Source{}, fmt.Errorf("unknown source kind %q (want %q or %q)", kind, KindMetrics, KindDataSources)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Source{}, err
		}
	}

	return Source{
		name:     name,
		kind:     kind,
		url:      rawURL,
		headers:  cfg.headers,
		timeout:  cfg.timeout,
		retry:    cfg.retry,
		widgetID: cfg.widgetID,
	}, nil
}

func validateURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("URL must have a scheme (http:// or https://)")
	}
	return nil
}

// toInfo converts a Source to its poller representation.
func (s Source) toInfo() poller.SourceInfo {
	return poller.SourceInfo{
		Name:    s.name,
		Kind:    s.kind,
		URL:     s.url,
		Headers: copyMap(s.headers),
		Timeout: s.timeout,
		Retry:   s.retry,
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
