package poller

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// request outcome labels
const (
	outcomeOK        = "ok"
	outcomeNotReady  = "not_ready"
	outcomeStatus    = "status"
	outcomeTransport = "transport"
	outcomeInvalid   = "invalid_payload"
)

// Metrics holds the Prometheus collectors updated by [Fetcher].
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Retries  prometheus.Counter
	Fetches  *prometheus.CounterVec
	Latency  prometheus.Histogram
}

// NewMetrics creates the fetcher collectors and registers them with reg.
// A nil reg creates unregistered collectors.
//
// Returns an error if reg already holds collectors with the same names, for
// example when a registry is shared by two boards. Nothing stays registered
// on error.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	factory := promauto.With(nil)
	m := &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stitchboard_requests_total",
			Help: "Upstream HTTP requests by outcome.",
		}, []string{"outcome"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "stitchboard_retries_total",
			Help: "Retries scheduled after a not-ready response.",
		}),
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stitchboard_fetches_total",
			Help: "Completed fetches by terminal state.",
		}, []string{"state"}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stitchboard_request_duration_seconds",
			Help:    "Latency of upstream HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{m.Requests, m.Retries, m.Fetches, m.Latency}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, fmt.Errorf("fetch metrics already registered (is the registry shared by another board?): %w", err)
			}
			return nil, fmt.Errorf("failed to register fetch metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(outcome string, resp Response) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	m.Latency.Observe(resp.Latency.Seconds())
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) observeFetch(state State) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(state.String()).Inc()
}
