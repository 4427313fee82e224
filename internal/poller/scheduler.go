package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SourceInfo contains the configuration needed to poll a single source.
//
// This is the poller-internal representation of a source, decoupled from
// the main stitchboard.Source type to avoid circular dependencies.
type SourceInfo struct {
	// Name identifies the source in logs and the store.
	Name string

	// Kind is the payload kind ("metrics" or "datasources").
	Kind string

	// URL is the target URL to poll.
	URL string

	// Headers contains custom HTTP headers to send with requests.
	Headers map[string]string

	// Timeout is the per-request timeout duration.
	Timeout time.Duration

	// Retry bounds the not-ready retries of each poll.
	Retry RetryPolicy
}

// SourceResult holds the outcome of polling a single source.
type SourceResult struct {
	Source    SourceInfo
	Outcome   Outcome
	CheckedAt time.Time
}

// Scheduler polls every source once at start and then once per interval.
//
// Each poll of a source is a full [Fetcher.Do], so a source that is not
// ready yet is retried within the same cycle. Sources of one cycle are
// polled concurrently, bounded by maxConcurrency. If a cycle outlasts the
// interval, the missed ticks are dropped.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	sources        []SourceInfo
	fetchers       []*Fetcher
	interval       time.Duration
	maxConcurrency int
	client         *Client
	results        chan SourceResult
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a new polling [Scheduler].
//
// Parameters:
//   - sources: List of sources to poll
//   - interval: Time between polling cycles
//   - maxConcurrency: Maximum number of sources polled at once
//   - logger: Logger for scheduler events
//   - opts: Fetcher options shared by every source (metrics, sleeper, hooks)
//
// Per-source retry policy, headers and timeout are applied after opts.
func NewScheduler(sources []SourceInfo, interval time.Duration, maxConcurrency int, logger *slog.Logger, opts ...FetcherOption) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	client := NewClient()
	fetchers := make([]*Fetcher, len(sources))
	for i, src := range sources {
		srcOpts := append([]FetcherOption{WithLogger(logger)}, opts...)
		srcOpts = append(srcOpts,
			WithRetryPolicy(src.Retry),
			WithRequestHeaders(src.Headers),
			WithRequestTimeout(src.Timeout),
		)
		fetchers[i] = NewFetcher(client, srcOpts...)
	}

	return &Scheduler{
		sources:        sources,
		fetchers:       fetchers,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		client:         client,
		results:        make(chan SourceResult, len(sources)),
		logger:         logger,
	}
}

// Results returns a receive-only channel that emits [SourceResult] values.
//
// The channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan SourceResult {
	return s.results
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking. If ctx is nil, context.Background() is used.
// Start is idempotent, and a no-op after Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.pollAll(pollCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				s.pollAll(pollCtx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for in-flight polls to finish.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.client != nil {
		s.client.Close()
	}

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// pollAll polls every source once, at most maxConcurrency at a time.
func (s *Scheduler) pollAll(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)

	for i := range s.sources {
		if ctx.Err() != nil {
			break
		}
		src, fetcher := s.sources[i], s.fetchers[i]
		g.Go(func() error {
			out := fetcher.Do(ctx, src.URL)
			if out.State == StateCancelled {
				return nil
			}
			select {
			case s.results <- SourceResult{Source: src, Outcome: out, CheckedAt: time.Now()}:
			case <-ctx.Done():
			}
			return nil
		})
	}

	// poll errors travel in the results, never through the group
	_ = g.Wait()
}
