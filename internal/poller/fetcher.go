package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Default retry behaviour for sources that are computed lazily upstream.
const (
	DefaultRetryLimit = 5
	DefaultBackoff    = 2 * time.Second
)

// DefaultRetryPolicy retries a not-ready source five times, two seconds apart.
var DefaultRetryPolicy = RetryPolicy{Limit: DefaultRetryLimit, Backoff: DefaultBackoff}

// RetryPolicy bounds the retries of a single fetch.
//
// Limit is the number of retries after the first request, so a fetch that
// never becomes ready issues Limit+1 requests. Backoff is the fixed delay
// before every retry.
type RetryPolicy struct {
	Limit   int
	Backoff time.Duration
}

// Attempt is the retry state of one fetch. It is a value: retrying produces
// a new Attempt rather than changing the old one.
type Attempt struct {
	URL    string
	Tries  int
	Policy RetryPolicy
}

// retry returns the attempt that follows a not-ready response and whether
// the policy still allows it to run.
func (a Attempt) retry() (Attempt, bool) {
	next := a
	next.Tries++
	return next, next.Tries <= a.Policy.Limit
}

// State is the position of a fetch in its lifecycle.
type State int

const (
	StatePending State = iota
	StateRetryScheduled
	StateSucceeded
	StateExhausted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetryScheduled:
		return "retry_scheduled"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateFailed || s == StateCancelled
}

// Outcome is the terminal result of a fetch.
type Outcome struct {
	// URL is the fetched URL.
	URL string

	// State is one of the terminal states.
	State State

	// Payload is the JSON body of the successful response.
	Payload json.RawMessage

	// StatusCode is the status of the last response, zero if none arrived.
	StatusCode int

	// Requests is the number of HTTP requests issued.
	Requests int

	// Latency is the latency of the last request.
	Latency time.Duration

	// Err is set for Exhausted, Failed and Cancelled outcomes.
	Err error
}

// Sleeper waits d or until ctx is done, whichever is first.
type Sleeper func(ctx context.Context, d time.Duration) error

// FetcherOption configures a [Fetcher].
type FetcherOption func(*Fetcher)

// WithRetryPolicy sets the retry limit and backoff.
// Negative limits and backoffs are treated as zero.
func WithRetryPolicy(p RetryPolicy) FetcherOption {
	return func(f *Fetcher) {
		if p.Limit < 0 {
			p.Limit = 0
		}
		if p.Backoff < 0 {
			p.Backoff = 0
		}
		f.policy = p
	}
}

// WithRequestHeaders sets headers sent with every request.
func WithRequestHeaders(h map[string]string) FetcherOption {
	return func(f *Fetcher) { f.headers = h }
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithSleeper replaces the backoff timer.
func WithSleeper(s Sleeper) FetcherOption {
	return func(f *Fetcher) {
		if s != nil {
			f.sleep = s
		}
	}
}

// WithTransitionHook registers fn to observe every state transition.
// fn runs synchronously on the fetching goroutine and must not block.
func WithTransitionHook(fn func(Attempt, State)) FetcherOption {
	return func(f *Fetcher) { f.onTransition = fn }
}

// WithMetrics sets the collectors updated by the fetcher.
func WithMetrics(m *Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// WithLogger sets the logger used for retry and panic events.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fetcher issues GET requests and retries them while the upstream reports
// that the resource is not ready yet.
//
// A Fetcher holds no per-fetch state and is safe for concurrent use; every
// call to [Fetcher.Do] or [Fetcher.Go] has its own [Attempt].
type Fetcher struct {
	transport Transport
	policy    RetryPolicy
	headers   map[string]string
	timeout   time.Duration
	sleep     Sleeper
	metrics   *Metrics
	logger    *slog.Logger

	onTransition func(Attempt, State)
}

// NewFetcher creates a [Fetcher] over the given transport using
// [DefaultRetryPolicy] unless configured otherwise.
func NewFetcher(t Transport, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		transport: t,
		policy:    DefaultRetryPolicy,
		timeout:   10 * time.Second,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the retry policy of the fetcher.
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy
}

// Do fetches url, retrying not-ready responses, and returns the terminal
// outcome. Do blocks for the whole fetch including backoff delays.
func (f *Fetcher) Do(ctx context.Context, url string) Outcome {
	attempt := Attempt{URL: url, Policy: f.policy}
	out := Outcome{URL: url}

	for {
		f.transition(attempt, StatePending)
		resp := f.transport.Fetch(ctx, http.MethodGet, url, f.headers, f.timeout)
		out.Requests++
		out.StatusCode = resp.StatusCode
		out.Latency = resp.Latency

		if ctx.Err() != nil {
			f.metrics.observeRequest(outcomeTransport, resp)
			return f.finish(attempt, out, StateCancelled, ctx.Err())
		}

		switch {
		case errors.Is(resp.Error, ErrBodyTooLarge):
			f.metrics.observeRequest(outcomeInvalid, resp)
			return f.finish(attempt, out, StateFailed, resp.Error)

		case resp.Error != nil:
			f.metrics.observeRequest(outcomeTransport, resp)
			return f.finish(attempt, out, StateFailed, &TransportError{Err: resp.Error})

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if !json.Valid(resp.Body) {
				f.metrics.observeRequest(outcomeInvalid, resp)
				return f.finish(attempt, out, StateFailed, ErrInvalidPayload)
			}
			f.metrics.observeRequest(outcomeOK, resp)
			out.Payload = json.RawMessage(resp.Body)
			return f.finish(attempt, out, StateSucceeded, nil)

		case resp.StatusCode == http.StatusNotFound:
			f.metrics.observeRequest(outcomeNotReady, resp)
			next, ok := attempt.retry()
			if !ok {
				err := fmt.Errorf("%w after %d requests: %w", ErrRetriesExhausted, out.Requests, ErrNotReady)
				return f.finish(attempt, out, StateExhausted, err)
			}

			f.metrics.observeRetry()
			f.transition(next, StateRetryScheduled)
			f.logger.Debug("retry scheduled",
				"url", url,
				"tries", next.Tries,
				"limit", next.Policy.Limit,
				"backoff", next.Policy.Backoff.String(),
			)
			if err := f.sleep(ctx, next.Policy.Backoff); err != nil {
				return f.finish(attempt, out, StateCancelled, err)
			}
			attempt = next

		default:
			f.metrics.observeRequest(outcomeStatus, resp)
			return f.finish(attempt, out, StateFailed, &StatusError{Code: resp.StatusCode})
		}
	}
}

func (f *Fetcher) finish(a Attempt, out Outcome, state State, err error) Outcome {
	f.transition(a, state)
	out.State = state
	out.Err = err
	f.metrics.observeFetch(state)
	return out
}

func (f *Fetcher) transition(a Attempt, s State) {
	if f.onTransition != nil {
		f.onTransition(a, s)
	}
}

// Pending is a handle to a fetch started with [Fetcher.Go].
type Pending struct {
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

// Cancel abandons the fetch. A cancelled fetch invokes neither callback
// unless it had already reached a terminal state. Safe to call repeatedly.
func (p *Pending) Cancel() {
	p.cancel()
}

// Done is closed once the fetch is terminal and its callback has returned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the terminal outcome. It blocks until [Pending.Done] is closed.
func (p *Pending) Outcome() Outcome {
	<-p.done
	return p.outcome
}

// Go runs [Fetcher.Do] in the background.
//
// onSuccess is invoked exactly once with the payload if the fetch succeeds.
// onError is invoked at most once with the terminal error if the fetch is
// exhausted or fails. Neither is invoked after cancellation. Either callback
// may be nil. Panics inside callbacks are recovered and logged.
func (f *Fetcher) Go(ctx context.Context, url string, onSuccess func(json.RawMessage), onError func(error)) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		defer cancel()

		out := f.Do(ctx, url)
		p.outcome = out

		switch out.State {
		case StateSucceeded:
			if onSuccess != nil {
				f.invokeSafe(url, func() { onSuccess(out.Payload) })
			}
		case StateExhausted, StateFailed:
			if onError != nil {
				f.invokeSafe(url, func() { onError(out.Err) })
			}
		}
	}()

	return p
}

// invokeSafe runs a caller callback with panic recovery. The stack is logged
// under a correlation id.
func (f *Fetcher) invokeSafe(url string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("fetch callback panic",
				"correlation_id", uuid.NewString(),
				"url", url,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
