package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedTransport replays a fixed list of responses, repeating the last one.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []Response
	calls     int
	urls      []string
	methods   []string
}

func (s *scriptedTransport) Fetch(_ context.Context, method, url string, _ map[string]string, _ time.Duration) Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	s.urls = append(s.urls, url)
	s.methods = append(s.methods, method)
	return s.responses[idx]
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSleeper records requested delays and returns immediately.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func notFound() Response { return Response{StatusCode: http.StatusNotFound} }

func ok(body string) Response { return Response{StatusCode: http.StatusOK, Body: []byte(body)} }

func newTestFetcher(t Transport, sleeper *recordingSleeper, opts ...FetcherOption) *Fetcher {
	base := []FetcherOption{WithLogger(testLogger()), WithSleeper(sleeper.Sleep)}
	return NewFetcher(t, append(base, opts...)...)
}

func TestFetcher_ExhaustsAfterLimitPlusOneRequests(t *testing.T) {
	for _, limit := range []int{0, 1, 3, 5} {
		transport := &scriptedTransport{responses: []Response{notFound()}}
		sleeper := &recordingSleeper{}
		f := newTestFetcher(transport, sleeper, WithRetryPolicy(RetryPolicy{Limit: limit, Backoff: time.Second}))

		out := f.Do(context.Background(), "http://stitcher/metrics")

		if out.State != StateExhausted {
			t.Errorf("limit=%d: State = %v, want exhausted", limit, out.State)
		}
		if transport.Calls() != limit+1 {
			t.Errorf("limit=%d: requests = %d, want %d", limit, transport.Calls(), limit+1)
		}
		if out.Requests != limit+1 {
			t.Errorf("limit=%d: Outcome.Requests = %d, want %d", limit, out.Requests, limit+1)
		}
		if len(sleeper.Delays()) != limit {
			t.Errorf("limit=%d: backoffs = %d, want %d", limit, len(sleeper.Delays()), limit)
		}
		if !errors.Is(out.Err, ErrRetriesExhausted) || !errors.Is(out.Err, ErrNotReady) {
			t.Errorf("limit=%d: Err = %v, want ErrRetriesExhausted wrapping ErrNotReady", limit, out.Err)
		}
	}
}

func TestFetcher_ZeroLimitNeverSchedulesRetry(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound()}}
	sleeper := &recordingSleeper{}
	var states []State
	f := newTestFetcher(transport, sleeper,
		WithRetryPolicy(RetryPolicy{Limit: 0, Backoff: 2 * time.Second}),
		WithTransitionHook(func(_ Attempt, s State) { states = append(states, s) }),
	)

	out := f.Do(context.Background(), "http://stitcher/metrics")

	if out.State != StateExhausted {
		t.Errorf("State = %v, want exhausted", out.State)
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("backoffs = %v, want none", sleeper.Delays())
	}
	for _, s := range states {
		if s == StateRetryScheduled {
			t.Error("retry was scheduled with limit 0")
		}
	}
}

func TestFetcher_RetryThenSuccess(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{
		notFound(),
		ok(`{"entityCount":2}`),
		ok(`{"entityCount":99}`),
	}}
	sleeper := &recordingSleeper{}
	f := newTestFetcher(transport, sleeper, WithRetryPolicy(RetryPolicy{Limit: 1, Backoff: 2 * time.Second}))

	out := f.Do(context.Background(), "http://stitcher/metrics")

	if out.State != StateSucceeded {
		t.Fatalf("State = %v, want succeeded (err=%v)", out.State, out.Err)
	}
	if string(out.Payload) != `{"entityCount":2}` {
		t.Errorf("Payload = %s, want second response", out.Payload)
	}
	if transport.Calls() != 2 {
		t.Errorf("requests = %d, want 2", transport.Calls())
	}
	if len(sleeper.Delays()) != 1 {
		t.Errorf("backoffs = %d, want 1", len(sleeper.Delays()))
	}
}

func TestFetcher_FirstSuccessNeverStartsBackoff(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{ok(`[]`)}}
	sleeper := &recordingSleeper{}
	f := newTestFetcher(transport, sleeper)

	out := f.Do(context.Background(), "http://stitcher/datasources")

	if out.State != StateSucceeded {
		t.Fatalf("State = %v, want succeeded", out.State)
	}
	if len(sleeper.Delays()) != 0 {
		t.Errorf("backoffs = %v, want none", sleeper.Delays())
	}
	if transport.methods[0] != http.MethodGet {
		t.Errorf("method = %q, want GET", transport.methods[0])
	}
}

func TestFetcher_BackoffIsConstant(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound()}}
	sleeper := &recordingSleeper{}
	f := newTestFetcher(transport, sleeper, WithRetryPolicy(RetryPolicy{Limit: 5, Backoff: 2000 * time.Millisecond}))

	f.Do(context.Background(), "http://stitcher/metrics")

	delays := sleeper.Delays()
	if len(delays) != 5 {
		t.Fatalf("backoffs = %d, want 5", len(delays))
	}
	for i, d := range delays {
		if d != 2*time.Second {
			t.Errorf("backoff[%d] = %v, want 2s", i, d)
		}
	}
}

func TestFetcher_DefaultPolicy(t *testing.T) {
	f := NewFetcher(&scriptedTransport{responses: []Response{ok(`{}`)}})
	if got := f.Policy(); got != (RetryPolicy{Limit: 5, Backoff: 2 * time.Second}) {
		t.Errorf("Policy() = %+v, want limit 5 backoff 2s", got)
	}
}

func TestFetcher_NegativePolicyClamped(t *testing.T) {
	f := NewFetcher(&scriptedTransport{}, WithRetryPolicy(RetryPolicy{Limit: -3, Backoff: -time.Second}))
	if got := f.Policy(); got != (RetryPolicy{}) {
		t.Errorf("Policy() = %+v, want zero policy", got)
	}
}

func TestFetcher_TerminalFailures(t *testing.T) {
	tests := []struct {
		name  string
		resp  Response
		check func(error) bool
	}{
		{
			name:  "server error",
			resp:  Response{StatusCode: http.StatusInternalServerError},
			check: func(err error) bool { var se *StatusError; return errors.As(err, &se) && se.Code == 500 },
		},
		{
			name:  "forbidden",
			resp:  Response{StatusCode: http.StatusForbidden},
			check: func(err error) bool { var se *StatusError; return errors.As(err, &se) && se.Code == 403 },
		},
		{
			name:  "transport error",
			resp:  Response{Error: errors.New("connection refused")},
			check: func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
		{
			name:  "invalid json",
			resp:  ok(`<html>not json</html>`),
			check: func(err error) bool { return errors.Is(err, ErrInvalidPayload) },
		},
		{
			name: "body too large",
			resp: Response{StatusCode: http.StatusOK, Error: ErrBodyTooLarge},
			check: func(err error) bool {
				var te *TransportError
				return errors.Is(err, ErrBodyTooLarge) && !errors.Is(err, ErrInvalidPayload) && !errors.As(err, &te)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &scriptedTransport{responses: []Response{tt.resp, ok(`{}`)}}
			sleeper := &recordingSleeper{}
			f := newTestFetcher(transport, sleeper)

			out := f.Do(context.Background(), "http://stitcher/metrics")

			if out.State != StateFailed {
				t.Errorf("State = %v, want failed", out.State)
			}
			if !tt.check(out.Err) {
				t.Errorf("Err = %v, wrong type", out.Err)
			}
			if transport.Calls() != 1 {
				t.Errorf("requests = %d, want 1 (no retry)", transport.Calls())
			}
			if len(sleeper.Delays()) != 0 {
				t.Errorf("backoffs = %v, want none", sleeper.Delays())
			}
		})
	}
}

func TestFetcher_TransitionSequence(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound(), notFound(), ok(`{}`)}}
	var (
		states []State
		tries  []int
	)
	f := newTestFetcher(transport, &recordingSleeper{},
		WithTransitionHook(func(a Attempt, s State) {
			states = append(states, s)
			tries = append(tries, a.Tries)
		}),
	)

	f.Do(context.Background(), "http://stitcher/metrics")

	wantStates := []State{
		StatePending, StateRetryScheduled,
		StatePending, StateRetryScheduled,
		StatePending, StateSucceeded,
	}
	wantTries := []int{0, 1, 1, 2, 2, 2}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] || tries[i] != wantTries[i] {
			t.Errorf("transition[%d] = %v/tries=%d, want %v/tries=%d",
				i, states[i], tries[i], wantStates[i], wantTries[i])
		}
	}
}

func TestFetcher_CancelDuringBackoff(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound()}}
	ctx, cancel := context.WithCancel(context.Background())

	f := NewFetcher(transport,
		WithLogger(testLogger()),
		WithRetryPolicy(RetryPolicy{Limit: 5, Backoff: time.Hour}),
		WithTransitionHook(func(_ Attempt, s State) {
			if s == StateRetryScheduled {
				cancel()
			}
		}),
	)

	done := make(chan Outcome, 1)
	go func() { done <- f.Do(ctx, "http://stitcher/metrics") }()

	select {
	case out := <-done:
		if out.State != StateCancelled {
			t.Errorf("State = %v, want cancelled", out.State)
		}
		if !errors.Is(out.Err, context.Canceled) {
			t.Errorf("Err = %v, want context.Canceled", out.Err)
		}
		if transport.Calls() != 1 {
			t.Errorf("requests = %d, want 1", transport.Calls())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancellation")
	}
}

func TestFetcher_GoInvokesSuccessOnce(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound(), ok(`{"a":1}`)}}
	f := newTestFetcher(transport, &recordingSleeper{})

	var successes, failures atomic.Int32
	var payload json.RawMessage
	p := f.Go(context.Background(), "http://stitcher/metrics",
		func(b json.RawMessage) { successes.Add(1); payload = b },
		func(error) { failures.Add(1) },
	)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not complete")
	}

	if successes.Load() != 1 || failures.Load() != 0 {
		t.Errorf("successes=%d failures=%d, want 1/0", successes.Load(), failures.Load())
	}
	if string(payload) != `{"a":1}` {
		t.Errorf("payload = %s", payload)
	}
	if p.Outcome().State != StateSucceeded {
		t.Errorf("Outcome().State = %v", p.Outcome().State)
	}
}

func TestFetcher_GoReportsExhaustion(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound()}}
	f := newTestFetcher(transport, &recordingSleeper{}, WithRetryPolicy(RetryPolicy{Limit: 2, Backoff: time.Millisecond}))

	errCh := make(chan error, 2)
	p := f.Go(context.Background(), "http://stitcher/metrics",
		func(json.RawMessage) { t.Error("onSuccess must not be called") },
		func(err error) { errCh <- err },
	)
	<-p.Done()

	if len(errCh) != 1 {
		t.Fatalf("onError calls = %d, want 1", len(errCh))
	}
	if err := <-errCh; !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("onError(%v), want ErrRetriesExhausted", err)
	}
}

func TestFetcher_GoCancelSkipsCallbacks(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{notFound()}}
	started := make(chan struct{})
	var once sync.Once
	f := NewFetcher(transport,
		WithLogger(testLogger()),
		WithRetryPolicy(RetryPolicy{Limit: 5, Backoff: time.Hour}),
		WithTransitionHook(func(_ Attempt, s State) {
			if s == StateRetryScheduled {
				once.Do(func() { close(started) })
			}
		}),
	)

	var calls atomic.Int32
	p := f.Go(context.Background(), "http://stitcher/metrics",
		func(json.RawMessage) { calls.Add(1) },
		func(error) { calls.Add(1) },
	)

	<-started
	p.Cancel()
	p.Cancel() // idempotent

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled fetch did not finish")
	}
	if calls.Load() != 0 {
		t.Errorf("callbacks invoked %d times after cancel, want 0", calls.Load())
	}
	if p.Outcome().State != StateCancelled {
		t.Errorf("State = %v, want cancelled", p.Outcome().State)
	}
}

func TestFetcher_GoRecoversCallbackPanic(t *testing.T) {
	transport := &scriptedTransport{responses: []Response{ok(`{}`)}}
	f := newTestFetcher(transport, &recordingSleeper{})

	p := f.Go(context.Background(), "http://stitcher/metrics",
		func(json.RawMessage) { panic("renderer exploded") },
		nil,
	)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch with panicking callback did not finish")
	}
	if p.Outcome().State != StateSucceeded {
		t.Errorf("State = %v, want succeeded", p.Outcome().State)
	}
}

func TestFetcher_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	transport := &scriptedTransport{responses: []Response{notFound(), notFound(), ok(`{}`)}}
	f := newTestFetcher(transport, &recordingSleeper{}, WithMetrics(m))

	f.Do(context.Background(), "http://stitcher/metrics")

	if got := testutil.ToFloat64(m.Requests.WithLabelValues(outcomeNotReady)); got != 2 {
		t.Errorf("not_ready requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Retries); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Fetches.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("succeeded fetches = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount() = %d, %v", n, err)
	}
}

func TestFetcher_NilMetricsSafe(t *testing.T) {
	f := newTestFetcher(&scriptedTransport{responses: []Response{notFound(), ok(`{}`)}}, &recordingSleeper{})
	if out := f.Do(context.Background(), "u"); out.State != StateSucceeded {
		t.Errorf("State = %v", out.State)
	}
}

// TestFetcher_AgainstServer exercises the real client against a server that
// is not ready for the first two requests.
func TestFetcher_AgainstServer(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if hits.Add(1) <= 2 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"stitchCount":7}`))
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	f := NewFetcher(client,
		WithLogger(testLogger()),
		WithRequestHeaders(map[string]string{"X-Token": "secret"}),
		WithRetryPolicy(RetryPolicy{Limit: 5, Backoff: 10 * time.Millisecond}),
	)

	out := f.Do(context.Background(), server.URL)
	if out.State != StateSucceeded {
		t.Fatalf("State = %v, err = %v", out.State, out.Err)
	}
	if out.Requests != 3 {
		t.Errorf("Requests = %d, want 3", out.Requests)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", out.StatusCode)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StatePending:        "pending",
		StateRetryScheduled: "retry_scheduled",
		StateSucceeded:      "succeeded",
		StateExhausted:      "exhausted",
		StateFailed:         "failed",
		StateCancelled:      "cancelled",
		State(42):           "state(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
	if StatePending.Terminal() || StateRetryScheduled.Terminal() {
		t.Error("non-terminal states reported terminal")
	}
	if !StateExhausted.Terminal() {
		t.Error("exhausted should be terminal")
	}
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first NewMetrics() error = %v", err)
	}

	m, err := NewMetrics(reg)
	if err == nil {
		t.Fatal("second NewMetrics() expected error, got nil")
	}
	if m != nil {
		t.Error("second NewMetrics() should not return collectors")
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		t.Errorf("error = %v, want it to wrap AlreadyRegisteredError", err)
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics(nil) error = %v", err)
	}
	m.observeRetry()
	if got := testutil.ToFloat64(m.Retries); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}
