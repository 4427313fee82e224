package stitchboard

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jpalmerr/stitchboard/internal/poller"
)

// Pending is a handle to a fetch started with [Fetch].
type Pending struct {
	p *poller.Pending
}

// Cancel abandons the fetch, including any scheduled retry. Neither
// callback runs after Cancel unless the fetch was already terminal.
func (p *Pending) Cancel() {
	p.p.Cancel()
}

// Done is closed once the fetch is terminal and its callback has returned.
func (p *Pending) Done() <-chan struct{} {
	return p.p.Done()
}

// Wait blocks until the fetch is done and returns its terminal error, nil on
// success. A cancelled fetch returns the context's error.
func (p *Pending) Wait() error {
	return p.p.Outcome().Err
}

// Fetch GETs url in the background, retrying while the server answers 404.
//
// onSuccess is called exactly once with the JSON body of the first 2xx
// response. onError is called at most once: with an error wrapping
// [ErrRetriesExhausted] when every allowed retry answered 404, or with the
// terminal error of any other failure. Either callback may be nil.
//
// The retry policy defaults to 5 retries, 2 seconds apart; override it with
// [WithRetryLimit] and [WithBackoff]. Cancelling ctx or calling
// [Pending.Cancel] abandons the fetch silently.
//
// Returns an error only if an option or the URL is invalid.
func Fetch(ctx context.Context, url string, onSuccess func(json.RawMessage), onError func(error), opts ...SourceOption) (*Pending, error) {
	return fetchWith(ctx, slog.Default(), url, onSuccess, onError, opts...)
}

func fetchWith(ctx context.Context, logger *slog.Logger, url string, onSuccess func(json.RawMessage), onError func(error), opts ...SourceOption) (*Pending, error) {
	if err := validateURL(url); err != nil {
		return nil, err
	}

	cfg := &sourceConfig{
		headers: make(map[string]string),
		timeout: defaultSourceTimeout,
		retry:   poller.DefaultRetryPolicy,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	client := poller.NewClient()
	f := poller.NewFetcher(client,
		poller.WithLogger(logger),
		poller.WithRetryPolicy(cfg.retry),
		poller.WithRequestHeaders(cfg.headers),
		poller.WithRequestTimeout(cfg.timeout),
	)

	p := f.Go(ctx, url, onSuccess, onError)
	go func() {
		<-p.Done()
		client.Close()
	}()

	return &Pending{p: p}, nil
}
