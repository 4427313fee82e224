package stitchboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetch_SuccessAfterNotReady(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			http.Error(w, "Metrics are not yet available!", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entityCount":3}`))
	}))
	defer srv.Close()

	var successes, failures atomic.Int32
	var payload json.RawMessage

	p, err := Fetch(context.Background(), srv.URL,
		func(raw json.RawMessage) {
			successes.Add(1)
			payload = raw
		},
		func(error) { failures.Add(1) },
		WithBackoff(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if successes.Load() != 1 || failures.Load() != 0 {
		t.Errorf("callbacks = %d success / %d error, want 1/0", successes.Load(), failures.Load())
	}
	if string(payload) != `{"entityCount":3}` {
		t.Errorf("payload = %s", payload)
	}
	if requests.Load() != 3 {
		t.Errorf("requests = %d, want 3", requests.Load())
	}
}

func TestFetch_Exhausted(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var gotErr error
	var successes atomic.Int32

	p, err := Fetch(context.Background(), srv.URL,
		func(json.RawMessage) { successes.Add(1) },
		func(err error) { gotErr = err },
		WithRetryLimit(3),
		WithBackoff(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	<-p.Done()

	if !errors.Is(gotErr, ErrRetriesExhausted) {
		t.Errorf("onError got %v, want ErrRetriesExhausted", gotErr)
	}
	if !errors.Is(gotErr, ErrNotReady) {
		t.Errorf("onError got %v, want it to wrap ErrNotReady", gotErr)
	}
	if successes.Load() != 0 {
		t.Error("onSuccess should not be called")
	}
	if requests.Load() != 4 {
		t.Errorf("requests = %d, want 4", requests.Load())
	}
}

func TestFetch_ServerErrorIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var gotErr error
	p, err := Fetch(context.Background(), srv.URL, nil, func(err error) { gotErr = err }, WithBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	<-p.Done()

	var statusErr *StatusError
	if !errors.As(gotErr, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Errorf("onError got %v, want StatusError 500", gotErr)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
}

func TestFetch_CancelIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var callbacks atomic.Int32
	p, err := Fetch(context.Background(), srv.URL,
		func(json.RawMessage) { callbacks.Add(1) },
		func(error) { callbacks.Add(1) },
		WithBackoff(time.Hour),
	)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	// let the first request land and the retry get scheduled
	time.Sleep(50 * time.Millisecond)
	p.Cancel()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not stop after Cancel")
	}

	if err := p.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if callbacks.Load() != 0 {
		t.Errorf("callbacks = %d, want 0 after cancel", callbacks.Load())
	}
}

func TestFetch_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts []SourceOption
	}{
		{"relative url", "/api/metrics", nil},
		{"unsupported scheme", "ftp://stitcher/metrics", nil},
		{"negative retry", "http://stitcher/metrics", []SourceOption{WithRetryLimit(-1)}},
		{"zero timeout", "http://stitcher/metrics", []SourceOption{WithTimeout(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Fetch(context.Background(), tt.url, nil, nil, tt.opts...)
			if err == nil {
				t.Error("Fetch() expected error, got nil")
			}
			if p != nil {
				t.Error("Fetch() should not return a handle on error")
			}
		})
	}
}
