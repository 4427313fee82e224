package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady reports that the upstream answered 404. The stitcher
	// returns 404 while a summary is still being computed, so it is retried.
	ErrNotReady = errors.New("resource not ready")

	// ErrRetriesExhausted reports that every allowed retry also answered
	// with [ErrNotReady]. It always wraps ErrNotReady.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrInvalidPayload reports a 2xx response whose body is not valid JSON.
	ErrInvalidPayload = errors.New("response body is not valid JSON")

	// ErrBodyTooLarge reports a response body over the 1MB read limit. The
	// body is not parsed, so the fetch fails without retrying.
	ErrBodyTooLarge = errors.New("response body exceeds 1MB")
)

// StatusError is a terminal failure caused by an unexpected HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// TransportError is a terminal failure that happened before a status was
// received: connection refused, DNS failure, timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
