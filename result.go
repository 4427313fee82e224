package stitchboard

import (
	"time"

	"github.com/jpalmerr/stitchboard/internal/poller"
	"github.com/jpalmerr/stitchboard/widget"
)

// State is the terminal state of one poll of a source.
type State string

const (
	// StateSucceeded means a 2xx response with a JSON body arrived.
	StateSucceeded State = "succeeded"

	// StateExhausted means every allowed request answered 404 (not ready).
	StateExhausted State = "exhausted"

	// StateFailed means a transport error, a non-404 error status or a
	// payload that could not be read.
	StateFailed State = "failed"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Errors reported by fetches. Use [errors.Is] and [errors.As] to inspect
// the error passed to onError or stored in [Result.Error].
var (
	// ErrNotReady reports a 404 response; the summary is still being computed.
	ErrNotReady = poller.ErrNotReady

	// ErrRetriesExhausted reports that every retry answered 404. It wraps ErrNotReady.
	ErrRetriesExhausted = poller.ErrRetriesExhausted

	// ErrInvalidPayload reports a 2xx body that is not valid JSON.
	ErrInvalidPayload = poller.ErrInvalidPayload

	// ErrBodyTooLarge reports a response body over the 1MB read limit.
	ErrBodyTooLarge = poller.ErrBodyTooLarge
)

type (
	// StatusError is a terminal failure on an unexpected HTTP status.
	StatusError = poller.StatusError

	// TransportError is a failure before any status arrived.
	TransportError = poller.TransportError
)

// Result holds the outcome of polling a single source.
//
// Result is passed to callbacks registered with [WithResultCallback].
type Result struct {
	// SourceName is the display name of the polled source.
	SourceName string

	// Kind is the source kind.
	Kind string

	// URL is the polled URL.
	URL string

	// State is the terminal state of the poll.
	State State

	// Widgets are the reshaped widgets. Empty unless State is StateSucceeded.
	Widgets []widget.Widget

	// Payload is the raw JSON body of the successful response.
	Payload []byte

	// StatusCode is the HTTP status of the last response, zero if none arrived.
	StatusCode int

	// Requests is the number of HTTP requests the poll issued.
	Requests int

	// Latency is the latency of the last request.
	Latency time.Duration

	// CheckedAt is when the poll finished.
	CheckedAt time.Time

	// Error is nil on success. Otherwise it wraps one of the errors above.
	Error error
}

// stateOf maps a terminal poller state to its public form.
func stateOf(s poller.State) State {
	switch s {
	case poller.StateSucceeded:
		return StateSucceeded
	case poller.StateExhausted:
		return StateExhausted
	default:
		return StateFailed
	}
}
