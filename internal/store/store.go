package store

import (
	"time"

	"github.com/jpalmerr/stitchboard/widget"
)

// SourceResult is the latest state of one polled source.
//
// SourceResult is the storage representation of a poll, shaped for JSON
// (used by the REST API and SSE). It is decoupled from the poller's
// internal types to allow independent evolution.
type SourceResult struct {
	// Name is the source's display name.
	Name string `json:"name"`

	// Kind is the payload kind ("metrics" or "datasources").
	Kind string `json:"kind"`

	// URL is the upstream URL that was polled.
	URL string `json:"url"`

	// State is the terminal fetch state ("succeeded", "exhausted", "failed").
	State string `json:"state"`

	// Widgets are the plot-ready widgets built from the payload.
	// Empty when the poll did not succeed.
	Widgets []widget.Widget `json:"widgets"`

	// Requests is the number of HTTP requests the poll needed.
	Requests int `json:"requests"`

	// ResponseTimeMs is the latency of the last request in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// CheckedAt is the timestamp of the poll.
	CheckedAt time.Time `json:"checked_at"`

	// Error contains the error message if the poll failed, nil otherwise.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to source results.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a new result and notifies all subscribers.
	// The result is keyed by Name, so subsequent updates replace previous values.
	Update(result SourceResult)

	// GetAll returns all currently stored results ordered by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []SourceResult

	// Widget returns the widget with the given id from the latest results.
	Widget(id string) (widget.Widget, bool)

	// Subscribe returns a channel that receives updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan SourceResult

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan SourceResult)
}
