package store

import (
	"sort"
	"sync"

	"github.com/jpalmerr/stitchboard/widget"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Results are keyed by source name, with new results replacing previous
// values. Subscribers receive updates via buffered channels; if a
// subscriber's buffer is full the update is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	results     map[string]SourceResult
	subscribers map[chan SourceResult]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:     make(map[string]SourceResult),
		subscribers: make(map[chan SourceResult]struct{}),
	}
}

// Update stores a [SourceResult] and notifies all subscribers.
func (m *MemoryStore) Update(result SourceResult) {
	m.mu.Lock()
	m.results[result.Name] = result
	m.mu.Unlock()

	m.notifySubscribers(result)
}

// GetAll returns a snapshot of all stored results, ordered by name.
func (m *MemoryStore) GetAll() []SourceResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]SourceResult, 0, len(m.results))
	for _, r := range m.results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// Widget returns the widget with the given id. When two sources publish the
// same id, the source whose name sorts first wins.
func (m *MemoryStore) Widget(id string) (widget.Widget, bool) {
	for _, r := range m.GetAll() {
		for _, w := range r.Widgets {
			if w.ID == id {
				return w, true
			}
		}
	}
	return widget.Widget{}, false
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan SourceResult {
	ch := make(chan SourceResult, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan SourceResult) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the result to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(result SourceResult) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- result:
		default:
			// subscriber is slow, drop the message
		}
	}
}
