// Package memory is a bounded in-memory audit store. Once full, the oldest
// events are overwritten.
package memory

import (
	"context"
	"sync"

	audit "zkgate/pkg/platform/audit"
)

const defaultCapacity = 10000

// InMemoryStore keeps the most recent events in a ring buffer.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	next   int
	full   bool
}

// NewInMemoryStore creates a store holding up to capacity events. A
// non-positive capacity uses the default of 10000.
func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryStore{events: make([]audit.Event, capacity)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = event
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *InMemoryStore) ListByCredential(_ context.Context, credentialID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.ordered() {
		if e.CredentialID == credentialID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns up to limit events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.ordered()
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(ordered) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ordered[i])
	}
	return out, nil
}

// ordered returns events oldest first. Callers must hold the lock.
func (s *InMemoryStore) ordered() []audit.Event {
	if !s.full {
		return append([]audit.Event(nil), s.events[:s.next]...)
	}
	out := make([]audit.Event, 0, len(s.events))
	out = append(out, s.events[s.next:]...)
	return append(out, s.events[:s.next]...)
}
