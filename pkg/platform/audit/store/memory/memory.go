// Package memory keeps audit events in process, for tests and for servers
// started without DATABASE_URL.
package memory

import (
	"context"
	"sync"

	id "regflow/pkg/domain"
	audit "regflow/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	return s.filter(func(e audit.Event) bool { return e.UserID == userID }), nil
}

func (s *InMemoryStore) ListByResource(_ context.Context, resourceType, resourceID string) ([]audit.Event, error) {
	return s.filter(func(e audit.Event) bool {
		return e.ResourceType == resourceType && e.ResourceID == resourceID
	}), nil
}

// filter returns matches in append order.
func (s *InMemoryStore) filter(keep func(audit.Event) bool) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
