package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"regflow/internal/notification/models"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	items map[id.NotificationID]*models.Notification
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[id.NotificationID]*models.Notification)}
}

func clone(n *models.Notification) *models.Notification {
	cp := *n
	cp.Tokens = maps.Clone(n.Tokens)
	if n.ReadAt != nil {
		t := *n.ReadAt
		cp.ReadAt = &t
	}
	return &cp
}

func (s *InMemory) Save(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[n.ID]; ok {
		return fmt.Errorf("notification %s: %w", n.ID, sentinel.ErrConflict)
	}
	s.items[n.ID] = clone(n)
	return nil
}

// ListForRecipient returns the recipient's notifications, newest first.
func (s *InMemory) ListForRecipient(ctx context.Context, recipient id.UserID, f models.ListFilter) ([]*models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Notification
	for _, n := range s.items {
		if n.RecipientID != recipient || (f.UnreadOnly && n.IsRead()) {
			continue
		}
		out = append(out, clone(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead stamps readAt once; marking an already read notification is a
// no-op. Notifications of other recipients are NotFound.
func (s *InMemory) MarkRead(ctx context.Context, recipient id.UserID, nid id.NotificationID, readAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[nid]
	if !ok || n.RecipientID != recipient {
		return fmt.Errorf("notification %s: %w", nid, sentinel.ErrNotFound)
	}
	if n.ReadAt == nil {
		n.ReadAt = &readAt
	}
	return nil
}
