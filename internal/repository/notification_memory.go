package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sumire/fleetdesk/internal/domain"
)

type notificationEntry struct {
	n    domain.Notification
	read atomic.Bool
}

func (e *notificationEntry) snapshot() domain.Notification {
	n := e.n
	n.Read = e.read.Load()
	return n
}

// MemoryNotificationStore keeps notifications in process memory. The list
// and index are guarded by mu; the read flag is flipped lock-free.
type MemoryNotificationStore struct {
	mu          sync.RWMutex
	byRecipient map[string][]*notificationEntry
	byID        map[string]*notificationEntry
	dedupe      map[string]struct{}
}

// NewMemoryNotificationStore creates an empty MemoryNotificationStore.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{
		byRecipient: make(map[string][]*notificationEntry),
		byID:        make(map[string]*notificationEntry),
		dedupe:      make(map[string]struct{}),
	}
}

func (s *MemoryNotificationStore) Insert(_ context.Context, n domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.DedupeKey != nil {
		if _, dup := s.dedupe[*n.DedupeKey]; dup {
			return false, nil
		}
	}
	if _, dup := s.byID[n.ID]; dup {
		return false, domain.ErrConflict
	}
	if n.DedupeKey != nil {
		s.dedupe[*n.DedupeKey] = struct{}{}
	}

	e := &notificationEntry{n: n}
	e.read.Store(n.Read)
	s.byID[n.ID] = e
	s.byRecipient[n.RecipientID] = append(s.byRecipient[n.RecipientID], e)
	return true, nil
}

func (s *MemoryNotificationStore) ListByRecipient(_ context.Context, recipientID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.byRecipient[recipientID]
	out := make([]domain.Notification, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].snapshot())
	}
	return out, nil
}

func (s *MemoryNotificationStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.byRecipient[recipientID] {
		if !e.read.Load() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryNotificationStore) MarkRead(_ context.Context, recipientID, id string) (bool, error) {
	s.mu.RLock()
	e, ok := s.byID[id]
	s.mu.RUnlock()

	if !ok || e.n.RecipientID != recipientID {
		return false, nil
	}
	return e.read.CompareAndSwap(false, true), nil
}

func (s *MemoryNotificationStore) MarkAllRead(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.byRecipient[recipientID] {
		if e.read.CompareAndSwap(false, true) {
			n++
		}
	}
	return n, nil
}
