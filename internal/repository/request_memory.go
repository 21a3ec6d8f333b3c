package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/sumire/fleetdesk/internal/domain"
)

// MemoryRequestStore keeps service requests in process memory.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]domain.ServiceRequest
	history  map[string][]domain.StatusChange
}

// NewMemoryRequestStore creates an empty MemoryRequestStore.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		requests: make(map[string]domain.ServiceRequest),
		history:  make(map[string][]domain.StatusChange),
	}
}

func (s *MemoryRequestStore) Insert(_ context.Context, req domain.ServiceRequest, change domain.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return domain.ErrConflict
	}
	s.requests[req.ID] = req.Clone()
	s.history[req.ID] = append(s.history[req.ID], change)
	return nil
}

func (s *MemoryRequestStore) FindByID(_ context.Context, id string) (*domain.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := req.Clone()
	return &c, nil
}

func (s *MemoryRequestStore) ListByUser(_ context.Context, userID string) ([]domain.ServiceRequest, error) {
	return s.list(func(r domain.ServiceRequest) bool { return r.UserID == userID }), nil
}

func (s *MemoryRequestStore) ListAll(_ context.Context) ([]domain.ServiceRequest, error) {
	return s.list(func(domain.ServiceRequest) bool { return true }), nil
}

func (s *MemoryRequestStore) UpdateDetails(_ context.Context, req domain.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.requests[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != domain.RequestStatusPending {
		return domain.ErrConflict
	}
	cur.ServiceType = req.ServiceType
	cur.Description = req.Description
	cur.SuggestedParts = append([]string(nil), req.SuggestedParts...)
	cur.UpdatedAt = req.UpdatedAt
	s.requests[req.ID] = cur
	return nil
}

func (s *MemoryRequestStore) UpdateStatus(_ context.Context, req domain.ServiceRequest, from domain.RequestStatus, change domain.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.requests[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrConflict
	}
	s.requests[req.ID] = req.Clone()
	s.history[req.ID] = append(s.history[req.ID], change)
	return nil
}

func (s *MemoryRequestStore) History(_ context.Context, id string) ([]domain.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes, ok := s.history[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.StatusChange(nil), changes...), nil
}

func (s *MemoryRequestStore) list(keep func(domain.ServiceRequest) bool) []domain.ServiceRequest {
	s.mu.RLock()
	out := make([]domain.ServiceRequest, 0, len(s.requests))
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
