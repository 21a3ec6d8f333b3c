package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/sumire/fleetdesk/internal/domain"
)

// MemoryMessageStore keeps message threads in process memory.
type MemoryMessageStore struct {
	mu      sync.RWMutex
	threads map[string][]domain.Message
}

// NewMemoryMessageStore creates an empty MemoryMessageStore.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{threads: make(map[string][]domain.Message)}
}

func (s *MemoryMessageStore) Append(_ context.Context, m domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.threads[m.ThreadKey]
	m.Seq = int64(len(thread)) + 1
	if n := len(thread); n > 0 && m.Timestamp.Before(thread[n-1].Timestamp) {
		m.Timestamp = thread[n-1].Timestamp
	}
	s.threads[m.ThreadKey] = append(thread, m)
	return m, nil
}

func (s *MemoryMessageStore) List(_ context.Context, threadKey string, after int64) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.threads[threadKey]
	if after < 0 {
		after = 0
	}
	if after >= int64(len(thread)) {
		return []domain.Message{}, nil
	}
	return append([]domain.Message(nil), thread[after:]...), nil
}

func (s *MemoryMessageStore) Threads(_ context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.threads))
	for k := range s.threads {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}
