package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps messages in memory; used in tests and single-box setups.
type MemStore struct {
	mu   sync.RWMutex
	msgs map[string][]Message // sessionID -> append order
}

func NewMemStore() *MemStore { return &MemStore{msgs: make(map[string][]Message)} }

func (s *MemStore) Save(_ context.Context, m *Message) error {
	s.mu.Lock()
	s.msgs[m.SessionID] = append(s.msgs[m.SessionID], *m)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Recent(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.msgs[sessionID], time.Time{}, limit), nil
}

func (s *MemStore) History(_ context.Context, sessionID string, before time.Time, limit int) ([]Message, bool, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.msgs[sessionID]
	page := newestFirst(all, before, limit+1)
	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}
	return page, hasMore, len(all), nil
}

func newestFirst(msgs []Message, before time.Time, limit int) []Message {
	out := make([]Message, 0, limit)
	for _, m := range msgs {
		if before.IsZero() || m.CreatedAt.Before(before) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
