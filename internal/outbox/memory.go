package outbox

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[int64]Entry)}
}

func (s *MemoryStore) Insert(ctx context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry.ID = s.nextID
	entry.Processed = false
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *MemoryStore) ClaimNext(ctx context.Context) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		next  Entry
		found bool
	)
	for _, e := range s.entries {
		if e.Processed {
			continue
		}
		if !found || e.FailedAt.Before(next.FailedAt) || (e.FailedAt.Equal(next.FailedAt) && e.ID < next.ID) {
			next = e
			found = true
		}
	}
	if !found {
		return Entry{}, false, nil
	}

	next.Processed = true
	s.entries[next.ID] = next
	return next, true, nil
}

func (s *MemoryStore) ListAll(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	return e, ok, nil
}
