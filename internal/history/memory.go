package history

import (
	"context"
	"sort"
	"sync"

	"github.com/ppiankov/truthguard/internal/model"
)

// MemoryStore keeps up to max records in memory, dropping the oldest
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.Record
	byID    map[string]int
	max     int
}

// NewMemoryStore creates a bounded in-memory store
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryStore{byID: make(map[string]int), max: max}
}

// Save appends a record
func (s *MemoryStore) Save(_ context.Context, rec *model.Record) error {
	if err := prepare(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, *rec)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
	s.reindex()
	return nil
}

// Get returns one record by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := s.records[i]
	return &rec, nil
}

// ListByAccount returns the account's newest records first
func (s *MemoryStore) ListByAccount(_ context.Context, accountID string, limit int) ([]model.Record, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	var out []model.Record
	for _, r := range s.records {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []model.Record{}
	}
	return out, nil
}

func (s *MemoryStore) reindex() {
	clear(s.byID)
	for i, r := range s.records {
		s.byID[r.ID] = i
	}
}
