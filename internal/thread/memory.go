package thread

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and single-node
// development. It honors the same merge semantics as PGStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, chatAddress string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[chatAddress]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Upsert(_ context.Context, chatAddress string, patch Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[chatAddress]
	rec.ChatAddress = chatAddress
	if patch.CaseID != nil {
		rec.CaseID = *patch.CaseID
	}
	if patch.LastAnchor != nil {
		rec.LastAnchor = *patch.LastAnchor
	}
	rec.UpdatedAt = time.Now().UTC()
	s.records[chatAddress] = rec
	return rec, nil
}

func (s *MemoryStore) PruneStale(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for addr, rec := range s.records {
		if rec.UpdatedAt.Before(olderThan) {
			delete(s.records, addr)
			pruned++
		}
	}
	return pruned, nil
}

var _ Store = (*MemoryStore)(nil)
