package store

import (
	"context"
	"iter"
	"slices"
	"sync"

	"fhevault/internal/audit/models"
	id "fhevault/pkg/domain"
)

// InMemoryStore keeps the ledger as a per-record slice of entries. The log is
// unbounded; retention is an operational concern for the SQL backend.
type InMemoryStore struct {
	mu       sync.RWMutex
	byRecord map[id.RecordID][]models.AccessLogEntry
	nextID   uint64
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		byRecord: make(map[id.RecordID][]models.AccessLogEntry),
		nextID:   1,
	}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.AccessLogEntry) (id.LogID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	stored.ID = id.LogID(s.nextID)
	s.nextID++
	s.byRecord[stored.RecordID] = append(s.byRecord[stored.RecordID], stored)
	return stored.ID, nil
}

func (s *InMemoryStore) History(_ context.Context, recordID id.RecordID) iter.Seq2[models.AccessLogEntry, error] {
	return func(yield func(models.AccessLogEntry, error) bool) {
		// Snapshot under the lock so a concurrent append never tears the
		// sequence; each range re-snapshots.
		s.mu.RLock()
		entries := slices.Clone(s.byRecord[recordID])
		s.mu.RUnlock()

		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *InMemoryStore) CountByRecord(_ context.Context, recordID id.RecordID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.byRecord[recordID])), nil
}
