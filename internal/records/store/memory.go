package store

import (
	"context"
	"sync"

	"fhevault/internal/records/models"
	id "fhevault/pkg/domain"
	"fhevault/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a mutex-guarded map. Deleted ids stay burned
// because nextID only ever grows, so a tombstoned id can never resolve again.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.DataRecord
	nextID  id.RecordID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.RecordID]*models.DataRecord),
		nextID:  1,
	}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.DataRecord) (id.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := record.Clone()
	stored.ID = s.nextID
	s.nextID++
	s.records[stored.ID] = stored
	return stored.ID, nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID id.RecordID) (*models.DataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, record *models.DataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[recordID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, recordID)
	return nil
}

func (s *InMemoryStore) IncrementAccessCount(_ context.Context, recordID id.RecordID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	record.AccessCount++
	return record.AccessCount, nil
}
