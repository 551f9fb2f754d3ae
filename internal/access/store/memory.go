package store

import (
	"context"
	"sort"
	"sync"

	id "fhevault/pkg/domain"
)

// InMemoryStore keeps ACLs as a mutex-guarded map of sets.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[id.RecordID]map[id.Address]struct{}
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		grants: make(map[id.RecordID]map[id.Address]struct{}),
	}
}

func (s *InMemoryStore) Add(_ context.Context, recordID id.RecordID, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.grants[recordID]
	if !ok {
		set = make(map[id.Address]struct{})
		s.grants[recordID] = set
	}
	set[addr] = struct{}{}
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, recordID id.RecordID, addr id.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.grants[recordID]; ok {
		delete(set, addr)
		if len(set) == 0 {
			delete(s.grants, recordID)
		}
	}
	return nil
}

func (s *InMemoryStore) Contains(_ context.Context, recordID id.RecordID, addr id.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.grants[recordID]
	if !ok {
		return false, nil
	}
	_, member := set[addr]
	return member, nil
}

func (s *InMemoryStore) List(_ context.Context, recordID id.RecordID) ([]id.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.grants[recordID]
	members := make([]id.Address, 0, len(set))
	for addr := range set {
		members = append(members, addr)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members, nil
}

func (s *InMemoryStore) RemoveAll(_ context.Context, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants, recordID)
	return nil
}
