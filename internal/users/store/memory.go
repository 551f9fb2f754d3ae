package store

import (
	"context"
	"sync"

	"fhevault/internal/users/models"
	id "fhevault/pkg/domain"
	"fhevault/pkg/platform/sentinel"
)

// InMemoryStore keeps profiles in a mutex-guarded map. It is the default
// backend and the reference implementation for the Store contract.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[id.Address]*models.UserProfile
	nextID   id.UserID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[id.Address]*models.UserProfile),
		nextID:   1,
	}
}

func (s *InMemoryStore) Create(_ context.Context, profile *models.UserProfile) (id.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.Address]; exists {
		return 0, sentinel.ErrConflict
	}

	stored := profile.Clone()
	stored.ID = s.nextID
	s.nextID++
	s.profiles[stored.Address] = stored
	return stored.ID, nil
}

func (s *InMemoryStore) Get(_ context.Context, addr id.Address) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return profile.Clone(), nil
}

func (s *InMemoryStore) Reserve(_ context.Context, addr id.Address, bytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[addr]
	if !ok {
		return sentinel.ErrNotFound
	}
	if profile.UsedStorage+bytes > profile.StorageQuota {
		return sentinel.ErrQuotaExceeded
	}
	profile.UsedStorage += bytes
	return nil
}

func (s *InMemoryStore) Release(_ context.Context, addr id.Address, bytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[addr]
	if !ok {
		return sentinel.ErrNotFound
	}
	profile.UsedStorage -= bytes
	if profile.UsedStorage < 0 {
		profile.UsedStorage = 0
	}
	return nil
}

func (s *InMemoryStore) SetActive(_ context.Context, addr id.Address, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[addr]
	if !ok {
		return sentinel.ErrNotFound
	}
	profile.IsActive = active
	return nil
}

func (s *InMemoryStore) AddReputation(_ context.Context, addr id.Address, delta, floor int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[addr]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	profile.Reputation += delta
	if profile.Reputation < floor {
		profile.Reputation = floor
	}
	return profile.Reputation, nil
}
