// Package store persists user profiles and quota bookkeeping. Implementations
// return pkg/platform/sentinel errors; the service layer translates them into
// coded domain errors.
package store

import (
	"context"

	"fhevault/internal/users/models"
	id "fhevault/pkg/domain"
)

// Store is the user registry's persistence port.
type Store interface {
	// Create persists a new profile and assigns its monotonic UserID.
	// Returns sentinel.ErrConflict if the address is already registered.
	Create(ctx context.Context, profile *models.UserProfile) (id.UserID, error)

	// Get returns a copy of the profile, or sentinel.ErrNotFound.
	Get(ctx context.Context, addr id.Address) (*models.UserProfile, error)

	// Reserve atomically checks usedStorage+bytes <= storageQuota and
	// increments on success. Returns sentinel.ErrQuotaExceeded with no state
	// change on failure, sentinel.ErrNotFound for unknown addresses.
	Reserve(ctx context.Context, addr id.Address, bytes int64) error

	// Release decrements usedStorage, clamping at zero.
	Release(ctx context.Context, addr id.Address, bytes int64) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, addr id.Address, active bool) error

	// AddReputation applies a signed delta clamped to floor and returns the
	// resulting score.
	AddReputation(ctx context.Context, addr id.Address, delta, floor int64) (int64, error)
}
