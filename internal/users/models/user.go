package models

import (
	"time"

	id "fhevault/pkg/domain"
)

// UserProfile is the registry's view of one identity. Profiles are created
// once at registration and never deleted; deactivation flips IsActive.
type UserProfile struct {
	ID        id.UserID
	Address   id.Address
	PublicKey string

	// Reputation is mutated only through the reputation-authority path,
	// clamped to the configured floor.
	Reputation int64

	// StorageQuota / UsedStorage are byte counts. UsedStorage never exceeds
	// StorageQuota; the store enforces this on every reservation.
	StorageQuota int64
	UsedStorage  int64

	IsActive bool
	JoinedAt time.Time
}

// Clone returns a copy so store internals never alias caller state.
func (u *UserProfile) Clone() *UserProfile {
	c := *u
	return &c
}
