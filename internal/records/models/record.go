package models

import (
	"time"

	id "fhevault/pkg/domain"
)

// DataRecord is one opaque encrypted entry in the vault. The vault stores
// content-addressing references, never plaintext; DataHash and MetadataHash
// point at ciphertext held elsewhere.
type DataRecord struct {
	ID           id.RecordID
	DataHash     string
	MetadataHash string
	DataSize     int64

	// AccessCount is monotonic non-decreasing, incremented exactly once per
	// successful audit log append.
	AccessCount int64

	EncryptionLevel id.EncryptionLevel
	IsPublic        bool
	// IsEncrypted is always true in this design; kept for the external view.
	IsEncrypted bool

	Owner     id.Address
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given instant.
// Expiry is evaluated lazily against the request clock, never stored.
func (r *DataRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Clone returns a copy so store internals never alias caller state.
func (r *DataRecord) Clone() *DataRecord {
	c := *r
	return &c
}
