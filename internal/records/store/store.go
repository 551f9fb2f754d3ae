// Package store persists data records. Deleted ids are tombstoned: they are
// never reused and every lookup after deletion reports sentinel.ErrNotFound.
package store

import (
	"context"

	"fhevault/internal/records/models"
	id "fhevault/pkg/domain"
)

// Store is the record store's persistence port.
type Store interface {
	// Create persists a new record and assigns its monotonic id.
	Create(ctx context.Context, record *models.DataRecord) (id.RecordID, error)

	// Get returns a copy of the record, or sentinel.ErrNotFound for unknown
	// and tombstoned ids alike.
	Get(ctx context.Context, recordID id.RecordID) (*models.DataRecord, error)

	// Update replaces the stored record matched by record.ID.
	Update(ctx context.Context, record *models.DataRecord) error

	// Delete tombstones the id so it is never reused.
	Delete(ctx context.Context, recordID id.RecordID) error

	// IncrementAccessCount adds one to the record's access counter and
	// returns the new value. Called only by the audit log, under the
	// record's key lock, paired with exactly one log append.
	IncrementAccessCount(ctx context.Context, recordID id.RecordID) (int64, error)
}
