// Package store persists access-control lists: per-record sets of authorized
// identities. The owner is never materialized here; owner authorization is
// implicit at the service layer.
package store

import (
	"context"

	id "fhevault/pkg/domain"
)

// Store is the ACL persistence port. Add and Remove are idempotent: adding a
// member twice or removing a non-member succeeds with no change.
type Store interface {
	Add(ctx context.Context, recordID id.RecordID, addr id.Address) error
	Remove(ctx context.Context, recordID id.RecordID, addr id.Address) error
	Contains(ctx context.Context, recordID id.RecordID, addr id.Address) (bool, error)

	// List returns the ACL members in lexicographic order.
	List(ctx context.Context, recordID id.RecordID) ([]id.Address, error)

	// RemoveAll erases every grant for the record. Called on record delete.
	RemoveAll(ctx context.Context, recordID id.RecordID) error
}
