// Package store persists the append-only access log. Entries are immutable:
// there is no update or delete, and log ids ascend strictly in append order.
package store

import (
	"context"
	"iter"

	"fhevault/internal/audit/models"
	id "fhevault/pkg/domain"
)

// Store is the audit ledger's persistence port.
type Store interface {
	// Append adds one entry and returns its assigned id.
	Append(ctx context.Context, entry *models.AccessLogEntry) (id.LogID, error)

	// History yields the record's entries lazily in append order. The
	// sequence is restartable: each range re-reads the store. Records with no
	// logged accesses yield nothing; read failures yield one non-nil error
	// and stop.
	History(ctx context.Context, recordID id.RecordID) iter.Seq2[models.AccessLogEntry, error]

	// CountByRecord returns the number of entries for the record.
	CountByRecord(ctx context.Context, recordID id.RecordID) (int64, error)
}
