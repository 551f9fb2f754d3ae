package models

import (
	"time"

	id "fhevault/pkg/domain"
)

// AccessLogEntry is one immutable line in the append-only audit ledger.
// Entries are never updated or deleted; ids ascend strictly.
type AccessLogEntry struct {
	ID       id.LogID
	RecordID id.RecordID
	Actor    id.Address

	// AccessType is an opaque encrypted classifier supplied by the caller;
	// the vault stores it without interpretation.
	AccessType string

	// IPHash is a hash of the caller's address. Raw IPs never reach the log.
	IPHash string

	Timestamp time.Time
}
