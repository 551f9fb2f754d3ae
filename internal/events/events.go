// Package events carries the vault's domain event feed. Emission is a
// best-effort side channel: a slow or failed subscriber never blocks or rolls
// back the state mutation that produced the event.
package events

import (
	"time"

	id "fhevault/pkg/domain"
)

// Kind discriminates event payloads on the feed.
type Kind string

const (
	KindUserRegistered    Kind = "user_registered"
	KindDataRecordCreated Kind = "data_record_created"
	KindDataRecordUpdated Kind = "data_record_updated"
	KindDataRecordDeleted Kind = "data_record_deleted"
	KindAccessGranted     Kind = "access_granted"
	KindAccessRevoked     Kind = "access_revoked"
)

// Event is emitted from domain logic after a mutation commits. Keep it
// transport-agnostic so in-process subscribers and external sinks can fan out.
// Unused fields stay zero for kinds that do not carry them.
type Event struct {
	Kind      Kind        `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	RecordID  id.RecordID `json:"record_id,omitempty"`
	UserID    id.UserID   `json:"user_id,omitempty"`
	// Actor is the caller that performed the mutation (owner on create,
	// updater, deleter, granter, revoker, or the registered user).
	Actor id.Address `json:"actor,omitempty"`
	// Subject is the address the mutation was about, when distinct from the
	// actor (the grantee on grant/revoke).
	Subject  id.Address `json:"subject,omitempty"`
	DataHash string     `json:"data_hash,omitempty"`
}
