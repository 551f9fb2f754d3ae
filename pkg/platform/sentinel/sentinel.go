package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist (or is tombstoned) in a store
// - ErrConflict: entity already exists where uniqueness is required
// - ErrExpired: record past its expiry timestamp
// - ErrQuotaExceeded: a reservation would exceed the owner's storage quota
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrExpired       = errors.New("expired")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
