// Package domain holds the typed identifiers shared across vault subsystems.
// Typed IDs prevent cross-type assignment at compile time: a RecordID can
// never be passed where a LogID is expected.
package domain

import (
	"strconv"
	"strings"

	dErrors "fhevault/pkg/domain-errors"
)

// Address is an opaque account identity supplied by the transport layer.
// The vault never interprets it beyond equality and ordering.
type Address string

// ParseAddress validates an address at a trust boundary. Addresses must be
// non-empty and free of whitespace; everything else is the caller's encoding.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must not be empty")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must not contain whitespace")
	}
	return Address(s), nil
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == "" }

func (a Address) String() string { return string(a) }

// RecordID identifies a data record. IDs are assigned monotonically by the
// record store and never reused after deletion.
type RecordID uint64

func (id RecordID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseRecordID validates a record id from external input.
func ParseRecordID(s string) (RecordID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "record id must be a positive integer")
	}
	return RecordID(n), nil
}

// LogID identifies an access log entry within the append-only audit sequence.
type LogID uint64

func (id LogID) String() string { return strconv.FormatUint(uint64(id), 10) }

// UserID is the registration sequence number assigned when a profile is
// created. Identity remains the Address; the numeric id is bookkeeping
// surfaced in UserRegistered events.
type UserID uint64

func (id UserID) String() string { return strconv.FormatUint(uint64(id), 10) }
