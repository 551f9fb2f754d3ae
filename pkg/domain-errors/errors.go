// Package domainerrors provides coded errors for the vault's public surface.
// Services translate store sentinels into these; transports map codes to
// status lines. Every error an operation returns carries exactly one code.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error category in the vault taxonomy.
type Code string

const (
	// Domain taxonomy.
	CodeNotFound               Code = "not_found"
	CodeUnauthorized           Code = "unauthorized"
	CodeExpired                Code = "expired"
	CodeQuotaExceeded          Code = "quota_exceeded"
	CodeInvalidEncryptionLevel Code = "invalid_encryption_level"
	CodeDuplicateUser          Code = "duplicate_user"
	CodeInvalidProof           Code = "invalid_proof"

	// Ambient codes for input validation and infrastructure faults.
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
)

// Error pairs a code with a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err. Uncoded errors report CodeInternal so
// unexpected faults never masquerade as domain outcomes.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
