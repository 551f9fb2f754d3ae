// Package httputil centralizes JSON encoding and the coded-error to HTTP
// status mapping so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "fhevault/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeNotFound:               http.StatusNotFound,
	dErrors.CodeUnauthorized:           http.StatusForbidden,
	dErrors.CodeExpired:                http.StatusGone,
	dErrors.CodeQuotaExceeded:          http.StatusInsufficientStorage,
	dErrors.CodeInvalidEncryptionLevel: http.StatusUnprocessableEntity,
	dErrors.CodeDuplicateUser:          http.StatusConflict,
	dErrors.CodeInvalidProof:           http.StatusUnprocessableEntity,
	dErrors.CodeBadRequest:             http.StatusBadRequest,
	dErrors.CodeInvalidInput:           http.StatusBadRequest,
	dErrors.CodeConflict:               http.StatusConflict,
	dErrors.CodeInternal:               http.StatusInternalServerError,
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error onto an HTTP status and JSON body. Internal
// errors omit the description so infrastructure detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		code = dErrors.CodeInternal
	}

	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Description = de.Message
		}
	}
	WriteJSON(w, status, body)
}

// Decode parses the request body into T. On failure it writes a bad_request
// response and returns false; handlers just return.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if logger != nil {
			logger.WarnContext(r.Context(), "request body decode failed", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed JSON request body"))
		return v, false
	}
	return v, true
}
