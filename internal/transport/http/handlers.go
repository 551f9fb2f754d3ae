// Package httptransport is the thin HTTP boundary over the vault engine.
// Handlers decode, delegate, and encode; every policy decision lives in the
// services behind the façade.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fhevault/internal/vault"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
	"fhevault/pkg/platform/httputil"
	"fhevault/pkg/requestcontext"
)

type Handler struct {
	vault  *vault.Service
	logger *slog.Logger
}

func NewHandler(v *vault.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{vault: v, logger: logger}
}

// NewRouter assembles the full middleware chain and the versioned API.
func NewRouter(h *Handler, signingKey []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(Recovery(h.logger))
	r.Use(RequestID)
	r.Use(RequestTime)
	r.Use(ClientMeta)
	r.Use(Logger(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(Auth(signingKey, h.logger))

		r.Post("/users", h.registerUser)
		r.Delete("/users/me", h.deactivateUser)
		r.Get("/users/{address}", h.getProfile)
		r.Post("/users/{address}/reputation", h.updateReputation)

		r.Post("/records", h.createRecord)
		r.Get("/records/{recordID}", h.getRecord)
		r.Put("/records/{recordID}", h.updateRecord)
		r.Delete("/records/{recordID}", h.deleteRecord)

		r.Get("/records/{recordID}/grants", h.listAuthorized)
		r.Post("/records/{recordID}/grants", h.grantAccess)
		r.Delete("/records/{recordID}/grants/{user}", h.revokeAccess)

		r.Post("/records/{recordID}/accesses", h.logAccess)
		r.Get("/records/{recordID}/accesses", h.accessHistory)
	})
	return r
}

// caller returns the authenticated identity. Auth middleware guarantees it is
// set on every /v1 route; the guard covers misconfiguration.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.Address, bool) {
	addr := requestcontext.Caller(r.Context())
	if addr.IsZero() {
		h.logger.ErrorContext(r.Context(), "caller missing despite auth middleware")
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return addr, true
}

func recordIDParam(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return recordID, true
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[registerUserRequest](w, r, h.logger)
	if !ok {
		return
	}

	profile, err := h.vault.RegisterUser(r.Context(), caller, req.PublicKey, req.InitialQuota)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.vault.DeactivateUser(r.Context(), caller); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.vault.GetProfile(r.Context(), addr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) updateReputation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	target, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateReputationRequest](w, r, h.logger)
	if !ok {
		return
	}

	reputation, err := h.vault.UpdateReputation(r.Context(), caller, target, req.Delta)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reputationResponse{Address: target, Reputation: reputation})
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[createRecordRequest](w, r, h.logger)
	if !ok {
		return
	}

	record, err := h.vault.CreateRecord(r.Context(), caller, vault.CreateRecordParams{
		DataHash:     req.DataHash,
		MetadataHash: req.MetadataHash,
		DataSize:     req.DataSize,
		Level:        req.EncryptionLevel,
		TTLSeconds:   req.TTLSeconds,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.vault.GetRecord(r.Context(), caller, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[updateRecordRequest](w, r, h.logger)
	if !ok {
		return
	}

	err := h.vault.UpdateRecord(r.Context(), caller, recordID, vault.UpdateRecordParams{
		DataHash:     req.DataHash,
		MetadataHash: req.MetadataHash,
		DataSize:     req.DataSize,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	if err := h.vault.DeleteRecord(r.Context(), caller, recordID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[grantAccessRequest](w, r, h.logger)
	if !ok {
		return
	}
	user, err := id.ParseAddress(req.User)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.vault.GrantAccess(r.Context(), caller, recordID, user); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	user, err := id.ParseAddress(chi.URLParam(r, "user"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.vault.RevokeAccess(r.Context(), caller, recordID, user); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAuthorized(w http.ResponseWriter, r *http.Request) {
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	users, err := h.vault.ListAuthorized(r.Context(), recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, membersResponse{RecordID: recordID, Users: users})
}

func (h *Handler) logAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[logAccessRequest](w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.vault.LogAccess(r.Context(), caller, recordID, req.AccessType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toLogEntryResponse(*entry))
}

func (h *Handler) accessHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	entries, err := h.vault.AccessHistory(r.Context(), caller, recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := historyResponse{RecordID: recordID, Entries: make([]logEntryResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toLogEntryResponse(entry))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
