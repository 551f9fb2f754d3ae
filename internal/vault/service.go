// Package vault is the engine's single entry point. It verifies ciphertext
// proofs before any state is touched, dispatches to the domain services, and
// wraps every operation in a trace span with denial metrics.
package vault

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	accsvc "fhevault/internal/access/service"
	auditmodels "fhevault/internal/audit/models"
	auditsvc "fhevault/internal/audit/service"
	"fhevault/internal/platform/metrics"
	"fhevault/internal/proof"
	recmodels "fhevault/internal/records/models"
	recsvc "fhevault/internal/records/service"
	usermodels "fhevault/internal/users/models"
	usersvc "fhevault/internal/users/service"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
)

// Sealed is an externally encrypted value with its validity proof. The engine
// never decrypts the ciphertext; it only checks the proof and stores the
// ciphertext's canonical hex form.
type Sealed struct {
	Ciphertext []byte `json:"ciphertext"`
	Proof      []byte `json:"proof"`
}

func (s Sealed) hex() string { return hex.EncodeToString(s.Ciphertext) }

func (s Sealed) isZero() bool { return len(s.Ciphertext) == 0 && len(s.Proof) == 0 }

// int64 decodes the numeric a sealed ciphertext carries. Numerics travel as
// 8-byte big-endian two's complement; decoding happens only after the proof
// verified.
func (s Sealed) int64() (int64, error) {
	if len(s.Ciphertext) != 8 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "numeric ciphertext must be 8 bytes")
	}
	return int64(binary.BigEndian.Uint64(s.Ciphertext)), nil
}

type Service struct {
	users    *usersvc.Service
	records  *recsvc.Service
	access   *accsvc.Service
	audit    *auditsvc.Service
	verifier proof.Verifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(users *usersvc.Service, records *recsvc.Service, access *accsvc.Service, audit *auditsvc.Service, verifier proof.Verifier, opts ...Option) (*Service, error) {
	if users == nil || records == nil || access == nil || audit == nil {
		return nil, fmt.Errorf("all domain services are required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("proof verifier is required")
	}
	svc := &Service{
		users:    users,
		records:  records,
		access:   access,
		audit:    audit,
		verifier: verifier,
		tracer:   otel.Tracer("fhevault/vault"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// verify checks a sealed value's proof. It runs before any state access so an
// invalid proof can never observe or mutate the vault.
func (s *Service) verify(ctx context.Context, field string, sealed Sealed) error {
	ok, err := s.verifier.Verify(ctx, sealed.Ciphertext, sealed.Proof)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "proof verification failed")
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeInvalidProof, "proof for %s did not verify", field)
	}
	return nil
}

// verifyInt checks a sealed numeric's proof and decodes its value.
func (s *Service) verifyInt(ctx context.Context, field string, sealed Sealed) (int64, error) {
	if err := s.verify(ctx, field, sealed); err != nil {
		return 0, err
	}
	return sealed.int64()
}

// fail records the denial on the span and the metrics feed, then passes the
// error through unchanged.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	if s.metrics != nil {
		s.metrics.Deny(string(dErrors.CodeOf(err)))
	}
	return err
}

// RegisterUser creates a profile for the caller. Both the public key and the
// initial quota arrive sealed; an absent quota selects the configured default.
func (s *Service) RegisterUser(ctx context.Context, caller id.Address, publicKey, initialQuota Sealed) (*usermodels.UserProfile, error) {
	ctx, span := s.tracer.Start(ctx, "vault.RegisterUser",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	defer span.End()

	if err := s.verify(ctx, "public_key", publicKey); err != nil {
		return nil, s.fail(span, err)
	}
	var quota int64
	if !initialQuota.isZero() {
		var err error
		quota, err = s.verifyInt(ctx, "initial_quota", initialQuota)
		if err != nil {
			return nil, s.fail(span, err)
		}
	}
	profile, err := s.users.Register(ctx, caller, publicKey.hex(), quota)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.UsersRegistered.Inc()
	}
	return profile, nil
}

// UpdateReputation applies a sealed signed delta to the target's reputation.
// Authority-only; the score is clamped at the configured floor.
func (s *Service) UpdateReputation(ctx context.Context, caller, target id.Address, delta Sealed) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "vault.UpdateReputation")
	defer span.End()

	d, err := s.verifyInt(ctx, "delta", delta)
	if err != nil {
		return 0, s.fail(span, err)
	}
	reputation, err := s.users.UpdateReputation(ctx, caller, target, d)
	if err != nil {
		return 0, s.fail(span, err)
	}
	return reputation, nil
}

// GetProfile returns the registered profile for an identity.
func (s *Service) GetProfile(ctx context.Context, addr id.Address) (*usermodels.UserProfile, error) {
	ctx, span := s.tracer.Start(ctx, "vault.GetProfile")
	defer span.End()

	profile, err := s.users.GetProfile(ctx, addr)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return profile, nil
}

// DeactivateUser marks the caller's own profile inactive. Existing records
// survive; only future creates are blocked.
func (s *Service) DeactivateUser(ctx context.Context, caller id.Address) error {
	ctx, span := s.tracer.Start(ctx, "vault.DeactivateUser")
	defer span.End()

	if err := s.users.Deactivate(ctx, caller); err != nil {
		return s.fail(span, err)
	}
	return nil
}

// CreateRecordParams carries the sealed payload for record creation. Every
// field but the public flag travels as ciphertext plus proof.
type CreateRecordParams struct {
	DataHash     Sealed
	MetadataHash Sealed
	DataSize     Sealed
	Level        Sealed
	TTLSeconds   Sealed
	IsPublic     bool
}

// CreateRecord verifies every sealed field's proof, then stores a record
// owned by the caller with its quota reservation.
func (s *Service) CreateRecord(ctx context.Context, caller id.Address, params CreateRecordParams) (*recmodels.DataRecord, error) {
	ctx, span := s.tracer.Start(ctx, "vault.CreateRecord")
	defer span.End()

	if err := s.verify(ctx, "data_hash", params.DataHash); err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.verify(ctx, "metadata_hash", params.MetadataHash); err != nil {
		return nil, s.fail(span, err)
	}
	size, err := s.verifyInt(ctx, "data_size", params.DataSize)
	if err != nil {
		return nil, s.fail(span, err)
	}
	rawLevel, err := s.verifyInt(ctx, "encryption_level", params.Level)
	if err != nil {
		return nil, s.fail(span, err)
	}
	ttlSeconds, err := s.verifyInt(ctx, "ttl_seconds", params.TTLSeconds)
	if err != nil {
		return nil, s.fail(span, err)
	}
	level, err := id.ParseEncryptionLevel(rawLevel)
	if err != nil {
		return nil, s.fail(span, err)
	}

	record, err := s.records.Create(ctx, caller, recsvc.CreateParams{
		DataHash:     params.DataHash.hex(),
		MetadataHash: params.MetadataHash.hex(),
		DataSize:     size,
		Level:        level,
		TTL:          time.Duration(ttlSeconds) * time.Second,
		IsPublic:     params.IsPublic,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(
		attribute.Int64("record_id", int64(record.ID)),
		attribute.Int64("size_bytes", size),
	)
	if s.metrics != nil {
		s.metrics.RecordsCreated.Inc()
	}
	return record, nil
}

// UpdateRecordParams carries the sealed payload for a record rewrite.
type UpdateRecordParams struct {
	DataHash     Sealed
	MetadataHash Sealed
	DataSize     Sealed
}

// UpdateRecord verifies every sealed field's proof, then rewrites the
// record's content and adjusts the owner's quota by the size delta.
func (s *Service) UpdateRecord(ctx context.Context, caller id.Address, recordID id.RecordID, params UpdateRecordParams) error {
	ctx, span := s.tracer.Start(ctx, "vault.UpdateRecord",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	if err := s.verify(ctx, "data_hash", params.DataHash); err != nil {
		return s.fail(span, err)
	}
	if err := s.verify(ctx, "metadata_hash", params.MetadataHash); err != nil {
		return s.fail(span, err)
	}
	size, err := s.verifyInt(ctx, "data_size", params.DataSize)
	if err != nil {
		return s.fail(span, err)
	}

	err = s.records.Update(ctx, caller, recordID, recsvc.UpdateParams{
		DataHash:     params.DataHash.hex(),
		MetadataHash: params.MetadataHash.hex(),
		DataSize:     size,
	})
	if err != nil {
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.RecordsUpdated.Inc()
	}
	return nil
}

// DeleteRecord tombstones the record, returns its quota, and erases grants.
func (s *Service) DeleteRecord(ctx context.Context, caller id.Address, recordID id.RecordID) error {
	ctx, span := s.tracer.Start(ctx, "vault.DeleteRecord",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	if err := s.records.Delete(ctx, caller, recordID); err != nil {
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.RecordsDeleted.Inc()
	}
	return nil
}

// GetRecord returns the record view for an authorized caller.
func (s *Service) GetRecord(ctx context.Context, caller id.Address, recordID id.RecordID) (*recmodels.DataRecord, error) {
	ctx, span := s.tracer.Start(ctx, "vault.GetRecord",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	record, err := s.records.Get(ctx, caller, recordID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return record, nil
}

// GrantAccess adds user to the record's ACL. Owner-only, idempotent.
func (s *Service) GrantAccess(ctx context.Context, caller id.Address, recordID id.RecordID, user id.Address) error {
	ctx, span := s.tracer.Start(ctx, "vault.GrantAccess",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	if err := s.access.Grant(ctx, caller, recordID, user); err != nil {
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.AccessGranted.Inc()
	}
	return nil
}

// RevokeAccess removes user from the record's ACL. Owner-only, idempotent.
func (s *Service) RevokeAccess(ctx context.Context, caller id.Address, recordID id.RecordID, user id.Address) error {
	ctx, span := s.tracer.Start(ctx, "vault.RevokeAccess",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	if err := s.access.Revoke(ctx, caller, recordID, user); err != nil {
		return s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.AccessRevoked.Inc()
	}
	return nil
}

// ListAuthorized returns the record's ACL members in lexicographic order.
func (s *Service) ListAuthorized(ctx context.Context, recordID id.RecordID) ([]id.Address, error) {
	ctx, span := s.tracer.Start(ctx, "vault.ListAuthorized",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	members, err := s.access.ListAuthorized(ctx, recordID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return members, nil
}

// LogAccess appends a ledger entry for the caller's read and bumps the
// record's access counter. The access type arrives sealed.
func (s *Service) LogAccess(ctx context.Context, caller id.Address, recordID id.RecordID, accessType Sealed) (*auditmodels.AccessLogEntry, error) {
	ctx, span := s.tracer.Start(ctx, "vault.LogAccess",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	if err := s.verify(ctx, "access_type", accessType); err != nil {
		return nil, s.fail(span, err)
	}
	entry, err := s.audit.LogAccess(ctx, caller, recordID, accessType.hex())
	if err != nil {
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.AccessLogged.Inc()
	}
	return entry, nil
}

// AccessHistory returns the record's full access log. Owner-only.
func (s *Service) AccessHistory(ctx context.Context, caller id.Address, recordID id.RecordID) ([]auditmodels.AccessLogEntry, error) {
	ctx, span := s.tracer.Start(ctx, "vault.AccessHistory",
		trace.WithAttributes(attribute.Int64("record_id", int64(recordID))))
	defer span.End()

	seq, err := s.audit.History(ctx, caller, recordID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	entries := make([]auditmodels.AccessLogEntry, 0)
	for entry, err := range seq {
		if err != nil {
			return nil, s.fail(span, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
