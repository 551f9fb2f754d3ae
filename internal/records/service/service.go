// Package service implements the record lifecycle: create, update, delete,
// and authorized reads, with quota accounting delegated to the user registry
// and authorization delegated to access control.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fhevault/internal/events"
	"fhevault/internal/platform/keymutex"
	"fhevault/internal/records/models"
	"fhevault/internal/records/store"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
	"fhevault/pkg/platform/sentinel"
	"fhevault/pkg/requestcontext"
)

// Quota is the slice of the user registry the record store consumes.
type Quota interface {
	IsActive(ctx context.Context, addr id.Address) (bool, error)
	Reserve(ctx context.Context, addr id.Address, bytes int64) error
	Release(ctx context.Context, addr id.Address, bytes int64) error
}

// AccessControl is the slice of the access-control subsystem the record store
// consumes: membership checks on reads, full purge on delete.
type AccessControl interface {
	IsAuthorized(ctx context.Context, recordID id.RecordID, addr id.Address) (bool, error)
	RemoveAll(ctx context.Context, recordID id.RecordID) error
}

type Service struct {
	store  store.Store
	quota  Quota
	access AccessControl
	locks  *keymutex.Map
	bus    events.Publisher
	logger *slog.Logger
	clock  func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublisher(bus events.Publisher) Option {
	return func(s *Service) { s.bus = bus }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(st store.Store, quota Quota, access AccessControl, locks *keymutex.Map, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if quota == nil {
		return nil, fmt.Errorf("quota port is required")
	}
	if access == nil {
		return nil, fmt.Errorf("access control port is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key lock map is required")
	}
	svc := &Service{
		store:  st,
		quota:  quota,
		access: access,
		locks:  locks,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if t, ok := requestcontext.TimeFrom(ctx); ok {
		return t
	}
	return s.clock()
}

func recordKey(recordID id.RecordID) string { return "record/" + recordID.String() }

// CreateParams carries the verified inputs for record creation.
type CreateParams struct {
	DataHash     string
	MetadataHash string
	DataSize     int64
	Level        id.EncryptionLevel
	TTL          time.Duration
	IsPublic     bool
}

// Create stores a new record owned by caller. The owner must hold an active
// profile and enough free quota for the record's size.
func (s *Service) Create(ctx context.Context, caller id.Address, params CreateParams) (*models.DataRecord, error) {
	if params.DataHash == "" || params.MetadataHash == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "data and metadata hashes are required")
	}
	if params.DataSize < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "data size must be non-negative")
	}
	if params.TTL <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "expiry must be in the future")
	}
	if !params.Level.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidEncryptionLevel, "encryption level %d is not in {basic, standard, advanced}", params.Level)
	}

	active, err := s.quota.IsActive(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "identity %s is deactivated", caller)
	}

	if err := s.quota.Reserve(ctx, caller, params.DataSize); err != nil {
		return nil, err
	}

	now := s.now(ctx)
	record := &models.DataRecord{
		DataHash:        params.DataHash,
		MetadataHash:    params.MetadataHash,
		DataSize:        params.DataSize,
		EncryptionLevel: params.Level,
		IsPublic:        params.IsPublic,
		IsEncrypted:     true,
		Owner:           caller,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(params.TTL),
	}

	recordID, err := s.store.Create(ctx, record)
	if err != nil {
		// Hand the reservation back so a failed create leaves no trace.
		if relErr := s.quota.Release(ctx, caller, params.DataSize); relErr != nil {
			s.logger.ErrorContext(ctx, "quota release after failed create", "address", caller, "error", relErr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
	}
	record.ID = recordID

	s.logger.InfoContext(ctx, "record created",
		"record_id", recordID, "owner", caller, "size_bytes", params.DataSize, "level", params.Level.String())
	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind:      events.KindDataRecordCreated,
			Timestamp: now,
			RecordID:  recordID,
			Actor:     caller,
			DataHash:  record.DataHash,
		})
	}
	return record, nil
}

// UpdateParams carries the verified inputs for a record update.
type UpdateParams struct {
	DataHash     string
	MetadataHash string
	DataSize     int64
}

// Update rewrites the record's hashes and size. Owner-only; expired records
// must be deleted, not updated. A size change adjusts the owner's quota
// atomically: if the new reservation fails nothing is committed.
func (s *Service) Update(ctx context.Context, caller id.Address, recordID id.RecordID, params UpdateParams) error {
	if params.DataHash == "" || params.MetadataHash == "" {
		return dErrors.New(dErrors.CodeBadRequest, "data and metadata hashes are required")
	}
	if params.DataSize < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "data size must be non-negative")
	}

	unlock := s.locks.Lock(recordKey(recordID))
	defer unlock()

	record, err := s.getStored(ctx, recordID)
	if err != nil {
		return err
	}
	if record.Expired(s.now(ctx)) {
		return dErrors.Newf(dErrors.CodeExpired, "record %s has expired; delete it instead", recordID)
	}
	if record.Owner != caller {
		return dErrors.Newf(dErrors.CodeUnauthorized, "only the owner may update record %s", recordID)
	}

	delta := params.DataSize - record.DataSize
	switch {
	case delta > 0:
		if err := s.quota.Reserve(ctx, record.Owner, delta); err != nil {
			return err
		}
	case delta < 0:
		if err := s.quota.Release(ctx, record.Owner, -delta); err != nil {
			return err
		}
	}

	record.DataHash = params.DataHash
	record.MetadataHash = params.MetadataHash
	record.DataSize = params.DataSize
	record.UpdatedAt = s.now(ctx)

	if err := s.store.Update(ctx, record); err != nil {
		// Undo the quota adjustment so the failed update is invisible. A
		// failed undo leaks the reservation, so it must be visible in logs.
		switch {
		case delta > 0:
			if relErr := s.quota.Release(ctx, record.Owner, delta); relErr != nil {
				s.logger.ErrorContext(ctx, "quota release after failed update", "record_id", recordID, "error", relErr)
			}
		case delta < 0:
			if resErr := s.quota.Reserve(ctx, record.Owner, -delta); resErr != nil {
				s.logger.ErrorContext(ctx, "quota re-reserve after failed update", "record_id", recordID, "error", resErr)
			}
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update record")
	}

	s.logger.InfoContext(ctx, "record updated", "record_id", recordID, "updater", caller, "size_delta", delta)
	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind:      events.KindDataRecordUpdated,
			Timestamp: s.now(ctx),
			RecordID:  recordID,
			Actor:     caller,
		})
	}
	return nil
}

// Delete tombstones the record, returns its quota reservation, and erases all
// access grants. Owner-only; expired records may still be deleted.
func (s *Service) Delete(ctx context.Context, caller id.Address, recordID id.RecordID) error {
	unlock := s.locks.Lock(recordKey(recordID))
	defer unlock()

	record, err := s.getStored(ctx, recordID)
	if err != nil {
		return err
	}
	if record.Owner != caller {
		return dErrors.Newf(dErrors.CodeUnauthorized, "only the owner may delete record %s", recordID)
	}

	if err := s.access.RemoveAll(ctx, recordID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to erase access grants")
	}
	if err := s.store.Delete(ctx, recordID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete record")
	}
	if err := s.quota.Release(ctx, record.Owner, record.DataSize); err != nil {
		s.logger.ErrorContext(ctx, "quota release after delete", "record_id", recordID, "error", err)
	}

	s.logger.InfoContext(ctx, "record deleted", "record_id", recordID, "deleter", caller)
	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind:      events.KindDataRecordDeleted,
			Timestamp: s.now(ctx),
			RecordID:  recordID,
			Actor:     caller,
		})
	}
	return nil
}

// Get returns the record view for an authorized caller. The read path is
// side-effect-free; only the audit log mutates counters.
func (s *Service) Get(ctx context.Context, caller id.Address, recordID id.RecordID) (*models.DataRecord, error) {
	unlock := s.locks.RLock(recordKey(recordID))
	defer unlock()

	record, err := s.getStored(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Expired(s.now(ctx)) && !record.IsPublic {
		return nil, dErrors.Newf(dErrors.CodeExpired, "record %s has expired", recordID)
	}
	if record.Owner != caller && !record.IsPublic {
		ok, err := s.access.IsAuthorized(ctx, recordID, caller)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "caller is not authorized to read record %s", recordID)
		}
	}
	return record, nil
}

func (s *Service) getStored(ctx context.Context, recordID id.RecordID) (*models.DataRecord, error) {
	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s does not exist", recordID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	return record, nil
}
