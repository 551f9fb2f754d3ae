// Package service implements access control: owner-managed grants, implicit
// owner authorization, and the membership queries the record store and audit
// log delegate to.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fhevault/internal/access/store"
	"fhevault/internal/events"
	recmodels "fhevault/internal/records/models"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
	"fhevault/pkg/platform/sentinel"
)

// Records is the slice of the record store consumed for existence and
// ownership checks. Tombstoned ids surface as sentinel.ErrNotFound.
type Records interface {
	Get(ctx context.Context, recordID id.RecordID) (*recmodels.DataRecord, error)
}

type Service struct {
	store   store.Store
	records Records
	bus     events.Publisher
	logger  *slog.Logger
	clock   func() time.Time
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

func New(st store.Store, records Records, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("acl store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record source is required")
	}
	svc := &Service{
		store:   st,
		records: records,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Grant adds user to the record's ACL. Owner-only and idempotent: granting an
// existing member succeeds with no duplicate membership.
func (s *Service) Grant(ctx context.Context, caller id.Address, recordID id.RecordID, user id.Address) error {
	record, err := s.ownedRecord(ctx, caller, recordID)
	if err != nil {
		return err
	}
	if user == record.Owner {
		// The owner is implicitly authorized; never materialize them.
		return nil
	}

	if err := s.store.Add(ctx, recordID, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add access grant")
	}

	s.logger.InfoContext(ctx, "access granted", "record_id", recordID, "user", user, "granter", caller)
	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind:      events.KindAccessGranted,
			Timestamp: s.clock(),
			RecordID:  recordID,
			Actor:     caller,
			Subject:   user,
		})
	}
	return nil
}

// Revoke removes user from the record's ACL. Owner-only and idempotent:
// revoking a non-member succeeds as a no-op.
func (s *Service) Revoke(ctx context.Context, caller id.Address, recordID id.RecordID, user id.Address) error {
	if _, err := s.ownedRecord(ctx, caller, recordID); err != nil {
		return err
	}

	if err := s.store.Remove(ctx, recordID, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove access grant")
	}

	s.logger.InfoContext(ctx, "access revoked", "record_id", recordID, "user", user, "revoker", caller)
	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind:      events.KindAccessRevoked,
			Timestamp: s.clock(),
			RecordID:  recordID,
			Actor:     caller,
			Subject:   user,
		})
	}
	return nil
}

// IsAuthorized reports whether identity may read the record: owner, public
// flag, or ACL membership. Pure query; unknown records report false.
func (s *Service) IsAuthorized(ctx context.Context, recordID id.RecordID, addr id.Address) (bool, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record for authorization")
	}
	if record.Owner == addr || record.IsPublic {
		return true, nil
	}

	member, err := s.store.Contains(ctx, recordID, addr)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check acl membership")
	}
	return member, nil
}

// ListAuthorized returns the record's ACL in lexicographic order. The owner
// is excluded: owner authorization is implicit, never materialized.
func (s *Service) ListAuthorized(ctx context.Context, recordID id.RecordID) ([]id.Address, error) {
	if _, err := s.records.Get(ctx, recordID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s does not exist", recordID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	members, err := s.store.List(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access grants")
	}
	return members, nil
}

// RemoveAll erases every grant for the record. Called by the record store as
// part of delete; not exposed as an external operation.
func (s *Service) RemoveAll(ctx context.Context, recordID id.RecordID) error {
	if err := s.store.RemoveAll(ctx, recordID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge access grants")
	}
	return nil
}

func (s *Service) ownedRecord(ctx context.Context, caller id.Address, recordID id.RecordID) (*recmodels.DataRecord, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s does not exist", recordID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if record.Owner != caller {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "only the owner may manage access to record %s", recordID)
	}
	return record, nil
}
