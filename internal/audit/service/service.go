// Package service implements the append-only audit log. Every successful
// LogAccess appends exactly one ledger entry and bumps the record's access
// counter, as one atomic pair under the record's key lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"fhevault/internal/audit/models"
	"fhevault/internal/audit/store"
	"fhevault/internal/platform/keymutex"
	recmodels "fhevault/internal/records/models"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
	"fhevault/pkg/platform/sentinel"
	"fhevault/pkg/platform/tx"
	"fhevault/pkg/requestcontext"
)

// Records is the slice of the record store the audit log consumes. The store,
// not the record service, so the append path never re-enters the service's
// read lock while holding the record's write lock.
type Records interface {
	Get(ctx context.Context, recordID id.RecordID) (*recmodels.DataRecord, error)
	IncrementAccessCount(ctx context.Context, recordID id.RecordID) (int64, error)
}

// Authorizer answers whether an identity may read a record.
type Authorizer interface {
	IsAuthorized(ctx context.Context, recordID id.RecordID, addr id.Address) (bool, error)
}

type Service struct {
	store   store.Store
	records Records
	access  Authorizer
	locks   *keymutex.Map
	runner  tx.Runner
	logger  *slog.Logger
	clock   func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRunner sets the atomic execution strategy for the append+increment
// pair. SQL deployments pass a tx.SQLRunner; the default Passthrough is
// sufficient for the in-memory stores.
func WithRunner(runner tx.Runner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

func New(st store.Store, records Records, access Authorizer, locks *keymutex.Map, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record source is required")
	}
	if access == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("key lock map is required")
	}
	svc := &Service{
		store:   st,
		records: records,
		access:  access,
		locks:   locks,
		runner:  tx.Passthrough{},
		logger:  slog.Default(),
		clock:   time.Now,
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

// LogAccess records that caller read the record. Authorization is re-checked
// at log time: a revoked reader cannot append. The ledger entry and the
// access-count increment land together or not at all.
func (s *Service) LogAccess(ctx context.Context, caller id.Address, recordID id.RecordID, accessType string) (*models.AccessLogEntry, error) {
	unlock := s.locks.Lock(recordKey(recordID))
	defer unlock()

	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s does not exist", recordID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	now := s.now(ctx)
	if record.Expired(now) && !record.IsPublic {
		return nil, dErrors.Newf(dErrors.CodeExpired, "record %s has expired", recordID)
	}
	ok, err := s.access.IsAuthorized(ctx, recordID, caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "caller is not authorized to access record %s", recordID)
	}

	entry := &models.AccessLogEntry{
		RecordID:   recordID,
		Actor:      caller,
		AccessType: accessType,
		IPHash:     requestcontext.IPHash(ctx),
		Timestamp:  now,
	}

	err = s.runner.Run(ctx, func(ctx context.Context) error {
		logID, err := s.store.Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		entry.ID = logID
		if _, err := s.records.IncrementAccessCount(ctx, recordID); err != nil {
			return fmt.Errorf("increment access count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to log access")
	}

	s.logger.InfoContext(ctx, "access logged",
		"record_id", recordID, "actor", caller, "log_id", entry.ID)
	return entry, nil
}

// History returns the record's access log as a lazy sequence in append
// order. Owner-only: the ledger reveals who read the record and when. The
// authorization check is eager; entries stream on demand, and each range
// re-reads the store, so the log is never materialized whole.
func (s *Service) History(ctx context.Context, caller id.Address, recordID id.RecordID) (iter.Seq2[models.AccessLogEntry, error], error) {
	unlock := s.locks.RLock(recordKey(recordID))
	defer unlock()

	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s does not exist", recordID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if record.Owner != caller {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "only the owner may read the access log of record %s", recordID)
	}

	seq := s.store.History(ctx, recordID)
	return func(yield func(models.AccessLogEntry, error) bool) {
		for entry, err := range seq {
			if err != nil {
				yield(models.AccessLogEntry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access history"))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}, nil
}
