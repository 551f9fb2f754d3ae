// Package service implements the user registry: registration, reputation,
// quota accounting, and deactivation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fhevault/internal/events"
	"fhevault/internal/users/models"
	"fhevault/internal/users/store"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
	"fhevault/pkg/platform/sentinel"
)

// Store is the persistence port consumed by the service.
type Store = store.Store

type Service struct {
	store        Store
	bus          events.Publisher
	logger       *slog.Logger
	clock        func() time.Time
	defaultQuota int64
	floor        int64
	authority    id.Address
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

// WithDefaultQuota sets the storage quota assigned when registration carries
// no verifiable quota value.
func WithDefaultQuota(bytes int64) Option {
	return func(s *Service) { s.defaultQuota = bytes }
}

// WithReputationFloor sets the non-negative floor reputation clamps to.
func WithReputationFloor(floor int64) Option {
	return func(s *Service) { s.floor = floor }
}

// WithAuthority designates the only identity allowed to adjust reputation.
func WithAuthority(addr id.Address) Option {
	return func(s *Service) { s.authority = addr }
}

func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("user store is required")
	}
	svc := &Service{
		store:        st,
		logger:       slog.Default(),
		clock:        time.Now,
		defaultQuota: 1 << 30,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates a profile for the calling identity. The identity must not
// already be registered.
func (s *Service) Register(ctx context.Context, caller id.Address, publicKey string, initialQuota int64) (*models.UserProfile, error) {
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "caller identity is required")
	}
	if publicKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "public key is required")
	}
	if initialQuota <= 0 {
		initialQuota = s.defaultQuota
	}

	profile := &models.UserProfile{
		Address:      caller,
		PublicKey:    publicKey,
		StorageQuota: initialQuota,
		IsActive:     true,
		JoinedAt:     s.clock(),
	}

	userID, err := s.store.Create(ctx, profile)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeDuplicateUser, "identity %s is already registered", caller)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user profile")
	}
	profile.ID = userID

	s.logger.InfoContext(ctx, "user registered", "address", caller, "user_id", userID, "quota_bytes", initialQuota)
	if s.bus != nil {
		s.bus.Publish(ctx, events.Event{
			Kind:      events.KindUserRegistered,
			Timestamp: s.clock(),
			Actor:     caller,
			UserID:    userID,
		})
	}
	return profile, nil
}

// UpdateReputation applies a signed delta to the target's score, clamped to
// the configured floor. Only the designated authority may call it.
func (s *Service) UpdateReputation(ctx context.Context, caller, target id.Address, delta int64) (int64, error) {
	if s.authority.IsZero() || caller != s.authority {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller is not the reputation authority")
	}

	reputation, err := s.store.AddReputation(ctx, target, delta, s.floor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.Newf(dErrors.CodeNotFound, "identity %s is not registered", target)
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update reputation")
	}

	s.logger.InfoContext(ctx, "reputation updated", "address", target, "delta", delta, "reputation", reputation)
	return reputation, nil
}

// GetProfile returns the profile for an identity.
func (s *Service) GetProfile(ctx context.Context, addr id.Address) (*models.UserProfile, error) {
	profile, err := s.store.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "identity %s is not registered", addr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user profile")
	}
	return profile, nil
}

// Deactivate is self-service: the caller deactivates their own profile.
// Existing records are unaffected; only future creates are blocked.
func (s *Service) Deactivate(ctx context.Context, caller id.Address) error {
	if err := s.store.SetActive(ctx, caller, false); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "identity %s is not registered", caller)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate profile")
	}
	s.logger.InfoContext(ctx, "user deactivated", "address", caller)
	return nil
}

// IsActive reports whether the identity is registered and active. Consumed by
// the record store before creates.
func (s *Service) IsActive(ctx context.Context, addr id.Address) (bool, error) {
	profile, err := s.store.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.Newf(dErrors.CodeNotFound, "identity %s is not registered", addr)
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user profile")
	}
	return profile.IsActive, nil
}

// Reserve atomically claims bytes against the identity's storage quota.
func (s *Service) Reserve(ctx context.Context, addr id.Address, bytes int64) error {
	if bytes < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "reservation size must be non-negative")
	}
	if err := s.store.Reserve(ctx, addr, bytes); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Newf(dErrors.CodeNotFound, "identity %s is not registered", addr)
		case errors.Is(err, sentinel.ErrQuotaExceeded):
			return dErrors.Newf(dErrors.CodeQuotaExceeded, "reservation of %d bytes exceeds storage quota", bytes)
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve quota")
		}
	}
	return nil
}

// Release returns bytes to the identity's quota. The inverse of Reserve,
// called on delete and on size-decreasing updates.
func (s *Service) Release(ctx context.Context, addr id.Address, bytes int64) error {
	if bytes < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "release size must be non-negative")
	}
	if err := s.store.Release(ctx, addr, bytes); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "identity %s is not registered", addr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release quota")
	}
	return nil
}
