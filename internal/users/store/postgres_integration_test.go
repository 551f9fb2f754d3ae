//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fhevault/internal/users/models"
	"fhevault/internal/users/store"
	"fhevault/pkg/platform/sentinel"
	"fhevault/pkg/testutil/containers"
)

type PostgresUserStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresUserStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUserStoreSuite))
}

func (s *PostgresUserStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresUserStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "vault_users"))
}

func (s *PostgresUserStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	joined := time.Now().UTC().Truncate(time.Microsecond)

	userID, err := s.store.Create(ctx, &models.UserProfile{
		Address: "0xalice", PublicKey: "pk", StorageQuota: 1000, IsActive: true, JoinedAt: joined,
	})
	s.Require().NoError(err)
	s.EqualValues(1, userID)

	got, err := s.store.Get(ctx, "0xalice")
	s.Require().NoError(err)
	s.Equal("pk", got.PublicKey)
	s.EqualValues(1000, got.StorageQuota)
	s.True(got.IsActive)
	s.WithinDuration(joined, got.JoinedAt, time.Millisecond)
}

func (s *PostgresUserStoreSuite) TestDuplicateAddressConflicts() {
	ctx := context.Background()

	_, err := s.store.Create(ctx, &models.UserProfile{Address: "0xalice", PublicKey: "pk", StorageQuota: 1000, IsActive: true, JoinedAt: time.Now()})
	s.Require().NoError(err)

	_, err = s.store.Create(ctx, &models.UserProfile{Address: "0xalice", PublicKey: "pk2", StorageQuota: 1000, IsActive: true, JoinedAt: time.Now()})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresUserStoreSuite) TestReserveCeiling() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, &models.UserProfile{Address: "0xalice", PublicKey: "pk", StorageQuota: 1000, IsActive: true, JoinedAt: time.Now()})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Reserve(ctx, "0xalice", 600))
	s.ErrorIs(s.store.Reserve(ctx, "0xalice", 500), sentinel.ErrQuotaExceeded)

	got, err := s.store.Get(ctx, "0xalice")
	s.Require().NoError(err)
	s.EqualValues(600, got.UsedStorage)
}

// TestConcurrentReserve verifies the conditional UPDATE never over-commits the
// quota under contention.
func (s *PostgresUserStoreSuite) TestConcurrentReserve() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, &models.UserProfile{Address: "0xalice", PublicKey: "pk", StorageQuota: 1000, IsActive: true, JoinedAt: time.Now()})
	s.Require().NoError(err)

	const goroutines = 20
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Reserve(ctx, "0xalice", 100); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(10, successes.Load())
	got, err := s.store.Get(ctx, "0xalice")
	s.Require().NoError(err)
	s.EqualValues(1000, got.UsedStorage)
}

func (s *PostgresUserStoreSuite) TestReleaseClampsAtZero() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, &models.UserProfile{Address: "0xalice", PublicKey: "pk", StorageQuota: 1000, IsActive: true, JoinedAt: time.Now()})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Reserve(ctx, "0xalice", 100))
	s.Require().NoError(s.store.Release(ctx, "0xalice", 500))

	got, err := s.store.Get(ctx, "0xalice")
	s.Require().NoError(err)
	s.EqualValues(0, got.UsedStorage)
}

func (s *PostgresUserStoreSuite) TestReputationFloor() {
	ctx := context.Background()
	_, err := s.store.Create(ctx, &models.UserProfile{Address: "0xalice", PublicKey: "pk", StorageQuota: 1000, IsActive: true, JoinedAt: time.Now()})
	s.Require().NoError(err)

	rep, err := s.store.AddReputation(ctx, "0xalice", 10, 0)
	s.Require().NoError(err)
	s.EqualValues(10, rep)

	rep, err = s.store.AddReputation(ctx, "0xalice", -50, 0)
	s.Require().NoError(err)
	s.EqualValues(0, rep)
}
