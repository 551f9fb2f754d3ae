package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhevault/internal/events"
	"fhevault/internal/users/store"
	dErrors "fhevault/pkg/domain-errors"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	base := []Option{WithClock(func() time.Time { return fixedTime })}
	svc, err := New(store.NewMemory(), append(base, opts...)...)
	require.NoError(t, err)
	return svc
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active profile with zeroed counters", func(t *testing.T) {
		svc := newService(t, WithDefaultQuota(5000))

		profile, err := svc.Register(ctx, "0xalice", "pk-alice", 0)
		require.NoError(t, err)
		assert.True(t, profile.IsActive)
		assert.EqualValues(t, 0, profile.UsedStorage)
		assert.EqualValues(t, 0, profile.Reputation)
		assert.EqualValues(t, 5000, profile.StorageQuota)
		assert.Equal(t, fixedTime, profile.JoinedAt)
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.Register(ctx, "0xalice", "pk-alice", 1000)
		require.NoError(t, err)

		_, err = svc.Register(ctx, "0xalice", "pk-alice", 1000)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateUser))
	})

	t.Run("publishes UserRegistered", func(t *testing.T) {
		bus := events.NewBus()
		sub, cancel := bus.Subscribe(4)
		defer cancel()

		svc := newService(t, WithPublisher(bus))
		profile, err := svc.Register(ctx, "0xalice", "pk-alice", 1000)
		require.NoError(t, err)

		event := <-sub
		assert.Equal(t, events.KindUserRegistered, event.Kind)
		assert.Equal(t, profile.ID, event.UserID)
		assert.EqualValues(t, "0xalice", event.Actor)
	})
}

func TestUpdateReputation(t *testing.T) {
	ctx := context.Background()

	t.Run("authority applies clamped delta", func(t *testing.T) {
		svc := newService(t, WithAuthority("0xauthority"), WithReputationFloor(0))
		_, err := svc.Register(ctx, "0xalice", "pk", 1000)
		require.NoError(t, err)

		rep, err := svc.UpdateReputation(ctx, "0xauthority", "0xalice", -5)
		require.NoError(t, err)
		assert.EqualValues(t, 0, rep)
	})

	t.Run("non-authority is rejected", func(t *testing.T) {
		svc := newService(t, WithAuthority("0xauthority"))
		_, err := svc.Register(ctx, "0xalice", "pk", 1000)
		require.NoError(t, err)

		_, err = svc.UpdateReputation(ctx, "0xalice", "0xalice", 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("no authority configured rejects everyone", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.UpdateReputation(ctx, "0xanyone", "0xalice", 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unregistered target reports not found", func(t *testing.T) {
		svc := newService(t, WithAuthority("0xauthority"))
		_, err := svc.UpdateReputation(ctx, "0xauthority", "0xghost", 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestQuotaAccounting(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve then exceed leaves usage unchanged", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.Register(ctx, "0xalice", "pk", 1000)
		require.NoError(t, err)

		require.NoError(t, svc.Reserve(ctx, "0xalice", 600))

		err = svc.Reserve(ctx, "0xalice", 500)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeQuotaExceeded))

		profile, err := svc.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 600, profile.UsedStorage)
	})

	t.Run("release returns bytes", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.Register(ctx, "0xalice", "pk", 1000)
		require.NoError(t, err)

		require.NoError(t, svc.Reserve(ctx, "0xalice", 600))
		require.NoError(t, svc.Release(ctx, "0xalice", 600))
		require.NoError(t, svc.Reserve(ctx, "0xalice", 1000))
	})

	t.Run("reserve for unknown identity", func(t *testing.T) {
		svc := newService(t)
		err := svc.Reserve(ctx, "0xghost", 10)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.Register(ctx, "0xalice", "pk", 1000)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "0xalice"))

	active, err := svc.IsActive(ctx, "0xalice")
	require.NoError(t, err)
	assert.False(t, active)
}
