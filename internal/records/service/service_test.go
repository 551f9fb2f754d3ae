package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accsvc "fhevault/internal/access/service"
	accstore "fhevault/internal/access/store"
	"fhevault/internal/events"
	"fhevault/internal/platform/keymutex"
	"fhevault/internal/records/models"
	"fhevault/internal/records/store"
	usersvc "fhevault/internal/users/service"
	userstore "fhevault/internal/users/store"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	users   *usersvc.Service
	access  *accsvc.Service
	records *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := func() time.Time { return fixedTime }

	users, err := usersvc.New(userstore.NewMemory(),
		usersvc.WithClock(clock), usersvc.WithDefaultQuota(1000))
	require.NoError(t, err)

	recordStore := store.NewMemory()
	access, err := accsvc.New(accstore.NewMemory(), recordStore, accsvc.WithClock(clock))
	require.NoError(t, err)

	base := []Option{WithClock(clock)}
	records, err := New(recordStore, users, access, keymutex.New(), append(base, opts...)...)
	require.NoError(t, err)

	return &fixture{users: users, access: access, records: records}
}

func (f *fixture) register(t *testing.T, addr id.Address) {
	t.Helper()
	_, err := f.users.Register(context.Background(), addr, "pk-"+addr.String(), 0)
	require.NoError(t, err)
}

// failingUpdateStore accepts creates but fails every update, exercising the
// quota rollback path.
type failingUpdateStore struct {
	*store.InMemoryStore
}

func (s *failingUpdateStore) Update(context.Context, *models.DataRecord) error {
	return errors.New("disk full")
}

func validParams() CreateParams {
	return CreateParams{
		DataHash:     "hash",
		MetadataHash: "meta",
		DataSize:     100,
		Level:        id.LevelStandard,
		TTL:          24 * time.Hour,
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves quota and stamps timestamps", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")

		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)
		assert.EqualValues(t, 1, record.ID)
		assert.True(t, record.IsEncrypted)
		assert.Equal(t, fixedTime, record.CreatedAt)
		assert.Equal(t, fixedTime.Add(24*time.Hour), record.ExpiresAt)

		profile, err := f.users.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 100, profile.UsedStorage)
	})

	t.Run("publishes DataRecordCreated", func(t *testing.T) {
		bus := events.NewBus()
		sub, cancel := bus.Subscribe(4)
		defer cancel()

		f := newFixture(t, WithPublisher(bus))
		f.register(t, "0xalice")

		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		event := <-sub
		assert.Equal(t, events.KindDataRecordCreated, event.Kind)
		assert.Equal(t, record.ID, event.RecordID)
		assert.Equal(t, record.DataHash, event.DataHash)
	})

	t.Run("rejects invalid inputs", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")

		cases := map[string]struct {
			mutate func(*CreateParams)
			code   dErrors.Code
		}{
			"empty data hash":   {func(p *CreateParams) { p.DataHash = "" }, dErrors.CodeBadRequest},
			"negative size":     {func(p *CreateParams) { p.DataSize = -1 }, dErrors.CodeBadRequest},
			"zero ttl":          {func(p *CreateParams) { p.TTL = 0 }, dErrors.CodeBadRequest},
			"level out of band": {func(p *CreateParams) { p.Level = 9 }, dErrors.CodeInvalidEncryptionLevel},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				params := validParams()
				tc.mutate(&params)
				_, err := f.records.Create(ctx, "0xalice", params)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, tc.code))
			})
		}
	})

	t.Run("deactivated owner is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		require.NoError(t, f.users.Deactivate(ctx, "0xalice"))

		_, err := f.records.Create(ctx, "0xalice", validParams())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("quota exhaustion leaves no record behind", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")

		params := validParams()
		params.DataSize = 2000
		_, err := f.records.Create(ctx, "0xalice", params)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeQuotaExceeded))

		profile, err := f.users.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 0, profile.UsedStorage)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("size growth adjusts quota by the delta", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		err = f.records.Update(ctx, "0xalice", record.ID, UpdateParams{
			DataHash: "hash2", MetadataHash: "meta2", DataSize: 400,
		})
		require.NoError(t, err)

		profile, err := f.users.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 400, profile.UsedStorage)

		got, err := f.records.Get(ctx, "0xalice", record.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash2", got.DataHash)
		assert.EqualValues(t, 400, got.DataSize)
	})

	t.Run("shrink returns quota", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		err = f.records.Update(ctx, "0xalice", record.ID, UpdateParams{
			DataHash: "hash2", MetadataHash: "meta2", DataSize: 10,
		})
		require.NoError(t, err)

		profile, err := f.users.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 10, profile.UsedStorage)
	})

	t.Run("growth past quota commits nothing", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		err = f.records.Update(ctx, "0xalice", record.ID, UpdateParams{
			DataHash: "hash2", MetadataHash: "meta2", DataSize: 5000,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeQuotaExceeded))

		got, err := f.records.Get(ctx, "0xalice", record.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash", got.DataHash)
		assert.EqualValues(t, 100, got.DataSize)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		err = f.records.Update(ctx, "0xbob", record.ID, UpdateParams{
			DataHash: "h", MetadataHash: "m", DataSize: 10,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("failed store update rolls back the quota adjustment", func(t *testing.T) {
		clock := func() time.Time { return fixedTime }
		users, err := usersvc.New(userstore.NewMemory(),
			usersvc.WithClock(clock), usersvc.WithDefaultQuota(1000))
		require.NoError(t, err)

		mem := store.NewMemory()
		access, err := accsvc.New(accstore.NewMemory(), mem, accsvc.WithClock(clock))
		require.NoError(t, err)

		records, err := New(&failingUpdateStore{InMemoryStore: mem}, users, access,
			keymutex.New(), WithClock(clock))
		require.NoError(t, err)

		_, err = users.Register(ctx, "0xalice", "pk", 0)
		require.NoError(t, err)
		record, err := records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		err = records.Update(ctx, "0xalice", record.ID, UpdateParams{
			DataHash: "hash2", MetadataHash: "meta2", DataSize: 400,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		// The grown reservation was handed back.
		profile, err := users.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 100, profile.UsedStorage)
	})

	t.Run("expired record must be deleted instead", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		params := validParams()
		params.TTL = time.Nanosecond
		record, err := f.records.Create(ctx, "0xalice", params)
		require.NoError(t, err)

		// Advance past expiry by judging against a later clock.
		laterClock := func() time.Time { return fixedTime.Add(time.Hour) }
		WithClock(laterClock)(f.records)

		err = f.records.Update(ctx, "0xalice", record.ID, UpdateParams{
			DataHash: "h", MetadataHash: "m", DataSize: 10,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("returns quota, purges grants, tombstones the id", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)
		require.NoError(t, f.access.Grant(ctx, "0xalice", record.ID, "0xbob"))

		require.NoError(t, f.records.Delete(ctx, "0xalice", record.ID))

		profile, err := f.users.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.EqualValues(t, 0, profile.UsedStorage)

		_, err = f.records.Get(ctx, "0xalice", record.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		ok, err := f.access.IsAuthorized(ctx, record.ID, "0xbob")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired records may still be deleted by the owner", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		params := validParams()
		params.TTL = time.Nanosecond
		record, err := f.records.Create(ctx, "0xalice", params)
		require.NoError(t, err)

		WithClock(func() time.Time { return fixedTime.Add(time.Hour) })(f.records)
		require.NoError(t, f.records.Delete(ctx, "0xalice", record.ID))
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		record, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)

		err = f.records.Delete(ctx, "0xbob", record.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("owner, public readers, and grantees are authorized", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		private, err := f.records.Create(ctx, "0xalice", validParams())
		require.NoError(t, err)
		params := validParams()
		params.IsPublic = true
		public, err := f.records.Create(ctx, "0xalice", params)
		require.NoError(t, err)
		require.NoError(t, f.access.Grant(ctx, "0xalice", private.ID, "0xbob"))

		_, err = f.records.Get(ctx, "0xalice", private.ID)
		assert.NoError(t, err)
		_, err = f.records.Get(ctx, "0xbob", private.ID)
		assert.NoError(t, err)
		_, err = f.records.Get(ctx, "0xcarol", public.ID)
		assert.NoError(t, err)

		_, err = f.records.Get(ctx, "0xcarol", private.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("expiry is judged before authorization", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		params := validParams()
		params.TTL = time.Nanosecond
		record, err := f.records.Create(ctx, "0xalice", params)
		require.NoError(t, err)

		WithClock(func() time.Time { return fixedTime.Add(time.Hour) })(f.records)

		// Even the owner sees expired, not unauthorized.
		_, err = f.records.Get(ctx, "0xalice", record.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})

	t.Run("expired public records stay readable", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "0xalice")
		params := validParams()
		params.TTL = time.Nanosecond
		params.IsPublic = true
		record, err := f.records.Create(ctx, "0xalice", params)
		require.NoError(t, err)

		WithClock(func() time.Time { return fixedTime.Add(time.Hour) })(f.records)

		_, err = f.records.Get(ctx, "0xcarol", record.ID)
		assert.NoError(t, err)
	})
}
