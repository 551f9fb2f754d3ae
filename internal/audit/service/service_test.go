package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accsvc "fhevault/internal/access/service"
	accstore "fhevault/internal/access/store"
	"fhevault/internal/audit/models"
	auditstore "fhevault/internal/audit/store"
	"fhevault/internal/platform/keymutex"
	recmodels "fhevault/internal/records/models"
	recstore "fhevault/internal/records/store"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
	"fhevault/pkg/requestcontext"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	records *recstore.InMemoryStore
	access  *accsvc.Service
	audit   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	records := recstore.NewMemory()
	access, err := accsvc.New(accstore.NewMemory(), records,
		accsvc.WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)

	audit, err := New(auditstore.NewMemory(), records, access, keymutex.New(),
		WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)

	return &fixture{records: records, access: access, audit: audit}
}

func (f *fixture) history(t *testing.T, caller id.Address, recordID id.RecordID) []models.AccessLogEntry {
	t.Helper()
	seq, err := f.audit.History(context.Background(), caller, recordID)
	require.NoError(t, err)

	entries := make([]models.AccessLogEntry, 0)
	for entry, err := range seq {
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

func (f *fixture) createRecord(t *testing.T, owner id.Address, public bool, expiresAt time.Time) id.RecordID {
	t.Helper()
	recordID, err := f.records.Create(context.Background(), &recmodels.DataRecord{
		DataHash:        "hash",
		MetadataHash:    "meta",
		DataSize:        100,
		EncryptionLevel: id.LevelStandard,
		IsPublic:        public,
		IsEncrypted:     true,
		Owner:           owner,
		CreatedAt:       fixedTime,
		UpdatedAt:       fixedTime,
		ExpiresAt:       expiresAt,
	})
	require.NoError(t, err)
	return recordID
}

func TestLogAccess(t *testing.T) {
	ctx := context.Background()
	future := fixedTime.Add(24 * time.Hour)

	t.Run("appends entry and increments counter as a pair", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", false, future)

		ctx := requestcontext.WithIPHash(ctx, "iphash-1")
		entry, err := f.audit.LogAccess(ctx, "0xalice", recordID, "sealed:read")
		require.NoError(t, err)
		assert.EqualValues(t, 1, entry.ID)
		assert.Equal(t, "iphash-1", entry.IPHash)
		assert.Equal(t, fixedTime, entry.Timestamp)

		record, err := f.records.Get(ctx, recordID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, record.AccessCount)
	})

	t.Run("revoked reader cannot append", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", false, future)
		require.NoError(t, f.access.Grant(ctx, "0xalice", recordID, "0xbob"))

		_, err := f.audit.LogAccess(ctx, "0xbob", recordID, "sealed:read")
		require.NoError(t, err)

		require.NoError(t, f.access.Revoke(ctx, "0xalice", recordID, "0xbob"))

		_, err = f.audit.LogAccess(ctx, "0xbob", recordID, "sealed:read")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		record, err := f.records.Get(ctx, recordID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, record.AccessCount)

		assert.Len(t, f.history(t, "0xalice", recordID), 1)
	})

	t.Run("unknown record", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.audit.LogAccess(ctx, "0xalice", 42, "sealed:read")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("expired private record is sealed off", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", false, fixedTime)

		_, err := f.audit.LogAccess(ctx, "0xalice", recordID, "sealed:read")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})

	t.Run("expired public record stays loggable", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", true, fixedTime)

		_, err := f.audit.LogAccess(ctx, "0xcarol", recordID, "sealed:read")
		require.NoError(t, err)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	future := fixedTime.Add(24 * time.Hour)

	t.Run("owner sees entries in append order", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", true, future)

		for i := 0; i < 3; i++ {
			_, err := f.audit.LogAccess(ctx, "0xbob", recordID, "sealed:read")
			require.NoError(t, err)
		}

		history := f.history(t, "0xalice", recordID)
		require.Len(t, history, 3)
		for i, entry := range history {
			assert.EqualValues(t, i+1, entry.ID)
			assert.EqualValues(t, "0xbob", entry.Actor)
		}

		record, err := f.records.Get(ctx, recordID)
		require.NoError(t, err)
		assert.EqualValues(t, len(history), record.AccessCount)
	})

	t.Run("the sequence restarts and picks up later appends", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", true, future)

		_, err := f.audit.LogAccess(ctx, "0xbob", recordID, "sealed:read")
		require.NoError(t, err)

		seq, err := f.audit.History(ctx, "0xalice", recordID)
		require.NoError(t, err)

		count := func() int {
			n := 0
			for _, err := range seq {
				require.NoError(t, err)
				n++
			}
			return n
		}
		assert.Equal(t, 1, count())

		_, err = f.audit.LogAccess(ctx, "0xbob", recordID, "sealed:read")
		require.NoError(t, err)
		assert.Equal(t, 2, count())
	})

	t.Run("non-owner is rejected even when authorized to read", func(t *testing.T) {
		f := newFixture(t)
		recordID := f.createRecord(t, "0xalice", false, future)
		require.NoError(t, f.access.Grant(ctx, "0xalice", recordID, "0xbob"))

		_, err := f.audit.History(ctx, "0xbob", recordID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("unknown record", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.audit.History(ctx, "0xalice", 7)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
