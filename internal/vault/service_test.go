package vault

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	accsvc "fhevault/internal/access/service"
	accstore "fhevault/internal/access/store"
	auditsvc "fhevault/internal/audit/service"
	auditstore "fhevault/internal/audit/store"
	"fhevault/internal/platform/keymutex"
	"fhevault/internal/proof"
	"fhevault/internal/proof/mocks"
	recsvc "fhevault/internal/records/service"
	recstore "fhevault/internal/records/store"
	usersvc "fhevault/internal/users/service"
	userstore "fhevault/internal/users/store"
	id "fhevault/pkg/domain"
	dErrors "fhevault/pkg/domain-errors"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sealed(payload string) Sealed {
	return Sealed{Ciphertext: []byte(payload), Proof: []byte("proof:" + payload)}
}

func sealedInt(v int64) Sealed {
	buf := binary.BigEndian.AppendUint64(nil, uint64(v))
	return Sealed{Ciphertext: buf, Proof: append([]byte("proof:"), buf...)}
}

func newVault(t *testing.T, verifier proof.Verifier) *Service {
	t.Helper()
	clock := func() time.Time { return fixedTime }
	locks := keymutex.New()

	users, err := usersvc.New(userstore.NewMemory(),
		usersvc.WithClock(clock), usersvc.WithDefaultQuota(10_000), usersvc.WithAuthority("0xauthority"))
	require.NoError(t, err)

	recordStore := recstore.NewMemory()
	access, err := accsvc.New(accstore.NewMemory(), recordStore, accsvc.WithClock(clock))
	require.NoError(t, err)

	records, err := recsvc.New(recordStore, users, access, locks, recsvc.WithClock(clock))
	require.NoError(t, err)

	audit, err := auditsvc.New(auditstore.NewMemory(), recordStore, access, locks, auditsvc.WithClock(clock))
	require.NoError(t, err)

	svc, err := New(users, records, access, audit, verifier)
	require.NoError(t, err)
	return svc
}

func createParams() CreateRecordParams {
	return CreateRecordParams{
		DataHash:     sealed("data-hash"),
		MetadataHash: sealed("meta-hash"),
		DataSize:     sealedInt(100),
		Level:        sealedInt(2),
		TTLSeconds:   sealedInt(int64(24 * time.Hour / time.Second)),
	}
}

func TestVaultLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newVault(t, proof.Static{Allow: true})

	_, err := svc.RegisterUser(ctx, "0xalice", sealed("pk-alice"), sealedInt(10_000))
	require.NoError(t, err)
	_, err = svc.RegisterUser(ctx, "0xbob", sealed("pk-bob"), Sealed{})
	require.NoError(t, err)

	record, err := svc.CreateRecord(ctx, "0xalice", createParams())
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString([]byte("data-hash")), record.DataHash)

	require.NoError(t, svc.GrantAccess(ctx, "0xalice", record.ID, "0xbob"))

	got, err := svc.GetRecord(ctx, "0xbob", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.DataHash, got.DataHash)

	entry, err := svc.LogAccess(ctx, "0xbob", record.ID, sealed("read"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, entry.ID)

	history, err := svc.AccessHistory(ctx, "0xalice", record.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.EqualValues(t, "0xbob", history[0].Actor)

	members, err := svc.ListAuthorized(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, []id.Address{"0xbob"}, members)

	require.NoError(t, svc.UpdateRecord(ctx, "0xalice", record.ID, UpdateRecordParams{
		DataHash:     sealed("data-hash-2"),
		MetadataHash: sealed("meta-hash-2"),
		DataSize:     sealedInt(150),
	}))

	require.NoError(t, svc.RevokeAccess(ctx, "0xalice", record.ID, "0xbob"))
	_, err = svc.GetRecord(ctx, "0xbob", record.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	require.NoError(t, svc.DeleteRecord(ctx, "0xalice", record.ID))
	_, err = svc.GetRecord(ctx, "0xalice", record.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestProofGate(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid proof blocks registration", func(t *testing.T) {
		svc := newVault(t, proof.Static{Allow: false})

		_, err := svc.RegisterUser(ctx, "0xalice", sealed("pk"), Sealed{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))

		_, err = svc.GetProfile(ctx, "0xalice")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("reputation delta is proof-gated", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		verifier := mocks.NewMockVerifier(ctrl)
		svc := newVault(t, verifier)

		verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		_, err := svc.RegisterUser(ctx, "0xalice", sealed("pk"), Sealed{})
		require.NoError(t, err)

		verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
		_, err = svc.UpdateReputation(ctx, "0xauthority", "0xalice", sealedInt(7))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))

		profile, err := svc.GetProfile(ctx, "0xalice")
		require.NoError(t, err)
		assert.Zero(t, profile.Reputation)
	})

	t.Run("malformed numeric ciphertext is rejected after its proof", func(t *testing.T) {
		svc := newVault(t, proof.Static{Allow: true})

		short := Sealed{Ciphertext: []byte("xx"), Proof: []byte("proof:xx")}
		_, err := svc.UpdateReputation(ctx, "0xauthority", "0xalice", short)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("first failing proof short-circuits", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		verifier := mocks.NewMockVerifier(ctrl)
		svc := newVault(t, verifier)

		params := createParams()
		verifier.EXPECT().
			Verify(gomock.Any(), params.DataHash.Ciphertext, params.DataHash.Proof).
			Return(false, nil).
			Times(1)

		_, err := svc.CreateRecord(ctx, "0xalice", params)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})

	t.Run("verifier failure is internal, not a denial", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		verifier := mocks.NewMockVerifier(ctrl)
		svc := newVault(t, verifier)

		verifier.EXPECT().
			Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(false, errors.New("coprocessor unreachable"))

		_, err := svc.RegisterUser(ctx, "0xalice", sealed("pk"), Sealed{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("proofs are checked before level validation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		verifier := mocks.NewMockVerifier(ctrl)
		svc := newVault(t, verifier)

		// Both hashes and all three numerics verify before the level is parsed.
		verifier.EXPECT().
			Verify(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(true, nil).
			Times(5)

		params := createParams()
		params.Level = sealedInt(9)
		_, err := svc.CreateRecord(ctx, "0xalice", params)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidEncryptionLevel))
	})
}

func TestUpdateReputationDispatch(t *testing.T) {
	ctx := context.Background()
	svc := newVault(t, proof.Static{Allow: true})

	_, err := svc.RegisterUser(ctx, "0xalice", sealed("pk"), Sealed{})
	require.NoError(t, err)

	rep, err := svc.UpdateReputation(ctx, "0xauthority", "0xalice", sealedInt(7))
	require.NoError(t, err)
	assert.EqualValues(t, 7, rep)

	_, err = svc.UpdateReputation(ctx, "0xalice", "0xalice", sealedInt(7))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestDeactivateUserBlocksCreates(t *testing.T) {
	ctx := context.Background()
	svc := newVault(t, proof.Static{Allow: true})

	_, err := svc.RegisterUser(ctx, "0xalice", sealed("pk"), Sealed{})
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateUser(ctx, "0xalice"))

	_, err = svc.CreateRecord(ctx, "0xalice", createParams())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
