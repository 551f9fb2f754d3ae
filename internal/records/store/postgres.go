package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fhevault/internal/records/models"
	id "fhevault/pkg/domain"
	"fhevault/pkg/platform/sentinel"
	"fhevault/pkg/platform/tx"
)

// Schema for the records table. Deletion sets deleted_at instead of removing
// the row, which keeps the id reserved forever (tombstone).
const Schema = `
CREATE TABLE IF NOT EXISTS vault_records (
	record_id        BIGSERIAL PRIMARY KEY,
	data_hash        TEXT        NOT NULL,
	metadata_hash    TEXT        NOT NULL,
	data_size        BIGINT      NOT NULL CHECK (data_size >= 0),
	access_count     BIGINT      NOT NULL DEFAULT 0,
	encryption_level SMALLINT    NOT NULL CHECK (encryption_level BETWEEN 1 AND 3),
	is_public        BOOLEAN     NOT NULL DEFAULT FALSE,
	is_encrypted     BOOLEAN     NOT NULL DEFAULT TRUE,
	owner_address    TEXT        NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	deleted_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS vault_records_owner_idx ON vault_records (owner_address) WHERE deleted_at IS NULL;`

// PostgresStore persists records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exec returns the transaction from context when one is running, so the
// access-count increment can share a commit with the audit append.
func (s *PostgresStore) exec(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// EnsureSchema creates the records table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure records schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, record *models.DataRecord) (id.RecordID, error) {
	query := `
		INSERT INTO vault_records
			(data_hash, metadata_hash, data_size, access_count, encryption_level,
			 is_public, is_encrypted, owner_address, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING record_id
	`
	var recordID int64
	err := s.db.QueryRowContext(ctx, query,
		record.DataHash, record.MetadataHash, record.DataSize, record.AccessCount,
		int16(record.EncryptionLevel), record.IsPublic, record.IsEncrypted,
		record.Owner.String(), record.CreatedAt, record.UpdatedAt, record.ExpiresAt,
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("create record: %w", err)
	}
	return id.RecordID(recordID), nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID id.RecordID) (*models.DataRecord, error) {
	query := `
		SELECT record_id, data_hash, metadata_hash, data_size, access_count,
		       encryption_level, is_public, is_encrypted, owner_address,
		       created_at, updated_at, expires_at
		FROM vault_records
		WHERE record_id = $1 AND deleted_at IS NULL
	`
	var r models.DataRecord
	var rid int64
	var level int16
	var owner string
	err := s.db.QueryRowContext(ctx, query, uint64(recordID)).Scan(
		&rid, &r.DataHash, &r.MetadataHash, &r.DataSize, &r.AccessCount,
		&level, &r.IsPublic, &r.IsEncrypted, &owner,
		&r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	r.ID = id.RecordID(rid)
	r.EncryptionLevel = id.EncryptionLevel(level)
	r.Owner = id.Address(owner)
	return &r, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *models.DataRecord) error {
	query := `
		UPDATE vault_records
		SET data_hash = $2, metadata_hash = $3, data_size = $4, is_public = $5, updated_at = $6
		WHERE record_id = $1 AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query,
		uint64(record.ID), record.DataHash, record.MetadataHash,
		record.DataSize, record.IsPublic, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, recordID id.RecordID) error {
	query := `
		UPDATE vault_records SET deleted_at = NOW()
		WHERE record_id = $1 AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, uint64(recordID))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementAccessCount(ctx context.Context, recordID id.RecordID) (int64, error) {
	query := `
		UPDATE vault_records SET access_count = access_count + 1
		WHERE record_id = $1 AND deleted_at IS NULL
		RETURNING access_count
	`
	var count int64
	err := s.exec(ctx).QueryRowContext(ctx, query, uint64(recordID)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("increment access count: %w", err)
	}
	return count, nil
}
