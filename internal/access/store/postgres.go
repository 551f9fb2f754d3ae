package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	id "fhevault/pkg/domain"
)

// Schema for access grants. One row per (record, member); the owner is never
// stored here.
const Schema = `
CREATE TABLE IF NOT EXISTS vault_access_grants (
	record_id  BIGINT      NOT NULL,
	member     TEXT        NOT NULL,
	granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (record_id, member)
);`

// PostgresStore persists ACLs in PostgreSQL. Used in full-Postgres
// deployments where no Redis is configured.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the grants table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure acl schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, recordID id.RecordID, addr id.Address) error {
	query := `
		INSERT INTO vault_access_grants (record_id, member)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, uint64(recordID), addr.String()); err != nil {
		return fmt.Errorf("acl add: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, recordID id.RecordID, addr id.Address) error {
	query := `DELETE FROM vault_access_grants WHERE record_id = $1 AND member = $2`
	if _, err := s.db.ExecContext(ctx, query, uint64(recordID), addr.String()); err != nil {
		return fmt.Errorf("acl remove: %w", err)
	}
	return nil
}

func (s *PostgresStore) Contains(ctx context.Context, recordID id.RecordID, addr id.Address) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM vault_access_grants WHERE record_id = $1 AND member = $2)`
	var member bool
	if err := s.db.QueryRowContext(ctx, query, uint64(recordID), addr.String()).Scan(&member); err != nil {
		return false, fmt.Errorf("acl membership: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) List(ctx context.Context, recordID id.RecordID) ([]id.Address, error) {
	query := `
		SELECT COALESCE(array_agg(member ORDER BY member), '{}')
		FROM vault_access_grants
		WHERE record_id = $1
	`
	var raw []string
	if err := s.db.QueryRowContext(ctx, query, uint64(recordID)).Scan(pq.Array(&raw)); err != nil {
		return nil, fmt.Errorf("acl list: %w", err)
	}
	members := make([]id.Address, len(raw))
	for i, m := range raw {
		members[i] = id.Address(m)
	}
	return members, nil
}

func (s *PostgresStore) RemoveAll(ctx context.Context, recordID id.RecordID) error {
	query := `DELETE FROM vault_access_grants WHERE record_id = $1`
	if _, err := s.db.ExecContext(ctx, query, uint64(recordID)); err != nil {
		return fmt.Errorf("acl purge: %w", err)
	}
	return nil
}
