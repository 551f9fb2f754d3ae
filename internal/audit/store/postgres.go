package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"fhevault/internal/audit/models"
	id "fhevault/pkg/domain"
	"fhevault/pkg/platform/tx"
)

// Schema for the access log. Append-only by convention: nothing in the code
// path issues UPDATE or DELETE against this table.
const Schema = `
CREATE TABLE IF NOT EXISTS vault_access_log (
	log_id      BIGSERIAL PRIMARY KEY,
	record_id   BIGINT      NOT NULL,
	actor       TEXT        NOT NULL,
	access_type TEXT        NOT NULL,
	ip_hash     TEXT        NOT NULL,
	logged_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vault_access_log_record_idx ON vault_access_log (record_id, log_id);`

// PostgresStore persists the ledger in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) exec(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// EnsureSchema creates the access log table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure access log schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.AccessLogEntry) (id.LogID, error) {
	query := `
		INSERT INTO vault_access_log (record_id, actor, access_type, ip_hash, logged_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING log_id
	`
	var logID int64
	err := s.exec(ctx).QueryRowContext(ctx, query,
		uint64(entry.RecordID), entry.Actor.String(), entry.AccessType,
		entry.IPHash, entry.Timestamp,
	).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("append access log entry: %w", err)
	}
	return id.LogID(logID), nil
}

// History streams rows without materializing the whole ledger; the query runs
// anew on every range, so the sequence is restartable.
func (s *PostgresStore) History(ctx context.Context, recordID id.RecordID) iter.Seq2[models.AccessLogEntry, error] {
	query := `
		SELECT log_id, record_id, actor, access_type, ip_hash, logged_at
		FROM vault_access_log
		WHERE record_id = $1
		ORDER BY log_id
	`
	return func(yield func(models.AccessLogEntry, error) bool) {
		rows, err := s.exec(ctx).QueryContext(ctx, query, uint64(recordID))
		if err != nil {
			yield(models.AccessLogEntry{}, fmt.Errorf("load access history: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var e models.AccessLogEntry
			var logID, rid int64
			var actor string
			if err := rows.Scan(&logID, &rid, &actor, &e.AccessType, &e.IPHash, &e.Timestamp); err != nil {
				yield(models.AccessLogEntry{}, fmt.Errorf("scan access log entry: %w", err))
				return
			}
			e.ID = id.LogID(logID)
			e.RecordID = id.RecordID(rid)
			e.Actor = id.Address(actor)
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.AccessLogEntry{}, fmt.Errorf("load access history: %w", err))
		}
	}
}

func (s *PostgresStore) CountByRecord(ctx context.Context, recordID id.RecordID) (int64, error) {
	var count int64
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vault_access_log WHERE record_id = $1`, uint64(recordID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count access log entries: %w", err)
	}
	return count, nil
}
