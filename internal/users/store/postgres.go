package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"fhevault/internal/users/models"
	id "fhevault/pkg/domain"
	"fhevault/pkg/platform/sentinel"
)

// Schema for the users table. Applied by EnsureSchema; deployments with real
// migration tooling can run it out of band instead.
const Schema = `
CREATE TABLE IF NOT EXISTS vault_users (
	user_id       BIGSERIAL PRIMARY KEY,
	address       TEXT        NOT NULL UNIQUE,
	public_key    TEXT        NOT NULL,
	reputation    BIGINT      NOT NULL DEFAULT 0,
	storage_quota BIGINT      NOT NULL,
	used_storage  BIGINT      NOT NULL DEFAULT 0 CHECK (used_storage >= 0 AND used_storage <= storage_quota),
	is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
	joined_at     TIMESTAMPTZ NOT NULL
);`

// PostgresStore persists profiles in PostgreSQL. Timestamps travel in the
// profile itself, so no clock is injected here.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, profile *models.UserProfile) (id.UserID, error) {
	query := `
		INSERT INTO vault_users (address, public_key, reputation, storage_quota, used_storage, is_active, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING user_id
	`
	var userID int64
	err := s.db.QueryRowContext(ctx, query,
		profile.Address.String(), profile.PublicKey, profile.Reputation,
		profile.StorageQuota, profile.UsedStorage, profile.IsActive, profile.JoinedAt,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, sentinel.ErrConflict
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id.UserID(userID), nil
}

func (s *PostgresStore) Get(ctx context.Context, addr id.Address) (*models.UserProfile, error) {
	query := `
		SELECT user_id, address, public_key, reputation, storage_quota, used_storage, is_active, joined_at
		FROM vault_users WHERE address = $1
	`
	var p models.UserProfile
	var userID int64
	var address string
	err := s.db.QueryRowContext(ctx, query, addr.String()).Scan(
		&userID, &address, &p.PublicKey, &p.Reputation,
		&p.StorageQuota, &p.UsedStorage, &p.IsActive, &p.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	p.ID = id.UserID(userID)
	p.Address = id.Address(address)
	return &p, nil
}

func (s *PostgresStore) Reserve(ctx context.Context, addr id.Address, bytes int64) error {
	query := `
		UPDATE vault_users
		SET used_storage = used_storage + $2
		WHERE address = $1 AND used_storage + $2 <= storage_quota
	`
	res, err := s.db.ExecContext(ctx, query, addr.String(), bytes)
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// No row updated: either the user is unknown or the reservation would
	// exceed quota. Disambiguate with a read.
	if _, err := s.Get(ctx, addr); err != nil {
		return err
	}
	return sentinel.ErrQuotaExceeded
}

func (s *PostgresStore) Release(ctx context.Context, addr id.Address, bytes int64) error {
	query := `
		UPDATE vault_users
		SET used_storage = GREATEST(used_storage - $2, 0)
		WHERE address = $1
	`
	res, err := s.db.ExecContext(ctx, query, addr.String(), bytes)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetActive(ctx context.Context, addr id.Address, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vault_users SET is_active = $2 WHERE address = $1`, addr.String(), active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddReputation(ctx context.Context, addr id.Address, delta, floor int64) (int64, error) {
	query := `
		UPDATE vault_users
		SET reputation = GREATEST(reputation + $2, $3)
		WHERE address = $1
		RETURNING reputation
	`
	var reputation int64
	err := s.db.QueryRowContext(ctx, query, addr.String(), delta, floor).Scan(&reputation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("add reputation: %w", err)
	}
	return reputation, nil
}
