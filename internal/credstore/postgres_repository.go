package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS delegated_mnemonics (
    delegated_address TEXT PRIMARY KEY,
    sealed_mnemonic   BYTEA NOT NULL,
    expires_at        TIMESTAMPTZ,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS delegated_associations (
    primary_address   TEXT PRIMARY KEY,
    delegated_address TEXT NOT NULL,
    expires_at        TIMESTAMPTZ,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresRepository stores credentials in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed credential repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the credential tables when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// PutMnemonic upserts the sealed mnemonic for delegated.
func (r *PostgresRepository) PutMnemonic(ctx context.Context, delegated string, sealed []byte, ttl time.Duration) error {
	_, err := r.db.Exec(ctx, `INSERT INTO delegated_mnemonics (delegated_address, sealed_mnemonic, expires_at, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (delegated_address) DO UPDATE
        SET sealed_mnemonic = EXCLUDED.sealed_mnemonic, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		delegated, sealed, expiry(ttl))
	return err
}

// GetMnemonic reads an unexpired sealed mnemonic.
func (r *PostgresRepository) GetMnemonic(ctx context.Context, delegated string) ([]byte, error) {
	row := r.db.QueryRow(ctx, `SELECT sealed_mnemonic FROM delegated_mnemonics
        WHERE delegated_address = $1 AND (expires_at IS NULL OR expires_at > now())`, delegated)
	var sealed []byte
	if err := row.Scan(&sealed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sealed, nil
}

// PutAssociation upserts the delegated address linked to primary.
func (r *PostgresRepository) PutAssociation(ctx context.Context, primary, delegated string, ttl time.Duration) error {
	_, err := r.db.Exec(ctx, `INSERT INTO delegated_associations (primary_address, delegated_address, expires_at, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (primary_address) DO UPDATE
        SET delegated_address = EXCLUDED.delegated_address, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		primary, delegated, expiry(ttl))
	return err
}

// GetAssociation reads the unexpired delegated address linked to primary.
func (r *PostgresRepository) GetAssociation(ctx context.Context, primary string) (string, error) {
	row := r.db.QueryRow(ctx, `SELECT delegated_address FROM delegated_associations
        WHERE primary_address = $1 AND (expires_at IS NULL OR expires_at > now())`, primary)
	var delegated string
	if err := row.Scan(&delegated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return delegated, nil
}

func expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().UTC().Add(ttl)
	return &t
}
