package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the table used by PostgresStorage.
const Schema = `CREATE TABLE IF NOT EXISTS console_state (
	key        TEXT PRIMARY KEY,
	blob       JSONB NOT NULL,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	getStateSQL = `SELECT blob FROM console_state
WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`

	upsertStateSQL = `INSERT INTO console_state (key, blob, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE
SET blob = EXCLUDED.blob, expires_at = EXCLUDED.expires_at, updated_at = now()`

	deleteStateSQL = `DELETE FROM console_state WHERE key = $1`

	sweepStateSQL = `DELETE FROM console_state WHERE expires_at IS NOT NULL AND expires_at <= now()`
)

// DBTX is the subset of pgx used by PostgresStorage.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage stores blobs in the console_state table.
type PostgresStorage struct {
	db         DBTX
	sessionTTL time.Duration
	now        func() time.Time
}

func NewPostgresStorage(db DBTX, sessionTTL time.Duration) *PostgresStorage {
	return &PostgresStorage{db: db, sessionTTL: sessionTTL, now: time.Now}
}

// Migrate creates the backing table if needed.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, Schema)
	return err
}

func (p *PostgresStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var blob []byte
	err := p.db.QueryRow(ctx, getStateSQL, key).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (p *PostgresStorage) Set(ctx context.Context, key string, blob []byte, scope Scope) error {
	var expiresAt *time.Time
	if exp := expiry(p.now(), scope, p.sessionTTL); !exp.IsZero() {
		expiresAt = &exp
	}
	_, err := p.db.Exec(ctx, upsertStateSQL, key, blob, expiresAt)
	return err
}

func (p *PostgresStorage) Delete(ctx context.Context, key string) error {
	_, err := p.db.Exec(ctx, deleteStateSQL, key)
	return err
}

// Sweep removes expired session blobs.
func (p *PostgresStorage) Sweep(ctx context.Context) (int, error) {
	tag, err := p.db.Exec(ctx, sweepStateSQL)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
