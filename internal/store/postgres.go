package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OpenPostgres opens a lib/pq connection pool and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// PostgresBackend keeps entries in a status_entries table. Expired rows are
// invisible to Get and removed by PurgeExpired.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend creates the backend and its table if needed.
func NewPostgresBackend(ctx context.Context, db *sql.DB) (*PostgresBackend, error) {
	b := &PostgresBackend{db: db}
	if err := b.InitSchema(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// InitSchema creates the status_entries table.
func (p *PostgresBackend) InitSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS status_entries (
			key        VARCHAR(255) PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create status_entries: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS status_entries_expires_at_idx ON status_entries (expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to index status_entries: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO status_entries (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM status_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, nil
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM status_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes rows whose expiry has passed.
func (p *PostgresBackend) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM status_entries WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("postgres purge: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
