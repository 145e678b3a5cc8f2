package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the watermark in the singleton etl_state row next to
// the destination tables, so the value survives wherever the data lives.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureTable creates etl_state when missing.
func (p *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS etl_state (
			id INT PRIMARY KEY,
			last_processed_date DATE NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create etl_state: %w", err)
	}
	return nil
}

func (p *PostgresStore) Read(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := p.db.QueryRow(ctx,
		`SELECT last_processed_date FROM etl_state WHERE id = 1`).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read etl_state: %w", err)
	}
	return t, true, nil
}

func (p *PostgresStore) Advance(ctx context.Context, t time.Time) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO etl_state (id, last_processed_date, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET last_processed_date = EXCLUDED.last_processed_date, updated_at = now()`, t)
	if err != nil {
		return fmt.Errorf("advance etl_state: %w", err)
	}
	return nil
}
