package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Schema creates the progress tables. The record column is json rather
// than jsonb so topic key order is kept.
const Schema = `
CREATE TABLE IF NOT EXISTS student_progress (
	student    TEXT PRIMARY KEY,
	record     JSON NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS progress_events (
	id         BIGSERIAL PRIMARY KEY,
	student    TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS progress_events_student_idx ON progress_events (student, created_at);
`

// PostgresBackend stores one row per student. Writes for one student never
// read or rewrite another student's row.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a PostgreSQL-backed progress backend.
func NewPostgresBackend(pool *pgxpool.Pool) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresBackend{pool: pool}, nil
}

// EnsureSchema creates the progress tables if they do not exist.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create progress schema: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, student string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := b.pool.QueryRow(ctx,
		`SELECT record::text FROM student_progress WHERE student = $1`,
		student,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}

	return decodeRecord(student, data)
}

func (b *PostgresBackend) Put(ctx context.Context, student string, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = b.pool.Exec(ctx,
		`INSERT INTO student_progress (student, record, updated_at)
		 VALUES ($1, $2::json, NOW())
		 ON CONFLICT (student)
		 DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`,
		student,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Students(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := b.pool.Query(ctx,
		`SELECT student FROM student_progress ORDER BY created_at ASC, student ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	students, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan students: %w", err)
	}
	return students, nil
}
