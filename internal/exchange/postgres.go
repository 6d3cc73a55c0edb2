package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlExchanges = `
CREATE TABLE IF NOT EXISTS chat_exchanges (
    id               BIGSERIAL    PRIMARY KEY,
    created_at       TIMESTAMPTZ  NOT NULL,
    session_id       TEXT         NOT NULL,
    video_id         TEXT         NOT NULL DEFAULT '',
    student_id       TEXT         NOT NULL DEFAULT '',
    question         TEXT         NOT NULL,
    transcript       TEXT         NOT NULL DEFAULT '',
    supplementary    TEXT         NOT NULL DEFAULT '',
    is_genuine       BOOLEAN      NOT NULL,
    category         TEXT         NOT NULL,
    confidence       REAL         NOT NULL,
    reason           TEXT         NOT NULL DEFAULT '',
    reply            TEXT,
    outcome          TEXT         NOT NULL,
    policy           TEXT         NOT NULL,
    generator_called BOOLEAN      NOT NULL,
    latency_ms       BIGINT       NOT NULL,
    raw              JSONB        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_exchanges_session
    ON chat_exchanges (session_id, created_at);

CREATE INDEX IF NOT EXISTS idx_chat_exchanges_category
    ON chat_exchanges (category);
`

// PostgresSink stores records in the chat_exchanges table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn, verifies the connection and migrates the
// schema.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("exchange: postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("exchange: postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("exchange: postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresSink{pool: pool}, nil
}

// Migrate creates the chat_exchanges table and its indexes. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlExchanges); err != nil {
		return fmt.Errorf("exchange: postgres: migrate: %w", err)
	}
	return nil
}

// Name implements the sink naming used in metrics.
func (s *PostgresSink) Name() string { return "postgres" }

// Write inserts rec.
func (s *PostgresSink) Write(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO chat_exchanges
		    (created_at, session_id, video_id, student_id, question, transcript, supplementary,
		     is_genuine, category, confidence, reason, reply, outcome, policy,
		     generator_called, latency_ms, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("exchange: postgres: marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, q,
		rec.Timestamp,
		rec.SessionID,
		rec.VideoID,
		rec.StudentID,
		rec.Question,
		rec.Window,
		rec.Supplementary,
		rec.Classification.IsGenuine,
		string(rec.Classification.Category),
		rec.Classification.Confidence,
		rec.Classification.Reason,
		rec.Reply,
		string(rec.Outcome),
		rec.Policy,
		rec.GeneratorCalled,
		rec.LatencyMs,
		raw,
	)
	if err != nil {
		return fmt.Errorf("exchange: postgres: insert: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
