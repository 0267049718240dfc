// Package history persists completed exchanges (command and spoken reply) to
// PostgreSQL. The store is optional: when no DSN is configured the assistant
// runs without it and exchanges are kept only in the in-memory conversation
// context.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlExchanges creates the exchange log schema. Idempotent; run on every
// connect.
const ddlExchanges = `
CREATE TABLE IF NOT EXISTS exchanges (
    id        BIGSERIAL   PRIMARY KEY,
    command   TEXT        NOT NULL,
    reply     TEXT        NOT NULL,
    spoken_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_exchanges_spoken_at
    ON exchanges (spoken_at);
`

// Exchange is one logged interaction.
type Exchange struct {
	ID      int64
	Command string
	Reply   string
	At      time.Time
}

// Store is a PostgreSQL-backed exchange log. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection, and ensures
// the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlExchanges); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append logs one exchange.
func (s *Store) Append(ctx context.Context, command, reply string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchanges (command, reply) VALUES ($1, $2)`,
		command, reply)
	if err != nil {
		return fmt.Errorf("history: insert exchange: %w", err)
	}
	return nil
}

// Recent returns up to limit exchanges in chronological order, newest last.
func (s *Store) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, reply, spoken_at
		FROM exchanges
		ORDER BY spoken_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.Command, &e.Reply, &e.At); err != nil {
			return nil, fmt.Errorf("history: scan exchange: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate exchanges: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Ping verifies database connectivity, used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("history: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}
