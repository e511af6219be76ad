// Package store owns the persistent rows behind the bot: known users, the
// subscriber registry and the append-only execution result log.
package store

import (
	"context"
	"time"

	"github.com/RedbringerS/vfs-bot/internal/db"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	user_id BIGINT PRIMARY KEY,
	last_execution_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscribers (
	user_id BIGINT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS execution_results (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	result TEXT NOT NULL,
	execution_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_execution_results_user
	ON execution_results(user_id, execution_time DESC);
`

type Store struct{ db *db.DB }

func New(d *db.DB) *Store { return &Store{db: d} }

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Exec(ctx, schemaSQL)
}

// EnsureUser records a user on first contact. Safe to call on every /start.
func (s *Store) EnsureUser(ctx context.Context, userID int64) error {
	return s.db.Exec(ctx, `
		INSERT INTO users (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
}

// Subscribe is an idempotent insert; re-subscribing an already subscribed
// user is a no-op.
func (s *Store) Subscribe(ctx context.Context, userID int64) error {
	return s.db.Exec(ctx, `
		INSERT INTO subscribers (user_id) VALUES ($1)
		ON CONFLICT DO NOTHING`, userID)
}

// Unsubscribe is an idempotent delete; it succeeds even when the user was
// never subscribed.
func (s *Store) Unsubscribe(ctx context.Context, userID int64) error {
	return s.db.Exec(ctx, `DELETE FROM subscribers WHERE user_id = $1`, userID)
}

// IsSubscribed is a point-in-time read. Callers must treat any returned
// error as "not subscribed": a connectivity failure must never keep a
// polling loop alive.
func (s *Store) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM subscribers WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RecordResult appends one execution result row and bumps the user's
// last_execution_time in a single transaction.
func (s *Store) RecordResult(ctx context.Context, userID int64, result string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO execution_results (user_id, result, execution_time)
		VALUES ($1, $2, now())`, userID, result); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE users SET last_execution_time = now() WHERE user_id = $1`, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type ExecutionResult struct {
	UserID        int64
	Result        string
	ExecutionTime time.Time
}

func (s *Store) RecentResults(ctx context.Context, userID int64, limit int) ([]ExecutionResult, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, result, execution_time
		FROM execution_results
		WHERE user_id = $1
		ORDER BY execution_time DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionResult
	for rows.Next() {
		var r ExecutionResult
		if err := rows.Scan(&r.UserID, &r.Result, &r.ExecutionTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
