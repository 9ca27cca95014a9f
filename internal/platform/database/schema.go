package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		username        TEXT NOT NULL UNIQUE,
		department      TEXT NOT NULL,
		hashed_password TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT 'user',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS scripts (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		slug        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'idle',
		progress    INTEGER NOT NULL DEFAULT 0,
		output      TEXT NOT NULL DEFAULT '',
		inputs      JSONB NOT NULL DEFAULT '[]',
		last_run    TIMESTAMPTZ,
		started_at  TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		created_by  TEXT REFERENCES users(id) ON DELETE SET NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scripts_category ON scripts (category)`,
	`CREATE TABLE IF NOT EXISTS activity_logs (
		id        TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_id   TEXT NOT NULL DEFAULT '',
		user_name TEXT NOT NULL DEFAULT '',
		user_role TEXT NOT NULL DEFAULT '',
		action    TEXT NOT NULL,
		level     TEXT NOT NULL,
		message   TEXT NOT NULL,
		details   JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_logs_timestamp ON activity_logs (timestamp DESC)`,
}

// EnsureSchema creates the tables the repositories expect.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
