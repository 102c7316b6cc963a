// Package store is the Postgres persistence layer shared by every
// component: the Task table (owned jointly by the gateway and the
// recurrence worker per §3's ownership summary), the append-only audit log,
// and the reminder job mirror used for scheduler recovery.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to dsn (a PostgreSQL-compatible DATABASE_URL) and verifies
// connectivity with a bounded ping, mirroring the teacher's database module
// connection lifecycle (Connect then Ping) rather than trusting sql.Open's
// lazy connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// schema is applied idempotently at startup. It matches the persisted state
// layout in §6: tasks, events_log, reminders, plus the listed indexes.
// conversations/messages are out of scope here (owned by the AI chat
// endpoint, a pure-plumbing collaborator per §1).
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id             UUID PRIMARY KEY,
	user_id             UUID NOT NULL,
	title               TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	priority            TEXT NOT NULL DEFAULT 'medium',
	tags                TEXT[] NOT NULL DEFAULT '{}',
	is_completed        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	due_date            TIMESTAMPTZ,
	remind_at           TIMESTAMPTZ,
	is_recurring        BOOLEAN NOT NULL DEFAULT FALSE,
	recurrence_pattern  TEXT,
	parent_task_id      UUID REFERENCES tasks(task_id),
	next_occurrence_id  UUID,
	deleted             BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);

CREATE TABLE IF NOT EXISTS events_log (
	id            BIGSERIAL PRIMARY KEY,
	event_id      UUID NOT NULL UNIQUE,
	user_id       UUID NOT NULL,
	event_type    TEXT NOT NULL,
	entity_id     UUID NOT NULL,
	entity_type   TEXT NOT NULL,
	prior_state   JSONB,
	new_state     JSONB,
	source        TEXT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_log_user_ts ON events_log(user_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS reminders (
	task_id    UUID PRIMARY KEY,
	user_id    UUID NOT NULL,
	fire_at    TIMESTAMPTZ NOT NULL,
	channels   TEXT[] NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL DEFAULT 'scheduled'
);
CREATE INDEX IF NOT EXISTS idx_reminders_fire_at ON reminders(fire_at);
`

// Migrate applies the schema. It is safe to call on every process startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
