package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// AuditRecord is one append-only row written by the audit recorder. It
// carries both the prior/new snapshot pair and the entity_type/entity_id
// pair so either audit consumer shape described in §6 can be served from
// the same table, per the Open Question #2 decision recorded in the
// grounding ledger.
type AuditRecord struct {
	EventID    ids.ID
	UserID     ids.ID
	EventType  string
	EntityID   ids.ID
	EntityType string
	PriorState json.RawMessage
	NewState   json.RawMessage
	Source     string
	Timestamp  calendar.Time
}

// AuditStore appends audit records and is the poisoned-message ledger's
// home (poisoned events are recorded here with new_state holding the
// failure reason and prior_state left null).
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append inserts rec, silently doing nothing if event_id was already
// recorded — the dedup discipline that makes the audit recorder idempotent
// under at-least-once redelivery.
func (s *AuditStore) Append(ctx context.Context, rec AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events_log (event_id, user_id, event_type, entity_id, entity_type,
			prior_state, new_state, source, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.UserID, rec.EventType, rec.EntityID, rec.EntityType,
		nullableJSON(rec.PriorState), nullableJSON(rec.NewState), rec.Source, rec.Timestamp.Std())
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

// ListForUser returns the most recent audit rows for a user, newest first,
// bounded by limit, for the activity-feed read path.
func (s *AuditStore) ListForUser(ctx context.Context, userID ids.ID, limit int) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, user_id, event_type, entity_id, entity_type,
			prior_state, new_state, source, timestamp
		FROM events_log WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var prior, newState []byte
		var ts time.Time
		if err := rows.Scan(&rec.EventID, &rec.UserID, &rec.EventType, &rec.EntityID, &rec.EntityType,
			&prior, &newState, &rec.Source, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.PriorState = prior
		rec.NewState = newState
		rec.Timestamp = calendar.MustFrom(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}
