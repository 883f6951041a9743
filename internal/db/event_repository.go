package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/opd-token-allocation/internal/events"
)

const eventLogsDDL = `
	CREATE TABLE IF NOT EXISTS event_logs (
		id         BIGSERIAL PRIMARY KEY,
		event_id   TEXT        NOT NULL,
		event_type TEXT        NOT NULL,
		slot_id    TEXT        NOT NULL,
		token_id   TEXT,
		payload    JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS event_logs_slot_id_idx ON event_logs (slot_id, id DESC);
`

// DBTX is the part of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// EventRepository writes the audit trail to the event_logs table.
// It is both an events.Sink and an events.Store.
type EventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Name() string { return "postgres" }

func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, eventLogsDDL); err != nil {
		return fmt.Errorf("create event_logs: %w", err)
	}
	return nil
}

func (r *EventRepository) Record(ctx context.Context, ev events.EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_id, event_type, slot_id, token_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, ev.EventID, ev.EventType, ev.SlotID, ev.TokenID, []byte(ev.Payload), nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *EventRepository) ListBySlot(ctx context.Context, slotID string, limit int) ([]events.EventLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_id, event_type, slot_id, token_id, payload, created_at
		FROM event_logs
		WHERE slot_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, slotID, limit)
	if err != nil {
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	defer rows.Close()

	result := []events.EventLog{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanEvent(row pgx.Row) (events.EventLog, error) {
	var ev events.EventLog
	var tokenID *string
	var payload []byte

	err := row.Scan(
		&ev.ID,
		&ev.EventID,
		&ev.EventType,
		&ev.SlotID,
		&tokenID,
		&payload,
		&ev.CreatedAt,
	)
	if err != nil {
		return events.EventLog{}, fmt.Errorf("scan event log: %w", err)
	}

	ev.TokenID = tokenID
	ev.Payload = payload
	return ev, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
