package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/lightsout/go/internal/sqlutil"
)

// ErrEventNotFound is returned when the event does not exist or was already sent.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT id, identity, event_type, payload, created_at, sent_at
FROM registry_outbox
WHERE id = $1 AND sent_at IS NULL
`

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT id, identity, event_type, payload, created_at, sent_at
FROM registry_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE registry_outbox SET sent_at = now() WHERE id = $1
`

const countUnsentOutbox = `-- name: CountUnsentOutbox :one
SELECT COUNT(*) FROM registry_outbox WHERE sent_at IS NULL
`

type rowScanner interface {
	Scan(dest ...any) error
}

// Repository reads and acknowledges registry_outbox rows over database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

var _ Store = (*Repository)(nil)

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	event, err := scanEvent(r.db.QueryRowContext(ctx, fetchOutboxByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &event, nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, markOutboxSent, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountUnsentOutbox(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, countUnsentOutbox).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return count, nil
}

func scanEvent(row rowScanner) (OutboxEvent, error) {
	var (
		event   OutboxEvent
		payload pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.Identity, &event.EventType, &payload, &event.CreatedAt, &sentAt); err != nil {
		return OutboxEvent{}, err
	}
	event.Payload = sqlutil.FromNullRawMessage(payload)
	event.SentAt = sqlutil.FromNullTime(sentAt)
	return event, nil
}
