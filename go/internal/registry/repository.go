package registry

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/lightsout/go/internal/registry/db"
	"github.com/mcdev12/lightsout/go/internal/registry/events"
	"github.com/mcdev12/lightsout/go/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the registry tables, the outbox and its NOTIFY trigger.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply registry schema: %w", err)
	}
	return nil
}

// Repository implements score registry data access on Postgres.
type Repository struct {
	pool    *pgxpool.Pool
	queries *db.Queries
}

// NewRepository creates a new registry repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:    pool,
		queries: db.New(pool),
	}
}

// SubmitScore stores the latest score of identity and queues a ScoreSubmitted event.
func (r *Repository) SubmitScore(ctx context.Context, identity string, score int64, metadata MetadataHash) (*Submission, error) {
	var sub *Submission
	err := sqlutil.Run(ctx, r.pool, r.queries.WithTx, func(q *db.Queries) error {
		state, err := q.LockRegistryState(ctx)
		if err != nil {
			return fmt.Errorf("failed to lock registry state: %w", err)
		}
		if state.Paused {
			return ErrPaused
		}

		row, err := q.UpsertScore(ctx, db.UpsertScoreParams{
			Identity:     identity,
			SubmissionID: uuid.New(),
			Value:        score,
			Metadata:     metadata[:],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert score: %w", err)
		}

		if err := q.IncrementTotalSubmissions(ctx); err != nil {
			return fmt.Errorf("failed to increment total submissions: %w", err)
		}

		sub = &Submission{
			ID:          row.SubmissionID,
			Identity:    row.Identity,
			Score:       row.Value,
			Metadata:    metadataFromBytes(row.Metadata),
			SubmittedAt: row.SubmittedAt,
		}
		return insertEvent(ctx, q, identity, events.EventTypeScoreSubmitted, events.ScoreSubmittedPayload{
			SubmissionID: sub.ID.String(),
			Identity:     sub.Identity,
			Score:        sub.Score,
			Metadata:     sub.Metadata.String(),
			SubmittedAt:  sub.SubmittedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// LatestScore returns the score of identity, or a zero entry if none exists.
func (r *Repository) LatestScore(ctx context.Context, identity string) (*ScoreEntry, error) {
	row, err := r.queries.GetScore(ctx, identity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ScoreEntry{}, nil
		}
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return &ScoreEntry{
		Value:       row.Value,
		SubmittedAt: row.SubmittedAt,
		Metadata:    metadataFromBytes(row.Metadata),
		Found:       true,
	}, nil
}

// TotalSubmissions returns the number of accepted submissions.
func (r *Repository) TotalSubmissions(ctx context.Context) (int64, error) {
	state, err := r.queries.GetRegistryState(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get registry state: %w", err)
	}
	return state.TotalSubmissions, nil
}

// Paused reports whether submissions are currently rejected.
func (r *Repository) Paused(ctx context.Context) (bool, error) {
	state, err := r.queries.GetRegistryState(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get registry state: %w", err)
	}
	return state.Paused, nil
}

// ClearScore deletes the score of identity and queues a ScoreCleared event.
func (r *Repository) ClearScore(ctx context.Context, caller, identity string) error {
	return sqlutil.Run(ctx, r.pool, r.queries.WithTx, func(q *db.Queries) error {
		if _, err := q.DeleteScore(ctx, identity); err != nil {
			return fmt.Errorf("failed to delete score: %w", err)
		}
		return insertEvent(ctx, q, identity, events.EventTypeScoreCleared, events.ScoreClearedPayload{
			Identity:  identity,
			ClearedBy: caller,
			ClearedAt: time.Now().UTC(),
		})
	})
}

// SetPaused toggles submissions and queues a PauseStateChanged event.
func (r *Repository) SetPaused(ctx context.Context, caller string, paused bool) error {
	return sqlutil.Run(ctx, r.pool, r.queries.WithTx, func(q *db.Queries) error {
		if err := q.SetPaused(ctx, paused); err != nil {
			return fmt.Errorf("failed to set paused: %w", err)
		}
		return insertEvent(ctx, q, caller, events.EventTypePauseStateChanged, events.PauseStateChangedPayload{
			Paused:    paused,
			ChangedBy: caller,
			ChangedAt: time.Now().UTC(),
		})
	})
}

func insertEvent(ctx context.Context, q *db.Queries, identity, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	if err := q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
		ID:        uuid.New(),
		Identity:  identity,
		EventType: eventType,
		Payload:   data,
	}); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}
