package db

import (
	"context"
)

const lockRegistryState = `
SELECT paused, total_submissions FROM registry_state WHERE id = 1 FOR UPDATE
`

func (q *Queries) LockRegistryState(ctx context.Context) (RegistryState, error) {
	row := q.db.QueryRow(ctx, lockRegistryState)
	var i RegistryState
	err := row.Scan(&i.Paused, &i.TotalSubmissions)
	return i, err
}

const getRegistryState = `
SELECT paused, total_submissions FROM registry_state WHERE id = 1
`

func (q *Queries) GetRegistryState(ctx context.Context) (RegistryState, error) {
	row := q.db.QueryRow(ctx, getRegistryState)
	var i RegistryState
	err := row.Scan(&i.Paused, &i.TotalSubmissions)
	return i, err
}

const incrementTotalSubmissions = `
UPDATE registry_state SET total_submissions = total_submissions + 1 WHERE id = 1
`

func (q *Queries) IncrementTotalSubmissions(ctx context.Context) error {
	_, err := q.db.Exec(ctx, incrementTotalSubmissions)
	return err
}

const setPaused = `
UPDATE registry_state SET paused = $1 WHERE id = 1
`

func (q *Queries) SetPaused(ctx context.Context, paused bool) error {
	_, err := q.db.Exec(ctx, setPaused, paused)
	return err
}

const upsertScore = `
INSERT INTO scores (identity, submission_id, value, metadata, submitted_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (identity) DO UPDATE
SET submission_id = EXCLUDED.submission_id,
    value = EXCLUDED.value,
    metadata = EXCLUDED.metadata,
    submitted_at = EXCLUDED.submitted_at
RETURNING identity, submission_id, value, metadata, submitted_at
`

func (q *Queries) UpsertScore(ctx context.Context, arg UpsertScoreParams) (Score, error) {
	row := q.db.QueryRow(ctx, upsertScore, arg.Identity, arg.SubmissionID, arg.Value, arg.Metadata)
	var i Score
	err := row.Scan(&i.Identity, &i.SubmissionID, &i.Value, &i.Metadata, &i.SubmittedAt)
	return i, err
}

const getScore = `
SELECT identity, submission_id, value, metadata, submitted_at FROM scores WHERE identity = $1
`

func (q *Queries) GetScore(ctx context.Context, identity string) (Score, error) {
	row := q.db.QueryRow(ctx, getScore, identity)
	var i Score
	err := row.Scan(&i.Identity, &i.SubmissionID, &i.Value, &i.Metadata, &i.SubmittedAt)
	return i, err
}

const deleteScore = `
DELETE FROM scores WHERE identity = $1
`

func (q *Queries) DeleteScore(ctx context.Context, identity string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteScore, identity)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertOutboxEvent = `
INSERT INTO registry_outbox (id, identity, event_type, payload)
VALUES ($1, $2, $3, $4)
`

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.Exec(ctx, insertOutboxEvent, arg.ID, arg.Identity, arg.EventType, arg.Payload)
	return err
}
