package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository is a single-file score store for local play. It keeps the
// same semantics as Repository but has no outbox, so registry events are not
// streamed when it is used.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteRepository opens or creates the database at path and migrates it.
func OpenSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	r := &SQLiteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scores (
			identity      TEXT PRIMARY KEY,
			submission_id TEXT    NOT NULL,
			value         INTEGER NOT NULL CHECK (value >= 0 AND value <= 1000000),
			metadata      BLOB    NOT NULL,
			submitted_at  INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS registry_state (
			id                INTEGER PRIMARY KEY CHECK (id = 1),
			paused            INTEGER NOT NULL DEFAULT 0,
			total_submissions INTEGER NOT NULL DEFAULT 0
		);`,
		`INSERT OR IGNORE INTO registry_state (id) VALUES (1);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite registry: %w", err)
		}
	}
	return nil
}

// SubmitScore stores the latest score of identity.
func (r *SQLiteRepository) SubmitScore(ctx context.Context, identity string, score int64, metadata MetadataHash) (*Submission, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var paused bool
	if err := tx.QueryRowContext(ctx, `SELECT paused FROM registry_state WHERE id = 1`).Scan(&paused); err != nil {
		return nil, fmt.Errorf("failed to read registry state: %w", err)
	}
	if paused {
		return nil, ErrPaused
	}

	sub := &Submission{
		ID:          uuid.New(),
		Identity:    identity,
		Score:       score,
		Metadata:    metadata,
		SubmittedAt: r.now().Truncate(time.Microsecond),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scores (identity, submission_id, value, metadata, submitted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (identity) DO UPDATE
		SET submission_id = excluded.submission_id,
		    value = excluded.value,
		    metadata = excluded.metadata,
		    submitted_at = excluded.submitted_at`,
		identity, sub.ID.String(), score, metadata[:], sub.SubmittedAt.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert score: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE registry_state SET total_submissions = total_submissions + 1 WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("failed to increment total submissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit submission: %w", err)
	}
	return sub, nil
}

// LatestScore returns the score of identity, or a zero entry if none exists.
func (r *SQLiteRepository) LatestScore(ctx context.Context, identity string) (*ScoreEntry, error) {
	var (
		value       int64
		metadata    []byte
		submittedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT value, metadata, submitted_at FROM scores WHERE identity = ?`, identity,
	).Scan(&value, &metadata, &submittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ScoreEntry{}, nil
		}
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return &ScoreEntry{
		Value:       value,
		SubmittedAt: time.UnixMicro(submittedAt).UTC(),
		Metadata:    metadataFromBytes(metadata),
		Found:       true,
	}, nil
}

// TotalSubmissions returns the number of accepted submissions.
func (r *SQLiteRepository) TotalSubmissions(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT total_submissions FROM registry_state WHERE id = 1`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to get registry state: %w", err)
	}
	return total, nil
}

// Paused reports whether submissions are currently rejected.
func (r *SQLiteRepository) Paused(ctx context.Context) (bool, error) {
	var paused bool
	if err := r.db.QueryRowContext(ctx, `SELECT paused FROM registry_state WHERE id = 1`).Scan(&paused); err != nil {
		return false, fmt.Errorf("failed to get registry state: %w", err)
	}
	return paused, nil
}

// ClearScore deletes the score of identity. Clearing a missing score is a no-op.
func (r *SQLiteRepository) ClearScore(ctx context.Context, caller, identity string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scores WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("failed to delete score: %w", err)
	}
	return nil
}

// SetPaused toggles submissions.
func (r *SQLiteRepository) SetPaused(ctx context.Context, caller string, paused bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE registry_state SET paused = ? WHERE id = 1`, paused); err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}
	return nil
}
