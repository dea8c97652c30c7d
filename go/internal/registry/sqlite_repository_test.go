package registry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newSQLiteRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := OpenSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryLatestScoreOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)
	at := time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC)
	repo.now = func() time.Time { return at }

	entry, err := repo.LatestScore(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if entry.Found || entry.Value != 0 {
		t.Errorf("empty registry entry = %+v, want zero value", entry)
	}

	meta, err := ParseMetadataHash("0xab" + strings.Repeat("00", 31))
	if err != nil {
		t.Fatalf("ParseMetadataHash: %v", err)
	}
	if _, err := repo.SubmitScore(ctx, testUser, 300, MetadataHash{}); err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}
	sub, err := repo.SubmitScore(ctx, testUser, 180, meta)
	if err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}

	entry, err = repo.LatestScore(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if !entry.Found || entry.Value != 180 || entry.Metadata != meta {
		t.Errorf("entry = %+v, want latest submission 180", entry)
	}
	if !entry.SubmittedAt.Equal(sub.SubmittedAt) || !entry.SubmittedAt.Equal(at.Truncate(time.Microsecond)) {
		t.Errorf("SubmittedAt = %v, want %v", entry.SubmittedAt, sub.SubmittedAt)
	}

	total, err := repo.TotalSubmissions(ctx)
	if err != nil {
		t.Fatalf("TotalSubmissions: %v", err)
	}
	if total != 2 {
		t.Errorf("TotalSubmissions = %d, want 2", total)
	}
}

func TestSQLiteRepositoryPauseAndClear(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)

	if _, err := repo.SubmitScore(ctx, testUser, 250, MetadataHash{}); err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}

	if err := repo.SetPaused(ctx, testOwner, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if paused, _ := repo.Paused(ctx); !paused {
		t.Error("Paused = false after pausing")
	}
	if _, err := repo.SubmitScore(ctx, testUser, 200, MetadataHash{}); !errors.Is(err, ErrPaused) {
		t.Errorf("SubmitScore while paused = %v, want ErrPaused", err)
	}
	if total, _ := repo.TotalSubmissions(ctx); total != 1 {
		t.Errorf("rejected submission counted, total = %d", total)
	}

	if err := repo.ClearScore(ctx, testOwner, testUser); err != nil {
		t.Fatalf("ClearScore: %v", err)
	}
	if err := repo.ClearScore(ctx, testOwner, testUser); err != nil {
		t.Fatalf("second ClearScore: %v", err)
	}
	entry, err := repo.LatestScore(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if entry.Found {
		t.Errorf("entry after clear = %+v", entry)
	}
}

func TestSQLiteRepositoryBacksApp(t *testing.T) {
	ctx := context.Background()
	app := NewApp(newSQLiteRepository(t), testOwner)

	if _, err := app.SubmitScore(ctx, SubmitScoreRequest{Identity: "0xUSER1", Score: MaxScore + 1}); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("out of range submission = %v", err)
	}
	if _, err := app.SubmitScore(ctx, SubmitScoreRequest{Identity: "0xUSER1", Score: 199}); err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}
	entry, err := app.LatestScoreOf(ctx, testUser)
	if err != nil {
		t.Fatalf("LatestScore: %v", err)
	}
	if entry.Value != 199 {
		t.Errorf("LatestScore = %d, want 199", entry.Value)
	}
}
