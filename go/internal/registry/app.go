package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScoreRepository defines what the app layer needs from the repository
type ScoreRepository interface {
	SubmitScore(ctx context.Context, identity string, score int64, metadata MetadataHash) (*Submission, error)
	LatestScore(ctx context.Context, identity string) (*ScoreEntry, error)
	TotalSubmissions(ctx context.Context) (int64, error)
	Paused(ctx context.Context) (bool, error)
	ClearScore(ctx context.Context, caller, identity string) error
	SetPaused(ctx context.Context, caller string, paused bool) error
}

// App handles score registry business logic
type App struct {
	repo  ScoreRepository
	owner string
}

// NewApp creates a new registry App. owner is the only caller allowed to run
// admin operations; the caller comes from the request context (see WithCaller).
func NewApp(repo ScoreRepository, owner string) *App {
	return &App{
		repo:  repo,
		owner: NormalizeIdentity(owner),
	}
}

// NormalizeIdentity makes identities case-insensitive, the way hex addresses are.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// SubmitScore validates and records the latest score of an identity.
func (a *App) SubmitScore(ctx context.Context, req SubmitScoreRequest) (*Submission, error) {
	identity := NormalizeIdentity(req.Identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if req.Score < 0 || req.Score > MaxScore {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrScoreOutOfRange, req.Score, MaxScore)
	}

	sub, err := a.repo.SubmitScore(ctx, identity, req.Score, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to submit score: %w", err)
	}

	log.Info().
		Str("identity", identity).
		Int64("score", sub.Score).
		Str("submission_id", sub.ID.String()).
		Msg("score submitted")
	return sub, nil
}

// LatestScoreOf returns the latest score of identity; Found is false if none.
func (a *App) LatestScoreOf(ctx context.Context, identity string) (*ScoreEntry, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	entry, err := a.repo.LatestScore(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest score: %w", err)
	}
	return entry, nil
}

// TotalSubmissions returns the number of accepted submissions.
func (a *App) TotalSubmissions(ctx context.Context) (int64, error) {
	total, err := a.repo.TotalSubmissions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get total submissions: %w", err)
	}
	return total, nil
}

// ClearScore removes the score of identity. Owner only.
func (a *App) ClearScore(ctx context.Context, req ClearScoreRequest) error {
	caller := CallerFrom(ctx)
	if err := a.authorize(caller); err != nil {
		return err
	}
	identity := NormalizeIdentity(req.Identity)
	if identity == "" {
		return ErrInvalidIdentity
	}

	if err := a.repo.ClearScore(ctx, caller, identity); err != nil {
		return fmt.Errorf("failed to clear score: %w", err)
	}

	log.Info().Str("caller", caller).Str("identity", identity).Msg("score cleared by admin")
	return nil
}

// SetPaused toggles whether submissions are accepted. Owner only.
func (a *App) SetPaused(ctx context.Context, req SetPausedRequest) error {
	caller := CallerFrom(ctx)
	if err := a.authorize(caller); err != nil {
		return err
	}

	if err := a.repo.SetPaused(ctx, caller, req.Paused); err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}

	log.Info().Str("caller", caller).Bool("paused", req.Paused).Msg("pause state changed")
	return nil
}

// Paused reports whether submissions are currently rejected.
func (a *App) Paused(ctx context.Context) (bool, error) {
	return a.repo.Paused(ctx)
}

func (a *App) authorize(caller string) error {
	if a.owner == "" || caller != a.owner {
		return ErrUnauthorized
	}
	return nil
}
