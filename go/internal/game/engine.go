package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Submitter records a reaction time outside the engine, e.g. in the score registry.
type Submitter interface {
	// Ready reports whether the submitter is connected and authorized.
	Ready() bool
	// Submit returns a confirmation identifier or a failure.
	Submit(ctx context.Context, reactionTimeMs int64) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRandom overrides the source of the randomized delays.
func WithRandom(r RandomSource) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSubmitter attaches a score submission collaborator.
func WithSubmitter(s Submitter) Option {
	return func(e *Engine) { e.submitter = s }
}

// WithSessionID tags the engine's log lines.
func WithSessionID(id uuid.UUID) Option {
	return func(e *Engine) { e.id = id }
}

// WithListener subscribes l before the engine is returned.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// Engine runs the start-light sequence and scores reactions for one session.
type Engine struct {
	id        uuid.UUID
	cfg       Config
	clock     Clock
	rng       RandomSource
	submitter Submitter

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	listeners   []Listener
	state       GameState
	progress    int
	round       uint64
	lightsOutAt time.Time
	stats       SessionStats
	attempts    []AttemptRecord
	board       *leaderboard
	pending     *pendingStep
	inFlight    bool
	closed      bool

	// onDiscard observes timer steps dropped by the resume guard.
	onDiscard func(round uint64)
}

// NewEngine creates an idle engine with empty stats.
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.Timing.Validate() != nil {
		cfg.Timing = DefaultTiming()
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = DefaultConfig().LeaderboardSize
	}
	if cfg.ReasonLimit <= 0 {
		cfg.ReasonLimit = DefaultConfig().ReasonLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:     uuid.New(),
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		rng:    globalRand{},
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
		board:  newLeaderboard(cfg.LeaderboardSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the session id the engine was created for.
func (e *Engine) ID() uuid.UUID {
	return e.id
}

// Subscribe registers a listener for all future notifications.
func (e *Engine) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Trigger is the single user input: start a round, jump start, or stop the clock
// depending on the current state.
func (e *Engine) Trigger() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	switch e.state {
	case StateIdle, StateSubmitting:
		e.startLocked()
	case StateRunning:
		e.jumpStartLocked()
	case StateReady:
		e.recordLocked()
	}
}

// startLocked enters Running and arms the first column.
func (e *Engine) startLocked() {
	e.cancelPendingLocked()
	e.round++
	e.state = StateRunning
	e.progress = 0

	log.Debug().
		Str("session_id", e.id.String()).
		Uint64("round", e.round).
		Msg("round started")

	e.scheduleColumnLocked(1)
	e.emitLocked(Notification{Kind: KindRoundStarted})
}

func (e *Engine) scheduleColumnLocked(col int) {
	round := e.round
	e.scheduleLocked(e.cfg.Timing.columnDelay(e.rng), round, func() {
		e.progress = col
		if col < e.cfg.Timing.Columns {
			e.scheduleColumnLocked(col + 1)
		} else {
			e.scheduleLocked(e.cfg.Timing.holdDelay(e.rng), round, e.lightsOutLocked)
		}
		e.emitLocked(Notification{Kind: KindLightOn})
	})
}

// lightsOutLocked clears the lights and starts the reaction clock.
func (e *Engine) lightsOutLocked() {
	e.progress = 0
	e.state = StateReady
	e.lightsOutAt = e.clock.Now()
	e.emitLocked(Notification{Kind: KindLightsOut})
}

// jumpStartLocked handles input while the lights are still sequencing.
func (e *Engine) jumpStartLocked() {
	e.cancelPendingLocked()
	e.progress = 0
	e.state = StateIdle
	e.stats.AttemptCount++

	log.Info().
		Str("session_id", e.id.String()).
		Uint64("round", e.round).
		Int("attempts", e.stats.AttemptCount).
		Msg("jump start")

	e.emitLocked(Notification{Kind: KindJumpStart, FalseStart: true})
}

// recordLocked scores the reaction and hands it to the submitter if one is ready.
func (e *Engine) recordLocked() {
	now := e.clock.Now()
	reaction := now.Sub(e.lightsOutAt).Milliseconds()
	if reaction < 0 {
		reaction = 0
	}

	e.attempts = append(e.attempts, AttemptRecord{ReactionTimeMs: reaction, Timestamp: now})
	e.stats.AttemptCount++
	last := reaction
	e.stats.LastTimeMs = &last

	newBest := e.stats.BestTimeMs == nil || reaction < *e.stats.BestTimeMs
	if newBest {
		best := reaction
		e.stats.BestTimeMs = &best
	}
	e.board.insert(reaction)

	class := classifyAttempt(reaction, newBest)

	log.Info().
		Str("session_id", e.id.String()).
		Uint64("round", e.round).
		Int64("reaction_ms", reaction).
		Str("classification", string(class)).
		Msg("reaction recorded")

	submit := e.submitter != nil && !e.inFlight && e.submitter.Ready()
	if submit {
		e.state = StateSubmitting
		e.inFlight = true
	} else {
		e.state = StateIdle
	}

	rt := reaction
	e.emitLocked(Notification{
		Kind:           KindReactionRecorded,
		Classification: class,
		Label:          class.Label(),
		ReactionTimeMs: &rt,
	})

	if submit {
		e.emitLocked(Notification{Kind: KindSubmissionStarted, ReactionTimeMs: &rt})
		go e.submit(e.round, reaction)
	}
}

// submit calls the collaborator without holding the lock and reports the outcome.
func (e *Engine) submit(round uint64, reactionTimeMs int64) {
	confirmation, err := e.submitter.Submit(e.ctx, reactionTimeMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.inFlight = false
	stale := e.round != round || e.state != StateSubmitting
	if !stale {
		e.state = StateIdle
	}

	rt := reactionTimeMs
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", e.id.String()).
			Uint64("round", round).
			Bool("stale", stale).
			Msg("score submission failed")
		e.emitLocked(Notification{
			Kind:           KindSubmissionFailed,
			ReactionTimeMs: &rt,
			Reason:         truncateReason(err.Error(), e.cfg.ReasonLimit),
			Stale:          stale,
		})
		return
	}

	log.Info().
		Str("session_id", e.id.String()).
		Uint64("round", round).
		Str("confirmation", confirmation).
		Bool("stale", stale).
		Msg("score submitted")
	e.emitLocked(Notification{
		Kind:           KindSubmissionSucceeded,
		ReactionTimeMs: &rt,
		Confirmation:   confirmation,
		Stale:          stale,
	})
}

// ClearLeaderboard empties the in-session board. Stats are kept.
func (e *Engine) ClearLeaderboard() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.board.clear()
	e.emitLocked(Notification{Kind: KindLeaderboardCleared})
}

// Snapshot returns a copy of the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		State:              e.state,
		Progress:           e.progress,
		Round:              e.round,
		Stats:              e.stats.clone(),
		Leaderboard:        e.board.entries(),
		SubmissionInFlight: e.inFlight,
	}
}

// State returns the current state.
func (e *Engine) State() GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns a copy of the session stats.
func (e *Engine) Stats() SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.clone()
}

// Attempts returns every attempt record produced so far, oldest first.
func (e *Engine) Attempts() []AttemptRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]AttemptRecord, len(e.attempts))
	copy(out, e.attempts)
	return out
}

// Leaderboard returns the best in-session times, ascending.
func (e *Engine) Leaderboard() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.entries()
}

// Close cancels any pending step and the in-flight submission context.
// Later triggers are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.cancelPendingLocked()
	e.cancel()

	log.Debug().Str("session_id", e.id.String()).Msg("engine closed")
}

// emitLocked stamps n with the current state and delivers it. Caller holds e.mu.
func (e *Engine) emitLocked(n Notification) {
	n.State = e.state
	n.Progress = e.progress
	n.Round = e.round
	n.Stats = e.stats.clone()
	n.OccurredAt = e.clock.Now()

	for _, l := range e.listeners {
		l.OnNotification(n)
	}
}

func truncateReason(reason string, limit int) string {
	runes := []rune(reason)
	if len(runes) <= limit {
		return reason
	}
	return string(runes[:limit]) + "..."
}
