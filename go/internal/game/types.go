package game

import (
	"time"
)

// AttemptRecord is produced once per completed Ready -> trigger transition.
type AttemptRecord struct {
	ReactionTimeMs int64     `json:"reaction_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// SessionStats aggregates the attempts of one engine.
type SessionStats struct {
	BestTimeMs   *int64 `json:"best_time_ms,omitempty"`
	LastTimeMs   *int64 `json:"last_time_ms,omitempty"`
	AttemptCount int    `json:"attempt_count"`
}

func (s SessionStats) clone() SessionStats {
	out := SessionStats{AttemptCount: s.AttemptCount}
	if s.BestTimeMs != nil {
		v := *s.BestTimeMs
		out.BestTimeMs = &v
	}
	if s.LastTimeMs != nil {
		v := *s.LastTimeMs
		out.LastTimeMs = &v
	}
	return out
}

// NotificationKind identifies what changed.
type NotificationKind string

const (
	KindRoundStarted        NotificationKind = "round_started"
	KindLightOn             NotificationKind = "light_on"
	KindLightsOut           NotificationKind = "lights_out"
	KindJumpStart           NotificationKind = "jump_start"
	KindReactionRecorded    NotificationKind = "reaction_recorded"
	KindSubmissionStarted   NotificationKind = "submission_started"
	KindSubmissionSucceeded NotificationKind = "submission_succeeded"
	KindSubmissionFailed    NotificationKind = "submission_failed"
	KindLeaderboardCleared  NotificationKind = "leaderboard_cleared"
)

// Notification is emitted on every state change of the engine.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	State    GameState        `json:"state"`
	Progress int              `json:"progress"`
	Round    uint64           `json:"round"`

	// Set on terminal events of a round.
	Classification Classification `json:"classification,omitempty"`
	Label          string         `json:"label,omitempty"`
	ReactionTimeMs *int64         `json:"reaction_time_ms,omitempty"`
	FalseStart     bool           `json:"false_start,omitempty"`

	// Set when a submission settles.
	Confirmation string `json:"confirmation,omitempty"`
	Reason       string `json:"reason,omitempty"`
	// Stale marks a settlement that arrived after a newer round began.
	Stale bool `json:"stale,omitempty"`

	Stats      SessionStats `json:"stats"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Snapshot is a point-in-time copy of the engine, used by the presentation layer.
type Snapshot struct {
	State              GameState    `json:"state"`
	Progress           int          `json:"progress"`
	Round              uint64       `json:"round"`
	Stats              SessionStats `json:"stats"`
	Leaderboard        []int64      `json:"leaderboard"`
	SubmissionInFlight bool         `json:"submission_in_flight"`
}

// Listener receives engine notifications in order. Implementations must not
// call back into the engine synchronously.
type Listener interface {
	OnNotification(n Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification)

func (f ListenerFunc) OnNotification(n Notification) { f(n) }
