package events

import (
	"time"
)

// Event payload types shared between the registry outbox and the game gateway.

const (
	EventTypeScoreSubmitted    = "ScoreSubmitted"
	EventTypeScoreCleared      = "ScoreCleared"
	EventTypePauseStateChanged = "PauseStateChanged"
)

// ScoreSubmittedPayload is the payload for a ScoreSubmitted event
type ScoreSubmittedPayload struct {
	SubmissionID string    `json:"submission_id"`
	Identity     string    `json:"identity"`
	Score        int64     `json:"score"`
	Metadata     string    `json:"metadata"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// ScoreClearedPayload is the payload for a ScoreCleared event
type ScoreClearedPayload struct {
	Identity  string    `json:"identity"`
	ClearedBy string    `json:"cleared_by"`
	ClearedAt time.Time `json:"cleared_at"`
}

// PauseStateChangedPayload is the payload for a PauseStateChanged event
type PauseStateChangedPayload struct {
	Paused    bool      `json:"paused"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}
