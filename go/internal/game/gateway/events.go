package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/lightsout/go/internal/game"
)

// GameEvent is the envelope of every message sent to a client
type GameEvent struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Session UUID
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of game event
type EventType string

const (
	EventTypeRoundStarted        EventType = EventType(game.KindRoundStarted)
	EventTypeLightOn             EventType = EventType(game.KindLightOn)
	EventTypeLightsOut           EventType = EventType(game.KindLightsOut)
	EventTypeJumpStart           EventType = EventType(game.KindJumpStart)
	EventTypeReactionRecorded    EventType = EventType(game.KindReactionRecorded)
	EventTypeSubmissionStarted   EventType = EventType(game.KindSubmissionStarted)
	EventTypeSubmissionSucceeded EventType = EventType(game.KindSubmissionSucceeded)
	EventTypeSubmissionFailed    EventType = EventType(game.KindSubmissionFailed)
	EventTypeLeaderboardCleared  EventType = EventType(game.KindLeaderboardCleared)

	EventTypeSnapshot       EventType = "snapshot"
	EventTypeRecordedScore  EventType = "recorded_score"
	EventTypeRegistryPaused EventType = "registry_paused"
	EventTypeError          EventType = "error"
)

// Client actions
const (
	ActionTrigger          = "trigger"
	ActionClearLeaderboard = "clear_leaderboard"
	ActionSnapshot         = "snapshot"
)

// ClientMessage is what a client sends over the socket
type ClientMessage struct {
	Action string `json:"action"`
}

// SnapshotPayload is the data of a snapshot event
type SnapshotPayload struct {
	game.Snapshot
	SessionID string `json:"session_id"`
	Identity  string `json:"identity,omitempty"`
}

// RecordedScorePayload is the best score the registry holds for an identity.
// Found is false when nothing is recorded.
type RecordedScorePayload struct {
	Identity    string     `json:"identity"`
	Found       bool       `json:"found"`
	ValueMs     int64      `json:"value_ms"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// RegistryPausedPayload reports a registry pause toggle
type RegistryPausedPayload struct {
	Paused bool `json:"paused"`
}

// ErrorPayload reports a rejected client message
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewGameEvent wraps data in an envelope for sessionID.
func NewGameEvent(sessionID uuid.UUID, eventType EventType, data any) (*GameEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &GameEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// NotificationEvent converts an engine notification to its envelope.
func NotificationEvent(sessionID uuid.UUID, n game.Notification) (*GameEvent, error) {
	event, err := NewGameEvent(sessionID, EventType(n.Kind), n)
	if err != nil {
		return nil, err
	}
	if !n.OccurredAt.IsZero() {
		event.Timestamp = n.OccurredAt.UTC()
	}
	return event, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *GameEvent) (any, error) {
	switch event.Type {
	case EventTypeSnapshot:
		var payload SnapshotPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRecordedScore:
		var payload RecordedScorePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRegistryPaused:
		var payload RegistryPausedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeError:
		var payload ErrorPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRoundStarted, EventTypeLightOn, EventTypeLightsOut, EventTypeJumpStart,
		EventTypeReactionRecorded, EventTypeSubmissionStarted, EventTypeSubmissionSucceeded,
		EventTypeSubmissionFailed, EventTypeLeaderboardCleared:
		var payload game.Notification
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
