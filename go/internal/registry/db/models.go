package db

import (
	"time"

	"github.com/google/uuid"
)

type Score struct {
	Identity     string
	SubmissionID uuid.UUID
	Value        int64
	Metadata     []byte
	SubmittedAt  time.Time
}

type RegistryState struct {
	Paused           bool
	TotalSubmissions int64
}

type InsertOutboxEventParams struct {
	ID        uuid.UUID
	Identity  string
	EventType string
	Payload   []byte
}

type UpsertScoreParams struct {
	Identity     string
	SubmissionID uuid.UUID
	Value        int64
	Metadata     []byte
}
