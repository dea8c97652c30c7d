package registry

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxScore is the largest score the registry accepts.
const MaxScore int64 = 1_000_000

// MetadataHash is an opaque fixed-size tag stored alongside a score.
type MetadataHash [32]byte

// String returns the 0x-prefixed hex form.
func (h MetadataHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h MetadataHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *MetadataHash) UnmarshalText(text []byte) error {
	parsed, err := ParseMetadataHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseMetadataHash parses a 0x-prefixed 32 byte hex string. The empty string
// is the zero hash.
func ParseMetadataHash(s string) (MetadataHash, error) {
	var h MetadataHash
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return h, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid metadata hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid metadata hash: want %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func metadataFromBytes(b []byte) MetadataHash {
	var h MetadataHash
	copy(h[:], b)
	return h
}

// Submission is the confirmation of an accepted score.
type Submission struct {
	ID          uuid.UUID    `json:"id"`
	Identity    string       `json:"identity"`
	Score       int64        `json:"score"`
	Metadata    MetadataHash `json:"metadata"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// ScoreEntry is the latest score of an identity. The zero value means none.
type ScoreEntry struct {
	Value       int64        `json:"value"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Metadata    MetadataHash `json:"metadata"`
	Found       bool         `json:"found"`
}

// SubmitScoreRequest represents the data needed to submit a score
type SubmitScoreRequest struct {
	Identity string       `json:"identity"`
	Score    int64        `json:"score"`
	Metadata MetadataHash `json:"metadata"`
}

type SubmitScoreResponse struct {
	Submission Submission `json:"submission"`
}

type LatestScoreRequest struct {
	Identity string `json:"identity"`
}

type LatestScoreResponse struct {
	Entry ScoreEntry `json:"entry"`
}

type TotalSubmissionsRequest struct{}

type TotalSubmissionsResponse struct {
	Total int64 `json:"total"`
}

// ClearScoreRequest removes the score of Identity. Owner only.
type ClearScoreRequest struct {
	Identity string `json:"identity"`
}

type ClearScoreResponse struct {
	Success bool `json:"success"`
}

// SetPausedRequest toggles submissions. Owner only.
type SetPausedRequest struct {
	Paused bool `json:"paused"`
}

type SetPausedResponse struct {
	Paused bool `json:"paused"`
}
