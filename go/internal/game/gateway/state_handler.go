package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lightsout/go/internal/game"
)

// SessionStateResponse is the full state of one session
type SessionStateResponse struct {
	SessionID string               `json:"session_id"`
	Snapshot  game.Snapshot        `json:"snapshot"`
	Attempts  []game.AttemptRecord `json:"attempts"`
}

// StateHandler handles HTTP requests for session state
type StateHandler struct {
	connectionManager *ConnectionManager
}

// NewStateHandler creates a new state handler
func NewStateHandler(cm *ConnectionManager) *StateHandler {
	return &StateHandler{
		connectionManager: cm,
	}
}

// HandleGetSessionState handles GET /api/sessions/{id}/state
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session ID format", http.StatusBadRequest)
		return
	}

	engine, ok := h.connectionManager.Engine(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	state := SessionStateResponse{
		SessionID: sessionID.String(),
		Snapshot:  engine.Snapshot(),
		Attempts:  engine.Attempts(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode session state response")
	}
}

// HandleGetSessions handles GET /api/sessions
func (h *StateHandler) HandleGetSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Sessions()); err != nil {
		log.Error().Err(err).Msg("failed to encode sessions response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleGetSessions)
	mux.HandleFunc("GET /api/sessions/{id}/state", h.HandleGetSessionState)
}
