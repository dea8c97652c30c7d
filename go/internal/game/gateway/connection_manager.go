package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lightsout/go/internal/game"
	"github.com/mcdev12/lightsout/go/internal/registry"
)

// ErrIdentityMismatch is returned when a connection tries to join a session
// that was opened by a different identity.
var ErrIdentityMismatch = errors.New("session belongs to a different identity")

// SubmitterFactory returns the score submitter for a session's identity, or
// nil when scores are not recorded.
type SubmitterFactory func(identity string) game.Submitter

// ScoreSource answers "what is the recorded best for this identity".
type ScoreSource interface {
	LatestScore(ctx context.Context, identity string) (*registry.ScoreEntry, error)
}

// SessionConfig describes how engines are built for new sessions
type SessionConfig struct {
	Game       game.Config
	Clock      game.Clock        // nil for the real clock
	Random     game.RandomSource // nil for math/rand
	Submitters SubmitterFactory
	Scores     ScoreSource
}

// ConnectionManager manages game sessions and their WebSocket connections
type ConnectionManager struct {
	sessions map[uuid.UUID]*session
	mu       sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	config        ConnectionConfig
	sessionConfig SessionConfig

	// Event broadcasting
	broadcastCh chan BroadcastMessage
}

// session is one engine and everyone watching it
type session struct {
	id          uuid.UUID
	identity    string
	engine      *game.Engine
	connections map[*Connection]bool
	createdAt   time.Time
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID        string
	Identity  string
	SessionID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	engine *game.Engine

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to broadcast to connections.
// A nil SessionID targets every session.
type BroadcastMessage struct {
	SessionID uuid.UUID
	Event     *GameEvent
	Identity  string // Optional: if set, only send to this identity
}

// ConnectionStats summarises the active connections
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// SessionSummary describes one live session
type SessionSummary struct {
	SessionID    string         `json:"session_id"`
	Identity     string         `json:"identity,omitempty"`
	State        game.GameState `json:"state"`
	Round        uint64         `json:"round"`
	AttemptCount int            `json:"attempt_count"`
	BestTimeMs   *int64         `json:"best_time_ms,omitempty"`
	Connections  int            `json:"connections"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  512,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, sessionConfig SessionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessions: make(map[uuid.UUID]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:        config,
		sessionConfig: sessionConfig,
		broadcastCh:   make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins it to
// the session, creating the session on first use. Only the identity that
// opened a session may join it; anyone else gets 409 Conflict.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity string, sessionID uuid.UUID) error {
	if err := cm.checkSessionIdentity(sessionID, identity); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return err
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Identity:    identity,
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	if err := cm.registerConnection(connection); err != nil {
		// Lost a race with another identity opening the same session.
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(cm.config.WriteTimeout))
		conn.Close()
		return err
	}

	// The client learns its session id and current state first.
	cm.sendSnapshot(connection)

	go connection.writePump()
	go connection.readPump()

	if identity != "" && cm.sessionConfig.Scores != nil {
		go cm.refreshRecordedScore(sessionID, identity)
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("identity", identity).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")

	return nil
}

// checkSessionIdentity reports whether identity may join sessionID
func (cm *ConnectionManager) checkSessionIdentity(sessionID uuid.UUID, identity string) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if s, exists := cm.sessions[sessionID]; exists && s.identity != identity {
		return ErrIdentityMismatch
	}
	return nil
}

// registerConnection adds a connection, creating the session's engine if needed
func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	s, exists := cm.sessions[conn.SessionID]
	if exists && s.identity != conn.Identity {
		return ErrIdentityMismatch
	}
	if !exists {
		s = &session{
			id:          conn.SessionID,
			identity:    conn.Identity,
			engine:      cm.newEngine(conn.SessionID, conn.Identity),
			connections: make(map[*Connection]bool),
			createdAt:   time.Now(),
		}
		cm.sessions[conn.SessionID] = s

		log.Info().
			Str("session_id", s.id.String()).
			Str("identity", s.identity).
			Msg("game session created")
	}
	conn.engine = s.engine
	s.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID.String()).
		Int("total_connections", len(s.connections)).
		Msg("connection registered")
	return nil
}

func (cm *ConnectionManager) newEngine(sessionID uuid.UUID, identity string) *game.Engine {
	opts := []game.Option{game.WithSessionID(sessionID)}
	if cm.sessionConfig.Clock != nil {
		opts = append(opts, game.WithClock(cm.sessionConfig.Clock))
	}
	if cm.sessionConfig.Random != nil {
		opts = append(opts, game.WithRandom(cm.sessionConfig.Random))
	}
	if cm.sessionConfig.Submitters != nil {
		if sub := cm.sessionConfig.Submitters(identity); sub != nil {
			opts = append(opts, game.WithSubmitter(sub))
		}
	}
	opts = append(opts, game.WithListener(game.ListenerFunc(func(n game.Notification) {
		cm.onNotification(sessionID, identity, n)
	})))
	return game.NewEngine(cm.sessionConfig.Game, opts...)
}

// onNotification runs under the engine lock: it must only enqueue.
func (cm *ConnectionManager) onNotification(sessionID uuid.UUID, identity string, n game.Notification) {
	event, err := NotificationEvent(sessionID, n)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to build notification event")
		return
	}
	cm.BroadcastToSession(sessionID, event)

	if n.Kind == game.KindSubmissionSucceeded && identity != "" && cm.sessionConfig.Scores != nil {
		go cm.refreshRecordedScore(sessionID, identity)
	}
}

// unregisterConnection removes a connection. The session's engine is closed
// when its last connection leaves.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	var closing *game.Engine

	cm.mu.Lock()
	if s, exists := cm.sessions[conn.SessionID]; exists {
		if _, exists := s.connections[conn]; exists {
			delete(s.connections, conn)
			close(conn.Send)

			if len(s.connections) == 0 {
				delete(cm.sessions, conn.SessionID)
				closing = s.engine
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("identity", conn.Identity).
				Str("session_id", conn.SessionID.String()).
				Msg("connection unregistered")
		}
	}
	cm.mu.Unlock()

	if closing != nil {
		closing.Close()
		log.Info().Str("session_id", conn.SessionID.String()).Msg("game session closed")
	}
}

// closeAll drops every connection and closes every engine
func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, s := range cm.sessions {
		for conn := range s.connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// BroadcastToSession sends an event to all connections of a session
func (cm *ConnectionManager) BroadcastToSession(sessionID uuid.UUID, event *GameEvent) {
	cm.enqueue(BroadcastMessage{SessionID: sessionID, Event: event})
}

// BroadcastToIdentity sends an event to every connection of identity, across sessions
func (cm *ConnectionManager) BroadcastToIdentity(identity string, event *GameEvent) {
	cm.enqueue(BroadcastMessage{Event: event, Identity: identity})
}

// BroadcastToAll sends an event to every connection
func (cm *ConnectionManager) BroadcastToAll(event *GameEvent) {
	cm.enqueue(BroadcastMessage{Event: event})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("session_id", message.SessionID.String()).
			Str("identity", message.Identity).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var (
		delivered int
		slow      []*Connection
	)

	// Sends happen under the read lock so a connection cannot be closed mid-send.
	cm.mu.RLock()
	for id, s := range cm.sessions {
		if message.SessionID != uuid.Nil && id != message.SessionID {
			continue
		}
		for conn := range s.connections {
			if message.Identity != "" && conn.Identity != message.Identity {
				continue
			}
			select {
			case conn.Send <- eventData:
				delivered++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("identity", conn.Identity).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_id", message.SessionID.String()).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// sendTo delivers an event to one connection if it is still registered
func (cm *ConnectionManager) sendTo(conn *Connection, event *GameEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	s, exists := cm.sessions[conn.SessionID]
	if !exists || !s.connections[conn] {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, dropping event")
	}
}

func (cm *ConnectionManager) sendSnapshot(conn *Connection) {
	event, err := NewGameEvent(conn.SessionID, EventTypeSnapshot, SnapshotPayload{
		Snapshot:  conn.engine.Snapshot(),
		SessionID: conn.SessionID.String(),
		Identity:  conn.Identity,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot event")
		return
	}
	cm.sendTo(conn, event)
}

func (cm *ConnectionManager) sendError(conn *Connection, message string) {
	event, err := NewGameEvent(conn.SessionID, EventTypeError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	cm.sendTo(conn, event)
}

// refreshRecordedScore looks up identity's recorded best and pushes it to
// the identity's connections in sessionID.
func (cm *ConnectionManager) refreshRecordedScore(sessionID uuid.UUID, identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry, err := cm.sessionConfig.Scores.LatestScore(ctx, identity)
	if err != nil {
		log.Warn().Err(err).Str("identity", identity).Msg("failed to fetch recorded score")
		return
	}

	event, err := NewGameEvent(sessionID, EventTypeRecordedScore, recordedScorePayload(identity, entry))
	if err != nil {
		log.Error().Err(err).Msg("failed to build recorded score event")
		return
	}
	cm.enqueue(BroadcastMessage{SessionID: sessionID, Event: event, Identity: identity})
}

func recordedScorePayload(identity string, entry *registry.ScoreEntry) RecordedScorePayload {
	payload := RecordedScorePayload{Identity: identity}
	if entry != nil && entry.Found {
		payload.Found = true
		payload.ValueMs = entry.Value
		at := entry.SubmittedAt
		payload.SubmittedAt = &at
	}
	return payload
}

// Engine returns the engine of a live session
func (cm *ConnectionManager) Engine(sessionID uuid.UUID) (*game.Engine, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	s, exists := cm.sessions[sessionID]
	if !exists {
		return nil, false
	}
	return s.engine, true
}

// Sessions returns a summary of every live session
func (cm *ConnectionManager) Sessions() []SessionSummary {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]SessionSummary, 0, len(cm.sessions))
	for _, s := range cm.sessions {
		snap := s.engine.Snapshot()
		out = append(out, SessionSummary{
			SessionID:    s.engine.ID().String(),
			Identity:     s.identity,
			State:        snap.State,
			Round:        snap.Round,
			AttemptCount: snap.Stats.AttemptCount,
			BestTimeMs:   snap.Stats.BestTimeMs,
			Connections:  len(s.connections),
			CreatedAt:    s.createdAt,
		})
	}
	return out
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveSessions:     len(cm.sessions),
		SessionConnections: make(map[string]int, len(cm.sessions)),
	}
	for id, s := range cm.sessions {
		stats.TotalConnections += len(s.connections)
		stats.SessionConnections[id.String()] = len(s.connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client actions until the socket closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage dispatches a client action to the session's engine
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("malformed client message")
		c.Manager.sendError(c, "malformed message")
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID.String()).
		Str("action", msg.Action).
		Msg("received client action")

	switch msg.Action {
	case ActionTrigger:
		c.engine.Trigger()
	case ActionClearLeaderboard:
		c.engine.ClearLeaderboard()
	case ActionSnapshot:
		c.Manager.sendSnapshot(c)
	default:
		c.Manager.sendError(c, fmt.Sprintf("unknown action %q", msg.Action))
	}
}
