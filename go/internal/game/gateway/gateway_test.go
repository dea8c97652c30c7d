package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/lightsout/go/internal/game"
	"github.com/mcdev12/lightsout/go/internal/registry"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type stubSubmitter struct {
	identity string
	scores   *stubScores
}

func (s *stubSubmitter) Ready() bool { return s.identity != "" }

func (s *stubSubmitter) Submit(ctx context.Context, reactionTimeMs int64) (string, error) {
	s.scores.set(s.identity, reactionTimeMs)
	return "0xconfirmed", nil
}

type stubScores struct {
	mu      sync.Mutex
	entries map[string]registry.ScoreEntry
}

func (s *stubScores) set(identity string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identity] = registry.ScoreEntry{Value: value, SubmittedAt: time.Now().UTC(), Found: true}
}

func (s *stubScores) LatestScore(ctx context.Context, identity string) (*registry.ScoreEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.entries[identity]
	return &entry, nil
}

type testGateway struct {
	svc    *Service
	server *httptest.Server
	clock  *clockwork.FakeClock
	scores *stubScores
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	clock := clockwork.NewFakeClock()
	scores := &stubScores{entries: make(map[string]registry.ScoreEntry)}

	cfg := DefaultConfig()
	cfg.Sessions = SessionConfig{
		Game:   game.DefaultConfig(),
		Clock:  clock,
		Random: fixedRand(0),
		Scores: scores,
		Submitters: func(identity string) game.Submitter {
			return &stubSubmitter{identity: identity, scores: scores}
		},
	}

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &testGateway{svc: svc, server: srv, clock: clock, scores: scores}
}

func (g *testGateway) wsURL(sessionID uuid.UUID, identity string) string {
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws/game?session_id=" + sessionID.String()
	if identity != "" {
		url += "&identity=" + identity
	}
	return url
}

func (g *testGateway) dial(t *testing.T, sessionID uuid.UUID, identity string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(g.wsURL(sessionID, identity), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *testGateway) waitForTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("no sequence timer armed: %v", err)
	}
}

func (g *testGateway) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(g.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func readEvent(t *testing.T, conn *websocket.Conn) *GameEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event GameEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return &event
}

func expectEvent(t *testing.T, conn *websocket.Conn, want EventType) *GameEvent {
	t.Helper()
	event := readEvent(t, conn)
	if event.Type != want {
		t.Fatalf("event type = %s, want %s (data %s)", event.Type, want, event.Data)
	}
	return event
}

func expectNotification(t *testing.T, conn *websocket.Conn, want EventType) game.Notification {
	t.Helper()
	event := expectEvent(t, conn, want)
	var n game.Notification
	if err := json.Unmarshal(event.Data, &n); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	return n
}

func send(t *testing.T, conn *websocket.Conn, action string) {
	t.Helper()
	if err := conn.WriteJSON(ClientMessage{Action: action}); err != nil {
		t.Fatalf("write %s: %v", action, err)
	}
}

func TestGatewayPlaysRoundAndRecordsScore(t *testing.T) {
	g := newTestGateway(t)
	g.scores.set("0xabc", 250)

	sessionID := uuid.New()
	conn := g.dial(t, sessionID, "0xABC")

	snap := expectEvent(t, conn, EventTypeSnapshot)
	if snap.SessionID != sessionID.String() {
		t.Errorf("snapshot session = %s, want %s", snap.SessionID, sessionID)
	}
	recorded := expectEvent(t, conn, EventTypeRecordedScore)
	var score RecordedScorePayload
	if err := json.Unmarshal(recorded.Data, &score); err != nil {
		t.Fatalf("unmarshal recorded score: %v", err)
	}
	if !score.Found || score.ValueMs != 250 || score.Identity != "0xabc" {
		t.Errorf("recorded score = %+v, want 250 for 0xabc", score)
	}

	send(t, conn, ActionTrigger)
	if n := expectNotification(t, conn, EventTypeRoundStarted); n.State != game.StateRunning {
		t.Errorf("state after start = %s", n.State)
	}

	for col := 1; col <= 5; col++ {
		g.waitForTimer(t)
		g.clock.Advance(600 * time.Millisecond)
		if n := expectNotification(t, conn, EventTypeLightOn); n.Progress != col {
			t.Fatalf("progress = %d, want %d", n.Progress, col)
		}
	}
	g.waitForTimer(t)
	g.clock.Advance(time.Second)
	if n := expectNotification(t, conn, EventTypeLightsOut); n.State != game.StateReady {
		t.Fatalf("state after lights out = %s", n.State)
	}

	g.clock.Advance(237 * time.Millisecond)
	send(t, conn, ActionTrigger)

	n := expectNotification(t, conn, EventTypeReactionRecorded)
	if n.ReactionTimeMs == nil || *n.ReactionTimeMs != 237 {
		t.Fatalf("reaction = %v, want 237", n.ReactionTimeMs)
	}
	if n.Classification != game.ClassNewPersonalBest {
		t.Errorf("classification = %s, want first attempt to be a personal best", n.Classification)
	}
	if n.State != game.StateSubmitting {
		t.Errorf("state = %s, want submitting", n.State)
	}

	expectNotification(t, conn, EventTypeSubmissionStarted)
	done := expectNotification(t, conn, EventTypeSubmissionSucceeded)
	if done.Confirmation != "0xconfirmed" || done.State != game.StateIdle {
		t.Errorf("settlement = %+v", done)
	}

	recorded = expectEvent(t, conn, EventTypeRecordedScore)
	if err := json.Unmarshal(recorded.Data, &score); err != nil {
		t.Fatalf("unmarshal recorded score: %v", err)
	}
	if score.ValueMs != 237 {
		t.Errorf("refreshed recorded score = %d, want 237", score.ValueMs)
	}

	send(t, conn, ActionSnapshot)
	snap = expectEvent(t, conn, EventTypeSnapshot)
	var payload SnapshotPayload
	if err := json.Unmarshal(snap.Data, &payload); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if payload.Stats.AttemptCount != 1 || len(payload.Leaderboard) != 1 || payload.Leaderboard[0] != 237 {
		t.Errorf("snapshot = %+v", payload.Snapshot)
	}

	send(t, conn, ActionClearLeaderboard)
	expectNotification(t, conn, EventTypeLeaderboardCleared)
}

func TestGatewayJumpStart(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, uuid.New(), "")
	expectEvent(t, conn, EventTypeSnapshot)

	send(t, conn, ActionTrigger)
	expectNotification(t, conn, EventTypeRoundStarted)
	g.waitForTimer(t)
	g.clock.Advance(600 * time.Millisecond)
	expectNotification(t, conn, EventTypeLightOn)

	send(t, conn, ActionTrigger)
	n := expectNotification(t, conn, EventTypeJumpStart)
	if !n.FalseStart || n.State != game.StateIdle || n.Stats.AttemptCount != 1 {
		t.Errorf("jump start = %+v", n)
	}
}

func TestGatewaySharedSessionLifecycle(t *testing.T) {
	g := newTestGateway(t)
	sessionID := uuid.New()

	first := g.dial(t, sessionID, "")
	expectEvent(t, first, EventTypeSnapshot)
	second := g.dial(t, sessionID, "")
	expectEvent(t, second, EventTypeSnapshot)

	var sessions []SessionSummary
	if code := g.getJSON(t, "/api/sessions", &sessions); code != http.StatusOK {
		t.Fatalf("GET /api/sessions = %d", code)
	}
	if len(sessions) != 1 || sessions[0].Connections != 2 {
		t.Fatalf("sessions = %+v, want one session with two connections", sessions)
	}

	send(t, first, ActionTrigger)
	expectNotification(t, first, EventTypeRoundStarted)
	expectNotification(t, second, EventTypeRoundStarted)

	var state SessionStateResponse
	if code := g.getJSON(t, "/api/sessions/"+sessionID.String()+"/state", &state); code != http.StatusOK {
		t.Fatalf("GET state = %d", code)
	}
	if state.Snapshot.State != game.StateRunning || state.Snapshot.Round != 1 {
		t.Errorf("state = %+v", state.Snapshot)
	}

	var stats ConnectionStats
	g.getJSON(t, "/ws/stats", &stats)
	if stats.TotalConnections != 2 || stats.ActiveSessions != 1 {
		t.Errorf("stats = %+v", stats)
	}

	first.Close()
	second.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sessions = nil
		g.getJSON(t, "/api/sessions", &sessions)
		if len(sessions) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still live after all connections left: %+v", sessions)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if code := g.getJSON(t, "/api/sessions/"+sessionID.String()+"/state", nil); code != http.StatusNotFound {
		t.Errorf("GET state of closed session = %d, want 404", code)
	}
}

func TestGatewayRejectsJoinFromAnotherIdentity(t *testing.T) {
	g := newTestGateway(t)
	sessionID := uuid.New()

	owner := g.dial(t, sessionID, "0xAAA")
	expectEvent(t, owner, EventTypeSnapshot)
	expectEvent(t, owner, EventTypeRecordedScore)

	for _, identity := range []string{"0xbbb", ""} {
		conn, resp, err := websocket.DefaultDialer.Dial(g.wsURL(sessionID, identity), nil)
		if err == nil {
			conn.Close()
			t.Fatalf("identity %q joined a session opened by 0xaaa", identity)
		}
		if resp == nil || resp.StatusCode != http.StatusConflict {
			t.Fatalf("identity %q: response = %v, want 409", identity, resp)
		}
	}

	// Identities are compared after normalisation.
	again := g.dial(t, sessionID, "0xaaa")
	expectEvent(t, again, EventTypeSnapshot)
	expectEvent(t, again, EventTypeRecordedScore)
	expectEvent(t, owner, EventTypeRecordedScore)

	cm := g.svc.ConnectionManager()
	engine, ok := cm.Engine(sessionID)
	if !ok || engine.ID() != sessionID {
		t.Fatalf("engine for %s not found or has the wrong id", sessionID)
	}
	sessions := cm.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("sessions = %+v, want one", sessions)
	}
	if got := sessions[0]; got.SessionID != sessionID.String() || got.Identity != "0xaaa" || got.Connections != 2 {
		t.Errorf("session = %+v, want 0xaaa with two connections", got)
	}

	send(t, owner, ActionTrigger)
	if n := expectNotification(t, owner, EventTypeRoundStarted); n.Round != 1 || n.Stats.AttemptCount != 0 {
		t.Errorf("owner round = %+v", n)
	}
	expectNotification(t, again, EventTypeRoundStarted)
}

func TestGatewayRejectsBadInput(t *testing.T) {
	g := newTestGateway(t)

	if code := g.getJSON(t, "/api/sessions/not-a-uuid/state", nil); code != http.StatusBadRequest {
		t.Errorf("bad session id in state path = %d, want 400", code)
	}

	resp, err := http.Get(g.server.URL + "/ws/game?session_id=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad session_id = %d, want 400", resp.StatusCode)
	}

	conn := g.dial(t, uuid.New(), "")
	expectEvent(t, conn, EventTypeSnapshot)

	send(t, conn, "launch")
	event := expectEvent(t, conn, EventTypeError)
	var payload ErrorPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if payload.Message != `unknown action "launch"` {
		t.Errorf("error message = %q", payload.Message)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectEvent(t, conn, EventTypeError)
}

func TestGatewayHealth(t *testing.T) {
	g := newTestGateway(t)
	resp, err := http.Get(g.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}
}
