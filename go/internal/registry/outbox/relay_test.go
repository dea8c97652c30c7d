package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type memStore struct {
	mu     sync.Mutex
	events []OutboxEvent
	sent   map[uuid.UUID]bool
	err    error
}

func newMemStore(events ...OutboxEvent) *memStore {
	return &memStore{events: events, sent: make(map[uuid.UUID]bool)}
}

func (s *memStore) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, e := range s.events {
		if e.ID == id && !s.sent[id] {
			ev := e
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *memStore) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []OutboxEvent
	for _, e := range s.events {
		if !s.sent[e.ID] && int32(len(out)) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

func (s *memStore) CountUnsentOutbox(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if !s.sent[e.ID] {
			n++
		}
	}
	return n, nil
}

func (s *memStore) isSent(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[id]
}

type fakePublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	failures  map[uuid.UUID]int // remaining failures per event
	always    bool
}

func (p *fakePublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.always {
		return errors.New("nats: no responders available for request")
	}
	if p.failures[event.ID] > 0 {
		p.failures[event.ID]--
		return errors.New("nats: timeout")
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type countingMetrics struct {
	mu       sync.Mutex
	attempts []bool
	batches  []int
	lag      int
}

func (m *countingMetrics) RecordEventProcessed(string, bool, time.Duration) {}
func (m *countingMetrics) RecordBatchProcessed(count int, _ time.Duration) {
	m.mu.Lock()
	m.batches = append(m.batches, count)
	m.mu.Unlock()
}
func (m *countingMetrics) RecordOutboxLag(lag int) {
	m.mu.Lock()
	m.lag = lag
	m.mu.Unlock()
}
func (m *countingMetrics) RecordPublishAttempt(_ string, _ int, success bool) {
	m.mu.Lock()
	m.attempts = append(m.attempts, success)
	m.mu.Unlock()
}

func newEvent(eventType string) OutboxEvent {
	return OutboxEvent{
		ID:        uuid.New(),
		Identity:  "0xuser1",
		EventType: eventType,
		Payload:   json.RawMessage(`{"score":237}`),
		CreatedAt: time.Now(),
	}
}

func testConfig() ListenerConfig {
	cfg := DefaultListenerConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = 100 * time.Millisecond
	cfg.BatchSize = 10
	return cfg
}

func TestRelayHandleNotification(t *testing.T) {
	ev := newEvent("ScoreSubmitted")
	store := newMemStore(ev)
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, nil, clockwork.NewFakeClock(), testConfig())

	if err := relay.HandleNotification(context.Background(), ev.ID.String()); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d events, want 1", pub.count())
	}
	if !store.isSent(ev.ID) {
		t.Error("event not marked sent")
	}

	// A second notification for the same id is a no-op.
	if err := relay.HandleNotification(context.Background(), ev.ID.String()); err != nil {
		t.Fatalf("HandleNotification (repeat): %v", err)
	}
	if pub.count() != 1 {
		t.Errorf("published %d events after repeat, want 1", pub.count())
	}
}

func TestRelayHandleNotificationBadID(t *testing.T) {
	relay := NewRelay(newMemStore(), &fakePublisher{}, nil, clockwork.NewFakeClock(), testConfig())
	if err := relay.HandleNotification(context.Background(), "not-a-uuid"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestRelayRetriesWithBackoff(t *testing.T) {
	ev := newEvent("ScoreCleared")
	store := newMemStore(ev)
	pub := &fakePublisher{failures: map[uuid.UUID]int{ev.ID: 2}}
	metrics := &countingMetrics{}
	clock := clockwork.NewFakeClock()
	relay := NewRelay(store, pub, metrics, clock, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- relay.HandleNotification(ctx, ev.ID.String()) }()

	// Delays grow linearly: 100ms then 200ms.
	for _, d := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond} {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("waiting for retry timer: %v", err)
		}
		clock.Advance(d)
	}

	if err := <-done; err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if !store.isSent(ev.ID) {
		t.Error("event not marked sent after retries")
	}

	want := []bool{false, false, true}
	if len(metrics.attempts) != len(want) {
		t.Fatalf("attempts = %v, want %v", metrics.attempts, want)
	}
	for i := range want {
		if metrics.attempts[i] != want[i] {
			t.Errorf("attempt %d success = %v, want %v", i+1, metrics.attempts[i], want[i])
		}
	}
}

func TestRelayGivesUpAfterMaxRetries(t *testing.T) {
	ev := newEvent("ScoreSubmitted")
	store := newMemStore(ev)
	cfg := testConfig()
	cfg.MaxRetries = 0
	relay := NewRelay(store, &fakePublisher{always: true}, nil, clockwork.NewFakeClock(), cfg)

	if err := relay.HandleNotification(context.Background(), ev.ID.String()); err == nil {
		t.Fatal("expected error when every publish fails")
	}
	if store.isSent(ev.ID) {
		t.Error("failed event must stay unsent")
	}
}

func TestRelayRetryHonorsCancellation(t *testing.T) {
	ev := newEvent("ScoreSubmitted")
	relay := NewRelay(newMemStore(ev), &fakePublisher{always: true}, nil, clockwork.NewFakeClock(), testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := relay.HandleNotification(ctx, ev.ID.String())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRelayProcessUnsent(t *testing.T) {
	good1 := newEvent("ScoreSubmitted")
	bad := newEvent("PauseStateChanged")
	good2 := newEvent("ScoreCleared")
	store := newMemStore(good1, bad, good2)

	cfg := testConfig()
	cfg.MaxRetries = 0
	pub := &fakePublisher{failures: map[uuid.UUID]int{bad.ID: 1}}
	metrics := &countingMetrics{}
	relay := NewRelay(store, pub, metrics, clockwork.NewFakeClock(), cfg)

	sent, err := relay.ProcessUnsent(context.Background())
	if err != nil {
		t.Fatalf("ProcessUnsent: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	if metrics.lag != 3 {
		t.Errorf("lag = %d, want 3", metrics.lag)
	}
	if store.isSent(bad.ID) {
		t.Error("failed event marked sent")
	}

	// The failed event goes out on the next poll.
	sent, err = relay.ProcessUnsent(context.Background())
	if err != nil {
		t.Fatalf("ProcessUnsent: %v", err)
	}
	if sent != 1 || !store.isSent(bad.ID) {
		t.Errorf("second poll sent %d, bad event sent = %v", sent, store.isSent(bad.ID))
	}
	if len(metrics.batches) != 2 || metrics.batches[0] != 2 || metrics.batches[1] != 1 {
		t.Errorf("batches = %v, want [2 1]", metrics.batches)
	}
}

func TestRelayProcessUnsentStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	relay := NewRelay(store, &fakePublisher{}, nil, clockwork.NewFakeClock(), testConfig())

	if _, err := relay.ProcessUnsent(context.Background()); err == nil {
		t.Fatal("expected error from store")
	}
}
