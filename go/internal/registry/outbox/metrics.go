package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
}
func (NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)           {}
func (NoOpMetricsCollector) RecordOutboxLag(lag int)                                          {}
func (NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {}

// LogMetrics keeps running totals and reports each sample as a zerolog event.
type LogMetrics struct {
	mu        sync.Mutex
	processed uint64
	failed    uint64
	lag       int
	lastEvent time.Time
}

func NewLogMetrics() *LogMetrics {
	return &LogMetrics{}
}

func (m *LogMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.mu.Lock()
	if success {
		m.processed++
		m.lastEvent = time.Now()
	} else {
		m.failed++
	}
	m.mu.Unlock()

	log.Debug().
		Str("event_type", eventType).
		Bool("success", success).
		Dur("duration", duration).
		Msg("outbox event processed")
}

func (m *LogMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	if count == 0 {
		return
	}
	log.Info().
		Int("count", count).
		Dur("duration", duration).
		Msg("outbox batch processed")
}

func (m *LogMetrics) RecordOutboxLag(lag int) {
	m.mu.Lock()
	m.lag = lag
	m.mu.Unlock()

	if lag > 0 {
		log.Debug().Int("lag", lag).Msg("outbox lag")
	}
}

func (m *LogMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	if attempt > 1 {
		log.Debug().
			Str("event_type", eventType).
			Int("attempt", attempt).
			Bool("success", success).
			Msg("outbox publish attempt")
	}
}

// Stats returns the number of published events, failed publishes, the last
// reported lag and the time of the last published event.
func (m *LogMetrics) Stats() (processed, failed uint64, lag int, lastEvent time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed, m.failed, m.lag, m.lastEvent
}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
	clock     clockwork.Clock
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := p.clock.Now()

	err := p.publisher.Publish(ctx, event)

	p.metrics.RecordEventProcessed(event.EventType, err == nil, p.clock.Since(start))
	return err
}
