package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// pendingStep is the single outstanding timer of an engine.
type pendingStep struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// scheduleLocked arms a one-shot timer that runs step under the engine lock
// once it fires, provided the round it was armed for is still running.
// Any previously armed timer is cancelled first. Caller holds e.mu.
func (e *Engine) scheduleLocked(d time.Duration, round uint64, step func()) {
	e.cancelPendingLocked()

	p := &pendingStep{
		timer:  e.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	e.pending = p

	go func() {
		select {
		case <-p.timer.Chan():
			e.mu.Lock()
			defer e.mu.Unlock()

			if e.pending == p {
				e.pending = nil
			}
			// Guard on resume: a jump start or a newer round supersedes this step.
			if e.closed || e.round != round || e.state != StateRunning {
				log.Debug().
					Str("session_id", e.id.String()).
					Uint64("round", round).
					Msg("discarding stale sequence step")
				if e.onDiscard != nil {
					e.onDiscard(round)
				}
				return
			}
			step()
		case <-p.cancel:
		}
	}()

	log.Debug().
		Str("session_id", e.id.String()).
		Uint64("round", round).
		Dur("delay", d).
		Msg("scheduled sequence step")
}

// cancelPendingLocked stops the outstanding timer, if any. Caller holds e.mu.
func (e *Engine) cancelPendingLocked() {
	if e.pending == nil {
		return
	}
	stopAndDrainTimer(e.pending.timer)
	close(e.pending.cancel)
	e.pending = nil
}

// stopAndDrainTimer stops a timer and drains its channel so a fired but
// unread value cannot leak into a later select.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
