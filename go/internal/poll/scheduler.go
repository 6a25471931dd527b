package poll

import (
	"sync"
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

// scheduledExpiry is the cancellable handle for one poll's deferred expiry.
type scheduledExpiry struct {
	pollID   string
	deadline time.Time
	timer    clockwork.Timer
	done     chan struct{}
}

// Scheduler keeps at most one deferred expiry per poll id.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	timers map[string]*scheduledExpiry
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]*scheduledExpiry),
	}
}

// Schedule arranges for fn(pollID) to run after d, replacing any expiry
// already pending for pollID. fn runs on its own goroutine.
func (s *Scheduler) Schedule(pollID string, d time.Duration, fn func(pollID string)) {
	if d < 0 {
		d = 0
	}
	h := &scheduledExpiry{
		pollID:   pollID,
		deadline: s.clock.Now().Add(d),
		timer:    s.clock.NewTimer(d),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if existing, ok := s.timers[pollID]; ok {
		existing.stop()
		log.Debug().Str("poll_id", pollID).Msg("replaced existing expiry timer")
	}
	s.timers[pollID] = h
	s.mu.Unlock()

	go func() {
		select {
		case <-h.timer.Chan():
			// A handle that was cancelled or replaced while we were waking up must not run.
			if !s.release(h) {
				return
			}
			log.Debug().Str("poll_id", pollID).Msg("expiry timer fired")
			fn(pollID)
		case <-h.done:
		}
	}()

	log.Debug().
		Str("poll_id", pollID).
		Time("deadline", h.deadline).
		Dur("duration", d).
		Msg("scheduled poll expiry")
}

// Cancel stops the pending expiry for pollID. Safe to call repeatedly.
func (s *Scheduler) Cancel(pollID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.timers[pollID]; ok {
		h.stop()
		delete(s.timers, pollID)
		log.Debug().Str("poll_id", pollID).Msg("cancelled expiry timer")
	}
}

// Pending reports whether an expiry is scheduled for pollID, and when.
func (s *Scheduler) Pending(pollID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.timers[pollID]
	if !ok {
		return time.Time{}, false
	}
	return h.deadline, true
}

// Stop cancels every pending expiry, used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.timers {
		h.stop()
		log.Debug().Str("poll_id", id).Msg("cancelled expiry timer on shutdown")
	}
	s.timers = make(map[string]*scheduledExpiry)
}

// release removes h if it is still the current handle for its poll.
func (s *Scheduler) release(h *scheduledExpiry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[h.pollID] != h {
		return false
	}
	delete(s.timers, h.pollID)
	return true
}

func (h *scheduledExpiry) stop() {
	stopAndDrainTimer(h.timer)
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
