package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// TimerScheduler keeps reminders as in-process timers keyed by user id.
type TimerScheduler struct {
	fire FireFunc
	log  logr.Logger

	mu      sync.Mutex
	timers  map[int64]*pending
	seq     uint64
	stopped bool
}

type pending struct {
	timer *time.Timer
	seq   uint64
}

// NewTimerScheduler returns a scheduler that calls fire when a reminder is due.
func NewTimerScheduler(fire FireFunc, log logr.Logger) *TimerScheduler {
	return &TimerScheduler{
		fire:   fire,
		log:    log.WithName("reminder"),
		timers: make(map[int64]*pending),
	}
}

func (s *TimerScheduler) Schedule(ctx context.Context, userID int64, productKey string, dueAt time.Time) error {
	// The reminder outlives the event that scheduled it.
	fireCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if prev, ok := s.timers[userID]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	s.timers[userID] = &pending{
		seq: seq,
		timer: time.AfterFunc(time.Until(dueAt), func() {
			if !s.claim(userID, seq) {
				return
			}
			s.log.V(1).Info("reminder due", "user_id", userID, "product", productKey)
			s.fire(fireCtx, userID, productKey, dueAt)
		}),
	}
	return nil
}

// claim removes the user's timer if it is still the one identified by seq.
// A timer that was replaced or cancelled after it started firing loses the claim.
func (s *TimerScheduler) claim(userID int64, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.timers[userID]
	if !ok || cur.seq != seq {
		return false
	}
	delete(s.timers, userID)
	return true
}

func (s *TimerScheduler) Cancel(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[userID]; ok {
		prev.timer.Stop()
		delete(s.timers, userID)
	}
}

// Pending returns the number of armed reminders.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending reminder and rejects new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
	s.stopped = true
}
