// Package scheduler runs cancellable one-shot delayed actions.
package scheduler

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Token is a handle to a pending delayed action.
type Token struct {
	id        uint64
	name      string
	scheduler *Scheduler
	timer     clockwork.Timer
}

// Name returns the name the action was scheduled with.
func (t *Token) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

// Cancel prevents the action from running. It reports whether the action was
// still pending. Safe to call on a nil token and more than once.
func (t *Token) Cancel() bool {
	if t == nil || t.scheduler == nil {
		return false
	}
	s := t.scheduler
	s.mu.Lock()
	timer := t.timer
	s.mu.Unlock()
	// Forgetting the id is what guarantees the action never runs, even when
	// the timer is not armed yet.
	removed := s.forget(t.id)
	stopped := removed
	if timer != nil {
		stopped = timer.Stop() && removed
	}
	if stopped {
		t.scheduler.logger.WithField("action", t.name).Debug("Scheduled action cancelled")
	}
	return stopped
}

// Scheduler schedules single delayed actions against an injected clock.
type Scheduler struct {
	clock  clockwork.Clock
	logger *logrus.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*Token
	stopped bool
}

// New creates a scheduler. A nil clock means the real wall clock.
func New(clock clockwork.Clock, logger *logrus.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		pending: make(map[uint64]*Token),
	}
}

// Schedule runs fn once after delay, on a clock goroutine. fn must re-check any
// precondition it depends on: state may have changed since scheduling.
// After Stop, Schedule returns a token that never fires.
func (s *Scheduler) Schedule(name string, delay time.Duration, fn func()) *Token {
	s.mu.Lock()
	s.nextID++
	token := &Token{id: s.nextID, name: name, scheduler: s}
	if s.stopped {
		s.mu.Unlock()
		s.logger.WithField("action", name).Debug("Scheduler stopped, action dropped")
		return token
	}
	s.pending[token.id] = token
	s.mu.Unlock()

	id := token.id
	timer := s.clock.AfterFunc(delay, func() {
		if !s.forget(id) {
			return
		}
		s.logger.WithField("action", name).Debug("Scheduled action firing")
		fn()
	})

	s.mu.Lock()
	token.timer = timer
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"action": name,
		"delay":  delay,
	}).Debug("Action scheduled")
	return token
}

// forget removes the token from the pending set and reports whether it was there.
func (s *Scheduler) forget(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// Pending returns the number of actions that have neither fired nor been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending action. Later Schedule calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	tokens := make([]*Token, 0, len(s.pending))
	for _, t := range s.pending {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	for _, t := range tokens {
		t.Cancel()
	}
}
