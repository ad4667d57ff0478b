// Package loop provides the single owner goroutine that all orchestration state
// is mutated on.
//
// Asynchronous work (BLE I/O, device-open completion, timers, hot-plug events)
// completes on arbitrary goroutines and hands its result to the owner through
// Post. Code running inside a posted function may touch owner state without
// further locking.
package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the task buffer used when New is given a non-positive size.
const DefaultQueueSize = 64

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("loop stopped")

// Executor accepts work to run on the owner goroutine.
type Executor interface {
	// Post schedules fn. It returns false when fn will never run.
	Post(fn func()) bool
}

// Loop runs posted functions one at a time, in posting order.
type Loop struct {
	name   string
	tasks  chan func()
	done   chan struct{}
	logger *logrus.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
}

// New creates a loop. Call Start to begin processing.
func New(name string, queueSize int, logger *logrus.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		name:   name,
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the owner goroutine. The loop exits when ctx is cancelled or
// Stop is called. Calling Start more than once has no effect.
func (l *Loop) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		Go(ctx, l.name, l.run)
	})
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	l.logger.WithField("loop", l.name).Debug("Owner loop started")
	for {
		select {
		case fn := <-l.tasks:
			l.invoke(fn)
		case <-l.quit:
			l.logger.WithField("loop", l.name).Debug("Owner loop stopped")
			return
		case <-ctx.Done():
			l.logger.WithField("loop", l.name).Debug("Owner loop context cancelled")
			return
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(logrus.Fields{
				"loop":  l.name,
				"panic": r,
			}).Error("Recovered panic in owner loop task")
		}
	}()
	fn()
}

// Post queues fn for the owner goroutine. It blocks only while the queue is full
// and returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	case <-l.quit:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	case <-l.quit:
		return false
	}
}

// Call posts fn and waits for it to complete.
// It must not be called from the owner goroutine.
func (l *Loop) Call(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Stop asks the owner goroutine to exit and waits for it if it was started.
// Tasks still queued are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	// never started: nothing to wait for
	l.startOnce.Do(func() {
		close(l.done)
	})
	<-l.done
}

// Done is closed once the owner goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
