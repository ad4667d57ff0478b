// Package hotplug reports changes to the set of audio output devices.
package hotplug

import (
	"context"
	"errors"
	"path"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives one call per device-set change. The first call is made
// once the source is listening and carries added=true.
type Handler func(added bool)

// Source delivers audio device-set changes.
type Source interface {
	// Start blocks, delivering changes to handler until ctx is done.
	Start(ctx context.Context, handler Handler) error
}

// ErrUnsupported is returned by Monitor.Start where kernel uevents are unavailable.
var ErrUnsupported = errors.New("audio hot-plug monitoring is not supported on this platform")

var cardPattern = regexp.MustCompile(`^card[0-9]+$`)

// Change classifies a sound-subsystem uevent. A card produces several uevents
// (control, pcm, timer nodes); only the card itself counts as a change.
func Change(action string, env map[string]string) (added, ok bool) {
	if env["SUBSYSTEM"] != "sound" {
		return false, false
	}
	if !cardPattern.MatchString(path.Base(env["DEVPATH"])) {
		return false, false
	}
	switch action {
	case "add":
		return true, true
	case "remove":
		return false, true
	}
	return false, false
}

// Manual is a Source driven by the caller, for platforms without uevents
// and for tests.
type Manual struct {
	logger *logrus.Logger

	mu      sync.Mutex
	handler Handler
	ready   chan struct{}
}

// NewManual creates a manual source.
func NewManual(logger *logrus.Logger) *Manual {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manual{logger: logger, ready: make(chan struct{})}
}

func (m *Manual) Start(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	if m.handler != nil {
		m.mu.Unlock()
		return errors.New("manual hot-plug source already started")
	}
	m.handler = handler
	m.mu.Unlock()

	m.logger.Debug("Manual audio hot-plug source started")
	handler(true)
	close(m.ready)

	<-ctx.Done()

	m.mu.Lock()
	m.handler = nil
	m.mu.Unlock()
	return nil
}

// Ready is closed once Start has delivered the registration callback.
func (m *Manual) Ready() <-chan struct{} { return m.ready }

// Inject delivers a change. It reports false when the source is not running.
func (m *Manual) Inject(added bool) bool {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(added)
	return true
}
