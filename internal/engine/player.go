package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
)

var (
	ErrNotSetUp     = errors.New("audio stream not set up")
	ErrAlreadySetUp = errors.New("audio stream already set up")
)

// PadListener is notified when incoming MIDI hits a pad.
type PadListener func(d Drum)

// Stats is a snapshot of the player counters.
type Stats struct {
	Triggers   [NumSamples]int64
	Restarts   int64
	StreamOpen bool
}

// Player is an in-process Engine. It keeps the stream state machine the
// recovery logic depends on without producing sound.
type Player struct {
	logger *logrus.Logger

	mu         sync.Mutex
	setUp      bool
	streamOpen bool
	onPad      PadListener

	outputReset atomic.Bool
	triggers    [NumSamples]atomic.Int64
	restarts    atomic.Int64
	dropped     atomic.Int64
}

var _ Engine = (*Player)(nil)

// NewPlayer creates a player with the stream torn down.
func NewPlayer(logger *logrus.Logger) *Player {
	if logger == nil {
		logger = logrus.New()
	}
	return &Player{logger: logger}
}

// SetPadListener installs fn as the pad feedback callback. nil removes it.
func (p *Player) SetPadListener(fn PadListener) {
	p.mu.Lock()
	p.onPad = fn
	p.mu.Unlock()
}

func (p *Player) Setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setUp {
		return ErrAlreadySetUp
	}
	p.setUp = true
	p.streamOpen = true
	p.logger.WithFields(logrus.Fields{
		"samples":     NumSamples,
		"channels":    NumChannels,
		"sample_rate": SampleRate,
	}).Info("Audio stream set up")
	return nil
}

func (p *Player) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.setUp {
		return ErrNotSetUp
	}
	p.setUp = false
	p.streamOpen = false
	p.logger.Info("Audio stream torn down")
	return nil
}

// Trigger plays d. Triggers while the stream is closed are dropped.
func (p *Player) Trigger(d Drum) {
	if d < 0 || int(d) >= NumSamples {
		p.logger.WithField("drum", int(d)).Warn("Ignoring trigger for unknown sample")
		return
	}
	p.mu.Lock()
	open := p.streamOpen
	p.mu.Unlock()
	if !open {
		p.dropped.Add(1)
		p.logger.WithField("drum", d.String()).Debug("Audio stream closed, trigger dropped")
		return
	}
	p.triggers[d].Add(1)
}

func (p *Player) OutputReset() bool { return p.outputReset.Load() }

func (p *Player) ClearOutputReset() { p.outputReset.Store(false) }

// RestartStream resets every sample and reopens the stream.
func (p *Player) RestartStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.setUp {
		return ErrNotSetUp
	}
	p.streamOpen = true
	p.restarts.Add(1)
	p.logger.WithField("restarts", p.restarts.Load()).Info("Audio stream restarted")
	return nil
}

// StreamFailed simulates the stream's error-after-close callback fired when
// the output device disappears. With selfHeal the stream reopens on its own
// and raises the reset flag; without it the stream stays closed until
// RestartStream.
func (p *Player) StreamFailed(selfHeal bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.setUp {
		return
	}
	if selfHeal {
		p.streamOpen = true
		p.outputReset.Store(true)
		p.logger.Info("Audio stream reopened after output change")
		return
	}
	p.streamOpen = false
	p.logger.Warn("Audio stream closed after output change")
}

// OnMessage plays the sample for msg and lights its pad. Safe to call from
// the MIDI reader goroutine.
func (p *Player) OnMessage(msg midi.Message) {
	if d, ok := SampleForNote(msg); ok {
		p.Trigger(d)
	}
	if d, ok := PadForNote(msg); ok {
		p.mu.Lock()
		fn := p.onPad
		p.mu.Unlock()
		if fn != nil {
			fn(d)
		}
	}
}

// Stats returns the current counters.
func (p *Player) Stats() Stats {
	var s Stats
	for i := range p.triggers {
		s.Triggers[i] = p.triggers[i].Load()
	}
	s.Restarts = p.restarts.Load()
	p.mu.Lock()
	s.StreamOpen = p.streamOpen
	p.mu.Unlock()
	return s
}

// Dropped returns how many triggers arrived while the stream was closed.
func (p *Player) Dropped() int64 { return p.dropped.Load() }
