// Package orchestrator drives the connect -> open chain for the MIDI
// peripheral and keeps at most one attempt and one open device alive.
//
// Every state change happens on a single owner loop. Asynchronous steps run
// on their own goroutines and post their result back tagged with the attempt
// id; results for an attempt that is no longer current are discarded and
// their resources released.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/loop"
	"github.com/srg/drumthumper/internal/metrics"
	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/registry"
	"github.com/srg/drumthumper/internal/transport"
)

// Navigator is told when a MIDI device becomes usable and when it goes away.
// Calls are made on the owner loop, one at a time.
type Navigator interface {
	OnOpened(dev *midi.Device)
	OnClosed()
}

// Connector establishes the transport. *transport.Connector satisfies it.
type Connector interface {
	Connect(ctx context.Context, address string) (*transport.Handle, error)
}

// Opener opens the MIDI device on a transport. *midi.Session satisfies it.
type Opener interface {
	Open(ctx context.Context, h *transport.Handle, sel midi.Selector) (*midi.Device, error)
}

// AdapterChecker reports whether the Bluetooth adapter can be used.
type AdapterChecker interface {
	Enabled(ctx context.Context) (bool, error)
}

// Phase names a step of a connection attempt, for progress reporting.
type Phase string

const (
	PhaseAdapter   Phase = "checking adapter"
	PhaseTransport Phase = "connecting"
	PhaseOpen      Phase = "opening MIDI device"
)

// Deps are the collaborators of an Orchestrator. Checker, Registry and
// Progress are optional.
type Deps struct {
	Connector Connector
	Opener    Opener
	Navigator Navigator
	Loop      *loop.Loop
	Registry  *registry.Registry
	Checker   AdapterChecker

	// Progress is called from attempt goroutines as each phase begins.
	Progress func(phase Phase)
}

// Orchestrator owns the single connection attempt and the open device.
type Orchestrator struct {
	address   string
	selector  midi.Selector
	connector Connector
	opener    Opener
	navigator Navigator
	loop      *loop.Loop
	registry  *registry.Registry
	checker   AdapterChecker
	progress  func(Phase)
	logger    *logrus.Logger

	state     atomic.Int32
	startOnce sync.Once
	stopOnce  sync.Once

	// owned by the loop
	baseCtx   context.Context
	stopped   bool
	attempt   uint64
	attemptID string
	cancel    context.CancelFunc
	startedAt time.Time
	handle    *transport.Handle
	device    *midi.Device
}

var _ registry.Callback = (*Orchestrator)(nil)

// New creates an orchestrator for the peripheral at address.
func New(address string, sel midi.Selector, deps Deps, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		address:   address,
		selector:  sel,
		connector: deps.Connector,
		opener:    deps.Opener,
		navigator: deps.Navigator,
		loop:      deps.Loop,
		registry:  deps.Registry,
		checker:   deps.Checker,
		progress:  deps.Progress,
		logger:    logger,
		baseCtx:   context.Background(),
	}
}

// Start binds attempts to ctx and registers for device notifications.
// The loop must already be running.
func (o *Orchestrator) Start(ctx context.Context) error {
	var err error
	o.startOnce.Do(func() {
		err = o.loop.Call(func() { o.baseCtx = ctx })
		if err != nil {
			return
		}
		if o.registry != nil {
			o.registry.Register(o)
		}
		o.logger.WithField("address", o.address).Debug("Orchestrator started")
	})
	return err
}

// Stop closes everything and stops reacting to requests. It waits for the
// teardown to finish on the loop.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.registry != nil {
			o.registry.Unregister(o)
		}
		if err := o.loop.Call(func() {
			o.close("stop")
			o.stopped = true
		}); err != nil {
			o.logger.WithField("error", err).Debug("Orchestrator loop already gone at stop")
		}
	})
}

// State returns the current connection state. Safe from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Connect starts a new attempt, superseding any attempt in flight and closing
// an open device first. It does not wait for the outcome.
func (o *Orchestrator) Connect() {
	if !o.loop.Post(o.connect) {
		o.logger.Warn("Connect requested after the loop stopped")
	}
}

// Close cancels the attempt in flight or closes the open device. Idempotent.
func (o *Orchestrator) Close() {
	if !o.loop.Post(func() { o.close("requested") }) {
		o.logger.Debug("Close requested after the loop stopped")
	}
}

// DeviceAdded is a registry notification. It is informational only.
func (o *Orchestrator) DeviceAdded(address string) {
	o.logger.WithField("address", address).Debug("Device added notification")
}

// DeviceRemoved closes the open device when it is the one that went away.
func (o *Orchestrator) DeviceRemoved(address string) {
	o.loop.Post(func() {
		if address != o.address || o.State() != Open {
			o.logger.WithFields(logrus.Fields{
				"address": address,
				"state":   o.State().String(),
			}).Debug("Ignoring removal of a device that is not open")
			return
		}
		o.logger.WithField("address", address).Warn("Open MIDI device was removed")
		o.close("device removed")
	})
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.logger.WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   s.String(),
		}).Debug("Connection state changed")
	}
}

func (o *Orchestrator) connect() {
	if o.stopped {
		o.logger.Debug("Orchestrator stopped, connect ignored")
		return
	}

	switch o.State() {
	case Connecting:
		metrics.ConnectAttemptsTotal.WithLabelValues("superseded").Inc()
		o.logger.WithField("attempt_id", o.attemptID).Info("Superseding connection attempt in flight")
		o.teardown()
	case Open:
		o.logger.Info("Closing open MIDI device before reconnecting")
		o.teardown()
		o.navigator.OnClosed()
	}

	o.attempt++
	id := o.attempt
	o.attemptID = uuid.NewString()
	o.startedAt = time.Now()

	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancel = cancel
	o.setState(Connecting)

	log := o.logger.WithFields(logrus.Fields{
		"address":    o.address,
		"attempt_id": o.attemptID,
	})
	log.Info("Connecting to MIDI peripheral...")

	loop.Go(ctx, "midi-connect", func(ctx context.Context) {
		o.run(ctx, id, log)
	})
}

// run executes one attempt off the loop and posts the outcome.
func (o *Orchestrator) run(ctx context.Context, id uint64, log *logrus.Entry) {
	if o.checker != nil {
		o.report(PhaseAdapter)
		enabled, err := o.checker.Enabled(ctx)
		if err == nil && !enabled {
			err = ErrAdapterDisabled
		}
		if err != nil {
			o.loop.Post(func() { o.failed(id, err) })
			return
		}
	}

	o.report(PhaseTransport)
	h, err := o.connector.Connect(ctx, o.address)
	if err != nil {
		o.loop.Post(func() { o.failed(id, err) })
		return
	}

	o.report(PhaseOpen)
	dev, err := o.opener.Open(ctx, h, o.selector)
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			log.WithField("error", cerr).Warn("Failed to release transport after open failure")
		}
		o.loop.Post(func() { o.failed(id, err) })
		return
	}

	if !o.loop.Post(func() { o.opened(id, h, dev) }) {
		dev.Close()
		_ = h.Close()
	}
}

func (o *Orchestrator) report(p Phase) {
	if o.progress != nil {
		o.progress(p)
	}
}

func (o *Orchestrator) opened(id uint64, h *transport.Handle, dev *midi.Device) {
	if id != o.attempt || o.stopped {
		metrics.StaleCallbacksTotal.Inc()
		o.logger.WithField("address", h.Address()).Debug("Discarding device opened by a superseded attempt")
		dev.Close()
		_ = h.Close()
		return
	}

	o.cancel = nil
	o.handle = h
	o.device = dev
	o.setState(Open)

	if o.registry != nil {
		o.registry.Track(h.Address(), h.Disconnected())
	}

	metrics.ConnectAttemptsTotal.WithLabelValues("opened").Inc()
	metrics.ConnectDuration.Observe(time.Since(o.startedAt).Seconds())
	metrics.DeviceOpen.Set(1)
	o.logger.WithFields(logrus.Fields{
		"address":      h.Address(),
		"attempt_id":   o.attemptID,
		"mtu":          h.MTU(),
		"output_ports": dev.OutputPorts(),
	}).Info("MIDI device opened")

	o.navigator.OnOpened(dev)
}

func (o *Orchestrator) failed(id uint64, err error) {
	if id != o.attempt {
		metrics.StaleCallbacksTotal.Inc()
		o.logger.WithField("error", err).Debug("Discarding failure of a superseded attempt")
		return
	}

	step := failureStep(err)
	result := "failed"
	if errors.Is(err, context.Canceled) {
		result = "cancelled"
	}
	metrics.ConnectAttemptsTotal.WithLabelValues(result).Inc()
	metrics.ConnectFailuresTotal.WithLabelValues(step).Inc()
	o.logger.WithFields(logrus.Fields{
		"address":    o.address,
		"attempt_id": o.attemptID,
		"step":       step,
		"error":      err,
	}).Error("MIDI connection failed")

	o.teardown()
	o.navigator.OnClosed()
}

// close tears down and notifies the navigator when something was live.
func (o *Orchestrator) close(reason string) {
	prev := o.State()
	if prev == Idle {
		o.logger.WithField("reason", reason).Debug("Already closed")
		return
	}
	if prev == Connecting {
		metrics.ConnectAttemptsTotal.WithLabelValues("cancelled").Inc()
	}
	o.logger.WithFields(logrus.Fields{
		"reason": reason,
		"state":  prev.String(),
	}).Info("Closing MIDI connection")

	o.teardown()
	o.navigator.OnClosed()
}

// teardown cancels the current attempt and releases the device and the
// transport. It leaves the state Idle and never notifies.
func (o *Orchestrator) teardown() {
	// any result still in flight now belongs to a stale attempt
	o.attempt++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}

	if o.device != nil || o.handle != nil {
		o.setState(Closing)
		o.device.Close()
		o.device = nil
		if o.registry != nil && o.handle != nil {
			o.registry.Untrack(o.handle.Address())
		}
		if err := o.handle.Close(); err != nil {
			o.logger.WithField("error", err).Warn("Failed to release transport")
		}
		o.handle = nil
		metrics.DeviceOpen.Set(0)
	}
	o.setState(Idle)
}
