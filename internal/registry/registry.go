// Package registry reports MIDI peripherals appearing and disappearing.
//
// The registry tracks every link the orchestrator opens and watches its
// disconnect channel; a dropped link becomes a DeviceRemoved notification for
// every registered callback.
package registry

import (
	"context"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/loop"
)

// Callback receives device add/remove notifications. Notifications arrive on
// registry goroutines; receivers marshal them onto their own owner goroutine.
type Callback interface {
	DeviceAdded(address string)
	DeviceRemoved(address string)
}

type trackedDevice struct {
	address string
	cancel  context.CancelFunc
}

// Registry keeps the set of tracked devices and registered callbacks.
type Registry struct {
	logger  *logrus.Logger
	devices *hashmap.Map[string, *trackedDevice]

	mu        sync.RWMutex
	callbacks []Callback
}

// New creates an empty registry.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		logger:  logger,
		devices: hashmap.New[string, *trackedDevice](),
	}
}

// Register adds cb to the notification set. Registering the same callback
// twice has no effect.
func (r *Registry) Register(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.callbacks {
		if existing == cb {
			return
		}
	}
	r.callbacks = append(r.callbacks, cb)
	r.logger.WithField("callbacks", len(r.callbacks)).Debug("Device callback registered")
}

// Unregister removes cb. Unknown callbacks are ignored.
func (r *Registry) Unregister(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.callbacks {
		if existing == cb {
			r.callbacks = append(r.callbacks[:i], r.callbacks[i+1:]...)
			r.logger.WithField("callbacks", len(r.callbacks)).Debug("Device callback unregistered")
			return
		}
	}
}

// Track announces address as added and reports it removed when disconnected is
// closed. Tracking an address again replaces the previous watch. A nil channel
// means the platform cannot report disconnection; only Untrack ends the watch.
func (r *Registry) Track(address string, disconnected <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	dev := &trackedDevice{address: address, cancel: cancel}

	if prev, ok := r.devices.Get(address); ok {
		prev.cancel()
	}
	r.devices.Set(address, dev)

	r.logger.WithField("address", address).Info("MIDI device added")
	r.each(func(cb Callback) { cb.DeviceAdded(address) })

	loop.Go(ctx, "midi-device-monitor", func(monitorCtx context.Context) {
		select {
		case <-disconnected:
			current, ok := r.devices.Get(address)
			if !ok || current != dev {
				return
			}
			r.devices.Del(address)
			r.logger.WithField("address", address).Warn("MIDI device removed: peripheral dropped the link")
			r.each(func(cb Callback) { cb.DeviceRemoved(address) })
		case <-monitorCtx.Done():
			// untracked or replaced
		}
	})
}

// Untrack stops watching address without notifying callbacks.
func (r *Registry) Untrack(address string) {
	dev, ok := r.devices.Get(address)
	if !ok {
		return
	}
	dev.cancel()
	r.devices.Del(address)
	r.logger.WithField("address", address).Debug("MIDI device untracked")
}

// Tracked reports whether address is currently watched.
func (r *Registry) Tracked(address string) bool {
	_, ok := r.devices.Get(address)
	return ok
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	return r.devices.Len()
}

func (r *Registry) each(fn func(Callback)) {
	r.mu.RLock()
	callbacks := make([]Callback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	for _, cb := range callbacks {
		fn(cb)
	}
}
