package transport

import (
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// Handle owns an established link: negotiated MTU and discovered profile.
// It is invalid once Close has been called.
type Handle struct {
	link         Link
	address      string
	requestedMTU int
	mtu          int
	profile      *ble.Profile
	logger       *logrus.Logger

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// NewHandle wraps an already connected link.
func NewHandle(link Link, address string, requestedMTU, mtu int, profile *ble.Profile, logger *logrus.Logger) *Handle {
	if logger == nil {
		logger = logrus.New()
	}
	if profile == nil {
		profile = &ble.Profile{}
	}
	return &Handle{
		link:         link,
		address:      address,
		requestedMTU: requestedMTU,
		mtu:          mtu,
		profile:      profile,
		logger:       logger,
	}
}

// Address returns the peripheral address the link was dialed with.
func (h *Handle) Address() string { return h.address }

// MTU returns the negotiated transfer-unit size, which may be smaller than requested.
func (h *Handle) MTU() int { return h.mtu }

// RequestedMTU returns the transfer-unit size asked for during negotiation.
func (h *Handle) RequestedMTU() int { return h.requestedMTU }

// Profile returns the discovered GATT profile.
func (h *Handle) Profile() *ble.Profile { return h.profile }

// Link returns the underlying GATT client.
func (h *Handle) Link() Link { return h.link }

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	if h == nil {
		return true
	}
	return h.closed.Load()
}

// FindService returns the discovered service matching uuid, or nil.
func (h *Handle) FindService(uuid ble.UUID) *ble.Service {
	for _, svc := range h.profile.Services {
		if svc.UUID.Equal(uuid) {
			return svc
		}
	}
	return nil
}

// Disconnected returns a channel closed by the BLE stack when the peripheral
// drops the link. On platforms whose client does not report disconnection the
// returned channel is nil and never fires.
func (h *Handle) Disconnected() <-chan struct{} {
	if dc, ok := h.link.(interface{ Disconnected() <-chan struct{} }); ok {
		return dc.Disconnected()
	}
	return nil
}

// Close cancels the link. Only the first call reaches the BLE stack; later
// calls return the same result. Safe on a nil handle.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.logger.WithField("address", h.address).Debug("Cancelling BLE connection...")
		if err := h.link.CancelConnection(); err != nil {
			h.closeErr = NormalizeError(err)
			h.logger.WithFields(logrus.Fields{
				"address": h.address,
				"error":   err,
			}).Warn("Failed to cancel BLE connection")
			return
		}
		h.logger.WithField("address", h.address).Info("BLE connection released")
	})
	return h.closeErr
}
