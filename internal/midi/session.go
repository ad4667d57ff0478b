// Package midi opens a logical MIDI device over an established BLE transport.
//
// A device is usable only if it exposes at least one output port, i.e. a
// BLE-MIDI I/O characteristic the peripheral can notify on. Reading a port
// decodes BLE-MIDI packets into MIDI messages and hands them to a Handler.
package midi

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/transport"
)

// DefaultBufferSize is the per-port message buffer used when none is configured.
const DefaultBufferSize = 128

// BLE-MIDI service and I/O characteristic
var (
	ServiceUUID = ble.MustParse("03B80E5A-EDE8-4B33-A751-6CE34EC4C700")
	IOCharUUID  = ble.MustParse("7772E5DB-3868-4112-A1A9-F2669D106BF3")
)

// Selector picks the MIDI device within a transport's discovered profile.
// Zero-value fields fall back to the standard BLE-MIDI UUIDs.
type Selector struct {
	Service        ble.UUID
	Characteristic ble.UUID
}

// DefaultSelector selects the standard BLE-MIDI service.
func DefaultSelector() Selector {
	return Selector{Service: ServiceUUID, Characteristic: IOCharUUID}
}

func (s Selector) withDefaults() Selector {
	if len(s.Service) == 0 {
		s.Service = ServiceUUID
	}
	if len(s.Characteristic) == 0 {
		s.Characteristic = IOCharUUID
	}
	return s
}

// Session opens and closes MIDI devices.
type Session struct {
	logger     *logrus.Logger
	bufferSize int
}

// NewSession creates a session. bufferSize <= 0 selects DefaultBufferSize.
func NewSession(bufferSize int, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Session{logger: logger, bufferSize: bufferSize}
}

// Open opens the MIDI device selected by sel over h. The returned device is
// ready; a device reporting zero output ports is closed immediately and
// ErrNoOutputPort returned. The caller keeps ownership of h.
func (s *Session) Open(ctx context.Context, h *transport.Handle, sel Selector) (*Device, error) {
	if h.Closed() {
		return nil, &OpenError{Kind: DeviceOpenFailed, Err: transport.ErrHandleClosed}
	}
	address := h.Address()
	if err := ctx.Err(); err != nil {
		return nil, &OpenError{Kind: DeviceOpenFailed, Address: address, Err: err}
	}

	sel = sel.withDefaults()
	s.logger.WithFields(logrus.Fields{
		"address": address,
		"service": sel.Service.String(),
	}).Debug("Opening MIDI device...")

	dev := &Device{
		address:    address,
		mtu:        h.MTU(),
		link:       h.Link(),
		ports:      outputPorts(h, sel),
		readers:    make(map[int]*portReader),
		bufferSize: s.bufferSize,
		logger:     s.logger,
	}

	s.logger.WithFields(logrus.Fields{
		"address":      address,
		"output_ports": len(dev.ports),
		"mtu":          dev.mtu,
	}).Info("MIDI device ready")

	if len(dev.ports) == 0 {
		dev.Close()
		return nil, &OpenError{
			Kind:    NoOutputPort,
			Address: address,
			Err:     fmt.Errorf("service %s exposes no notifiable characteristic %s", sel.Service, sel.Characteristic),
		}
	}

	// the caller may have given up while the device was opening
	if err := ctx.Err(); err != nil {
		dev.Close()
		return nil, &OpenError{Kind: DeviceOpenFailed, Address: address, Err: err}
	}
	return dev, nil
}

// Close closes d. Closing a nil or already closed device is a no-op.
func (s *Session) Close(d *Device) {
	d.Close()
}

// outputPorts lists the characteristics the peripheral can send MIDI on.
func outputPorts(h *transport.Handle, sel Selector) []*ble.Characteristic {
	svc := h.FindService(sel.Service)
	if svc == nil {
		return nil
	}
	var ports []*ble.Characteristic
	for _, c := range svc.Characteristics {
		if !c.UUID.Equal(sel.Characteristic) {
			continue
		}
		if c.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
			continue
		}
		ports = append(ports, c)
	}
	return ports
}

// IsOpenError reports whether err is an OpenError of the given kind
func IsOpenError(err error, kind OpenErrorKind) bool {
	var oerr *OpenError
	if errors.As(err, &oerr) {
		return oerr.Kind == kind
	}
	return false
}
