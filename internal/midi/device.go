package midi

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/loop"
	"github.com/srg/drumthumper/internal/metrics"
	"github.com/srg/drumthumper/internal/transport"
	"gitlab.com/gomidi/midi/v2"
)

// Handler receives decoded MIDI messages from an output port.
type Handler func(msg midi.Message)

type portReader struct {
	char     *ble.Characteristic
	indicate bool
	ring     *RingChannel[midi.Message]
}

// Device is an opened logical MIDI device.
type Device struct {
	address    string
	mtu        int
	link       transport.Link
	ports      []*ble.Characteristic
	bufferSize int
	logger     *logrus.Logger

	mu      sync.Mutex
	readers map[int]*portReader
	closed  bool
}

// Address returns the peripheral address the device was opened on.
func (d *Device) Address() string { return d.address }

// MTU returns the transfer-unit size negotiated for the underlying link.
func (d *Device) MTU() int { return d.mtu }

// OutputPorts returns the number of ports the device sends MIDI on.
func (d *Device) OutputPorts() int {
	if d == nil {
		return 0
	}
	return len(d.ports)
}

// Closed reports whether the device has been closed.
func (d *Device) Closed() bool {
	if d == nil {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// OpenOutputPort starts reading MIDI from port and delivers each message to
// handler on a dedicated goroutine, in arrival order. When handler falls behind
// the oldest undelivered messages are dropped.
func (d *Device) OpenOutputPort(port int, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for MIDI port %d", port)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if port < 0 || port >= len(d.ports) {
		return fmt.Errorf("%w: %d (device has %d)", ErrPortOutOfRange, port, len(d.ports))
	}
	if _, ok := d.readers[port]; ok {
		return fmt.Errorf("%w: %d", ErrPortAlreadyOpen, port)
	}

	char := d.ports[port]
	r := &portReader{
		char:     char,
		indicate: char.Property&ble.CharNotify == 0,
		ring:     NewRingChannel[midi.Message](d.bufferSize),
	}

	log := d.logger.WithFields(logrus.Fields{
		"address": d.address,
		"port":    port,
	})

	if err := d.link.Subscribe(char, r.indicate, func(data []byte) {
		d.receive(log, r, data)
	}); err != nil {
		r.ring.Close()
		log.WithField("error", err).Error("Failed to subscribe to MIDI port")
		return fmt.Errorf("failed to subscribe to MIDI port %d: %w", port, transport.NormalizeError(err))
	}

	loop.Go(context.Background(), fmt.Sprintf("midi-port-%d-reader", port), func(context.Context) {
		for msg := range r.ring.C() {
			handler(msg)
		}
	})

	d.readers[port] = r
	log.Info("MIDI output port opened")
	return nil
}

func (d *Device) receive(log *logrus.Entry, r *portReader, data []byte) {
	msgs, err := DecodePacket(data)
	if err != nil {
		metrics.MIDIMessagesTotal.WithLabelValues("malformed").Inc()
		log.WithFields(logrus.Fields{
			"error":  err,
			"packet": fmt.Sprintf("% X", data),
		}).Debug("Discarding malformed BLE-MIDI packet")
	}
	for _, msg := range msgs {
		if r.ring.Send(msg) {
			metrics.MIDIMessagesTotal.WithLabelValues("dropped").Inc()
		}
		metrics.MIDIMessagesTotal.WithLabelValues("received").Inc()
	}
}

// Close stops every open port and marks the device closed. Unsubscribe
// failures are logged; the device counts as released regardless.
// Safe on a nil device and more than once.
func (d *Device) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.WithField("address", d.address).Debug("MIDI device already closed")
		return
	}
	d.closed = true
	readers := d.readers
	d.readers = make(map[int]*portReader)
	d.mu.Unlock()

	for port, r := range readers {
		if err := d.link.Unsubscribe(r.char, r.indicate); err != nil {
			d.logger.WithFields(logrus.Fields{
				"address": d.address,
				"port":    port,
				"error":   err,
			}).Warn("Failed to unsubscribe MIDI port during close")
		}
		r.ring.Close()
	}

	d.logger.WithFields(logrus.Fields{
		"address": d.address,
		"ports":   len(readers),
	}).Info("MIDI device closed")
}
