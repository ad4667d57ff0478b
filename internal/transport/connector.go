// Package transport establishes the BLE link to the MIDI peripheral.
//
// Connect runs three fallible steps in order: dial the link, negotiate the
// transfer unit (MTU), discover the GATT profile. A failure or cancellation at
// any step releases the partially established link before returning.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/loop"
)

const (
	// DefaultRequestMTU is the largest ATT MTU a BLE 4.2+ link can carry.
	DefaultRequestMTU = 517

	// MinimumMTU is the ATT default every link supports.
	MinimumMTU = 23

	DefaultConnectTimeout = 30 * time.Second
)

// Options configures the connect chain.
type Options struct {
	RequestMTU     int
	ConnectTimeout time.Duration
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		RequestMTU:     DefaultRequestMTU,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Connector runs the link -> MTU -> discovery chain.
type Connector struct {
	dialer Dialer
	opts   Options
	logger *logrus.Logger
}

// NewConnector creates a connector. A nil dialer means the platform BLE stack.
func NewConnector(dialer Dialer, opts Options, logger *logrus.Logger) *Connector {
	if dialer == nil {
		dialer = NewDialer()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts.RequestMTU <= 0 {
		opts.RequestMTU = DefaultRequestMTU
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Connector{dialer: dialer, opts: opts, logger: logger}
}

// Connect dials address, negotiates the MTU and discovers services.
// Cancelling ctx aborts the step in progress and releases the link; a
// cancelled call never returns a handle.
func (c *Connector) Connect(ctx context.Context, address string) (*Handle, error) {
	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return nil, &ConnectError{Step: StepLink, Err: errors.New("device address is empty")}
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": c.opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	link, err := c.dialer.Dial(dialCtx, address)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, &ConnectError{Step: StepLink, Address: address, Err: NormalizeError(err)}
	}
	if err := ctx.Err(); err != nil {
		c.release(link, address, "cancelled after dial")
		return nil, &ConnectError{Step: StepLink, Address: address, Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"address":       address,
		"requested_mtu": c.opts.RequestMTU,
	}).Debug("Negotiating MTU...")
	mtu, err := await(ctx, "ble-mtu-exchange", func() (int, error) {
		return link.ExchangeMTU(c.opts.RequestMTU)
	})
	if err == nil && mtu < MinimumMTU {
		err = fmt.Errorf("negotiated MTU %d is below the ATT minimum %d", mtu, MinimumMTU)
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to negotiate MTU")
		c.release(link, address, "MTU negotiation failure")
		return nil, &ConnectError{Step: StepMTU, Address: address, Err: NormalizeError(err)}
	}
	if mtu != c.opts.RequestMTU {
		c.logger.WithFields(logrus.Fields{
			"address":       address,
			"requested_mtu": c.opts.RequestMTU,
			"mtu":           mtu,
		}).Info("Peripheral negotiated a different MTU than requested")
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := await(ctx, "ble-profile-discovery", func() (*ble.Profile, error) {
		return link.DiscoverProfile(true)
	})
	if err == nil && profile == nil {
		err = errors.New("peripheral returned no profile")
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		c.release(link, address, "profile discovery failure")
		return nil, &ConnectError{Step: StepDiscovery, Address: address, Err: NormalizeError(err)}
	}

	c.logger.WithFields(logrus.Fields{
		"address":  address,
		"mtu":      mtu,
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")

	return NewHandle(link, address, c.opts.RequestMTU, mtu, profile, c.logger), nil
}

func (c *Connector) release(link Link, address, reason string) {
	if err := link.CancelConnection(); err != nil {
		c.logger.WithFields(logrus.Fields{
			"address":      address,
			"reason":       reason,
			"cancel_error": err,
		}).Warn("Failed to cancel connection")
		return
	}
	c.logger.WithFields(logrus.Fields{
		"address": address,
		"reason":  reason,
	}).Debug("Partially established link released")
}

// await runs a blocking BLE call on its own goroutine so ctx cancellation can
// abandon the wait. The caller cancels the link, which unblocks the call.
func await[T any](ctx context.Context, name string, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	loop.Go(ctx, name, func(context.Context) {
		v, err := fn()
		done <- result{v: v, err: err}
	})

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
