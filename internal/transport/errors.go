package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Step names the stage of the connect chain an error originated from.
type Step string

const (
	StepLink      Step = "link"
	StepMTU       Step = "mtu"
	StepDiscovery Step = "discovery"
)

// ConnectError reports a failed connect step together with its cause.
type ConnectError struct {
	Step    Step
	Address string
	Err     error
}

// Error implements the error interface
func (e *ConnectError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var msg string
	switch e.Step {
	case StepLink:
		msg = "link establishment failed"
	case StepMTU:
		msg = "MTU negotiation failed"
	case StepDiscovery:
		msg = "service discovery failed"
	default:
		msg = fmt.Sprintf("%s failed", e.Step)
	}
	if e.Address != "" {
		msg = fmt.Sprintf("%s for %q", msg, e.Address)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConnectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare ConnectError values by Step
func (e *ConnectError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectError)
	if !ok {
		return false
	}
	return e.Step == t.Step
}

// Predefined sentinel errors, one per step
var (
	ErrLinkFailed      = &ConnectError{Step: StepLink}
	ErrMtuFailed       = &ConnectError{Step: StepMTU}
	ErrDiscoveryFailed = &ConnectError{Step: StepDiscovery}
)

// Link state errors reported by the BLE stack
var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrHandleClosed     = errors.New("transport handle closed")
)

// NormalizeError maps known go-ble error strings to package errors.
// Returns wrapped errors to preserve the original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// StepOf returns the step a connect error originated from, or "" when err is
// not a ConnectError.
func StepOf(err error) Step {
	var cerr *ConnectError
	if errors.As(err, &cerr) {
		return cerr.Step
	}
	return ""
}
