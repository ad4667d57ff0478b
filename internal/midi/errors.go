package midi

import (
	"errors"
	"fmt"
)

// OpenErrorKind classifies why a MIDI device could not be opened.
type OpenErrorKind string

const (
	NoOutputPort     OpenErrorKind = "no_output_port"
	DeviceOpenFailed OpenErrorKind = "device_open_failed"
)

// OpenError represents a failed device open
type OpenError struct {
	Kind    OpenErrorKind
	Address string
	Err     error
}

// Error implements the error interface
func (e *OpenError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Kind == NoOutputPort {
		msg = "MIDI device has no output port"
	} else if e.Kind == DeviceOpenFailed {
		msg = "failed to open MIDI device"
	}
	if e.Address != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Address)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OpenError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare OpenError values by Kind
func (e *OpenError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*OpenError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for open failures
var (
	ErrNoOutputPort     = &OpenError{Kind: NoOutputPort}
	ErrDeviceOpenFailed = &OpenError{Kind: DeviceOpenFailed}
)

// Port errors
var (
	ErrDeviceClosed     = errors.New("MIDI device closed")
	ErrPortOutOfRange   = errors.New("MIDI port out of range")
	ErrPortAlreadyOpen  = errors.New("MIDI port already open")
	ErrMalformedPacket  = errors.New("malformed BLE-MIDI packet")
	ErrNoRunningStatus  = errors.New("data byte without running status")
	ErrTruncatedMessage = errors.New("truncated MIDI message")
)
