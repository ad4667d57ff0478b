package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/drumthumper/internal/bluez"
	"github.com/srg/drumthumper/internal/hotplug"
	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/orchestrator"
	"github.com/srg/drumthumper/internal/transport"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "link failure",
			err:      &transport.ConnectError{Step: transport.StepLink, Address: "24:0A:C4:A5:72:6A", Err: context.DeadlineExceeded},
			contains: "is it powered on and in range",
		},
		{
			name:     "MTU failure",
			err:      &transport.ConnectError{Step: transport.StepMTU, Err: errors.New("att")},
			contains: "refused MTU negotiation",
		},
		{
			name:     "discovery failure",
			err:      &transport.ConnectError{Step: transport.StepDiscovery, Err: errors.New("timeout")},
			contains: "service discovery failed",
		},
		{
			name:     "no output port",
			err:      &midi.OpenError{Kind: midi.NoOutputPort},
			contains: "does not expose a BLE-MIDI output port",
		},
		{
			name:     "open failed",
			err:      &midi.OpenError{Kind: midi.DeviceOpenFailed, Err: transport.ErrHandleClosed},
			contains: "could not open the MIDI device",
		},
		{
			name:     "adapter off",
			err:      fmt.Errorf("check: %w", orchestrator.ErrAdapterDisabled),
			contains: "powered off",
		},
		{
			name:     "adapter missing",
			err:      fmt.Errorf("%w: hci3", bluez.ErrNoAdapter),
			contains: "no Bluetooth adapter found",
		},
		{
			name:     "hotplug unsupported",
			err:      hotplug.ErrUnsupported,
			contains: "hotplug: false",
		},
		{
			name:     "other errors pass through",
			err:      errors.New("something odd"),
			contains: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.contains)
		})
	}

	assert.Empty(t, FormatUserError(nil))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
