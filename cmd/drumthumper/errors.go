package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/drumthumper/internal/bluez"
	"github.com/srg/drumthumper/internal/hotplug"
	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/orchestrator"
	"github.com/srg/drumthumper/internal/transport"
)

// FormatUserError turns an error into a one-line message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transport.ErrLinkFailed):
		return fmt.Sprintf("could not reach the MIDI peripheral; is it powered on and in range? (%v)", err)
	case errors.Is(err, transport.ErrMtuFailed):
		return fmt.Sprintf("the peripheral refused MTU negotiation (%v)", err)
	case errors.Is(err, transport.ErrDiscoveryFailed):
		return fmt.Sprintf("service discovery failed; try power-cycling the peripheral (%v)", err)
	case errors.Is(err, midi.ErrNoOutputPort):
		return "the peripheral does not expose a BLE-MIDI output port"
	case errors.Is(err, midi.ErrDeviceOpenFailed):
		return fmt.Sprintf("could not open the MIDI device (%v)", err)
	case errors.Is(err, orchestrator.ErrAdapterDisabled):
		return "the Bluetooth adapter is powered off; enable it and retry"
	case errors.Is(err, bluez.ErrNoAdapter):
		return fmt.Sprintf("no Bluetooth adapter found (%v)", err)
	case errors.Is(err, hotplug.ErrUnsupported):
		return "audio hot-plug monitoring is not available here; set hotplug: false in the config"
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("permission denied; BLE access may require elevated privileges (%v)", err)
	default:
		return err.Error()
	}
}
