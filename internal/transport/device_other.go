//go:build !darwin && !linux

package transport

import (
	"errors"
	"runtime"

	"github.com/go-ble/ble"
)

func newPlatformDevice() (ble.Device, error) {
	return nil, errors.New("BLE is not supported on " + runtime.GOOS)
}
