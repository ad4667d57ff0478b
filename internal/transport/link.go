package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
)

// Link is the subset of a go-ble GATT client the connect chain and the MIDI
// session rely on. ble.Client satisfies it.
type Link interface {
	ExchangeMTU(rxMTU int) (txMTU int, err error)
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Dialer establishes a raw link to a peripheral address.
type Dialer interface {
	Dial(ctx context.Context, address string) (Link, error)
}

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
var DeviceFactory = newPlatformDevice

// bleDialer dials through a lazily created platform ble.Device.
type bleDialer struct {
	mu  sync.Mutex
	dev ble.Device
}

// NewDialer returns a Dialer backed by DeviceFactory. The platform device is
// created on first use and reused for later dials.
func NewDialer() Dialer {
	return &bleDialer{}
}

func (d *bleDialer) device() (ble.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dev != nil {
		return d.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	d.dev = dev
	return dev, nil
}

// Dial implements Dialer
func (d *bleDialer) Dial(ctx context.Context, address string) (Link, error) {
	dev, err := d.device()
	if err != nil {
		return nil, err
	}
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}
