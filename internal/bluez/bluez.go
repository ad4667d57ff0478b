// Package bluez asks the BlueZ daemon whether the Bluetooth adapter is usable.
package bluez

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	busName        = "org.bluez"
	adapterIface   = "org.bluez.Adapter1"
	poweredProp    = "Powered"
	unknownObject  = "org.freedesktop.DBus.Error.UnknownObject"
	DefaultAdapter = "hci0"
)

// ErrNoAdapter is returned when BlueZ does not know the adapter.
var ErrNoAdapter = errors.New("bluetooth adapter not found")

// PropertyReader reads a single D-Bus property of an object.
type PropertyReader interface {
	GetProperty(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error)
}

// Checker reports the adapter power state.
type Checker struct {
	reader  PropertyReader
	adapter string
	logger  *logrus.Logger
}

// NewChecker creates a checker for adapter (e.g. "hci0") reading through r.
func NewChecker(r PropertyReader, adapter string, logger *logrus.Logger) *Checker {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Checker{reader: r, adapter: adapter, logger: logger}
}

// Path returns the D-Bus object path of the adapter.
func (c *Checker) Path() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + c.adapter)
}

// Enabled reports whether the adapter is powered.
func (c *Checker) Enabled(ctx context.Context) (bool, error) {
	v, err := c.reader.GetProperty(ctx, c.Path(), adapterIface, poweredProp)
	if err != nil {
		if errorName(err) == unknownObject {
			return false, fmt.Errorf("%w: %s", ErrNoAdapter, c.adapter)
		}
		return false, fmt.Errorf("failed to read %s.%s of %s: %w", adapterIface, poweredProp, c.Path(), err)
	}

	powered, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s type %s", poweredProp, v.Signature())
	}
	c.logger.WithFields(logrus.Fields{
		"adapter": c.adapter,
		"powered": powered,
	}).Debug("Bluetooth adapter state")
	return powered, nil
}

func errorName(err error) string {
	var derr *dbus.Error
	if errors.As(err, &derr) {
		return derr.Name
	}
	return ""
}

// SystemBus reads properties from the system bus.
type SystemBus struct {
	conn *dbus.Conn
}

// NewSystemBus connects to the system D-Bus.
func NewSystemBus() (*SystemBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &SystemBus{conn: conn}, nil
}

func (b *SystemBus) GetProperty(ctx context.Context, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.conn.Object(busName, path).
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, iface, name).
		Store(&v)
	return v, err
}

// Close releases the bus connection.
func (b *SystemBus) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
