package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	blelib "github.com/go-ble/ble"
	"github.com/srg/drumthumper/internal/transport"
	"github.com/stretchr/testify/mock"
)

// MockLink implements transport.Link for testing
type MockLink struct {
	mock.Mock

	mu           sync.Mutex
	handlers     map[*blelib.Characteristic]blelib.NotificationHandler
	disconnected chan struct{}
	cancels      atomic.Int32
}

// NewMockLink creates a link mock whose Disconnected channel can be closed via Drop.
func NewMockLink() *MockLink {
	return &MockLink{
		handlers:     make(map[*blelib.Characteristic]blelib.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (m *MockLink) ExchangeMTU(rxMTU int) (int, error) {
	args := m.Called(rxMTU)
	return args.Int(0), args.Error(1)
}

func (m *MockLink) DiscoverProfile(force bool) (*blelib.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*blelib.Profile)
	return profile, args.Error(1)
}

func (m *MockLink) Subscribe(c *blelib.Characteristic, ind bool, h blelib.NotificationHandler) error {
	args := m.Called(c, ind, h)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.handlers[c] = h
	m.mu.Unlock()
	return nil
}

func (m *MockLink) Unsubscribe(c *blelib.Characteristic, ind bool) error {
	args := m.Called(c, ind)
	m.mu.Lock()
	delete(m.handlers, c)
	m.mu.Unlock()
	return args.Error(0)
}

func (m *MockLink) CancelConnection() error {
	m.cancels.Add(1)
	args := m.Called()
	return args.Error(0)
}

// Cancels returns how many times CancelConnection was called. Safe to poll
// while other goroutines use the link.
func (m *MockLink) Cancels() int {
	return int(m.cancels.Load())
}

// Disconnected mirrors ble.Client.Disconnected
func (m *MockLink) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Drop simulates the peripheral going away. Safe to call once.
func (m *MockLink) Drop() {
	close(m.disconnected)
}

// Notify delivers data to the handler subscribed on c, as the BLE stack would.
// It reports whether a handler was subscribed.
func (m *MockLink) Notify(c *blelib.Characteristic, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[c]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// ExpectConnected sets up the happy path: MTU negotiated to mtu, profile
// discovered, subscriptions and cancellation succeed.
func (m *MockLink) ExpectConnected(requestMTU, mtu int, profile *blelib.Profile) *MockLink {
	m.On("ExchangeMTU", requestMTU).Return(mtu, nil)
	m.On("DiscoverProfile", true).Return(profile, nil)
	m.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m.On("Unsubscribe", mock.Anything, mock.Anything).Return(nil)
	m.On("CancelConnection").Return(nil)
	return m
}

// MockDialer implements transport.Dialer for testing
type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) Dial(ctx context.Context, address string) (transport.Link, error) {
	args := m.Called(ctx, address)
	link, _ := args.Get(0).(transport.Link)
	return link, args.Error(1)
}

// DialerFunc adapts a function to transport.Dialer, for tests that need a
// different link per dial.
type DialerFunc func(ctx context.Context, address string) (transport.Link, error)

func (f DialerFunc) Dial(ctx context.Context, address string) (transport.Link, error) {
	return f(ctx, address)
}
