package midi_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/testutils"
	"github.com/srg/drumthumper/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
)

const testAddress = "24:0A:C4:A5:72:6A"

func newHandle(link *testutils.MockLink, profile *blelib.Profile) *transport.Handle {
	return transport.NewHandle(link, testAddress, 517, 185, profile, testutils.NewLogger())
}

func TestSession_Open_WithOutputPorts(t *testing.T) {
	link := testutils.NewMockLink().ExpectConnected(517, 185, nil)
	session := midi.NewSession(0, testutils.NewLogger())

	dev, err := session.Open(context.Background(), newHandle(link, testutils.MIDIProfile(2)), midi.DefaultSelector())
	require.NoError(t, err)
	require.NotNil(t, dev)

	assert.Equal(t, 2, dev.OutputPorts())
	assert.Equal(t, 185, dev.MTU())
	assert.Equal(t, testAddress, dev.Address())
	assert.False(t, dev.Closed())

	session.Close(dev)
	assert.True(t, dev.Closed())
}

func TestSession_Open_NoOutputPort(t *testing.T) {
	tests := []struct {
		name    string
		profile *blelib.Profile
	}{
		{name: "service without characteristics", profile: testutils.MIDIProfile(0)},
		{name: "service missing", profile: testutils.NewProfileBuilder().WithService("180F").Build()},
		{
			name: "characteristic cannot notify",
			profile: testutils.NewProfileBuilder().
				WithService(testutils.MIDIServiceUUID).
				WithCharacteristic(testutils.MIDIIOCharUUID, "read,write").
				Build(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := testutils.NewMockLink()
			session := midi.NewSession(0, testutils.NewLogger())

			dev, err := session.Open(context.Background(), newHandle(link, tt.profile), midi.Selector{})
			assert.Nil(t, dev)
			require.Error(t, err)
			assert.ErrorIs(t, err, midi.ErrNoOutputPort)
			assert.True(t, midi.IsOpenError(err, midi.NoOutputPort))
			assert.False(t, midi.IsOpenError(err, midi.DeviceOpenFailed))
		})
	}
}

func TestSession_Open_IndicateOnlyPort(t *testing.T) {
	link := testutils.NewMockLink()
	profile := testutils.NewProfileBuilder().
		WithService(testutils.MIDIServiceUUID).
		WithCharacteristic(testutils.MIDIIOCharUUID, "read,indicate").
		Build()
	link.On("Subscribe", profile.Services[0].Characteristics[0], true, mock.Anything).Return(nil)
	link.On("Unsubscribe", profile.Services[0].Characteristics[0], true).Return(nil)

	dev, err := midi.NewSession(0, testutils.NewLogger()).Open(context.Background(), newHandle(link, profile), midi.DefaultSelector())
	require.NoError(t, err)
	require.NoError(t, dev.OpenOutputPort(0, func(gomidi.Message) {}))
	dev.Close()

	link.AssertExpectations(t)
}

func TestSession_Open_ClosedHandle(t *testing.T) {
	link := testutils.NewMockLink()
	link.On("CancelConnection").Return(nil)
	h := newHandle(link, testutils.MIDIProfile(1))
	require.NoError(t, h.Close())

	dev, err := midi.NewSession(0, testutils.NewLogger()).Open(context.Background(), h, midi.DefaultSelector())
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, midi.ErrDeviceOpenFailed)
	assert.ErrorIs(t, err, transport.ErrHandleClosed)

	_, err = midi.NewSession(0, testutils.NewLogger()).Open(context.Background(), nil, midi.DefaultSelector())
	assert.ErrorIs(t, err, midi.ErrDeviceOpenFailed)
}

func TestSession_Open_CancelledContext(t *testing.T) {
	link := testutils.NewMockLink()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev, err := midi.NewSession(0, testutils.NewLogger()).Open(ctx, newHandle(link, testutils.MIDIProfile(1)), midi.DefaultSelector())
	assert.Nil(t, dev)
	assert.ErrorIs(t, err, midi.ErrDeviceOpenFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDevice_OpenOutputPort_DeliversMessages(t *testing.T) {
	profile := testutils.MIDIProfile(2)
	link := testutils.NewMockLink().ExpectConnected(517, 185, profile)

	dev, err := midi.NewSession(16, testutils.NewLogger()).Open(context.Background(), newHandle(link, profile), midi.DefaultSelector())
	require.NoError(t, err)
	defer dev.Close()

	var (
		mu  sync.Mutex
		got []gomidi.Message
	)
	require.NoError(t, dev.OpenOutputPort(0, func(msg gomidi.Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}))

	port0 := profile.Services[0].Characteristics[0]
	require.True(t, link.Notify(port0, []byte{0x80, 0x80, 0x90, 0x3C, 0x7F, 0x43, 0x60}))
	// malformed packets are dropped without affecting the stream
	require.True(t, link.Notify(port0, []byte{0x80}))
	require.True(t, link.Notify(port0, []byte{0x80, 0x80, 0x80, 0x3C, 0x00}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []gomidi.Message{{0x90, 0x3C, 0x7F}, {0x90, 0x43, 0x60}, {0x80, 0x3C, 0x00}}, got)
	mu.Unlock()

	port1 := profile.Services[0].Characteristics[1]
	assert.False(t, link.Notify(port1, []byte{0x80, 0x80, 0xF8}), "port 1 was never opened")
}

func TestDevice_OpenOutputPort_Errors(t *testing.T) {
	profile := testutils.MIDIProfile(1)
	link := testutils.NewMockLink().ExpectConnected(517, 185, profile)

	dev, err := midi.NewSession(0, testutils.NewLogger()).Open(context.Background(), newHandle(link, profile), midi.DefaultSelector())
	require.NoError(t, err)

	noop := func(gomidi.Message) {}

	assert.ErrorIs(t, dev.OpenOutputPort(1, noop), midi.ErrPortOutOfRange)
	assert.ErrorIs(t, dev.OpenOutputPort(-1, noop), midi.ErrPortOutOfRange)
	assert.Error(t, dev.OpenOutputPort(0, nil))

	require.NoError(t, dev.OpenOutputPort(0, noop))
	assert.ErrorIs(t, dev.OpenOutputPort(0, noop), midi.ErrPortAlreadyOpen)

	dev.Close()
	assert.ErrorIs(t, dev.OpenOutputPort(0, noop), midi.ErrDeviceClosed)
}

func TestDevice_OpenOutputPort_SubscribeFailure(t *testing.T) {
	profile := testutils.MIDIProfile(1)
	link := testutils.NewMockLink()
	link.On("Subscribe", mock.Anything, false, mock.Anything).Return(errors.New("att: insufficient authentication"))

	dev, err := midi.NewSession(0, testutils.NewLogger()).Open(context.Background(), newHandle(link, profile), midi.DefaultSelector())
	require.NoError(t, err)

	err = dev.OpenOutputPort(0, func(gomidi.Message) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient authentication")

	// a failed subscription leaves nothing to unsubscribe
	dev.Close()
	link.AssertNotCalled(t, "Unsubscribe", mock.Anything, mock.Anything)
}

func TestDevice_Close_Idempotent(t *testing.T) {
	profile := testutils.MIDIProfile(1)
	link := testutils.NewMockLink()
	link.On("Subscribe", mock.Anything, false, mock.Anything).Return(nil)
	link.On("Unsubscribe", mock.Anything, false).Return(errors.New("link lost")).Once()

	dev, err := midi.NewSession(0, testutils.NewLogger()).Open(context.Background(), newHandle(link, profile), midi.DefaultSelector())
	require.NoError(t, err)
	require.NoError(t, dev.OpenOutputPort(0, func(gomidi.Message) {}))

	assert.NotPanics(t, func() {
		dev.Close()
		dev.Close()
	})
	assert.True(t, dev.Closed())
	link.AssertNumberOfCalls(t, "Unsubscribe", 1)

	var nilDev *midi.Device
	assert.NotPanics(t, nilDev.Close)
	assert.True(t, nilDev.Closed())
	assert.Equal(t, 0, nilDev.OutputPorts())
}
