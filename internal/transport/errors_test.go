package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConnectError
		expected string
	}{
		{
			name:     "link step with address and cause",
			err:      &ConnectError{Step: StepLink, Address: "AA:BB", Err: errors.New("refused")},
			expected: `link establishment failed for "AA:BB": refused`,
		},
		{
			name:     "mtu step without cause",
			err:      &ConnectError{Step: StepMTU},
			expected: "MTU negotiation failed",
		},
		{
			name:     "discovery step",
			err:      &ConnectError{Step: StepDiscovery, Err: errors.New("timeout")},
			expected: "service discovery failed: timeout",
		},
		{
			name:     "nil receiver",
			err:      nil,
			expected: "<nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConnectError_IsMatchesByStep(t *testing.T) {
	err := fmt.Errorf("attempt 3: %w", &ConnectError{Step: StepMTU, Address: "x", Err: errors.New("boom")})

	assert.ErrorIs(t, err, ErrMtuFailed)
	assert.NotErrorIs(t, err, ErrLinkFailed)
	assert.NotErrorIs(t, err, ErrDiscoveryFailed)
	assert.Equal(t, StepMTU, StepOf(err))
	assert.Equal(t, Step(""), StepOf(errors.New("plain")))
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))
	assert.ErrorIs(t, NormalizeError(errors.New("Device Not Connected")), ErrNotConnected)
	assert.ErrorIs(t, NormalizeError(errors.New("device already connected")), ErrAlreadyConnected)
	assert.Equal(t, context.Canceled, NormalizeError(context.Canceled))

	other := errors.New("something else")
	assert.Equal(t, other, NormalizeError(other))
}
