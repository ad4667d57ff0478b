package midi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
)

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		expect []midi.Message
	}{
		{
			name:   "single note on",
			packet: []byte{0x80, 0x80, 0x90, 0x3C, 0x7F},
			expect: []midi.Message{{0x90, 0x3C, 0x7F}},
		},
		{
			name:   "running status without timestamp",
			packet: []byte{0x80, 0x80, 0x90, 0x3C, 0x7F, 0x3E, 0x40},
			expect: []midi.Message{{0x90, 0x3C, 0x7F}, {0x90, 0x3E, 0x40}},
		},
		{
			name:   "running status with timestamp",
			packet: []byte{0x80, 0x80, 0x90, 0x3C, 0x7F, 0x81, 0x43, 0x40},
			expect: []midi.Message{{0x90, 0x3C, 0x7F}, {0x90, 0x43, 0x40}},
		},
		{
			name:   "two messages with own status",
			packet: []byte{0x80, 0x80, 0x90, 0x3F, 0x7F, 0x82, 0x80, 0x3F, 0x00},
			expect: []midi.Message{{0x90, 0x3F, 0x7F}, {0x80, 0x3F, 0x00}},
		},
		{
			name:   "program change has one data byte",
			packet: []byte{0x80, 0x80, 0xC0, 0x05},
			expect: []midi.Message{{0xC0, 0x05}},
		},
		{
			name:   "realtime byte",
			packet: []byte{0x80, 0x80, 0xF8},
			expect: []midi.Message{{0xF8}},
		},
		{
			name:   "sysex is skipped",
			packet: []byte{0x80, 0x80, 0xF0, 0x01, 0x02, 0x80, 0xF7, 0x80, 0x90, 0x3C, 0x7F},
			expect: []midi.Message{{0x90, 0x3C, 0x7F}},
		},
		{
			name:   "header with timestamp only",
			packet: []byte{0x80, 0x80},
			expect: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := DecodePacket(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, msgs)
		})
	}
}

func TestDecodePacket_Errors(t *testing.T) {
	tests := []struct {
		name      string
		packet    []byte
		expectErr error
	}{
		{name: "empty", packet: nil, expectErr: ErrMalformedPacket},
		{name: "header only", packet: []byte{0x80}, expectErr: ErrMalformedPacket},
		{name: "header without high bit", packet: []byte{0x00, 0x80, 0x90, 0x3C, 0x7F}, expectErr: ErrMalformedPacket},
		{name: "data without running status", packet: []byte{0x80, 0x80, 0x3C}, expectErr: ErrNoRunningStatus},
		{name: "truncated note on", packet: []byte{0x80, 0x80, 0x90, 0x3C}, expectErr: ErrTruncatedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePacket(tt.packet)
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestDecodePacket_KeepsMessagesBeforeError(t *testing.T) {
	msgs, err := DecodePacket([]byte{0x80, 0x80, 0x90, 0x3C, 0x7F, 0x81, 0x90, 0x3E})
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	assert.Equal(t, []midi.Message{{0x90, 0x3C, 0x7F}}, msgs)
}
