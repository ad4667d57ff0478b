// Package engine defines the contract between the MIDI front end and the
// drum sample player, and ships an in-process Player that honors it.
package engine

import (
	"gitlab.com/gomidi/midi/v2"
)

// Stream parameters. The samples are all mono, 44.1kHz.
const (
	NumSamples  = 3
	NumChannels = 1
	SampleRate  = 44100
)

// Drum identifies a sample buffer.
type Drum int

const (
	Kick Drum = iota
	HiHatClosed
	Snare
)

func (d Drum) String() string {
	switch d {
	case Kick:
		return "kick"
	case HiHatClosed:
		return "hihat-closed"
	case Snare:
		return "snare"
	default:
		return "unknown"
	}
}

// Engine is the audio side of the application. The recovery watchdog only
// needs OutputReset, ClearOutputReset and RestartStream.
type Engine interface {
	Setup() error
	Teardown() error
	Trigger(d Drum)

	// OutputReset reports whether the stream reopened itself after the
	// output device changed.
	OutputReset() bool
	ClearOutputReset()
	RestartStream() error

	OnMessage(msg midi.Message)
}

const noteOnChannel1 = 0x90

// SampleForNote maps an incoming note-on to the sample it plays.
// Only complete channel-1 note-on messages qualify.
func SampleForNote(msg midi.Message) (Drum, bool) {
	if len(msg) < 3 || msg[0] != noteOnChannel1 {
		return 0, false
	}
	switch msg[1] {
	case 0x3C:
		return Kick, true
	case 0x3D:
		return HiHatClosed, true
	case 0x3E:
		return Snare, true
	}
	return 0, false
}

// PadForNote maps an incoming note-on to the pad that lights up for it.
// Pads use their own key layout; a two-byte channel-1 note-on is enough.
func PadForNote(msg midi.Message) (Drum, bool) {
	if len(msg) < 2 || msg[0] != noteOnChannel1 {
		return 0, false
	}
	switch msg[1] {
	case 0x3C:
		return Kick, true
	case 0x3F:
		return HiHatClosed, true
	case 0x43:
		return Snare, true
	}
	return 0, false
}
