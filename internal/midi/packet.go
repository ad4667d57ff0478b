package midi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

const (
	statusBit   = 0x80
	sysExStart  = 0xF0
	sysExEnd    = 0xF7
	realtimeMin = 0xF8
)

// dataLength returns the number of data bytes following a status byte.
func dataLength(status byte) int {
	switch {
	case status < 0xC0: // note off/on, poly pressure, control change
		return 2
	case status < 0xE0: // program change, channel pressure
		return 1
	case status < 0xF0: // pitch bend
		return 2
	}
	switch status {
	case 0xF1, 0xF3: // time code quarter frame, song select
		return 1
	case 0xF2: // song position pointer
		return 2
	default:
		return 0
	}
}

// DecodePacket splits one BLE-MIDI notification into MIDI messages.
//
// A packet is a header byte (bit 7 set, timestamp high bits) followed by
// messages, each preceded by a timestamp-low byte. Running status applies
// within the packet, and a data byte may follow the previous message without a
// new timestamp. System real-time bytes are returned as one-byte messages.
// SysEx is skipped. Timestamps are discarded.
func DecodePacket(packet []byte) ([]midi.Message, error) {
	if len(packet) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(packet))
	}
	if packet[0]&statusBit == 0 || packet[1]&statusBit == 0 {
		return nil, fmt.Errorf("%w: missing header or timestamp", ErrMalformedPacket)
	}

	var (
		msgs    []midi.Message
		running byte
	)

	i := 1
	for i < len(packet) {
		b := packet[i]

		if b&statusBit != 0 {
			// timestamp byte
			i++
			if i >= len(packet) {
				break
			}
			b = packet[i]
			if b&statusBit != 0 {
				status := b
				i++
				switch {
				case status >= realtimeMin:
					msgs = append(msgs, midi.Message{status})
					continue
				case status == sysExStart:
					i = skipSysEx(packet, i)
					running = 0
					continue
				case status == sysExEnd:
					// end of a SysEx that began in an earlier packet
					running = 0
					continue
				case status >= sysExStart:
					running = 0
				default:
					running = status
				}

				msg, next, err := collect(packet, i, status)
				if err != nil {
					return msgs, err
				}
				msgs = append(msgs, msg)
				i = next
				continue
			}
		}

		if running == 0 {
			return msgs, fmt.Errorf("%w at offset %d", ErrNoRunningStatus, i)
		}
		msg, next, err := collect(packet, i, running)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
		i = next
	}

	return msgs, nil
}

// collect reads the data bytes for status starting at packet[i].
func collect(packet []byte, i int, status byte) (midi.Message, int, error) {
	n := dataLength(status)
	if i+n > len(packet) {
		return nil, len(packet), fmt.Errorf("%w: status 0x%02X needs %d data bytes", ErrTruncatedMessage, status, n)
	}
	msg := make(midi.Message, 0, n+1)
	msg = append(msg, status)
	for _, d := range packet[i : i+n] {
		if d&statusBit != 0 {
			return nil, len(packet), fmt.Errorf("%w: unexpected status 0x%02X in data", ErrTruncatedMessage, d)
		}
		msg = append(msg, d)
	}
	return msg, i + n, nil
}

// skipSysEx returns the offset just past the SysEx terminator, or the end of
// the packet when the SysEx continues in the next notification.
func skipSysEx(packet []byte, i int) int {
	for ; i < len(packet); i++ {
		if packet[i] == sysExEnd && packet[i-1]&statusBit != 0 {
			return i + 1
		}
	}
	return len(packet)
}
