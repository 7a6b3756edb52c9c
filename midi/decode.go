package midi

import "time"

// MIDI 1.0 status bytes. Channel-voice statuses carry the channel in the low
// nibble; the constants below are the base opcodes (channel 0).
const (
	statusNoteOff         byte = 0x80
	statusNoteOn          byte = 0x90
	statusPolyPressure    byte = 0xA0
	statusControlChange   byte = 0xB0
	statusProgramChange   byte = 0xC0
	statusChannelPressure byte = 0xD0
	statusPitchBend       byte = 0xE0
	statusSysExStart      byte = 0xF0
	statusSysExEnd        byte = 0xF7
	statusClock           byte = 0xF8
	statusStart           byte = 0xFA
	statusContinue        byte = 0xFB
	statusStop            byte = 0xFC
)

// dataLength returns the number of data bytes that follow a channel-voice
// status byte.
func dataLength(status byte) int {
	switch status & 0xF0 {
	case statusProgramChange, statusChannelPressure:
		return 1
	default:
		return 2
	}
}

var realtimeKinds = map[byte]Kind{
	statusClock:    KindClock,
	statusStart:    KindStart,
	statusStop:     KindStop,
	statusContinue: KindContinue,
}

// monotonic reference for CapturedAt timestamps
var epoch = time.Now()

func nowMicros() int64 {
	return time.Since(epoch).Microseconds()
}

// Monotonic returns the current reading of the monotonic microsecond clock
// used for Message.CapturedAt, so consumers can compare against it.
func Monotonic() int64 {
	return nowMicros()
}

// Decode turns a raw byte buffer into the ordered sequence of complete MIDI
// messages it contains. It never fails: malformed or truncated input simply
// stops decoding of the remainder, yielding whatever complete messages came
// before. Running status is honored within the buffer but is NOT carried
// across calls; use StreamDecoder when the caller delivers a stream split
// across chunks.
//
// All returned messages share one CapturedAt timestamp taken before decoding.
func Decode(buf []byte) []Message {
	var d StreamDecoder
	return d.Feed(buf)
}

// StreamDecoder is the stateful variant of Decode: it remembers the last
// channel-voice status across Feed calls so a running-status message split
// over two chunks still decodes. The zero value is ready to use.
type StreamDecoder struct {
	running byte
}

// Feed decodes one chunk, carrying running status from previous chunks.
func (d *StreamDecoder) Feed(buf []byte) []Message {
	at := nowMicros()
	var out []Message

	i := 0
	for i < len(buf) {
		b := buf[i]

		// System real-time bytes are emitted immediately and do not disturb
		// running status.
		if kind, ok := realtimeKinds[b]; ok {
			out = append(out, Message{Kind: kind, Channel: NoChannel, CapturedAt: at})
			i++
			continue
		}

		switch {
		case b == statusSysExStart:
			end := -1
			for j := i + 1; j < len(buf); j++ {
				if buf[j] == statusSysExEnd {
					end = j
					break
				}
			}
			if end < 0 {
				// Unterminated SysEx: the rest of the buffer is the payload
				// and decoding of this buffer ends.
				payload := append([]byte(nil), buf[i+1:]...)
				out = append(out, Message{Kind: KindSysEx, Channel: NoChannel, Data: payload, CapturedAt: at})
				return out
			}
			payload := append([]byte(nil), buf[i+1:end]...)
			out = append(out, Message{Kind: KindSysEx, Channel: NoChannel, Data: payload, CapturedAt: at})
			i = end + 1

		case b >= 0x80 && b <= 0xEF:
			// Fresh channel-voice status.
			d.running = b
			data, next, ok := collectData(buf, i+1, dataLength(b), at, &out)
			if !ok {
				// Buffer ends mid-message; drop the partial message.
				return out
			}
			msg, ok := channelMessage(b, data, at)
			if !ok {
				return out
			}
			out = append(out, msg)
			i = next

		case b < 0x80:
			// Bare data byte: reuse the running status.
			if d.running == 0 {
				return out
			}
			data, next, ok := collectData(buf, i, dataLength(d.running), at, &out)
			if !ok {
				return out
			}
			msg, ok := channelMessage(d.running, data, at)
			if !ok {
				return out
			}
			out = append(out, msg)
			i = next

		default:
			// Unrecognized system byte (0xF1-0xF7 outside SysEx, 0xF9, 0xFD-0xFF):
			// stop decoding the remainder.
			return out
		}
	}
	return out
}

// collectData gathers n data bytes starting at buf[i]. System real-time
// bytes may land between a status and its data bytes; they are emitted into
// out immediately and skipped. Reports false when the buffer ends, or a
// non-real-time status byte appears, before n data bytes are found.
func collectData(buf []byte, i, n int, at int64, out *[]Message) (data []byte, next int, ok bool) {
	for i < len(buf) && len(data) < n {
		b := buf[i]
		if kind, rt := realtimeKinds[b]; rt {
			*out = append(*out, Message{Kind: kind, Channel: NoChannel, CapturedAt: at})
			i++
			continue
		}
		if b >= 0x80 {
			return nil, i, false
		}
		data = append(data, b)
		i++
	}
	if len(data) < n {
		return nil, i, false
	}
	return data, i, true
}

// channelMessage builds a channel-voice message from a status byte and the
// data bytes that follow it. Reports false when data is too short.
func channelMessage(status byte, data []byte, at int64) (Message, bool) {
	n := dataLength(status)
	if len(data) < n {
		return Message{}, false
	}
	ch := int8(status & 0x0F)

	switch status & 0xF0 {
	case statusNoteOff:
		return Message{Kind: KindNoteOff, Channel: ch, Note: data[0], Velocity: data[1], CapturedAt: at}, true
	case statusNoteOn:
		// NoteOn with velocity 0 means NoteOff by convention.
		if data[1] == 0 {
			return Message{Kind: KindNoteOff, Channel: ch, Note: data[0], Velocity: 0, CapturedAt: at}, true
		}
		return Message{Kind: KindNoteOn, Channel: ch, Note: data[0], Velocity: data[1], CapturedAt: at}, true
	case statusPolyPressure:
		return Message{Kind: KindPolyPressure, Channel: ch, Note: data[0], Value: data[1], CapturedAt: at}, true
	case statusControlChange:
		return Message{Kind: KindControlChange, Channel: ch, Controller: data[0], Value: data[1], CapturedAt: at}, true
	case statusProgramChange:
		return Message{Kind: KindProgramChange, Channel: ch, Program: data[0], CapturedAt: at}, true
	case statusChannelPressure:
		return Message{Kind: KindChannelPressure, Channel: ch, Value: data[0], CapturedAt: at}, true
	case statusPitchBend:
		// 14-bit value, LSB first.
		bend := uint16(data[1])*128 + uint16(data[0])
		return Message{Kind: KindPitchBend, Channel: ch, Bend: bend, CapturedAt: at}, true
	}
	return Message{}, false
}
