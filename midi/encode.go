package midi

import "github.com/pkg/errors"

// ErrNotEncodable is returned for messages that have no canonical wire form
// here (system real-time kinds are single constant bytes, handled too; only
// an unknown Kind fails).
var ErrNotEncodable = errors.New("midi: message kind has no wire encoding")

// Encode reconstructs the canonical wire bytes for a message: 2-3 bytes for
// channel-voice kinds, one byte for system real-time kinds. SysEx messages
// encode to the payload exactly as stored, without 0xF0/0xF7 framing; the
// output path sends SysEx payloads as supplied by the caller.
func Encode(m Message) ([]byte, error) {
	ch := byte(m.Channel) & 0x0F

	switch m.Kind {
	case KindNoteOff:
		return []byte{statusNoteOff | ch, m.Note & 0x7F, m.Velocity & 0x7F}, nil
	case KindNoteOn:
		return []byte{statusNoteOn | ch, m.Note & 0x7F, m.Velocity & 0x7F}, nil
	case KindPolyPressure:
		return []byte{statusPolyPressure | ch, m.Note & 0x7F, m.Value & 0x7F}, nil
	case KindControlChange:
		return []byte{statusControlChange | ch, m.Controller & 0x7F, m.Value & 0x7F}, nil
	case KindProgramChange:
		return []byte{statusProgramChange | ch, m.Program & 0x7F}, nil
	case KindChannelPressure:
		return []byte{statusChannelPressure | ch, m.Value & 0x7F}, nil
	case KindPitchBend:
		lsb := byte(m.Bend % 128)
		msb := byte(m.Bend / 128 & 0x7F)
		return []byte{statusPitchBend | ch, lsb, msb}, nil
	case KindSysEx:
		return m.Data, nil
	case KindClock:
		return []byte{statusClock}, nil
	case KindStart:
		return []byte{statusStart}, nil
	case KindStop:
		return []byte{statusStop}, nil
	case KindContinue:
		return []byte{statusContinue}, nil
	}
	return nil, errors.Wrapf(ErrNotEncodable, "kind %d", m.Kind)
}
