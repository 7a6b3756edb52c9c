// Package midi holds the MIDI message model and the byte-stream decoder and
// encoder. It is pure data plumbing: no device I/O happens here.
package midi

import "fmt"

// Kind identifies the type of a decoded MIDI event.
type Kind uint8

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindControlChange
	KindProgramChange
	KindChannelPressure
	KindPolyPressure
	KindPitchBend
	KindSysEx
	KindClock
	KindStart
	KindStop
	KindContinue
)

var kindNames = map[Kind]string{
	KindNoteOn:          "NoteOn",
	KindNoteOff:         "NoteOff",
	KindControlChange:   "ControlChange",
	KindProgramChange:   "ProgramChange",
	KindChannelPressure: "ChannelPressure",
	KindPolyPressure:    "PolyPressure",
	KindPitchBend:       "PitchBend",
	KindSysEx:           "SysEx",
	KindClock:           "Clock",
	KindStart:           "Start",
	KindStop:            "Stop",
	KindContinue:        "Continue",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Realtime reports whether the kind is a system real-time event.
func (k Kind) Realtime() bool {
	switch k {
	case KindClock, KindStart, KindStop, KindContinue:
		return true
	}
	return false
}

// NoChannel is the Channel value for kinds that carry no channel
// (system real-time and SysEx).
const NoChannel int8 = -1

// Message is one decoded MIDI event. Messages are produced only by the decoder
// and never modified afterwards. Which payload fields are meaningful depends
// on Kind:
//
//	NoteOn, NoteOff     Note, Velocity
//	PolyPressure        Note, Value
//	ControlChange       Controller, Value
//	ProgramChange       Program
//	ChannelPressure     Value
//	PitchBend           Bend (14-bit)
//	SysEx               Data (payload without 0xF0/0xF7 framing)
//	Clock/Start/...     none
type Message struct {
	Kind       Kind
	Channel    int8 // 0-15, or NoChannel
	Note       uint8
	Velocity   uint8
	Controller uint8
	Value      uint8
	Program    uint8
	Bend       uint16
	Data       []byte
	CapturedAt int64 // monotonic microseconds, shared by all messages of one decode call
}

func (m Message) String() string {
	switch m.Kind {
	case KindNoteOn, KindNoteOff:
		return fmt.Sprintf("%s ch=%d note=%d vel=%d", m.Kind, m.Channel, m.Note, m.Velocity)
	case KindPolyPressure:
		return fmt.Sprintf("%s ch=%d note=%d pressure=%d", m.Kind, m.Channel, m.Note, m.Value)
	case KindControlChange:
		return fmt.Sprintf("%s ch=%d cc=%d val=%d", m.Kind, m.Channel, m.Controller, m.Value)
	case KindProgramChange:
		return fmt.Sprintf("%s ch=%d program=%d", m.Kind, m.Channel, m.Program)
	case KindChannelPressure:
		return fmt.Sprintf("%s ch=%d pressure=%d", m.Kind, m.Channel, m.Value)
	case KindPitchBend:
		return fmt.Sprintf("%s ch=%d bend=%d", m.Kind, m.Channel, m.Bend)
	case KindSysEx:
		return fmt.Sprintf("%s %d bytes", m.Kind, len(m.Data))
	default:
		return m.Kind.String()
	}
}
