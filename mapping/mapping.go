// Package mapping binds incoming MIDI controls to player actions. A Mapping
// is a persisted rule keyed by (owner, device, message type, channel,
// number); the Executor resolves dispatched messages against the rules of the
// active session and carries out the bound action.
package mapping

import (
	"fmt"

	"github.com/pkg/errors"

	"stemdeck/midi"
)

// MessageType is the subset of MIDI message kinds a control can bind to.
type MessageType uint8

const (
	TypeControlChange MessageType = iota
	TypeNoteOn
	TypeNoteOff
)

var messageTypeNames = map[MessageType]string{
	TypeControlChange: "ControlChange",
	TypeNoteOn:        "NoteOn",
	TypeNoteOff:       "NoteOff",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// ParseMessageType reads the persisted name of a message type.
func ParseMessageType(s string) (MessageType, error) {
	for t, name := range messageTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown message type %q", s)
}

// ActionTag names a bindable action. The set is closed: extending it means
// adding a constant here, never accepting arbitrary strings.
type ActionTag uint8

const (
	ActionPlay ActionTag = iota
	ActionStop
	ActionNextTrack
	ActionPrevTrack
	ActionSeek
	ActionStemVolume
	ActionStemSolo
	ActionStemMute
	ActionBpmTap
	ActionDeckPlay
	ActionDeckCue
	ActionCrossfader
	ActionLoopToggle
	ActionPitchFader
)

var actionNames = map[ActionTag]string{
	ActionPlay:       "Play",
	ActionStop:       "Stop",
	ActionNextTrack:  "NextTrack",
	ActionPrevTrack:  "PrevTrack",
	ActionSeek:       "Seek",
	ActionStemVolume: "StemVolume",
	ActionStemSolo:   "StemSolo",
	ActionStemMute:   "StemMute",
	ActionBpmTap:     "BpmTap",
	ActionDeckPlay:   "DeckPlay",
	ActionDeckCue:    "DeckCue",
	ActionCrossfader: "Crossfader",
	ActionLoopToggle: "LoopToggle",
	ActionPitchFader: "PitchFader",
}

func (a ActionTag) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ActionTag(%d)", uint8(a))
}

func (a ActionTag) known() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseActionTag reads the persisted name of an action.
func ParseActionTag(s string) (ActionTag, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, errors.Errorf("unknown action %q", s)
}

// Key is the uniqueness key of a mapping: at most one rule may exist per key.
type Key struct {
	OwnerID    string
	DeviceName string
	Type       MessageType
	Channel    uint8
	Number     uint8
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/ch%d/n%d", k.OwnerID, k.DeviceName, k.Type, k.Channel, k.Number)
}

// Mapping is one persisted control binding.
type Mapping struct {
	OwnerID    string
	DeviceName string
	Type       MessageType
	Channel    uint8 // 0-15
	Number     uint8 // 0-127: controller number or note number
	Action     ActionTag
	Params     Params
	Provenance string
}

// Key returns the uniqueness key of the mapping.
func (m Mapping) Key() Key {
	return Key{
		OwnerID:    m.OwnerID,
		DeviceName: m.DeviceName,
		Type:       m.Type,
		Channel:    m.Channel,
		Number:     m.Number,
	}
}

// Validate checks field ranges before a write.
func (m Mapping) Validate() error {
	if m.OwnerID == "" {
		return errors.New("mapping: owner id is required")
	}
	if m.DeviceName == "" {
		return errors.New("mapping: device name is required")
	}
	if _, ok := messageTypeNames[m.Type]; !ok {
		return errors.Errorf("mapping: invalid message type %d", m.Type)
	}
	if m.Channel > 15 {
		return errors.Errorf("mapping: channel %d out of range 0-15", m.Channel)
	}
	if m.Number > 127 {
		return errors.Errorf("mapping: number %d out of range 0-127", m.Number)
	}
	if !m.Action.known() {
		return errors.Errorf("mapping: invalid action %d", m.Action)
	}
	return nil
}

// Resolve extracts the bindable (type, number) pair from a message:
// controller number for ControlChange, note number for NoteOn/NoteOff.
// Other kinds have nothing to bind and report false.
func Resolve(m midi.Message) (MessageType, uint8, bool) {
	switch m.Kind {
	case midi.KindControlChange:
		return TypeControlChange, m.Controller, true
	case midi.KindNoteOn:
		return TypeNoteOn, m.Note, true
	case midi.KindNoteOff:
		return TypeNoteOff, m.Note, true
	}
	return 0, 0, false
}
