package mapping

import (
	"strconv"

	"github.com/pkg/errors"
)

// Params is the typed payload of an action binding. Each action family has
// its own variant so the compiler checks exhaustiveness; the external store
// keeps the same flat key/value shape it always had, converted at the
// boundary by ParamsToMap and ParamsFromMap.
type Params interface {
	paramsMap() map[string]string
}

// NoParams is the payload of actions that take no arguments.
type NoParams struct{}

func (NoParams) paramsMap() map[string]string { return nil }

// StemParams targets one stem of one entity (track or deck).
type StemParams struct {
	EntityID string
	StemID   string
}

func (p StemParams) paramsMap() map[string]string {
	m := map[string]string{}
	if p.EntityID != "" {
		m["entity"] = p.EntityID
	}
	if p.StemID != "" {
		m["stem"] = p.StemID
	}
	return m
}

// SeekParams carries the jump offset for Seek bindings.
type SeekParams struct {
	Seconds float64
}

func (p SeekParams) paramsMap() map[string]string {
	return map[string]string{"seconds": strconv.FormatFloat(p.Seconds, 'f', -1, 64)}
}

// DeckParams names the deck a deck/crossfader/loop/pitch/cue binding acts on.
type DeckParams struct {
	Deck string
}

func (p DeckParams) paramsMap() map[string]string {
	if p.Deck == "" {
		return nil
	}
	return map[string]string{"deck": p.Deck}
}

// ParamsToMap serializes typed params to the persisted flat shape.
func ParamsToMap(p Params) map[string]string {
	if p == nil {
		return nil
	}
	return p.paramsMap()
}

// ParamsFromMap builds the typed params variant for an action from the
// persisted flat shape.
func ParamsFromMap(action ActionTag, raw map[string]string) (Params, error) {
	switch action {
	case ActionStemVolume, ActionStemSolo, ActionStemMute:
		return StemParams{EntityID: raw["entity"], StemID: raw["stem"]}, nil
	case ActionSeek:
		if s, ok := raw["seconds"]; ok {
			seconds, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "seek seconds %q", s)
			}
			return SeekParams{Seconds: seconds}, nil
		}
		return SeekParams{}, nil
	case ActionDeckPlay, ActionDeckCue, ActionCrossfader, ActionLoopToggle, ActionPitchFader:
		return DeckParams{Deck: raw["deck"]}, nil
	default:
		return NoParams{}, nil
	}
}
