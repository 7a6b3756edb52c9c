package mapping

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"stemdeck/bus"
	"stemdeck/dispatch"
	"stemdeck/midi"
	"stemdeck/registry"
)

// ToggleKey identifies one solo/mute toggle.
type ToggleKey struct {
	EntityID string
	StemID   string
}

// ActionEvent is broadcast for every executed binding. Each execution emits a
// generic event (EntityID empty) and, when the binding targets an entity, an
// additional entity-scoped copy for collaborators that filter by entity
// (LED feedback, UI).
type ActionEvent struct {
	SessionID string
	OwnerID   string
	Action    ActionTag
	Params    Params
	Value     float64 // normalized 0.0-1.0 level, StemVolume only
	On        bool    // new toggle state, StemSolo/StemMute only
	EntityID  string  // set on the entity-scoped copy
}

// Executor resolves dispatched messages against one owner's mappings and
// carries out the bound actions. One executor exists per active session; its
// toggle state lives and dies with it.
type Executor struct {
	log       *zap.Logger
	store     Store
	ownerID   string
	sessionID string
	events    *bus.Bus[ActionEvent]

	mu      sync.Mutex
	toggles map[ToggleKey]bool
}

// NewExecutor creates an executor for one session of one owner.
func NewExecutor(log *zap.Logger, store Store, ownerID, sessionID string) *Executor {
	return &Executor{
		log:       log.Named("executor").With(zap.String("session", sessionID)),
		store:     store,
		ownerID:   ownerID,
		sessionID: sessionID,
		events:    bus.New[ActionEvent](),
		toggles:   make(map[ToggleKey]bool),
	}
}

// Events subscribes a named consumer to executed-action broadcasts.
func (e *Executor) Events(name string) <-chan ActionEvent {
	return e.events.Subscribe(name, 32)
}

// DropEvents removes a consumer's subscription.
func (e *Executor) DropEvents(name string) {
	e.events.Unsubscribe(name)
}

// Close shuts the event feed. Toggle state is discarded with the executor.
func (e *Executor) Close() {
	e.events.Close()
}

// Run consumes the dispatcher's feed for this session, keeping its own
// subscribed-port set reconciled on connect/disconnect, independent of the
// dispatcher's bookkeeping.
func (e *Executor) Run(ctx context.Context, reg *registry.Registry, disp *dispatch.Dispatcher) {
	sub := "executor:" + e.sessionID
	events := reg.Events(sub)
	msgs := disp.Messages(sub)
	defer reg.DropEvents(sub)
	defer disp.DropMessages(sub)

	ports := make(map[string]struct{})
	for _, dev := range reg.List() {
		if dev.Direction.CanReceive() {
			ports[dev.ID] = struct{}{}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case registry.DeviceConnected:
				if ev.Device.Direction.CanReceive() {
					ports[ev.Device.ID] = struct{}{}
				}
			case registry.DeviceDisconnected:
				delete(ports, ev.Device.ID)
			}
		case pm, ok := <-msgs:
			if !ok {
				return
			}
			if _, subscribed := ports[pm.PortID]; !subscribed {
				continue
			}
			e.HandleMessage(ctx, pm.Device, pm.Msg)
		}
	}
}

// HandleMessage resolves one message against the owner's mappings for the
// named device and executes the matching binding, if any. Messages with no
// bindable number, and numbers with no mapping, are silently ignored.
func (e *Executor) HandleMessage(ctx context.Context, deviceName string, m midi.Message) {
	msgType, number, ok := Resolve(m)
	if !ok || m.Channel < 0 {
		return
	}

	rules, err := e.store.List(ctx, e.ownerID, deviceName)
	if err != nil {
		e.log.Warn("mapping lookup failed", zap.String("device", deviceName), zap.Error(err))
		return
	}

	channel := uint8(m.Channel)
	for _, rule := range rules {
		if rule.Type == msgType && rule.Channel == channel && rule.Number == number {
			e.execute(rule, m)
			return
		}
	}
}

func (e *Executor) execute(rule Mapping, m midi.Message) {
	switch rule.Action {
	case ActionStemVolume:
		level := CCToFloat(rawValue(m))
		e.publish(ActionEvent{Action: rule.Action, Params: rule.Params, Value: level}, entityOf(rule.Params))

	case ActionStemSolo, ActionStemMute:
		sp, _ := rule.Params.(StemParams)
		key := ToggleKey{EntityID: sp.EntityID, StemID: sp.StemID}
		e.mu.Lock()
		next := !e.toggles[key]
		e.toggles[key] = next
		e.mu.Unlock()
		e.log.Debug("toggle flipped",
			zap.Stringer("action", rule.Action),
			zap.String("entity", sp.EntityID),
			zap.String("stem", sp.StemID),
			zap.Bool("on", next),
		)
		e.publish(ActionEvent{Action: rule.Action, Params: rule.Params, On: next}, sp.EntityID)

	case ActionPlay, ActionStop, ActionNextTrack, ActionPrevTrack, ActionSeek, ActionBpmTap,
		ActionDeckPlay, ActionDeckCue, ActionCrossfader, ActionLoopToggle, ActionPitchFader:
		// Stateless: broadcast action and params verbatim.
		e.publish(ActionEvent{Action: rule.Action, Params: rule.Params}, "")

	default:
		// Unknown tag in a stored row: no-op.
	}
}

// publish broadcasts the generic event and, when the binding names a target
// entity, an entity-scoped copy.
func (e *Executor) publish(ev ActionEvent, entityID string) {
	ev.SessionID = e.sessionID
	ev.OwnerID = e.ownerID
	e.events.Publish(ev)
	if entityID != "" {
		scoped := ev
		scoped.EntityID = entityID
		e.events.Publish(scoped)
	}
}

// Toggle reports the current state of one solo/mute toggle.
func (e *Executor) Toggle(key ToggleKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggles[key]
}

// rawValue extracts the raw 0-127 value a level binding reads: the CC value,
// or note velocity as the fallback.
func rawValue(m midi.Message) int {
	if m.Kind == midi.KindControlChange {
		return int(m.Value)
	}
	return int(m.Velocity)
}

// CCToFloat converts a raw controller value to a 0.0-1.0 level. Values
// outside 0-127 clamp to the nearest bound.
func CCToFloat(v int) float64 {
	if v <= 0 {
		return 0.0
	}
	if v >= 127 {
		return 1.0
	}
	return float64(v) / 127.0
}

func entityOf(p Params) string {
	if sp, ok := p.(StemParams); ok {
		return sp.EntityID
	}
	return ""
}
