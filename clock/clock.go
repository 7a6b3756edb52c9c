// Package clock recovers tempo and transport state from MIDI real-time
// messages. MIDI clock runs at 24 pulses per quarter note; BPM is estimated
// over a sliding window of tick timestamps and broadcast once per beat.
package clock

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"stemdeck/bus"
	"stemdeck/dispatch"
	"stemdeck/midi"
	"stemdeck/registry"
)

const ticksPerBeat = 24

// TransportState is the recovered transport position of the clock source.
type TransportState int

const (
	TransportIdle TransportState = iota
	TransportPlaying
	TransportStopped
)

func (s TransportState) String() string {
	switch s {
	case TransportPlaying:
		return "playing"
	case TransportStopped:
		return "stopped"
	}
	return "idle"
}

// EventType distinguishes clock broadcasts.
type EventType int

const (
	EventTransport EventType = iota
	EventBPM
)

// Event is a transport change or a once-per-beat BPM update.
type Event struct {
	Type      EventType
	Transport TransportState
	BPM       float64 // rounded to one decimal, EventBPM only
}

// Clock is the tempo/transport recovery state machine.
type Clock struct {
	log    *zap.Logger
	events *bus.Bus[Event]
	now    func() int64 // monotonic micros, same timebase as Message.CapturedAt

	mu         sync.Mutex
	window     []int64 // last <=24 tick timestamps
	tickCount  int
	bpm        float64 // 0 = unknown
	transport  TransportState
	lastBeatAt int64
	hasBeat    bool
}

// New creates a clock in the Idle state.
func New(log *zap.Logger) *Clock {
	return &Clock{
		log:    log.Named("clock"),
		events: bus.New[Event](),
		now:    midi.Monotonic,
	}
}

// Events subscribes a named consumer to transport/BPM broadcasts.
func (c *Clock) Events(name string) <-chan Event {
	return c.events.Subscribe(name, 16)
}

// DropEvents removes a consumer's subscription.
func (c *Clock) DropEvents(name string) {
	c.events.Unsubscribe(name)
}

// Run consumes the dispatcher's message feed, tracking its own set of
// subscribed input ports so a device is processed exactly once, and
// reconciling that set on every connect/disconnect.
func (c *Clock) Run(ctx context.Context, reg *registry.Registry, disp *dispatch.Dispatcher) {
	events := reg.Events("clock")
	msgs := disp.Messages("clock")
	defer reg.DropEvents("clock")
	defer disp.DropMessages("clock")

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
			c.Handle(pm.Msg)
		}
	}
}

// Handle feeds one message into the state machine. Non-realtime kinds are
// ignored.
func (c *Clock) Handle(m midi.Message) {
	switch m.Kind {
	case midi.KindStart:
		c.mu.Lock()
		c.transport = TransportPlaying
		c.tickCount = 0
		c.lastBeatAt = c.now()
		c.hasBeat = true
		c.mu.Unlock()
		c.log.Debug("transport start")
		c.events.Publish(Event{Type: EventTransport, Transport: TransportPlaying})

	case midi.KindStop:
		c.mu.Lock()
		c.transport = TransportStopped
		c.mu.Unlock()
		c.log.Debug("transport stop")
		c.events.Publish(Event{Type: EventTransport, Transport: TransportStopped})

	case midi.KindContinue:
		// Resume without resetting tick or beat state.
		c.mu.Lock()
		c.transport = TransportPlaying
		c.mu.Unlock()
		c.log.Debug("transport continue")
		c.events.Publish(Event{Type: EventTransport, Transport: TransportPlaying})

	case midi.KindClock:
		c.tick(m.CapturedAt)
	}
}

func (c *Clock) tick(at int64) {
	c.mu.Lock()

	c.window = append(c.window, at)
	if len(c.window) > ticksPerBeat {
		c.window = c.window[len(c.window)-ticksPerBeat:]
	}
	c.tickCount++

	if len(c.window) == ticksPerBeat {
		span := c.window[len(c.window)-1] - c.window[0]
		ticksSpanned := float64(len(c.window) - 1)
		if span > 0 {
			avgTick := float64(span) / ticksSpanned
			c.bpm = 60_000_000 / (avgTick * ticksPerBeat)
		}
	}

	beat := c.tickCount%ticksPerBeat == 0
	var broadcast float64
	if beat {
		c.lastBeatAt = at
		c.hasBeat = true
		if c.bpm > 0 {
			broadcast = math.Round(c.bpm*10) / 10
		}
	}
	transport := c.transport
	c.mu.Unlock()

	if broadcast > 0 {
		c.events.Publish(Event{Type: EventBPM, Transport: transport, BPM: broadcast})
	}
}

// BPM returns the current estimate, false while unknown.
func (c *Clock) BPM() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bpm == 0 {
		return 0, false
	}
	return math.Round(c.bpm*10) / 10, true
}

// Transport returns the current transport state.
func (c *Clock) Transport() TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// Beat alignment tolerance: within this fraction of the beat period on
// either side of a beat boundary, "now" is close enough.
const quantizeTolerance = 0.05

// Quantize answers how long to wait for the next beat boundary. Zero means
// act now: either the beat is (nearly) here, or there is no usable tempo to
// quantize against (no BPM, not playing, or no beat anchor yet).
func (c *Clock) Quantize() time.Duration {
	c.mu.Lock()
	bpm := c.bpm
	transport := c.transport
	lastBeat := c.lastBeatAt
	hasBeat := c.hasBeat
	c.mu.Unlock()

	if bpm == 0 || transport != TransportPlaying || !hasBeat {
		return 0
	}

	beatPeriod := int64(60_000_000 / bpm) // µs
	elapsed := c.now() - lastBeat
	if elapsed < 0 || beatPeriod <= 0 {
		return 0
	}
	remaining := beatPeriod - elapsed%beatPeriod

	tolerance := int64(float64(beatPeriod) * quantizeTolerance)
	if remaining <= tolerance || remaining >= beatPeriod-tolerance {
		return 0
	}

	waitMS := remaining / 1000
	if waitMS < 1 {
		waitMS = 1
	}
	return time.Duration(waitMS) * time.Millisecond
}
