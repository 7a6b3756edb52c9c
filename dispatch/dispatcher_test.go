package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"stemdeck/midi"
	"stemdeck/registry"
)

type fakePort struct {
	name    string
	onBytes func([]byte)
	stops   atomic.Int32
	failed  bool // open fails
}

func (f *fakePort) open(name string, onBytes func([]byte), onErr func(error)) (func(), error) {
	if f.failed {
		return nil, context.DeadlineExceeded
	}
	f.name = name
	f.onBytes = onBytes
	return func() { f.stops.Add(1) }, nil
}

func testDevice(name string, dir registry.Direction) registry.Device {
	return registry.Device{
		ID:        registry.LocalID(name),
		Name:      name,
		Direction: dir,
		Status:    registry.StatusConnected,
	}
}

func newTestDispatcher(open OpenFunc) *Dispatcher {
	reg := registry.New(zap.NewNop(), registry.Options{
		Enumerate: func() ([]registry.LocalPort, error) { return nil, nil },
		Browse: func(context.Context, time.Duration) ([]registry.NetworkSession, error) {
			return nil, nil
		},
	})
	return New(zap.NewNop(), reg, open)
}

func TestSubscribeDecodesAndTags(t *testing.T) {
	port := &fakePort{}
	d := newTestDispatcher(port.open)
	msgs := d.Messages("test")

	dev := testDevice("pad", registry.DirectionDuplex)
	d.subscribe(dev)
	if port.name != "pad" {
		t.Fatalf("opened port %q", port.name)
	}

	port.onBytes([]byte{0x90, 60, 100, 62, 110})

	for i, wantNote := range []uint8{60, 62} {
		select {
		case pm := <-msgs:
			if pm.PortID != dev.ID || pm.Device != "pad" {
				t.Errorf("message %d tagged %q/%q", i, pm.PortID, pm.Device)
			}
			if pm.Msg.Kind != midi.KindNoteOn || pm.Msg.Note != wantNote {
				t.Errorf("message %d: %v", i, pm.Msg)
			}
		default:
			t.Fatalf("message %d missing", i)
		}
	}
}

func TestSubscribeSkipsNonInput(t *testing.T) {
	port := &fakePort{}
	d := newTestDispatcher(port.open)
	d.subscribe(testDevice("synth out", registry.DirectionOutput))
	if port.onBytes != nil {
		t.Error("output-only device was subscribed")
	}
}

func TestSubscribeIsDeduplicated(t *testing.T) {
	opens := 0
	d := newTestDispatcher(func(string, func([]byte), func(error)) (func(), error) {
		opens++
		return func() {}, nil
	})
	dev := testDevice("pad", registry.DirectionInput)
	d.subscribe(dev)
	d.subscribe(dev)
	if opens != 1 {
		t.Errorf("opened %d times", opens)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	port := &fakePort{}
	d := newTestDispatcher(port.open)
	dev := testDevice("pad", registry.DirectionInput)
	d.subscribe(dev)

	d.unsubscribe(dev.ID)
	d.unsubscribe(dev.ID)
	if got := port.stops.Load(); got != 1 {
		t.Errorf("stop called %d times", got)
	}
}

func TestOpenFailureIsIsolated(t *testing.T) {
	bad := &fakePort{failed: true}
	d := newTestDispatcher(bad.open)
	msgs := d.Messages("test")

	d.subscribe(testDevice("broken", registry.DirectionInput))

	// Dispatcher keeps working for other devices.
	good := &fakePort{}
	d.open = good.open
	d.subscribe(testDevice("pad", registry.DirectionInput))
	good.onBytes([]byte{0xF8})

	select {
	case pm := <-msgs:
		if pm.Msg.Kind != midi.KindClock {
			t.Errorf("got %v", pm.Msg)
		}
	default:
		t.Fatal("no message from the healthy device")
	}
}
