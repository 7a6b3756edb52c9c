package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakePorts is a swappable enumeration result for driving scans by hand.
type fakePorts struct {
	ports []LocalPort
	err   error
}

func (f *fakePorts) enumerate() ([]LocalPort, error) {
	return f.ports, f.err
}

func newTestRegistry(f *fakePorts) *Registry {
	return New(zap.NewNop(), Options{
		Enumerate: f.enumerate,
		Browse: func(context.Context, time.Duration) ([]NetworkSession, error) {
			return nil, nil
		},
	})
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestLocalHotplugDiffing(t *testing.T) {
	f := &fakePorts{ports: []LocalPort{{Name: "DDJ-400", In: true, Out: true}}}
	r := newTestRegistry(f)
	events := r.Events("test")

	r.scanLocal()
	got := drain(events)
	if len(got) != 1 || got[0].Type != DeviceConnected {
		t.Fatalf("after first scan: %v", got)
	}
	d := got[0].Device
	if d.ID != "local:DDJ-400" || d.Direction != DirectionDuplex || d.Status != StatusConnected {
		t.Errorf("device: %+v", d)
	}

	// Same set again: no events.
	r.scanLocal()
	if got := drain(events); len(got) != 0 {
		t.Errorf("stable scan produced events: %v", got)
	}

	// Device disappears: record is evicted and broadcast as disconnected.
	f.ports = nil
	r.scanLocal()
	got = drain(events)
	if len(got) != 1 || got[0].Type != DeviceDisconnected {
		t.Fatalf("after removal: %v", got)
	}
	if got[0].Device.Status != StatusDisconnected {
		t.Errorf("disconnect event carries status %v", got[0].Device.Status)
	}
	if len(r.List()) != 0 {
		t.Errorf("device not evicted: %v", r.List())
	}
}

func TestEnumerationFailureDegradesToEmpty(t *testing.T) {
	f := &fakePorts{ports: []LocalPort{{Name: "pad", In: true}}}
	r := newTestRegistry(f)
	r.scanLocal()
	if len(r.List()) != 1 {
		t.Fatalf("setup: %v", r.List())
	}

	f.err = context.DeadlineExceeded
	r.scanLocal() // must not panic, degrades to empty set
	if len(r.List()) != 0 {
		t.Errorf("devices remain after subsystem loss: %v", r.List())
	}
	r.scanLocal() // second failure: warned flag keeps it quiet, still no crash
}

func TestNetworkNamespaceIsDistinct(t *testing.T) {
	sessions := []NetworkSession{{Instance: "Studio Session", Host: "10.0.0.7", Port: 5004}}
	r := New(zap.NewNop(), Options{
		Enumerate: func() ([]LocalPort, error) {
			return []LocalPort{{Name: "Studio Session", In: true}}, nil
		},
		Browse: func(context.Context, time.Duration) ([]NetworkSession, error) {
			return sessions, nil
		},
	})

	r.scanLocal()
	r.scanNetwork(context.Background())

	devices := r.List()
	if len(devices) != 2 {
		t.Fatalf("want 2 devices for same name in two namespaces, got %v", devices)
	}
	var network *Device
	for i := range devices {
		if devices[i].Transport == TransportNetwork {
			network = &devices[i]
		}
	}
	if network == nil {
		t.Fatal("no network device")
	}
	if !IsNetworkID(network.ID) || network.Host != "10.0.0.7" || network.Port != 5004 {
		t.Errorf("network device: %+v", network)
	}

	// A network scan never evicts local devices.
	r.scanNetwork(context.Background())
	if len(r.List()) != 2 {
		t.Errorf("cross-namespace eviction: %v", r.List())
	}
}

func TestMalformedResolverOutputSkipped(t *testing.T) {
	r := New(zap.NewNop(), Options{
		Enumerate: func() ([]LocalPort, error) { return nil, nil },
		Browse: func(context.Context, time.Duration) ([]NetworkSession, error) {
			return []NetworkSession{
				{Instance: "", Host: "10.0.0.1", Port: 5004},
				{Instance: "no-host", Host: "", Port: 5004},
				{Instance: "no-port", Host: "10.0.0.2", Port: 0},
			}, nil
		},
	})
	r.scanNetwork(context.Background())
	if got := r.List(); len(got) != 0 {
		t.Errorf("malformed entries accepted: %v", got)
	}
}

func TestVirtualPortDetection(t *testing.T) {
	f := &fakePorts{ports: []LocalPort{{Name: "Midi Through Port-0", In: true, Out: true}}}
	r := newTestRegistry(f)
	r.scanLocal()
	devices := r.List()
	if len(devices) != 1 || devices[0].Transport != TransportVirtual {
		t.Errorf("got %v", devices)
	}
}
