// Package dispatch opens an input subscription for every input-capable
// device the registry knows, decodes incoming byte chunks and republishes the
// resulting messages, tagged with the originating port.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"stemdeck/bus"
	"stemdeck/midi"
	"stemdeck/registry"
)

// PortMessage is one decoded message tagged with its source. Order is
// preserved per device; there is no ordering across devices.
type PortMessage struct {
	PortID string
	Device string // device name, for mapping lookups
	Msg    midi.Message
}

// OpenFunc opens a raw input subscription on a local port. onBytes receives
// raw chunks, onErr signals listener failure. The returned function stops the
// subscription and must be safe to call once.
type OpenFunc func(portName string, onBytes func([]byte), onErr func(error)) (stop func(), err error)

// Dispatcher owns the port -> subscription map.
type Dispatcher struct {
	log  *zap.Logger
	reg  *registry.Registry
	msgs *bus.Bus[PortMessage]
	open OpenFunc

	mu   sync.Mutex
	subs map[string]func()
}

// New creates a dispatcher. A nil open uses the real MIDI driver.
func New(log *zap.Logger, reg *registry.Registry, open OpenFunc) *Dispatcher {
	if open == nil {
		open = openInputPort
	}
	return &Dispatcher{
		log:  log.Named("dispatch"),
		reg:  reg,
		msgs: bus.New[PortMessage](),
		open: open,
		subs: make(map[string]func()),
	}
}

// Messages subscribes a named consumer to the decoded message feed.
func (d *Dispatcher) Messages(name string) <-chan PortMessage {
	return d.msgs.Subscribe(name, 64)
}

// DropMessages removes a consumer's subscription.
func (d *Dispatcher) DropMessages(name string) {
	d.msgs.Unsubscribe(name)
}

// Run reacts to registry hotplug events until ctx is cancelled. Devices
// already known at start are subscribed immediately.
func (d *Dispatcher) Run(ctx context.Context) {
	events := d.reg.Events("dispatcher")
	defer d.reg.DropEvents("dispatcher")

	for _, dev := range d.reg.List() {
		d.subscribe(dev)
	}

	for {
		select {
		case <-ctx.Done():
			d.closeAll()
			d.msgs.Close()
			return
		case ev, ok := <-events:
			if !ok {
				d.closeAll()
				d.msgs.Close()
				return
			}
			switch ev.Type {
			case registry.DeviceConnected:
				d.subscribe(ev.Device)
			case registry.DeviceDisconnected:
				d.unsubscribe(ev.Device.ID)
			}
		}
	}
}

func (d *Dispatcher) subscribe(dev registry.Device) {
	if !dev.Direction.CanReceive() {
		return
	}
	portName, ok := registry.PortName(dev.ID)
	if !ok {
		// Network sessions have no local port to open; their traffic arrives
		// through the session bridge, not through us.
		return
	}

	d.mu.Lock()
	if _, exists := d.subs[dev.ID]; exists {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	onBytes := func(chunk []byte) {
		d.handleChunk(dev, chunk)
	}
	onErr := func(err error) {
		d.log.Warn("listener failed, dropping port",
			zap.String("port", dev.ID), zap.Error(err))
		// Tear down from a fresh goroutine: the driver does not allow
		// stopping a listener from inside its own callback.
		go d.unsubscribe(dev.ID)
	}

	stop, err := d.open(portName, onBytes, onErr)
	if err != nil {
		// Isolated failure: this device produces nothing, everything else
		// keeps running.
		d.log.Warn("opening input failed", zap.String("port", dev.ID), zap.Error(err))
		return
	}

	d.mu.Lock()
	if _, exists := d.subs[dev.ID]; exists {
		d.mu.Unlock()
		stop()
		return
	}
	d.subs[dev.ID] = stop
	d.mu.Unlock()

	d.log.Info("subscribed to input", zap.String("port", dev.ID), zap.String("device", dev.Name))
}

// unsubscribe stops a port's listener. Idempotent: second and later calls for
// the same port are no-ops.
func (d *Dispatcher) unsubscribe(id string) {
	d.mu.Lock()
	stop, ok := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()
	if ok {
		stop()
		d.log.Info("unsubscribed from input", zap.String("port", id))
	}
}

func (d *Dispatcher) closeAll() {
	d.mu.Lock()
	subs := d.subs
	d.subs = make(map[string]func())
	d.mu.Unlock()
	for _, stop := range subs {
		stop()
	}
}

func (d *Dispatcher) handleChunk(dev registry.Device, chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic handling input chunk", zap.String("port", dev.ID), zap.Any("panic", r))
		}
	}()
	for _, m := range midi.Decode(chunk) {
		d.msgs.Publish(PortMessage{PortID: dev.ID, Device: dev.Name, Msg: m})
	}
}
