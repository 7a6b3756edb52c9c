package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"stemdeck/bus"
)

// EventType distinguishes hotplug events.
type EventType int

const (
	DeviceConnected EventType = iota
	DeviceDisconnected
)

// Event is emitted when a device appears or disappears. For disconnects the
// Device carries the last-known record with Status flipped to Disconnected.
type Event struct {
	Type   EventType
	Device Device
}

// LocalPort is one entry returned by the platform MIDI enumeration.
type LocalPort struct {
	Name string
	In   bool
	Out  bool
}

// NetworkSession is one resolved network MIDI session advertisement.
type NetworkSession struct {
	Instance string
	Host     string
	Port     int
}

// Options tunes the discovery loops. Zero values pick the defaults. Enumerate
// and Browse exist so tests can drive the registry without real hardware.
type Options struct {
	LocalInterval   time.Duration
	NetworkInterval time.Duration
	ResolveTimeout  time.Duration

	Enumerate func() ([]LocalPort, error)
	Browse    func(ctx context.Context, timeout time.Duration) ([]NetworkSession, error)
}

const (
	defaultLocalInterval   = 5 * time.Second
	defaultNetworkInterval = 10 * time.Second
	defaultResolveTimeout  = 5 * time.Second
)

// Registry is the device table plus its discovery loops.
type Registry struct {
	log    *zap.Logger
	events *bus.Bus[Event]

	localInterval   time.Duration
	networkInterval time.Duration
	resolveTimeout  time.Duration
	enumerate       func() ([]LocalPort, error)
	browse          func(ctx context.Context, timeout time.Duration) ([]NetworkSession, error)

	mu      sync.RWMutex
	devices map[string]Device

	// Each warn flag is read and written only by its own discovery loop
	// goroutine, so neither needs mu.
	localWarned   bool
	networkWarned bool

	now func() time.Time
}

// New creates a registry. Run must be called to start discovery.
func New(log *zap.Logger, opts Options) *Registry {
	r := &Registry{
		log:             log.Named("registry"),
		events:          bus.New[Event](),
		localInterval:   opts.LocalInterval,
		networkInterval: opts.NetworkInterval,
		resolveTimeout:  opts.ResolveTimeout,
		enumerate:       opts.Enumerate,
		browse:          opts.Browse,
		devices:         make(map[string]Device),
		now:             time.Now,
	}
	if r.localInterval <= 0 {
		r.localInterval = defaultLocalInterval
	}
	if r.networkInterval <= 0 {
		r.networkInterval = defaultNetworkInterval
	}
	if r.resolveTimeout <= 0 {
		r.resolveTimeout = defaultResolveTimeout
	}
	if r.enumerate == nil {
		r.enumerate = enumerateLocal
	}
	if r.browse == nil {
		r.browse = browseNetwork
	}
	return r
}

// Events subscribes to hotplug events under the given consumer name.
func (r *Registry) Events(name string) <-chan Event {
	return r.events.Subscribe(name, 16)
}

// DropEvents removes a consumer's subscription.
func (r *Registry) DropEvents(name string) {
	r.events.Unsubscribe(name)
}

// List returns a consistent snapshot of all known devices, sorted by id.
// It never blocks on the discovery loops beyond the read lock.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one device record by id.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Run drives both discovery loops until ctx is cancelled. Each loop scans
// once immediately, then on its own ticker.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.runLocal(ctx)
	}()
	go func() {
		defer wg.Done()
		r.runNetwork(ctx)
	}()
	wg.Wait()
	r.events.Close()
}

func (r *Registry) runLocal(ctx context.Context) {
	ticker := time.NewTicker(r.localInterval)
	defer ticker.Stop()

	r.scanLocal()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanLocal()
		}
	}
}

func (r *Registry) runNetwork(ctx context.Context) {
	ticker := time.NewTicker(r.networkInterval)
	defer ticker.Stop()

	r.scanNetwork(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanNetwork(ctx)
		}
	}
}

func (r *Registry) scanLocal() {
	ports, err := r.enumerate()
	if err != nil {
		if !r.localWarned {
			r.log.Warn("local MIDI enumeration unavailable, running without local devices", zap.Error(err))
			r.localWarned = true
		}
		ports = nil
	}

	seen := make(map[string]Device, len(ports))
	for _, p := range ports {
		id := LocalID(p.Name)
		dir := DirectionInput
		switch {
		case p.In && p.Out:
			dir = DirectionDuplex
		case p.Out:
			dir = DirectionOutput
		}
		transport := TransportUSB
		if isVirtualPort(p.Name) {
			transport = TransportVirtual
		}
		seen[id] = Device{
			ID:        id,
			Name:      p.Name,
			Direction: dir,
			Transport: transport,
			Status:    StatusConnected,
		}
	}

	r.reconcile(seen, func(id string) bool { return !IsNetworkID(id) })
}

func (r *Registry) scanNetwork(ctx context.Context) {
	sessions, err := r.browse(ctx, r.resolveTimeout)
	if err != nil {
		if !r.networkWarned {
			r.log.Warn("network MIDI discovery unavailable, running without network devices", zap.Error(err))
			r.networkWarned = true
		}
		sessions = nil
	}

	seen := make(map[string]Device, len(sessions))
	for _, s := range sessions {
		// Partial resolver output counts as "no device found" for that entry.
		if s.Instance == "" || s.Host == "" || s.Port == 0 {
			continue
		}
		id := NetworkID(s.Instance)
		seen[id] = Device{
			ID:          id,
			Name:        s.Instance,
			Direction:   DirectionDuplex,
			Transport:   TransportNetwork,
			Status:      StatusConnected,
			Host:        s.Host,
			Port:        s.Port,
			SessionName: s.Instance,
		}
	}

	r.reconcile(seen, IsNetworkID)
}

// reconcile diffs one namespace of the device table against a freshly seen
// set. inNamespace selects which existing ids this scan is allowed to evict.
func (r *Registry) reconcile(seen map[string]Device, inNamespace func(string) bool) {
	var connected, disconnected []Device

	r.mu.Lock()
	for id, d := range seen {
		if _, ok := r.devices[id]; !ok {
			d.DiscoveredAt = r.now()
			r.devices[id] = d
			connected = append(connected, d)
		}
	}
	for id, d := range r.devices {
		if !inNamespace(id) {
			continue
		}
		if _, ok := seen[id]; !ok {
			delete(r.devices, id)
			d.Status = StatusDisconnected
			disconnected = append(disconnected, d)
		}
	}
	r.mu.Unlock()

	for _, d := range connected {
		r.log.Info("device connected",
			zap.String("id", d.ID),
			zap.String("name", d.Name),
			zap.Stringer("direction", d.Direction),
			zap.Stringer("transport", d.Transport),
		)
		r.events.Publish(Event{Type: DeviceConnected, Device: d})
	}
	for _, d := range disconnected {
		r.log.Info("device disconnected", zap.String("id", d.ID), zap.String("name", d.Name))
		r.events.Publish(Event{Type: DeviceDisconnected, Device: d})
	}
}
