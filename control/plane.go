// Package control is the facade collaborators call into: mapping lifecycle,
// rate-limited sends, session management, and event subscriptions.
package control

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stemdeck/clock"
	"stemdeck/dispatch"
	"stemdeck/mapping"
	"stemdeck/midi"
	"stemdeck/output"
	"stemdeck/registry"
)

// ErrNoSession reports an operation against an unknown session id.
var ErrNoSession = errors.New("no such session")

type session struct {
	ownerID  string
	executor *mapping.Executor
	cancel   context.CancelFunc
}

// Plane wires the subsystem together and exposes its control operations.
type Plane struct {
	log   *zap.Logger
	store mapping.Store
	reg   *registry.Registry
	disp  *dispatch.Dispatcher
	clk   *clock.Clock
	out   *output.Output

	mu       sync.Mutex
	sessions map[string]*session
}

// NewPlane builds the facade over already-constructed components. The caller
// owns running the components; the plane only runs per-session executors.
func NewPlane(log *zap.Logger, store mapping.Store, reg *registry.Registry, disp *dispatch.Dispatcher, clk *clock.Clock, out *output.Output) *Plane {
	return &Plane{
		log:      log.Named("control"),
		store:    store,
		reg:      reg,
		disp:     disp,
		clk:      clk,
		out:      out,
		sessions: make(map[string]*session),
	}
}

// CreateMapping validates and inserts a new binding, rejecting duplicates.
func (p *Plane) CreateMapping(ctx context.Context, m mapping.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return p.store.Create(ctx, m)
}

// PutMapping validates and upserts a binding.
func (p *Plane) PutMapping(ctx context.Context, m mapping.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return p.store.Put(ctx, m)
}

// DeleteMapping removes the binding with the given key.
func (p *Plane) DeleteMapping(ctx context.Context, key mapping.Key) error {
	return p.store.Delete(ctx, key)
}

// ListMappings returns the bindings for one owner, optionally narrowed to a
// device name.
func (p *Plane) ListMappings(ctx context.Context, ownerID, deviceName string) ([]mapping.Mapping, error) {
	if deviceName == "" {
		return p.store.ListOwner(ctx, ownerID)
	}
	return p.store.List(ctx, ownerID, deviceName)
}

// ImportPreset bulk-loads bindings for an owner from a preset file.
func (p *Plane) ImportPreset(ctx context.Context, ownerID string, r io.Reader) (int, error) {
	return mapping.ImportPreset(ctx, p.store, ownerID, r)
}

// Send encodes and sends one message to a port, through the rate limiter.
func (p *Plane) Send(portID string, m midi.Message) error {
	return p.out.Send(portID, m)
}

// SendSysEx sends raw SysEx bytes to a port, through the rate limiter.
func (p *Plane) SendSysEx(portID string, data []byte) error {
	return p.out.SendSysEx(portID, data)
}

// Devices returns a snapshot of the currently known devices.
func (p *Plane) Devices() []registry.Device {
	return p.reg.List()
}

// StartSession spins up an action executor for the owner and returns its
// session id. The executor subscribes to message traffic until StopSession.
func (p *Plane) StartSession(ctx context.Context, ownerID string) string {
	id := uuid.NewString()
	exec := mapping.NewExecutor(p.log, p.store, ownerID, id)

	sctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.sessions[id] = &session{ownerID: ownerID, executor: exec, cancel: cancel}
	p.mu.Unlock()

	go exec.Run(sctx, p.reg, p.disp)

	p.log.Info("session started", zap.String("session", id), zap.String("owner", ownerID))
	return id
}

// StopSession cancels the session's executor and discards its toggle state.
func (p *Plane) StopSession(sessionID string) error {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	delete(p.sessions, sessionID)
	p.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrNoSession, sessionID)
	}
	s.cancel()
	p.log.Info("session stopped", zap.String("session", sessionID))
	return nil
}

// ActionEvents subscribes to a session's executed actions.
func (p *Plane) ActionEvents(sessionID, name string) (<-chan mapping.ActionEvent, error) {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(ErrNoSession, sessionID)
	}
	return s.executor.Events(name), nil
}

// DeviceEvents subscribes to device connect/disconnect events.
func (p *Plane) DeviceEvents(name string) <-chan registry.Event {
	return p.reg.Events(name)
}

// Messages subscribes to the decoded per-port message stream.
func (p *Plane) Messages(name string) <-chan dispatch.PortMessage {
	return p.disp.Messages(name)
}

// ClockEvents subscribes to transport and BPM events.
func (p *Plane) ClockEvents(name string) <-chan clock.Event {
	return p.clk.Events(name)
}

// Close stops every active session.
func (p *Plane) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*session)
	p.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
}
