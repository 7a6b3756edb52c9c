// Package output sends encoded MIDI bytes to output ports through a lazy
// connection cache and a fixed-window rate limiter.
package output

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stemdeck/registry"
)

// ErrPortNotFound reports a send to a port id that does not resolve to a
// local output port.
var ErrPortNotFound = errors.New("output port not found")

// OpenFunc opens one named output port and returns a send closure plus a
// closer. Injectable for tests.
type OpenFunc func(portName string) (send func([]byte) error, closer func(), err error)

type conn struct {
	send  func([]byte) error
	close func()
}

// Sender owns one logical connection per destination port, opened lazily on
// first send. A failed send purges the cached connection so the next call
// reopens it.
type Sender struct {
	log  *zap.Logger
	open OpenFunc

	mu    sync.Mutex
	conns map[string]conn
}

// NewSender builds a sender. A nil open uses the real MIDI driver.
func NewSender(log *zap.Logger, open OpenFunc) *Sender {
	if open == nil {
		open = openOutputPort
	}
	return &Sender{
		log:   log.Named("output"),
		open:  open,
		conns: make(map[string]conn),
	}
}

// Send writes raw bytes to the port identified by portID. Open failures are
// returned to the caller with no retry; the next Send attempts a fresh open.
func (s *Sender) Send(portID string, raw []byte) error {
	name, ok := registry.PortName(portID)
	if !ok {
		return errors.Wrapf(ErrPortNotFound, "id %q", portID)
	}

	s.mu.Lock()
	c, cached := s.conns[portID]
	s.mu.Unlock()

	if !cached {
		send, closer, err := s.open(name)
		if err != nil {
			s.log.Warn("open failed", zap.String("port", name), zap.Error(err))
			return errors.Wrapf(err, "opening %q", name)
		}
		c = conn{send: send, close: closer}
		s.mu.Lock()
		// Another goroutine may have opened the same port meanwhile.
		if prior, ok := s.conns[portID]; ok {
			s.mu.Unlock()
			c.close()
			c = prior
		} else {
			s.conns[portID] = c
			s.mu.Unlock()
		}
	}

	if err := c.send(raw); err != nil {
		s.Purge(portID)
		return errors.Wrapf(err, "sending to %q", name)
	}
	return nil
}

// Purge drops the cached connection for portID, if any. Called when the
// backing resource signals termination.
func (s *Sender) Purge(portID string) {
	s.mu.Lock()
	c, ok := s.conns[portID]
	delete(s.conns, portID)
	s.mu.Unlock()
	if ok {
		c.close()
	}
}

// Close releases every cached connection.
func (s *Sender) Close() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]conn)
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
