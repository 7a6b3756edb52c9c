package output

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"stemdeck/midi"
	"stemdeck/registry"
)

// fakeWire records everything sent through fake opened ports.
type fakeWire struct {
	mu     sync.Mutex
	opens  int
	closes int
	sent   [][]byte
	fail   bool
}

func (w *fakeWire) open(name string) (func([]byte) error, func(), error) {
	w.mu.Lock()
	w.opens++
	w.mu.Unlock()
	return func(raw []byte) error {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.fail {
				return errors.New("device gone")
			}
			buf := make([]byte, len(raw))
			copy(buf, raw)
			w.sent = append(w.sent, buf)
			return nil
		}, func() {
			w.mu.Lock()
			w.closes++
			w.mu.Unlock()
		}, nil
}

func (w *fakeWire) sentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sent)
}

func newTestOutput(w *fakeWire) *Output {
	return New(zap.NewNop(), Options{Open: w.open})
}

func TestBucketCapacityAndDrainOrder(t *testing.T) {
	w := &fakeWire{}
	o := newTestOutput(w)
	port := registry.LocalID("synth")

	for i := 0; i < 150; i++ {
		if err := o.SendSysEx(port, []byte{0xF0, byte(i), 0xF7}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if got := w.sentCount(); got != 100 {
		t.Fatalf("immediate sends = %d, want 100", got)
	}
	if got := o.Queued(); got != 50 {
		t.Fatalf("queued = %d, want 50", got)
	}

	o.refill()

	if got := w.sentCount(); got != 150 {
		t.Fatalf("after refill sends = %d, want 150", got)
	}
	if got := o.Queued(); got != 0 {
		t.Fatalf("after refill queued = %d, want 0", got)
	}
	for i, raw := range w.sent {
		if raw[1] != byte(i) {
			t.Fatalf("send %d out of order: payload %d", i, raw[1])
		}
	}
}

func TestDrainCapsAtCapacity(t *testing.T) {
	w := &fakeWire{}
	o := newTestOutput(w)
	port := registry.LocalID("synth")

	for i := 0; i < 350; i++ {
		_ = o.SendSysEx(port, []byte{byte(i % 128)})
	}
	if got := o.Queued(); got != 250 {
		t.Fatalf("queued = %d, want 250", got)
	}

	o.refill()
	if got, want := w.sentCount(), 200; got != want {
		t.Fatalf("after first refill sends = %d, want %d", got, want)
	}
	o.refill()
	o.refill()
	if got := o.Queued(); got != 0 {
		t.Fatalf("queue not fully drained: %d", got)
	}
}

func TestSendEncodesCanonicalForm(t *testing.T) {
	w := &fakeWire{}
	o := newTestOutput(w)

	m := midi.Message{Kind: midi.KindNoteOn, Channel: 2, Note: 60, Velocity: 100}
	if err := o.Send(registry.LocalID("synth"), m); err != nil {
		t.Fatal(err)
	}
	if len(w.sent) != 1 || !bytes.Equal(w.sent[0], []byte{0x92, 60, 100}) {
		t.Fatalf("sent %v", w.sent)
	}
}

func TestLazyConnectionCache(t *testing.T) {
	w := &fakeWire{}
	s := NewSender(zap.NewNop(), w.open)
	port := registry.LocalID("synth")

	for i := 0; i < 5; i++ {
		if err := s.Send(port, []byte{0xF8}); err != nil {
			t.Fatal(err)
		}
	}
	if w.opens != 1 {
		t.Fatalf("opens = %d, want 1", w.opens)
	}

	if err := s.Send(registry.LocalID("other"), []byte{0xF8}); err != nil {
		t.Fatal(err)
	}
	if w.opens != 2 {
		t.Fatalf("opens = %d, want one per port", w.opens)
	}
}

func TestSendFailurePurgesConnection(t *testing.T) {
	w := &fakeWire{}
	s := NewSender(zap.NewNop(), w.open)
	port := registry.LocalID("synth")

	if err := s.Send(port, []byte{0xF8}); err != nil {
		t.Fatal(err)
	}

	w.mu.Lock()
	w.fail = true
	w.mu.Unlock()
	if err := s.Send(port, []byte{0xF8}); err == nil {
		t.Fatal("expected send failure")
	}
	if w.closes != 1 {
		t.Fatalf("closes = %d, want failed connection released", w.closes)
	}

	w.mu.Lock()
	w.fail = false
	w.mu.Unlock()
	if err := s.Send(port, []byte{0xF8}); err != nil {
		t.Fatalf("send after purge: %v", err)
	}
	if w.opens != 2 {
		t.Fatalf("opens = %d, want reopen after purge", w.opens)
	}
}

func TestOpenFailureReturnedNotRetried(t *testing.T) {
	opens := 0
	open := func(name string) (func([]byte) error, func(), error) {
		opens++
		return nil, nil, fmt.Errorf("no such port %q", name)
	}
	s := NewSender(zap.NewNop(), open)

	if err := s.Send(registry.LocalID("ghost"), []byte{0xF8}); err == nil {
		t.Fatal("expected open failure")
	}
	if opens != 1 {
		t.Fatalf("opens = %d, want exactly one attempt per call", opens)
	}
}

func TestUnresolvablePortID(t *testing.T) {
	w := &fakeWire{}
	s := NewSender(zap.NewNop(), w.open)

	err := s.Send(registry.NetworkID("Session A"), []byte{0xF8})
	if !errors.Is(err, ErrPortNotFound) {
		t.Fatalf("err = %v, want ErrPortNotFound", err)
	}
	if w.opens != 0 {
		t.Fatal("opened a connection for an unresolvable id")
	}
}
