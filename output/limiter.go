package output

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stemdeck/midi"
)

const (
	// DefaultCapacity is the number of sends allowed per window.
	DefaultCapacity = 100
	// DefaultWindow is the refill interval of the token bucket.
	DefaultWindow = 50 * time.Millisecond
)

type pending struct {
	portID string
	raw    []byte
}

// Output is the rate-limited send path. Sends consume one token each; when
// the bucket is empty the send is queued FIFO and drained, up to the bucket
// capacity, on the next refill tick. The bucket refills fully every window
// rather than leaking continuously.
type Output struct {
	log      *zap.Logger
	sender   *Sender
	capacity int
	window   time.Duration

	mu     sync.Mutex
	tokens int
	queue  []pending
}

// Options tunes the send path. Zero values take the defaults.
type Options struct {
	Capacity int
	Window   time.Duration
	Open     OpenFunc
}

// New builds a rate-limited output with a full bucket.
func New(log *zap.Logger, opts Options) *Output {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Output{
		log:      log.Named("output"),
		sender:   NewSender(log, opts.Open),
		capacity: opts.Capacity,
		window:   opts.Window,
		tokens:   opts.Capacity,
	}
}

// Run refills the bucket every window until ctx is done, then releases the
// cached connections.
func (o *Output) Run(ctx context.Context) {
	ticker := time.NewTicker(o.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.sender.Close()
			return
		case <-ticker.C:
			o.refill()
		}
	}
}

// Send encodes m canonically and submits it to the rate-limited path. When a
// token is available the send happens on the calling goroutine and its error
// is returned; a queued send returns nil and any later failure is logged.
func (o *Output) Send(portID string, m midi.Message) error {
	raw, err := midi.Encode(m)
	if err != nil {
		return err
	}
	return o.submit(portID, raw)
}

// SendSysEx submits raw SysEx bytes as supplied, without re-framing.
func (o *Output) SendSysEx(portID string, data []byte) error {
	return o.submit(portID, data)
}

func (o *Output) submit(portID string, raw []byte) error {
	o.mu.Lock()
	if o.tokens == 0 {
		o.queue = append(o.queue, pending{portID: portID, raw: raw})
		depth := len(o.queue)
		o.mu.Unlock()
		o.log.Debug("send queued", zap.String("port", portID), zap.Int("depth", depth))
		return nil
	}
	o.tokens--
	o.mu.Unlock()
	return o.sender.Send(portID, raw)
}

// refill restores the bucket to capacity and drains queued sends in
// submission order, at most capacity of them.
func (o *Output) refill() {
	o.mu.Lock()
	o.tokens = o.capacity
	n := len(o.queue)
	if n > o.tokens {
		n = o.tokens
	}
	batch := o.queue[:n]
	o.queue = o.queue[n:]
	o.tokens -= n
	o.mu.Unlock()

	for _, p := range batch {
		if err := o.sender.Send(p.portID, p.raw); err != nil {
			o.log.Warn("queued send failed", zap.String("port", p.portID), zap.Error(err))
		}
	}
}

// Queued reports the current overflow queue depth.
func (o *Output) Queued() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
