package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultSinkTimeout = 2 * time.Second

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of waiting.
	// Event types listed in Critical always wait, bounded by the caller's ctx.
	DropIfFull bool
	Critical   []string
	// SinkTimeout bounds a single Sink.Emit call. Zero means 2s.
	SinkTimeout time.Duration
}

// Dispatcher relays events to a sink from one background goroutine so the
// sign-in path never waits on audit I/O.
type Dispatcher struct {
	sink        Sink
	queue       chan Event
	stop        chan struct{}
	finished    chan struct{}
	dropIfFull  bool
	critical    map[string]struct{}
	sinkTimeout time.Duration

	mu        sync.Mutex
	dropped   map[string]uint64
	total     atomic.Uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when auditing is off; a
// nil *Dispatcher accepts and ignores every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	timeout := cfg.SinkTimeout
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, t := range cfg.Critical {
		critical[t] = struct{}{}
	}

	d := &Dispatcher{
		sink:        sink,
		queue:       make(chan Event, size),
		stop:        make(chan struct{}),
		finished:    make(chan struct{}),
		dropIfFull:  cfg.DropIfFull,
		critical:    critical,
		sinkTimeout: timeout,
		dropped:     make(map[string]uint64),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Flush what is already buffered, then exit.
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout)
	defer cancel()
	d.sink.Emit(ctx, ev)
}

// Emit queues ev. With DropIfFull a full buffer drops non-critical events
// and counts them per event type.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, critical := d.critical[ev.EventType]
	if d.dropIfFull && !critical {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.recordDrop(ev.EventType)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-d.stop:
	case <-ctx.Done():
		d.recordDrop(ev.EventType)
	}
}

func (d *Dispatcher) recordDrop(eventType string) {
	d.total.Add(1)
	d.mu.Lock()
	d.dropped[eventType]++
	d.mu.Unlock()
}

// Close stops intake, flushes the buffer and waits for the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.finished
	})
}

// Dropped returns the number of events lost to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns a copy of the per-event-type drop counts.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.dropped {
		out[k] = v
	}
	return out
}
