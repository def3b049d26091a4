package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// dropLogEvery throttles drop warnings: the first drop of an event type is
// logged, then every dropLogEvery-th.
const dropLogEvery = 1000

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// FlushTimeout bounds how long Close waits for queued events to reach
	// the sink. Events still queued at the deadline are counted as dropped.
	// 0 waits until the queue is empty.
	FlushTimeout time.Duration

	// Logger receives drop warnings. nil disables them.
	Logger *slog.Logger
}

// Dispatcher forwards audit events to a sink from a single worker goroutine,
// so a sink sees events in emission order. Drops are counted per event type.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event

	done   chan struct{}
	abort  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	mu        sync.Mutex
	byType    map[string]uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.FlushTimeout < 0 {
		cfg.FlushTimeout = 0
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
		abort:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		byType: make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands event to the sink unless the flush deadline has passed.
func (d *Dispatcher) deliver(event Event) {
	select {
	case <-d.abort:
		d.recordDrop(event.EventType, "flush deadline")
		return
	default:
	}
	d.sink.Emit(d.ctx, event)
}

// Emit queues event. With DropIfFull a full queue drops the event; otherwise
// Emit waits for room until ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.recordDrop(event.EventType, "queue full")
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.recordDrop(event.EventType, "caller context done")
	case <-d.done:
	}
}

func (d *Dispatcher) recordDrop(eventType, cause string) {
	total := d.dropped.Add(1)

	d.mu.Lock()
	d.byType[eventType]++
	n := d.byType[eventType]
	d.mu.Unlock()

	if d.cfg.Logger != nil && (n == 1 || n%dropLogEvery == 0) {
		d.cfg.Logger.Warn("otp audit event dropped",
			"event_type", eventType,
			"cause", cause,
			"dropped_for_type", n,
			"dropped_total", total,
		)
	}
}

// Close stops accepting events and flushes the queue, waiting at most
// FlushTimeout. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)

		finished := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(finished)
		}()

		if d.cfg.FlushTimeout <= 0 {
			<-finished
			d.cancel()
			return
		}

		timer := time.NewTimer(d.cfg.FlushTimeout)
		defer timer.Stop()
		select {
		case <-finished:
			d.cancel()
		case <-timer.C:
			// Remaining events are counted by the worker once the sink
			// returns; a sink that honours ctx returns right away.
			close(d.abort)
			d.cancel()
			if d.cfg.Logger != nil {
				d.cfg.Logger.Warn("otp audit flush deadline exceeded",
					"queued", len(d.ch),
					"flush_timeout", d.cfg.FlushTimeout,
				)
			}
		}
	})
}

// Dropped returns the total number of dropped events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns a copy of the drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}
