package eventbus

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"ambush/pkg/logx"
)

// Handler processes one event. A returned error is logged and delivery
// continues; there is no automatic retry.
type Handler func(e Event) error

const defaultQueueSize = 64

// Bus is an in-memory publish/subscribe hub.
//
// Contract:
//   - Publish MUST be non-blocking for the caller.
//   - Each subscription owns a bounded queue drained by one dedicated
//     worker goroutine, so one slow subscriber can never stall the
//     publisher or a sibling subscriber.
//   - A single subscriber observes events of a given type in publish order.
//     Nothing is guaranteed between subscribers or across types.
//   - If a subscriber's queue is full the event is dropped with a warning.
//
// One Bus instance per process, constructed at startup and passed in
// explicitly. Close drains every worker before returning.
type Bus struct {
	log       logx.Logger
	queueSize int

	mu     sync.Mutex
	subs   map[Type][]*subscriber
	closed bool

	wg sync.WaitGroup
}

type subscriber struct {
	name string
	q    chan Event
}

type Option func(*Bus)

// WithQueueSize overrides the per-subscriber queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func New(log logx.Logger, opts ...Option) *Bus {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bus{
		log:       log,
		queueSize: defaultQueueSize,
		subs:      map[Type][]*subscriber{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers a handler for one event type. The name shows up in
// logs when the handler fails or its queue overflows. Registration after
// Close is a no-op.
func (b *Bus) Subscribe(t Type, name string, h Handler) {
	sub := &subscriber{name: name, q: make(chan Event, b.queueSize)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Warn("subscribe on closed bus", logx.String("subscriber", name))
		return
	}
	b.subs[t] = append(b.subs[t], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.worker(sub, h)
}

// Publish enqueues e to every subscriber of e.Type and returns immediately.
// Publishing on a closed bus is a silent no-op.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// The lock is held across the enqueue loop. Sends are non-blocking, so
	// this is cheap, and it makes the per-type delivery order identical for
	// every subscriber even under concurrent publishers.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs[e.Type] {
		select {
		case sub.q <- e:
		default:
			b.log.Warn("subscriber queue full; dropping event",
				logx.String("subscriber", sub.name),
				logx.String("type", e.Type.String()))
		}
	}
}

// Close stops intake, closes every subscriber queue and waits for the
// workers to drain what was already enqueued. The wait is bounded by ctx.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.q)
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) worker(sub *subscriber, h Handler) {
	defer b.wg.Done()
	for e := range sub.q {
		b.invoke(sub, h, e)
	}
}

// invoke isolates one handler call: a panic or error affects neither later
// events for this subscriber nor any other subscriber.
func (b *Bus) invoke(sub *subscriber, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in event handler",
				logx.String("subscriber", sub.name),
				logx.String("type", e.Type.String()),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	if err := h(e); err != nil {
		b.log.Warn("event handler failed",
			logx.String("subscriber", sub.name),
			logx.String("type", e.Type.String()),
			logx.Err(err))
	}
}
