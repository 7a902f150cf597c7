package queue

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

// Route is where one body is written.
type Route struct {
	Conn net.PacketConn
	Addr net.Addr
}

// Router picks the socket and destination for a body. It is called on the
// outbox goroutine immediately before the write.
type Router func(body frame.Body) (Route, error)

// OutboxConfig configures an Outbox.
type OutboxConfig struct {
	Router Router
	Hooks  Hooks
	Stats  *stats.Collector
	Logger Logger
}

type outItem struct {
	body frame.Body
	// result receives the write outcome. Nil for fire-and-forget submits.
	result chan error
}

// Outbox serialises all outbound frames through one goroutine, in
// submission order.
type Outbox struct {
	cfg OutboxConfig

	mu     sync.Mutex
	items  []outItem
	notify chan struct{}
	closed bool

	done    *closeOnce
	wg      sync.WaitGroup
	started atomic.Bool
}

// NewOutbox creates an outbox. Call Start before submitting.
func NewOutbox(cfg OutboxConfig) *Outbox {
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Outbox{
		cfg:    cfg,
		notify: make(chan struct{}, 1),
		done:   newCloseOnce(),
	}
}

// Start launches the drain loop. Calling it twice is a no-op.
func (o *Outbox) Start() {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	o.wg.Add(1)
	go o.loop()
}

// Submit queues body without waiting for the write.
//
// Returns:
//   - error: ErrClosed after Close, or a validation error from frame.Validate
func (o *Outbox) Submit(body frame.Body) error {
	return o.enqueue(outItem{body: body})
}

// Send queues body and waits until it was written or ctx is done.
func (o *Outbox) Send(ctx context.Context, body frame.Body) error {
	item := outItem{body: body, result: make(chan error, 1)}
	if err := o.enqueue(item); err != nil {
		return err
	}
	select {
	case err := <-item.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued bodies.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Close stops the drain loop and waits for it. Queued bodies that were not
// written yet fail with ErrClosed.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	pending := o.items
	o.items = nil
	o.mu.Unlock()

	o.done.Close()
	o.wg.Wait()

	for _, it := range pending {
		if it.result != nil {
			it.result <- ErrClosed
		}
	}
}

func (o *Outbox) enqueue(item outItem) error {
	if err := frame.Validate(item.body); err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.items = append(o.items, item)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// next blocks until an item is available or the outbox is closed.
func (o *Outbox) next() (outItem, bool) {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			it := o.items[0]
			o.items[0] = outItem{}
			o.items = o.items[1:]
			o.mu.Unlock()
			return it, true
		}
		o.mu.Unlock()

		select {
		case <-o.done.Done():
			return outItem{}, false
		case <-o.notify:
		}
	}
}

func (o *Outbox) loop() {
	defer o.wg.Done()
	for {
		it, ok := o.next()
		if !ok {
			return
		}
		err := o.write(it.body)
		if it.result != nil {
			it.result <- err
		}
	}
}

// write routes, encodes and writes one body. Failures are escalated and
// the loop continues.
func (o *Outbox) write(body frame.Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: outbox: %v", ErrDispatchPanic, r)
			o.record(stats.ErrorDispatch)
			o.cfg.Logger.Error("outbox write panic", "service", body.ServiceType().String(), "panic", fmt.Sprint(r))
			o.notifyError(err)
		}
	}()

	route, err := o.cfg.Router(body)
	if err != nil {
		o.cfg.Logger.Warn("no route for frame", "service", body.ServiceType().String(), "error", err)
		o.notifyError(err)
		return err
	}

	raw := frame.Encode(body)
	if _, err := route.Conn.WriteTo(raw, route.Addr); err != nil {
		o.record(stats.ErrorIO)
		o.cfg.Logger.Error("outbox write failed", "service", body.ServiceType().String(), "to", route.Addr.String(), "error", err)
		wrapped := fmt.Errorf("%w: write %s to %s: %w", ErrIO, body.ServiceType(), route.Addr, err)
		o.notifyError(wrapped)
		return wrapped
	}

	if o.cfg.Stats != nil {
		o.cfg.Stats.RecordSent(body.ServiceType(), len(raw))
	}
	o.cfg.Hooks.OnOutgoingBody(body)
	return nil
}

func (o *Outbox) record(kind stats.ErrorKind) {
	if o.cfg.Stats != nil {
		o.cfg.Stats.RecordError(kind)
	}
}

func (o *Outbox) notifyError(err error) {
	defer func() {
		if r := recover(); r != nil {
			o.cfg.Logger.Error("error hook panic", "panic", fmt.Sprint(r))
		}
	}()
	o.cfg.Hooks.OnError(err)
}
