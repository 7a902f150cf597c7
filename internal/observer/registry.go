package observer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/queue"
)

// DefaultQueueSize is the event buffer used when NewRegistry gets 0.
const DefaultQueueSize = 1024

// Observer receives client activity from the Registry dispatch goroutine.
type Observer interface {
	OnTelegram(t Telegram)
	OnStateChange(from, to client.State)
	OnError(err error)
}

// NopObserver ignores everything. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OnTelegram(Telegram)                {}
func (NopObserver) OnStateChange(from, to client.State) {}
func (NopObserver) OnError(error)                      {}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type eventKind uint8

const (
	eventTelegram eventKind = iota
	eventState
	eventError
)

type event struct {
	kind     eventKind
	telegram Telegram
	from, to client.State
	err      error
}

// Registry implements queue.Hooks and client.StateObserver and forwards to
// a fixed list of observers.
type Registry struct {
	observers []Observer
	events    chan event

	running atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	closeMu sync.Once

	dropped atomic.Uint64
	now     func() time.Time

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRegistry creates a registry for observers. queueSize 0 means
// DefaultQueueSize. nil observers are skipped.
func NewRegistry(queueSize int, observers ...Observer) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return &Registry{
		observers: list,
		events:    make(chan event, queueSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Len returns the number of observers.
func (r *Registry) Len() int { return len(r.observers) }

// Dropped returns how many events were discarded because the queue was full.
func (r *Registry) Dropped() uint64 { return r.dropped.Load() }

// SetLogger sets the logger.
func (r *Registry) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// OnIncomingBody implements queue.Hooks.
func (r *Registry) OnIncomingBody(body frame.Body) {
	if t, ok := TelegramFromBody(body, Inbound, r.now()); ok {
		r.enqueue(event{kind: eventTelegram, telegram: t})
	}
}

// OnOutgoingBody implements queue.Hooks.
func (r *Registry) OnOutgoingBody(body frame.Body) {
	if t, ok := TelegramFromBody(body, Outbound, r.now()); ok {
		r.enqueue(event{kind: eventTelegram, telegram: t})
	}
}

// OnError implements queue.Hooks.
func (r *Registry) OnError(err error) {
	if err != nil {
		r.enqueue(event{kind: eventError, err: err})
	}
}

// OnStateChange implements client.StateObserver.
func (r *Registry) OnStateChange(from, to client.State) {
	r.enqueue(event{kind: eventState, from: from, to: to})
}

func (r *Registry) enqueue(e event) {
	if r.closed.Load() {
		return
	}
	select {
	case r.events <- e:
	default:
		if r.dropped.Add(1) == 1 {
			r.log().Warn("observer queue full, dropping events", "size", cap(r.events))
		}
	}
}

// Run dispatches events until ctx is done or Close is called, then drains
// what is already queued. It must be called once.
func (r *Registry) Run(ctx context.Context) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	if !r.running.CompareAndSwap(false, true) {
		return fmt.Errorf("observer: registry already running")
	}
	for {
		select {
		case e := <-r.events:
			r.dispatch(e)
		case <-ctx.Done():
			r.drain()
			return nil
		case <-r.done:
			r.drain()
			return nil
		}
	}
}

// Close stops Run. Events arriving afterwards are ignored.
func (r *Registry) Close() {
	r.closeMu.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
}

func (r *Registry) drain() {
	for {
		select {
		case e := <-r.events:
			r.dispatch(e)
		default:
			return
		}
	}
}

func (r *Registry) dispatch(e event) {
	for _, o := range r.observers {
		r.deliver(o, e)
	}
}

// deliver calls one observer. A panic only loses that observer's event.
func (r *Registry) deliver(o Observer, e event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log().Error("observer panic", "observer", fmt.Sprintf("%T", o), "panic", fmt.Sprint(rec))
		}
	}()
	switch e.kind {
	case eventTelegram:
		o.OnTelegram(e.telegram)
	case eventState:
		o.OnStateChange(e.from, e.to)
	case eventError:
		o.OnError(e.err)
	}
}

func (r *Registry) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	if r.logger == nil {
		return nopLogger{}
	}
	return r.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

var (
	_ queue.Hooks          = (*Registry)(nil)
	_ client.StateObserver = (*Registry)(nil)
)
