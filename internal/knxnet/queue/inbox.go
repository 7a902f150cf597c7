package queue

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

// DefaultPollInterval bounds how long a read blocks before the inbox checks
// for shutdown.
const DefaultPollInterval = 100 * time.Millisecond

// readBufferSize fits the largest frame the header can describe.
const readBufferSize = frame.MaxFrameSize

// Handler processes one accepted inbound body.
type Handler func(body frame.Body, from netip.AddrPort)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// InboxConfig configures an Inbox.
type InboxConfig struct {
	// Name identifies the socket in logs ("control", "data", "discovery").
	Name string

	// Conn is the socket to read. The inbox never closes it.
	Conn net.PacketConn

	// Verifier filters bodies by channel id. Nil accepts everything.
	Verifier *ChannelVerifier

	// Hooks receives incoming bodies and errors. Nil means NopHooks.
	Hooks Hooks

	// Stats counts received and errored frames. Optional.
	Stats *stats.Collector

	// PollInterval is the read deadline per cycle. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration

	// Logger is optional.
	Logger Logger
}

// Inbox reads datagrams from one socket, decodes them and dispatches each
// accepted body to the handler registered for its service type.
//
// Thread Safety:
//   - Handle must be called before Start.
//   - Handlers run on the inbox goroutine, one at a time, in receipt order.
type Inbox struct {
	cfg      InboxConfig
	handlers map[frame.ServiceType]Handler

	done    *closeOnce
	wg      sync.WaitGroup
	started atomic.Bool

	// failing is true while consecutive reads keep failing, so a streak is
	// reported once.
	failing bool
}

// NewInbox creates an inbox. Call Handle for each service type, then Start.
func NewInbox(cfg InboxConfig) *Inbox {
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Inbox{
		cfg:      cfg,
		handlers: make(map[frame.ServiceType]Handler),
		done:     newCloseOnce(),
	}
}

// Handle registers h for bodies of type st, replacing any earlier handler.
func (i *Inbox) Handle(st frame.ServiceType, h Handler) {
	i.handlers[st] = h
}

// Start launches the read loop. Calling it twice is a no-op.
func (i *Inbox) Start() {
	if !i.started.CompareAndSwap(false, true) {
		return
	}
	i.wg.Add(1)
	go i.loop()
}

// Close stops the read loop and waits for it to exit. The loop notices
// within one polling cycle.
func (i *Inbox) Close() {
	i.done.Close()
	i.wg.Wait()
}

// Done is closed when Close is called.
func (i *Inbox) Done() <-chan struct{} {
	return i.done.Done()
}

func (i *Inbox) loop() {
	defer i.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-i.done.Done():
			return
		default:
		}

		if err := i.cfg.Conn.SetReadDeadline(time.Now().Add(i.cfg.PollInterval)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				i.exitClosed()
				return
			}
		}

		n, from, err := i.cfg.Conn.ReadFrom(buf)
		if err != nil {
			if !i.handleReadError(err) {
				return
			}
			continue
		}
		i.failing = false
		i.dispatch(buf[:n], addrPort(from))
	}
}

// handleReadError reports whether the loop should continue.
func (i *Inbox) handleReadError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, net.ErrClosed) {
		i.exitClosed()
		return false
	}

	if !i.failing {
		i.failing = true
		i.record(stats.ErrorIO)
		i.cfg.Logger.Error("inbox read failed", "socket", i.cfg.Name, "error", err)
		i.notifyError(fmt.Errorf("%w: %s read: %w", ErrIO, i.cfg.Name, err))
	}

	// Back off one cycle so a persistent failure does not spin.
	select {
	case <-i.done.Done():
		return false
	case <-time.After(i.cfg.PollInterval):
		return true
	}
}

// exitClosed reports an unexpected socket close. A close during shutdown is
// silent.
func (i *Inbox) exitClosed() {
	select {
	case <-i.done.Done():
		return
	default:
	}
	i.record(stats.ErrorIO)
	i.cfg.Logger.Warn("inbox socket closed", "socket", i.cfg.Name)
	i.notifyError(fmt.Errorf("%w: %s: %w", ErrIO, i.cfg.Name, net.ErrClosed))
}

// dispatch decodes and routes one datagram. A panic is isolated to this
// datagram.
func (i *Inbox) dispatch(data []byte, from netip.AddrPort) {
	defer func() {
		if r := recover(); r != nil {
			i.record(stats.ErrorDispatch)
			i.cfg.Logger.Error("inbox dispatch panic", "socket", i.cfg.Name, "panic", fmt.Sprint(r))
			i.notifyError(fmt.Errorf("%w: %s: %v", ErrDispatchPanic, i.cfg.Name, r))
		}
	}()

	_, body, err := frame.Decode(data)
	if err != nil {
		i.record(stats.ErrorDecode)
		i.cfg.Logger.Warn("dropping malformed frame",
			"socket", i.cfg.Name, "from", from.String(), "length", len(data), "error", err)
		return
	}

	if i.cfg.Verifier != nil && !i.cfg.Verifier.Accept(body) {
		i.record(stats.ErrorChannel)
		ch, _ := frame.ChannelOf(body)
		i.cfg.Logger.Debug("dropping frame for foreign channel",
			"socket", i.cfg.Name, "service", body.ServiceType().String(), "channel", ch)
		return
	}

	if i.cfg.Stats != nil {
		i.cfg.Stats.RecordReceived(body.ServiceType(), len(data))
	}

	if h, ok := i.handlers[body.ServiceType()]; ok {
		h(body, from)
	} else {
		i.cfg.Logger.Debug("no handler for frame", "socket", i.cfg.Name, "service", body.ServiceType().String())
	}
	i.cfg.Hooks.OnIncomingBody(body)
}

func (i *Inbox) record(kind stats.ErrorKind) {
	if i.cfg.Stats != nil {
		i.cfg.Stats.RecordError(kind)
	}
}

// notifyError calls the error hook, isolating a panicking hook.
func (i *Inbox) notifyError(err error) {
	defer func() {
		if r := recover(); r != nil {
			i.cfg.Logger.Error("error hook panic", "socket", i.cfg.Name, "panic", fmt.Sprint(r))
		}
	}()
	i.cfg.Hooks.OnError(err)
}

func addrPort(a net.Addr) netip.AddrPort {
	if ua, ok := a.(*net.UDPAddr); ok {
		ap := ua.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	if a == nil {
		return netip.AddrPort{}
	}
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return netip.AddrPort{}
	}
	return ap
}
