package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/event"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/queue"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
	"github.com/nerrad567/knxnet-core/internal/knxnet/status"
)

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

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option customises a Client in New.
type Option func(*Client)

// WithHooks sets the frame observer. Hooks that also implement
// StateObserver receive lifecycle changes.
func WithHooks(h queue.Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithStatusStore persists the status pool.
func WithStatusStore(store status.Store) Option {
	return func(c *Client) { c.status = status.NewPool(store) }
}

// WithStats shares an existing collector.
func WithStats(collector *stats.Collector) Option {
	return func(c *Client) { c.stats = collector }
}

// WithLogger sets the logger. Equivalent to SetLogger before Start.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is a KNXnet/IP tunneling or routing client.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Tunneled sends are serialised; one request is outstanding at a time.
//
// Lifecycle:
//   - New validates the configuration; Start opens sockets and connects.
//   - With AutoReconnect a lost session is re-established with exponential
//     backoff until Close.
type Client struct {
	cfg Config

	sm     *stateMachine
	sess   session
	pool   *event.Pool
	status *status.Pool
	stats  *stats.Collector
	hooks  queue.Hooks

	sockets *sockets
	inboxes []*queue.Inbox
	outbox  *queue.Outbox

	// gateway is the control endpoint of the current or last session.
	gateway atomic.Pointer[net.UDPAddr]
	// describeTarget is the endpoint of the pending DESCRIPTION_REQUEST.
	describeTarget atomic.Pointer[net.UDPAddr]
	describeMu     sync.Mutex
	searchMu       sync.Mutex

	// tunnelMu enforces the single outstanding request window.
	tunnelMu sync.Mutex
	// busyUntil is the UnixNano time routing sends resume after ROUTING_BUSY.
	busyUntil atomic.Int64

	// establishMu serialises connect cycles.
	establishMu  sync.Mutex
	heartbeatMu  sync.Mutex
	stopBeat     context.CancelFunc
	recovering   atomic.Bool
	reconnecting atomic.Bool

	started atomic.Bool
	closing atomic.Bool
	life    context.Context //nolint:containedctx // lifetime of background goroutines
	cancel  context.CancelFunc
	done    *closeOnce
	wg      sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a client. It does not touch the network.
//
// Parameters:
//   - cfg: Client configuration; zero values take defaults
//   - opts: Optional hooks, stores and logger
//
// Returns:
//   - *Client: Client ready for Start
//   - error: ErrInvalidConfig if cfg fails validation
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:  cfg,
		pool: event.NewPool(),
		done: newCloseOnce(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.status == nil {
		c.status = status.NewPool(nil)
	}
	if c.stats == nil {
		c.stats = stats.New()
	}
	if c.hooks == nil {
		c.hooks = queue.NopHooks{}
	}
	c.status.SetLogger(clientLogger{c})
	c.sm = newStateMachine(c.notifyState)
	if cfg.Gateway.IsValid() {
		c.gateway.Store(net.UDPAddrFromAddrPort(cfg.Gateway))
	}
	return c, nil
}

// Start opens the sockets, starts the queues and establishes the session.
//
// In routing mode the client is connected as soon as the multicast group is
// joined. In tunneling mode Start discovers a gateway if none is configured,
// then connects. With AutoReconnect a failed first connect is retried in the
// background and Start returns nil; otherwise the error is returned.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrClosed, a socket error or the connect error
func (c *Client) Start(ctx context.Context) error {
	if c.closing.Load() {
		return ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	socks, err := openSockets(c.cfg)
	if err != nil {
		c.started.Store(false)
		return fmt.Errorf("client: open sockets: %w", err)
	}
	c.sockets = socks
	c.life, c.cancel = context.WithCancel(context.Background())

	log := clientLogger{c}
	verifier := queue.NewChannelVerifier(c.sess.channelID)
	c.outbox = queue.NewOutbox(queue.OutboxConfig{
		Router: c.route,
		Hooks:  c.hooks,
		Stats:  c.stats,
		Logger: log,
	})
	for _, nc := range socks.conns() {
		in := queue.NewInbox(queue.InboxConfig{
			Name:         nc.name,
			Conn:         nc.conn,
			Verifier:     verifier,
			Hooks:        c.hooks,
			Stats:        c.stats,
			PollInterval: c.cfg.PollInterval,
			Logger:       log,
		})
		c.registerHandlers(in)
		c.inboxes = append(c.inboxes, in)
	}

	c.outbox.Start()
	for _, in := range c.inboxes {
		in.Start()
	}

	if err := c.status.Restore(ctx); err != nil {
		c.logWarn("status restore failed", "error", err)
	}

	c.logInfo("client started", "mode", c.cfg.Mode.String(), "local_ip", socks.localIP.String())

	if err := c.establish(ctx); err != nil {
		if c.cfg.AutoReconnect {
			c.logWarn("initial connect failed, retrying in background", "error", err)
			c.scheduleReconnect()
			return nil
		}
		return err
	}
	return nil
}

// Close ends the session and releases every socket. An established tunnel is
// disconnected first; the disconnect wait is bounded by DisconnectTimeout and
// ctx, and a timeout still completes the close. Safe to call multiple times.
//
// Returns:
//   - error: The disconnect or socket close error, if any
func (c *Client) Close(ctx context.Context) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.done.Close()
	c.stopHeartbeat()

	var errs []error
	if c.cfg.Mode == ModeTunneling && c.sm.transitionFrom(StateConnected, StateDisconnecting) {
		if err := c.disconnect(ctx); err != nil {
			c.logWarn("disconnect did not complete cleanly", "error", err)
			errs = append(errs, err)
		}
		c.resetSession()
	}
	if c.sm.current() != StateDisconnected {
		_ = c.sm.transition(StateDisconnected)
	}

	if c.started.Load() && c.sockets != nil {
		c.cancel()
		// A connect cycle still in flight may own a fresh channel; let it
		// release the channel while the outbox is open.
		c.establishMu.Lock() //nolint:staticcheck // empty section waits for the cycle
		c.establishMu.Unlock()
		c.outbox.Close()
		for _, in := range c.inboxes {
			in.Close()
		}
		if err := c.sockets.close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.wg.Wait()

	c.logInfo("client closed")
	return errors.Join(errs...)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return c.sm.current()
}

// ChannelID returns the channel of the current session.
func (c *Client) ChannelID() (uint8, bool) {
	return c.sess.channelID()
}

// IndividualAddress returns the address the gateway assigned to the tunnel,
// or the configured address in routing mode.
func (c *Client) IndividualAddress() address.Address {
	if c.cfg.Mode == ModeRouting {
		return c.cfg.IndividualAddress
	}
	return c.sess.individualAddress()
}

// Gateway returns the control endpoint of the current or last session.
func (c *Client) Gateway() (netip.AddrPort, bool) {
	gw := c.gateway.Load()
	if gw == nil {
		return netip.AddrPort{}, false
	}
	return gw.AddrPort(), true
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Stats returns a snapshot of the traffic counters.
func (c *Client) Stats() stats.Statistics {
	return c.stats.Snapshot()
}

// Collector returns the counters for Prometheus registration.
func (c *Client) Collector() *stats.Collector {
	return c.stats
}

// Status returns the status pool fed by inbound group telegrams.
func (c *Client) Status() *status.Pool {
	return c.status
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// route picks the socket and destination for an outbound body.
func (c *Client) route(body frame.Body) (queue.Route, error) {
	s := c.sockets
	switch body.(type) {
	case frame.SearchRequestBody:
		return queue.Route{Conn: s.discovery, Addr: net.UDPAddrFromAddrPort(c.cfg.DiscoveryAddr)}, nil

	case frame.DescriptionRequestBody:
		target := c.describeTarget.Load()
		if target == nil {
			return queue.Route{}, fmt.Errorf("%w: no description target", queue.ErrNoRoute)
		}
		return queue.Route{Conn: s.control, Addr: target}, nil

	case frame.ConnectRequestBody, frame.ConnectionStateRequestBody,
		frame.DisconnectRequestBody, frame.DisconnectResponseBody:
		gw := c.gateway.Load()
		if gw == nil {
			return queue.Route{}, fmt.Errorf("%w: no gateway", queue.ErrNoRoute)
		}
		return queue.Route{Conn: s.control, Addr: gw}, nil

	case frame.TunnelingRequestBody, frame.TunnelingAckBody,
		frame.DeviceConfigurationRequestBody, frame.DeviceConfigurationAckBody:
		data := c.sess.dataEndpoint()
		if data == nil {
			return queue.Route{}, fmt.Errorf("%w: no data endpoint", queue.ErrNoRoute)
		}
		return queue.Route{Conn: s.data, Addr: data}, nil

	case frame.RoutingIndicationBody, frame.RoutingBusyBody, frame.RoutingLostMessageBody:
		if s.multicast == nil {
			return queue.Route{}, fmt.Errorf("%w: routing disabled", queue.ErrNoRoute)
		}
		return queue.Route{Conn: s.multicast, Addr: net.UDPAddrFromAddrPort(c.cfg.RoutingAddr)}, nil
	}
	return queue.Route{}, fmt.Errorf("%w: %s", queue.ErrNoRoute, body.ServiceType())
}

// hpai returns the HPAI announcing conn, or RouteBack in NAT mode.
func (c *Client) hpai(conn net.PacketConn) frame.HPAI {
	if c.cfg.NAT {
		return frame.RouteBack
	}
	h, err := frame.NewHPAI(c.sockets.localEndpoint(conn))
	if err != nil {
		return frame.RouteBack
	}
	return h
}

func (c *Client) notifyState(from, to State) {
	c.logDebug("state change", "from", from.String(), "to", to.String())
	if obs, ok := c.hooks.(StateObserver); ok {
		defer func() {
			if r := recover(); r != nil {
				c.logError("state observer panic", "panic", fmt.Sprint(r))
			}
		}()
		obs.OnStateChange(from, to)
	}
}

func (c *Client) notifyError(err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("error hook panic", "panic", fmt.Sprint(r))
		}
	}()
	c.hooks.OnError(err)
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// sleep waits d unless the client closes or ctx ends first.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.done.Done():
		return false
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, kv ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, kv...)
	}
}

func (c *Client) logInfo(msg string, kv ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, kv...)
	}
}

func (c *Client) logWarn(msg string, kv ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, kv...)
	}
}

func (c *Client) logError(msg string, kv ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, kv...)
	}
}

// clientLogger forwards to whatever logger the client holds at call time,
// so SetLogger after Start reaches the queues.
type clientLogger struct{ c *Client }

func (l clientLogger) Debug(msg string, kv ...any) { l.c.logDebug(msg, kv...) }
func (l clientLogger) Info(msg string, kv ...any)  { l.c.logInfo(msg, kv...) }
func (l clientLogger) Warn(msg string, kv ...any)  { l.c.logWarn(msg, kv...) }
func (l clientLogger) Error(msg string, kv ...any) { l.c.logError(msg, kv...) }
