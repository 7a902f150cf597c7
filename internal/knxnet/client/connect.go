package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/event"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// supportsConnection selects gateways that can carry the configured
// connection type.
func (c *Client) supportsConnection(resp frame.SearchResponseBody) bool {
	if c.cfg.ConnectionType == frame.DeviceManagementConnection {
		return resp.Families.Supports(frame.FamilyDeviceManagement)
	}
	return resp.Families.Supports(frame.FamilyTunneling)
}

// establish runs one connect cycle from Idle: discovery when no gateway is
// known, then the connect handshake. On failure the state is Error.
func (c *Client) establish(ctx context.Context) error {
	c.establishMu.Lock()
	defer c.establishMu.Unlock()

	if c.cfg.Mode == ModeRouting {
		return c.sm.transition(StateConnected)
	}

	if c.gateway.Load() == nil {
		if err := c.sm.transition(StateDiscovering); err != nil {
			return err
		}
		resp, err := c.discover(ctx)
		if err != nil {
			c.fail(err)
			return err
		}
		c.gateway.Store(resp.Control.UDPAddr())
		c.logInfo("gateway discovered",
			"gateway", resp.Control.String(), "name", resp.Device.Name, "address", resp.Device.Address.String())
	}

	if err := c.sm.transition(StateConnecting); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		c.fail(err)
		return err
	}
	return c.connected()
}

// connected enters Connected and starts the heartbeat.
func (c *Client) connected() error {
	if err := c.sm.transition(StateConnected); err != nil {
		c.abandonChannel()
		return err
	}
	ch, _ := c.sess.channelID()
	c.logInfo("connected",
		"gateway", c.gateway.Load().String(), "channel", ch, "address", c.sess.individualAddress().String())
	c.startHeartbeat()
	return nil
}

// fail enters Error and reports err. A close in progress wins.
func (c *Client) fail(err error) {
	if c.isClosed() {
		return
	}
	if tErr := c.sm.transition(StateError); tErr != nil {
		c.logDebug("error state not entered", "error", tErr)
	}
	c.logError("session failed", "error", err)
	c.notifyError(err)
}

// discover sends SEARCH_REQUEST and returns the first gateway that supports
// the connection type.
func (c *Client) discover(ctx context.Context) (frame.SearchResponseBody, error) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	ev, err := c.search()
	if err != nil {
		return frame.SearchResponseBody{}, err
	}
	resp, err := ev.Wait(ctx, c.cfg.SearchTimeout, c.supportsConnection)
	if err != nil {
		if errors.Is(err, event.ErrNoResponse) {
			return frame.SearchResponseBody{}, fmt.Errorf("%w: %w", ErrNoGateway, ErrNoResponse)
		}
		return frame.SearchResponseBody{}, err
	}
	return resp, nil
}

// search records and submits a SEARCH_REQUEST.
func (c *Client) search() (*event.SearchEvent, error) {
	req := frame.SearchRequestBody{Discovery: c.hpai(c.sockets.discovery)}
	if err := c.pool.Record(req); err != nil {
		return nil, err
	}
	if err := c.outbox.Submit(req); err != nil {
		return nil, err
	}
	return c.pool.Search(), nil
}

// Search multicasts SEARCH_REQUEST and collects every response received
// within timeout, in receipt order. Zero timeout uses SearchTimeout.
//
// Returns:
//   - []frame.SearchResponseBody: Responses, possibly empty
//   - error: ErrNotStarted, ErrWrongConnectionType in routing mode, or ctx error
func (c *Client) Search(ctx context.Context, timeout time.Duration) ([]frame.SearchResponseBody, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if c.sockets.discovery == nil {
		return nil, ErrWrongConnectionType
	}
	if timeout <= 0 {
		timeout = c.cfg.SearchTimeout
	}

	c.searchMu.Lock()
	defer c.searchMu.Unlock()

	ev, err := c.search()
	if err != nil {
		return nil, err
	}
	if !c.sleep(ctx, timeout) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrClosed
	}

	stamped := ev.Responses()
	out := make([]frame.SearchResponseBody, 0, len(stamped))
	for _, s := range stamped {
		out = append(out, s.Value)
	}
	return out, nil
}

// Describe sends DESCRIPTION_REQUEST to the control endpoint and returns the
// first response.
//
// Returns:
//   - frame.DescriptionResponseBody: Device and family description
//   - error: ErrNoResponse on timeout, ErrNotStarted before Start
func (c *Client) Describe(ctx context.Context, endpoint netip.AddrPort) (frame.DescriptionResponseBody, error) {
	if err := c.ready(); err != nil {
		return frame.DescriptionResponseBody{}, err
	}
	if c.sockets.control == nil {
		return frame.DescriptionResponseBody{}, ErrWrongConnectionType
	}

	c.describeMu.Lock()
	defer c.describeMu.Unlock()

	c.describeTarget.Store(net.UDPAddrFromAddrPort(endpoint))
	req := frame.DescriptionRequestBody{Control: c.hpai(c.sockets.control)}
	if err := c.pool.Record(req); err != nil {
		return frame.DescriptionResponseBody{}, err
	}
	if err := c.outbox.Submit(req); err != nil {
		return frame.DescriptionResponseBody{}, err
	}

	resp, err := c.pool.Description().Wait(ctx, c.cfg.DescriptionTimeout, nil)
	if err != nil {
		return frame.DescriptionResponseBody{}, exchangeFailure(frame.DescriptionRequest, 1, err)
	}
	return resp, nil
}

// connect runs up to ConnectAttempts handshakes with RetryWait between them.
//
// Returns:
//   - error: *ExchangeError wrapping ErrConnectFailed and the last cause
func (c *Client) connect(ctx context.Context) error {
	var last error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		err := c.connectOnce(ctx)
		if err == nil {
			return nil
		}
		last = err
		c.logWarn("connect attempt failed",
			"attempt", attempt, "of", c.cfg.ConnectAttempts, "gateway", c.gateway.Load().String(), "error", err)
		c.notifyError(fmt.Errorf("client: connect attempt %d: %w", attempt, err))

		if ctx.Err() != nil || c.isClosed() {
			break
		}
		if attempt < c.cfg.ConnectAttempts && !c.sleep(ctx, c.cfg.RetryWait) {
			break
		}
	}
	return &ExchangeError{
		Service:  frame.ConnectRequest,
		Attempts: c.cfg.ConnectAttempts,
		Err:      fmt.Errorf("%w: %w", ErrConnectFailed, last),
	}
}

// connectOnce performs one CONNECT_REQUEST / CONNECT_RESPONSE exchange and
// stores the session on success.
func (c *Client) connectOnce(ctx context.Context) error {
	req := frame.ConnectRequestBody{
		Control: c.hpai(c.sockets.control),
		Data:    c.hpai(c.sockets.data),
		CRI:     frame.CRI{Type: c.cfg.ConnectionType, Layer: c.cfg.TunnelLayer},
	}
	if err := c.pool.Record(req); err != nil {
		return err
	}
	if err := c.outbox.Submit(req); err != nil {
		return err
	}

	resp, err := c.pool.Connect().Wait(ctx, c.cfg.ConnectTimeout)
	if err != nil {
		if errors.Is(err, event.ErrNoResponse) {
			return ErrNoResponse
		}
		return err
	}
	if !resp.Status.OK() {
		return &StatusError{Service: frame.ConnectRequest, Status: resp.Status}
	}

	data := resp.Data.UDPAddr()
	if resp.Data.IsRouteBack() {
		data = c.gateway.Load()
	}
	c.sess.establish(resp.Channel, resp.CRD.Address, data)
	return nil
}

// disconnect sends DISCONNECT_REQUEST and waits for the response, bounded by
// DisconnectTimeout and ctx.
func (c *Client) disconnect(ctx context.Context) error {
	ch, ok := c.sess.channelID()
	if !ok {
		return nil
	}
	req := frame.DisconnectRequestBody{Channel: ch, Control: c.hpai(c.sockets.control)}
	if err := c.pool.Record(req); err != nil {
		return err
	}
	if err := c.outbox.Submit(req); err != nil {
		return err
	}
	resp, err := c.pool.Disconnect().Wait(ctx, c.cfg.DisconnectTimeout)
	if err != nil {
		return exchangeFailure(frame.DisconnectRequest, 1, err)
	}
	if !resp.Status.OK() {
		return &StatusError{Service: frame.DisconnectRequest, Status: resp.Status}
	}
	return nil
}

// sendDisconnect submits DISCONNECT_REQUEST without waiting.
func (c *Client) sendDisconnect() {
	ch, ok := c.sess.channelID()
	if !ok {
		return
	}
	req := frame.DisconnectRequestBody{Channel: ch, Control: c.hpai(c.sockets.control)}
	if err := c.outbox.Submit(req); err != nil {
		c.logDebug("disconnect request not sent", "error", err)
	}
}

// abandonChannel releases a channel the gateway assigned after the client
// stopped wanting it. The request is written before returning.
func (c *Client) abandonChannel() {
	ch, ok := c.sess.channelID()
	if !ok {
		return
	}
	c.logInfo("releasing unwanted channel", "channel", ch)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DisconnectTimeout)
	defer cancel()
	req := frame.DisconnectRequestBody{Channel: ch, Control: c.hpai(c.sockets.control)}
	if err := c.outbox.Send(ctx, req); err != nil {
		c.logDebug("disconnect request not sent", "channel", ch, "error", err)
	}
	c.resetSession()
}

// resetSession drops the channel, counters and pending exchanges.
func (c *Client) resetSession() {
	c.sess.reset()
	c.pool.Reset()
}

// ready reports whether sockets are open.
func (c *Client) ready() error {
	if c.closing.Load() {
		return ErrClosed
	}
	if !c.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// exchangeFailure maps an event wait error to the client taxonomy.
func exchangeFailure(st frame.ServiceType, attempts int, err error) error {
	if errors.Is(err, event.ErrNoResponse) {
		err = ErrNoResponse
	}
	return &ExchangeError{Service: st, Attempts: attempts, Err: err}
}
