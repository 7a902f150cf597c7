package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/event"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// ErrHeartbeatFailed is reported when the gateway stopped answering
// CONNECTIONSTATE_REQUEST.
var ErrHeartbeatFailed = errors.New("client: heartbeat failed")

// startHeartbeat launches the heartbeat goroutine for the current session.
func (c *Client) startHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()

	if c.stopBeat != nil {
		c.stopBeat()
	}
	ctx, cancel := context.WithCancel(c.life)
	c.stopBeat = cancel

	c.wg.Add(1)
	go c.heartbeatLoop(ctx)
}

// stopHeartbeat cancels the heartbeat goroutine, if any.
func (c *Client) stopHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()

	if c.stopBeat != nil {
		c.stopBeat()
		c.stopBeat = nil
	}
}

// heartbeatLoop sends CONNECTIONSTATE_REQUEST every HeartbeatInterval. After
// heartbeatFailureLimit consecutive failures the session is torn down.
func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logError("heartbeat panic", "panic", fmt.Sprint(r))
		}
	}()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := c.heartbeat(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			failures = 0
			continue
		}

		failures++
		c.stats.RecordHeartbeatFailure()
		c.logWarn("heartbeat failed", "consecutive", failures, "error", err)
		if failures >= heartbeatFailureLimit {
			c.sessionLost(fmt.Errorf("%w: %w", ErrHeartbeatFailed, err))
			return
		}
	}
}

// heartbeat performs one CONNECTIONSTATE exchange.
func (c *Client) heartbeat(ctx context.Context) error {
	ch, ok := c.sess.channelID()
	if !ok {
		return ErrNotConnected
	}
	req := frame.ConnectionStateRequestBody{Channel: ch, Control: c.hpai(c.sockets.control)}
	if err := c.pool.Record(req); err != nil {
		return err
	}
	if err := c.outbox.Submit(req); err != nil {
		return err
	}

	resp, err := c.pool.ConnectionState().Wait(ctx, c.cfg.HeartbeatTimeout)
	if err != nil {
		if errors.Is(err, event.ErrNoResponse) {
			return ErrNoResponse
		}
		return err
	}
	if !resp.Status.OK() {
		return &StatusError{Service: frame.ConnectionStateRequest, Status: resp.Status}
	}
	return nil
}
