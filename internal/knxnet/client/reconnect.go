package client

import (
	"fmt"
	"time"
)

// sessionLost tears down a live session after a fatal error and reconnects
// to the same gateway: best-effort DISCONNECT_REQUEST, reset, Connecting.
// Concurrent calls collapse into one recovery.
func (c *Client) sessionLost(cause error) {
	if c.isClosed() || !c.recovering.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.recovering.Store(false)
		defer func() {
			if r := recover(); r != nil {
				c.logError("session recovery panic", "panic", fmt.Sprint(r))
			}
		}()

		c.stopHeartbeat()
		c.logWarn("session lost", "error", cause)
		c.notifyError(cause)

		c.establishMu.Lock()
		if !c.sm.transitionFrom(StateConnected, StateConnecting) {
			c.establishMu.Unlock()
			return
		}
		c.sendDisconnect()
		c.resetSession()

		err := c.connect(c.life)
		if err == nil {
			err = c.connected()
		}
		c.establishMu.Unlock()

		if err != nil {
			c.fail(err)
			c.scheduleReconnect()
			return
		}
		c.stats.RecordReconnect()
		c.logInfo("session re-established")
	}()
}

// gatewayDisconnected handles a DISCONNECT_REQUEST from the gateway. The
// response has already been submitted.
func (c *Client) gatewayDisconnected() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.stopHeartbeat()
		c.establishMu.Lock()
		from := c.sm.current()
		if from == StateConnected || from == StateDisconnecting {
			c.resetSession()
			if err := c.sm.transition(StateDisconnected); err != nil {
				c.logDebug("gateway disconnect ignored", "error", err)
			}
		}
		c.establishMu.Unlock()

		c.logInfo("gateway closed the connection", "state", from.String())
		if from == StateConnected {
			c.scheduleReconnect()
		}
	}()
}

// scheduleReconnect starts the reconnect supervisor when AutoReconnect is
// set. The supervisor retries the connect cycle with backoff ×1.5, starting
// at RetryWait and capped at MaxReconnectInterval, until it succeeds or the
// client closes.
func (c *Client) scheduleReconnect() {
	if !c.cfg.AutoReconnect || c.isClosed() {
		return
	}
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.reconnecting.Store(false)
		defer func() {
			if r := recover(); r != nil {
				c.logError("reconnect panic", "panic", fmt.Sprint(r))
			}
		}()

		backoff := c.cfg.RetryWait
		for attempt := 1; ; attempt++ {
			if !c.sleep(c.life, backoff) {
				return
			}

			state := c.sm.current()
			if state != StateError && state != StateDisconnected {
				return
			}
			if err := c.sm.transition(StateIdle); err != nil {
				c.logDebug("reconnect skipped", "error", err)
				return
			}

			c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())
			if err := c.establish(c.life); err == nil {
				c.stats.RecordReconnect()
				c.logInfo("reconnection successful", "attempts", attempt)
				return
			}
			if c.isClosed() {
				return
			}
			backoff = nextBackoff(backoff, c.cfg.MaxReconnectInterval)
		}
	}()
}

// nextBackoff grows d by half, capped at limit.
func nextBackoff(d, limit time.Duration) time.Duration {
	next := time.Duration(float64(d) * 1.5) //nolint:mnd // backoff factor
	if next > limit {
		return limit
	}
	return next
}
