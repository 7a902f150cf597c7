package client

import (
	"context"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// sendRouting multicasts msg as L_Data.ind. Sends wait out any ROUTING_BUSY
// pause first. There is no acknowledgement; the status pool records the
// value since the client will not see its own indication.
func (c *Client) sendRouting(ctx context.Context, msg cemi.Message) error {
	if c.sm.current() != StateConnected {
		return ErrNotConnected
	}
	if wait := c.busyWait(time.Now()); wait > 0 {
		c.logDebug("routing busy, delaying send", "wait", wait.String())
		if !c.sleep(ctx, wait) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrClosed
		}
	}

	if msg.Code == cemi.LDataReq {
		msg.Code = cemi.LDataInd
	}
	if msg.Source.IsZero() {
		msg.Source = c.cfg.IndividualAddress
	}
	if err := c.outbox.Send(ctx, frame.RoutingIndicationBody{CEMI: msg}); err != nil {
		return err
	}
	c.status.Observe(msg, time.Now())
	return nil
}

// busyWait returns how long routing sends remain paused at now.
func (c *Client) busyWait(now time.Time) time.Duration {
	until := c.busyUntil.Load()
	if until == 0 {
		return 0
	}
	if d := time.Duration(until - now.UnixNano()); d > 0 {
		return d
	}
	return 0
}

// handleRoutingBusy pauses routing sends for the announced wait time. A
// later busy frame only extends the pause.
func (c *Client) handleRoutingBusy(b frame.RoutingBusyBody) {
	until := time.Now().Add(b.Wait()).UnixNano()
	for {
		cur := c.busyUntil.Load()
		if cur >= until || c.busyUntil.CompareAndSwap(cur, until) {
			break
		}
	}
	c.logInfo("routing busy", "wait", b.Wait().String(), "device_state", b.DeviceState)
}

func (c *Client) handleRoutingLostMessage(b frame.RoutingLostMessageBody) {
	c.stats.RecordLostMessages(b.Lost)
	c.logWarn("router lost messages", "lost", b.Lost, "device_state", b.DeviceState)
}
