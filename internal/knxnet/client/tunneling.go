package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
	"github.com/nerrad567/knxnet-core/internal/knxnet/event"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/status"
)

// maxSendAttempts is the original request plus one resend.
const maxSendAttempts = 2

// Send transmits one cEMI telegram: a tunneling exchange on a tunnel
// connection, a routing indication in routing mode.
//
// Parameters:
//   - ctx: Context for cancellation
//   - msg: cEMI L_Data.req; routing mode rewrites it to L_Data.ind
//
// Returns:
//   - error: ErrNotConnected, ErrAckTimeout, *StatusError, or
//     ErrNegativeConfirmation when ConfirmTimeout is set
func (c *Client) Send(ctx context.Context, msg cemi.Message) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if c.cfg.Mode == ModeRouting {
		return c.sendRouting(ctx, msg)
	}
	if c.cfg.ConnectionType != frame.TunnelConnection {
		return ErrWrongConnectionType
	}

	if err := c.sendTunneling(ctx, msg); err != nil {
		return err
	}
	if c.cfg.ConfirmTimeout > 0 && msg.Code == cemi.LDataReq {
		return c.awaitConfirmation(ctx, msg.Destination)
	}
	return nil
}

// Write sends A_GroupValue_Write with payload after the APCI octet.
func (c *Client) Write(ctx context.Context, dst address.Address, payload []byte) error {
	if !dst.IsGroup() {
		return fmt.Errorf("%w: write target %s is not a group address", address.ErrInvalidAddress, dst)
	}
	return c.Send(ctx, cemi.NewGroupWrite(dst, payload))
}

// WriteCompact sends A_GroupValue_Write with a six-bit value packed into the
// APCI octet.
func (c *Client) WriteCompact(ctx context.Context, dst address.Address, value byte) error {
	if !dst.IsGroup() {
		return fmt.Errorf("%w: write target %s is not a group address", address.ErrInvalidAddress, dst)
	}
	return c.Send(ctx, cemi.NewGroupWriteCompact(dst, value))
}

// Read sends A_GroupValue_Read and waits ResponseTimeout for the next value
// of dst to reach the status pool.
//
// Returns:
//   - status.Entry: The value that answered the read
//   - error: ErrNoResponse on timeout, or a send error
func (c *Client) Read(ctx context.Context, dst address.Address) (status.Entry, error) {
	if !dst.IsGroup() {
		return status.Entry{}, fmt.Errorf("%w: read target %s is not a group address", address.ErrInvalidAddress, dst)
	}
	since := time.Now()
	if err := c.Send(ctx, cemi.NewGroupRead(dst)); err != nil {
		return status.Entry{}, err
	}
	e, err := c.status.WaitFor(ctx, dst, since, c.cfg.ResponseTimeout)
	if err != nil {
		if errors.Is(err, status.ErrNoUpdate) {
			return status.Entry{}, fmt.Errorf("%w: %s", ErrNoResponse, dst)
		}
		return status.Entry{}, err
	}
	return e, nil
}

// DeviceConfiguration sends one cEMI management frame over a device
// management connection and waits for its acknowledgement. Replies such as
// M_PropRead.con arrive as inbound requests and reach the hooks.
//
// Returns:
//   - error: ErrWrongConnectionType on a tunnel connection, ErrAckTimeout,
//     or *StatusError
func (c *Client) DeviceConfiguration(ctx context.Context, msg cemi.Message) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.cfg.Mode != ModeTunneling || c.cfg.ConnectionType != frame.DeviceManagementConnection {
		return ErrWrongConnectionType
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	return c.exchange(ctx, frame.DeviceConfigurationRequest,
		func(ch, seq uint8) frame.Body {
			return frame.DeviceConfigurationRequestBody{Channel: ch, Sequence: seq, CEMI: msg}
		},
		func(ctx context.Context, seq uint8) (frame.Status, error) {
			ev, ok := c.pool.DeviceConfiguration(seq)
			if !ok {
				return 0, event.ErrNoResponse
			}
			ack, err := ev.Wait(ctx, c.cfg.AckTimeout)
			return ack.Status, err
		},
		c.pool.ForgetDeviceConfiguration,
	)
}

func (c *Client) sendTunneling(ctx context.Context, msg cemi.Message) error {
	return c.exchange(ctx, frame.TunnelingRequest,
		func(ch, seq uint8) frame.Body {
			return frame.TunnelingRequestBody{Channel: ch, Sequence: seq, CEMI: msg}
		},
		func(ctx context.Context, seq uint8) (frame.Status, error) {
			ev, ok := c.pool.Tunneling(seq)
			if !ok {
				return 0, event.ErrNoResponse
			}
			ack, err := ev.Wait(ctx, c.cfg.AckTimeout)
			return ack.Status, err
		},
		c.pool.Forget,
	)
}

// exchange runs one sequenced request with window size 1: send, wait for
// the ACK, resend once with the same sequence number on timeout. A second
// timeout ends the session.
func (c *Client) exchange(
	ctx context.Context,
	st frame.ServiceType,
	build func(channel, seq uint8) frame.Body,
	wait func(ctx context.Context, seq uint8) (frame.Status, error),
	forget func(seq uint8),
) error {
	c.tunnelMu.Lock()
	defer c.tunnelMu.Unlock()

	if c.sm.current() != StateConnected {
		return ErrNotConnected
	}
	ch, ok := c.sess.channelID()
	if !ok {
		return ErrNotConnected
	}
	seq := c.sess.nextSend()
	req := build(ch, seq)
	defer forget(seq)

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			c.stats.RecordResend()
			c.logDebug("resending request", "service", st.String(), "sequence", seq)
		}
		if err := c.pool.Record(req); err != nil {
			return err
		}
		if err := c.outbox.Submit(req); err != nil {
			return err
		}

		code, err := wait(ctx, seq)
		if err == nil {
			if !code.OK() {
				return &StatusError{Service: st, Status: code}
			}
			c.sess.advanceSend()
			return nil
		}
		if !errors.Is(err, event.ErrNoResponse) {
			return err
		}
	}

	err := &ExchangeError{Service: st, Attempts: maxSendAttempts, Err: ErrAckTimeout}
	c.sessionLost(err)
	return err
}

// awaitConfirmation waits for the L_Data.con that completes a write.
func (c *Client) awaitConfirmation(ctx context.Context, dst address.Address) error {
	ev, ok := c.pool.Confirmation(dst)
	if !ok {
		return nil
	}
	con, err := ev.Wait(ctx, c.cfg.ConfirmTimeout)
	if err != nil {
		return exchangeFailure(frame.TunnelingRequest, 1, err)
	}
	if con.ConfirmError() {
		return fmt.Errorf("%w: %s", ErrNegativeConfirmation, dst)
	}
	return nil
}

// handleTunnelingRequest acknowledges an inbound request before its cEMI is
// processed. A repeat of the previous sequence number is acknowledged again
// and dropped; anything else out of window is dropped without an ACK.
func (c *Client) handleTunnelingRequest(req frame.TunnelingRequestBody) {
	switch c.sess.classify(req.Sequence) {
	case seqExpected:
		c.submitAck(frame.TunnelingAckBody{Channel: req.Channel, Sequence: req.Sequence, Status: frame.StatusNoError})
		c.sess.advanceRecv()
		c.processCEMI(req, req.CEMI)
	case seqDuplicate:
		c.submitAck(frame.TunnelingAckBody{Channel: req.Channel, Sequence: req.Sequence, Status: frame.StatusNoError})
		c.logDebug("duplicate tunneling request", "sequence", req.Sequence)
	default:
		c.logDebug("tunneling request out of window", "sequence", req.Sequence)
	}
}

func (c *Client) handleDeviceConfigurationRequest(req frame.DeviceConfigurationRequestBody) {
	ack := frame.DeviceConfigurationAckBody{Channel: req.Channel, Sequence: req.Sequence, Status: frame.StatusNoError}
	switch c.sess.classify(req.Sequence) {
	case seqExpected:
		c.submitAck(ack)
		c.sess.advanceRecv()
		c.logDebug("device configuration received", "code", req.CEMI.Code.String())
	case seqDuplicate:
		c.submitAck(ack)
	default:
		c.logDebug("device configuration request out of window", "sequence", req.Sequence)
	}
}

func (c *Client) submitAck(ack frame.Body) {
	if err := c.outbox.Submit(ack); err != nil {
		c.logWarn("ack not sent", "service", ack.ServiceType().String(), "error", err)
	}
}

// processCEMI feeds confirmations to the pool and group values to the
// status pool.
func (c *Client) processCEMI(body frame.Body, msg cemi.Message) {
	c.pool.Deliver(body)
	c.status.Observe(msg, time.Now())
}
