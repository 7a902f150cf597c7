package client

import (
	"net/netip"

	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/queue"
)

// registerHandlers installs the dispatch table on an inbox. Every inbox gets
// the full table; in NAT mode tunneling traffic arrives on the control
// socket.
func (c *Client) registerHandlers(in *queue.Inbox) {
	in.Handle(frame.SearchResponse, func(b frame.Body, from netip.AddrPort) {
		resp := b.(frame.SearchResponseBody) //nolint:forcetypeassert // dispatch by type
		if resp.Control.IsRouteBack() {
			if h, err := frame.NewHPAI(from); err == nil {
				resp.Control = h
			}
		}
		c.pool.Deliver(resp)
	})
	in.Handle(frame.DescriptionResponse, c.deliver)
	in.Handle(frame.ConnectResponse, func(b frame.Body, from netip.AddrPort) {
		resp := b.(frame.ConnectResponseBody) //nolint:forcetypeassert // dispatch by type
		if resp.Status.OK() && resp.Data.IsRouteBack() {
			if h, err := frame.NewHPAI(from); err == nil {
				resp.Data = h
			}
		}
		c.pool.Deliver(resp)
	})
	in.Handle(frame.ConnectionStateResponse, c.deliver)
	in.Handle(frame.DisconnectResponse, c.deliver)
	in.Handle(frame.DisconnectRequest, func(b frame.Body, _ netip.AddrPort) {
		req := b.(frame.DisconnectRequestBody) //nolint:forcetypeassert // dispatch by type
		c.submitAck(frame.DisconnectResponseBody{Channel: req.Channel, Status: frame.StatusNoError})
		c.gatewayDisconnected()
	})
	in.Handle(frame.TunnelingAck, c.deliver)
	in.Handle(frame.TunnelingRequest, func(b frame.Body, _ netip.AddrPort) {
		c.handleTunnelingRequest(b.(frame.TunnelingRequestBody)) //nolint:forcetypeassert // dispatch by type
	})
	in.Handle(frame.DeviceConfigurationAck, c.deliver)
	in.Handle(frame.DeviceConfigurationRequest, func(b frame.Body, _ netip.AddrPort) {
		c.handleDeviceConfigurationRequest(b.(frame.DeviceConfigurationRequestBody)) //nolint:forcetypeassert // dispatch by type
	})
	in.Handle(frame.RoutingIndication, func(b frame.Body, _ netip.AddrPort) {
		ind := b.(frame.RoutingIndicationBody) //nolint:forcetypeassert // dispatch by type
		c.processCEMI(ind, ind.CEMI)
	})
	in.Handle(frame.RoutingBusy, func(b frame.Body, _ netip.AddrPort) {
		c.handleRoutingBusy(b.(frame.RoutingBusyBody)) //nolint:forcetypeassert // dispatch by type
	})
	in.Handle(frame.RoutingLostMessage, func(b frame.Body, _ netip.AddrPort) {
		c.handleRoutingLostMessage(b.(frame.RoutingLostMessageBody)) //nolint:forcetypeassert // dispatch by type
	})
}

// deliver hands a response to the correlation pool. Unsolicited responses
// are dropped.
func (c *Client) deliver(b frame.Body, _ netip.AddrPort) {
	if !c.pool.Deliver(b) {
		c.logDebug("unsolicited response", "service", b.ServiceType().String())
	}
}
