package frame

import (
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
)

const (
	lostMessageSize = 0x04
	busySize        = 0x06
)

// RoutingIndicationBody is an unconfirmed multicast telegram.
type RoutingIndicationBody struct {
	CEMI cemi.Message
}

func (RoutingIndicationBody) ServiceType() ServiceType { return RoutingIndication }

func (b RoutingIndicationBody) Len() int { return b.CEMI.Len() }

func (b RoutingIndicationBody) AppendTo(out []byte) []byte { return b.CEMI.AppendTo(out) }

func (b RoutingIndicationBody) validate() error { return b.CEMI.Validate() }

func decodeRoutingIndication(r *reader) Body {
	return RoutingIndicationBody{CEMI: r.cemi()}
}

// RoutingLostMessageBody reports telegrams a router dropped.
type RoutingLostMessageBody struct {
	DeviceState uint8
	Lost        uint16
}

func (RoutingLostMessageBody) ServiceType() ServiceType { return RoutingLostMessage }

func (RoutingLostMessageBody) Len() int { return lostMessageSize }

func (b RoutingLostMessageBody) AppendTo(out []byte) []byte {
	return append(out, lostMessageSize, b.DeviceState, byte(b.Lost>>8), byte(b.Lost))
}

func decodeRoutingLostMessage(r *reader) Body {
	if !r.structLength(lostMessageSize, "lost message") {
		return RoutingLostMessageBody{}
	}
	r.off++
	return RoutingLostMessageBody{DeviceState: r.u8("device state"), Lost: r.u16("lost messages")}
}

// RoutingBusyBody asks senders to pause for WaitTime milliseconds.
type RoutingBusyBody struct {
	DeviceState uint8
	WaitTime    uint16 // milliseconds
	Control     uint16
}

func (RoutingBusyBody) ServiceType() ServiceType { return RoutingBusy }

func (RoutingBusyBody) Len() int { return busySize }

// Wait returns WaitTime as a duration.
func (b RoutingBusyBody) Wait() time.Duration {
	return time.Duration(b.WaitTime) * time.Millisecond
}

func (b RoutingBusyBody) AppendTo(out []byte) []byte {
	return append(out, busySize, b.DeviceState,
		byte(b.WaitTime>>8), byte(b.WaitTime),
		byte(b.Control>>8), byte(b.Control))
}

func decodeRoutingBusy(r *reader) Body {
	if !r.structLength(busySize, "busy") {
		return RoutingBusyBody{}
	}
	r.off++
	return RoutingBusyBody{
		DeviceState: r.u8("device state"),
		WaitTime:    r.u16("wait time"),
		Control:     r.u16("control field"),
	}
}
