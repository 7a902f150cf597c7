package frame

import (
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
)

// connectionHeaderSize is the fixed connection header length.
const connectionHeaderSize = 0x04

// ConnectionHeader prefixes tunneling and device configuration bodies.
type ConnectionHeader struct {
	Channel  uint8
	Sequence uint8
	Status   Status // acks only; reserved (0) in requests
}

func (h ConnectionHeader) appendTo(b []byte) []byte {
	return append(b, connectionHeaderSize, h.Channel, h.Sequence, byte(h.Status))
}

func (r *reader) connectionHeader() ConnectionHeader {
	if !r.structLength(connectionHeaderSize, "connection header") {
		return ConnectionHeader{}
	}
	r.off++
	return ConnectionHeader{
		Channel:  r.u8("channel id"),
		Sequence: r.u8("sequence counter"),
		Status:   Status(r.u8("status")),
	}
}

func (r *reader) cemi() cemi.Message {
	if r.err != nil {
		return cemi.Message{}
	}
	start := r.off
	m, err := cemi.Decode(r.rest())
	if err != nil {
		r.off = start
		r.fail("cEMI: %v", err)
		return cemi.Message{}
	}
	return m
}

// TunnelingRequestBody carries one cEMI telegram over a tunnel connection.
type TunnelingRequestBody struct {
	Channel  uint8
	Sequence uint8
	CEMI     cemi.Message
}

func (TunnelingRequestBody) ServiceType() ServiceType { return TunnelingRequest }

func (b TunnelingRequestBody) ChannelID() uint8 { return b.Channel }

func (b TunnelingRequestBody) Len() int { return connectionHeaderSize + b.CEMI.Len() }

func (b TunnelingRequestBody) AppendTo(out []byte) []byte {
	out = ConnectionHeader{Channel: b.Channel, Sequence: b.Sequence}.appendTo(out)
	return b.CEMI.AppendTo(out)
}

func (b TunnelingRequestBody) validate() error { return b.CEMI.Validate() }

func decodeTunnelingRequest(r *reader) Body {
	h := r.connectionHeader()
	return TunnelingRequestBody{Channel: h.Channel, Sequence: h.Sequence, CEMI: r.cemi()}
}

// TunnelingAckBody acknowledges a tunneling request.
type TunnelingAckBody struct {
	Channel  uint8
	Sequence uint8
	Status   Status
}

func (TunnelingAckBody) ServiceType() ServiceType { return TunnelingAck }

func (b TunnelingAckBody) ChannelID() uint8 { return b.Channel }

func (TunnelingAckBody) Len() int { return connectionHeaderSize }

func (b TunnelingAckBody) AppendTo(out []byte) []byte {
	return ConnectionHeader(b).appendTo(out)
}

func decodeTunnelingAck(r *reader) Body {
	return TunnelingAckBody(r.connectionHeader())
}

// DeviceConfigurationRequestBody carries a cEMI management message over a
// device management connection.
type DeviceConfigurationRequestBody struct {
	Channel  uint8
	Sequence uint8
	CEMI     cemi.Message
}

func (DeviceConfigurationRequestBody) ServiceType() ServiceType { return DeviceConfigurationRequest }

func (b DeviceConfigurationRequestBody) ChannelID() uint8 { return b.Channel }

func (b DeviceConfigurationRequestBody) Len() int { return connectionHeaderSize + b.CEMI.Len() }

func (b DeviceConfigurationRequestBody) AppendTo(out []byte) []byte {
	out = ConnectionHeader{Channel: b.Channel, Sequence: b.Sequence}.appendTo(out)
	return b.CEMI.AppendTo(out)
}

func (b DeviceConfigurationRequestBody) validate() error { return b.CEMI.Validate() }

func decodeDeviceConfigurationRequest(r *reader) Body {
	h := r.connectionHeader()
	return DeviceConfigurationRequestBody{Channel: h.Channel, Sequence: h.Sequence, CEMI: r.cemi()}
}

// DeviceConfigurationAckBody acknowledges a device configuration request.
type DeviceConfigurationAckBody struct {
	Channel  uint8
	Sequence uint8
	Status   Status
}

func (DeviceConfigurationAckBody) ServiceType() ServiceType { return DeviceConfigurationAck }

func (b DeviceConfigurationAckBody) ChannelID() uint8 { return b.Channel }

func (DeviceConfigurationAckBody) Len() int { return connectionHeaderSize }

func (b DeviceConfigurationAckBody) AppendTo(out []byte) []byte {
	return ConnectionHeader(b).appendTo(out)
}

func decodeDeviceConfigurationAck(r *reader) Body {
	return DeviceConfigurationAckBody(r.connectionHeader())
}
