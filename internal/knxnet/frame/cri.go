package frame

import (
	"fmt"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

// ConnectionType selects the kind of connection requested.
type ConnectionType uint8

// Connection types.
const (
	DeviceManagementConnection ConnectionType = 0x03
	TunnelConnection           ConnectionType = 0x04
	RemoteLoggingConnection    ConnectionType = 0x06
	RemoteConfigConnection     ConnectionType = 0x07
	ObjectServerConnection     ConnectionType = 0x08
)

// String returns the connection type name.
func (t ConnectionType) String() string {
	switch t {
	case DeviceManagementConnection:
		return "device_management"
	case TunnelConnection:
		return "tunnel"
	case RemoteLoggingConnection:
		return "remote_logging"
	case RemoteConfigConnection:
		return "remote_configuration"
	case ObjectServerConnection:
		return "object_server"
	default:
		return fmt.Sprintf("ConnectionType(0x%02X)", uint8(t))
	}
}

// TunnelLayer is the KNX layer a tunnel connection attaches to.
type TunnelLayer uint8

// Tunnel layers.
const (
	LinkLayer       TunnelLayer = 0x02
	RawLayer        TunnelLayer = 0x04
	BusmonitorLayer TunnelLayer = 0x80
)

// Structure sizes. Tunnel CRI/CRD carry two extra bytes; the others are the
// bare length + type pair.
const (
	tunnelCRISize = 4
	tunnelCRDSize = 4
	basicCRISize  = 2
)

func criSize(t ConnectionType) int {
	if t == TunnelConnection {
		return tunnelCRISize
	}
	return basicCRISize
}

// CRI is the connection request information sent in CONNECT_REQUEST.
type CRI struct {
	Type  ConnectionType
	Layer TunnelLayer // tunnel connections only
}

// TunnelCRI returns the CRI for a link layer tunnel.
func TunnelCRI() CRI {
	return CRI{Type: TunnelConnection, Layer: LinkLayer}
}

// Len returns the encoded length.
func (c CRI) Len() int {
	return criSize(c.Type)
}

// AppendTo appends the encoding.
func (c CRI) AppendTo(b []byte) []byte {
	b = append(b, byte(c.Len()), byte(c.Type))
	if c.Type == TunnelConnection {
		b = append(b, byte(c.Layer), 0x00)
	}
	return b
}

// CRD is the connection response data returned in CONNECT_RESPONSE.
type CRD struct {
	Type    ConnectionType
	Address address.Address // individual address assigned to the tunnel
}

// Len returns the encoded length.
func (c CRD) Len() int {
	if c.Type == TunnelConnection {
		return tunnelCRDSize
	}
	return basicCRISize
}

// AppendTo appends the encoding.
func (c CRD) AppendTo(b []byte) []byte {
	b = append(b, byte(c.Len()), byte(c.Type))
	if c.Type == TunnelConnection {
		b = c.Address.AppendTo(b)
	}
	return b
}

func (r *reader) cri() CRI {
	if !r.need(basicCRISize, "CRI") {
		return CRI{}
	}
	t := ConnectionType(r.b[r.off+1])
	if !r.structLength(criSize(t), "CRI") {
		return CRI{}
	}
	r.off += 2
	c := CRI{Type: t}
	if t == TunnelConnection {
		c.Layer = TunnelLayer(r.u8("CRI layer"))
		r.u8("CRI reserved")
	}
	return c
}

func (r *reader) crd() CRD {
	if !r.need(basicCRISize, "CRD") {
		return CRD{}
	}
	t := ConnectionType(r.b[r.off+1])
	if !r.structLength(criSize(t), "CRD") {
		return CRD{}
	}
	r.off += 2
	c := CRD{Type: t}
	if t == TunnelConnection {
		c.Address = address.FromRaw(address.Individual, r.u16("CRD address"))
	}
	return c
}
