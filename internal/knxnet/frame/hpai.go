package frame

import (
	"fmt"
	"net"
	"net/netip"
)

// HostProtocol is the transport named in an HPAI.
type HostProtocol uint8

// Host protocols.
const (
	IPv4UDP HostProtocol = 0x01
	IPv4TCP HostProtocol = 0x02
)

// HPAISize is the fixed HPAI length.
const HPAISize = 8

// HPAI (host protocol address information) tells the gateway where to send
// replies.
type HPAI struct {
	Protocol HostProtocol
	IP       [4]byte
	Port     uint16
}

// RouteBack is the NAT form 0.0.0.0:0; the gateway replies to the datagram
// source address instead.
var RouteBack = HPAI{Protocol: IPv4UDP}

// NewHPAI builds a UDP HPAI from an IPv4 address and port.
//
// Returns:
//   - HPAI: Endpoint descriptor
//   - error: ErrInvalidStructure if addr is not IPv4
func NewHPAI(addr netip.AddrPort) (HPAI, error) {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return HPAI{}, fmt.Errorf("%w: HPAI requires IPv4, got %s", ErrInvalidStructure, addr)
	}
	return HPAI{Protocol: IPv4UDP, IP: ip.As4(), Port: addr.Port()}, nil
}

// HPAIFromUDPAddr converts a *net.UDPAddr.
func HPAIFromUDPAddr(addr *net.UDPAddr) (HPAI, error) {
	if addr == nil {
		return RouteBack, nil
	}
	return NewHPAI(addr.AddrPort())
}

// AddrPort returns the endpoint as netip.AddrPort.
func (h HPAI) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(h.IP), h.Port)
}

// UDPAddr returns the endpoint as *net.UDPAddr.
func (h HPAI) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(h.AddrPort())
}

// IsRouteBack reports whether h is the 0.0.0.0:0 NAT form.
func (h HPAI) IsRouteBack() bool {
	return h.IP == [4]byte{} && h.Port == 0
}

// AppendTo appends the eight-byte encoding.
func (h HPAI) AppendTo(b []byte) []byte {
	b = append(b, HPAISize, byte(h.Protocol))
	b = append(b, h.IP[:]...)
	return append(b, byte(h.Port>>8), byte(h.Port))
}

// String returns "udp://1.2.3.4:3671".
func (h HPAI) String() string {
	scheme := "udp"
	if h.Protocol == IPv4TCP {
		scheme = "tcp"
	}
	return scheme + "://" + h.AddrPort().String()
}

func (r *reader) hpai(what string) HPAI {
	if !r.structLength(HPAISize, what) {
		return HPAI{}
	}
	r.off++
	h := HPAI{Protocol: HostProtocol(r.b[r.off])}
	if h.Protocol != IPv4UDP && h.Protocol != IPv4TCP {
		r.fail("%s host protocol 0x%02X", what, r.b[r.off])
		return HPAI{}
	}
	r.off++
	copy(h.IP[:], r.b[r.off:r.off+4])
	r.off += 4
	h.Port = r.u16(what)
	return h
}
