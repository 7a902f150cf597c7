package client

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// sockets holds the UDP endpoints of one client. In NAT mode data is the
// same socket as control.
type sockets struct {
	control   net.PacketConn
	data      net.PacketConn
	discovery net.PacketConn
	multicast net.PacketConn

	// localIP is the address announced in HPAIs.
	localIP netip.Addr
}

// namedConn pairs a socket with its log name.
type namedConn struct {
	name string
	conn net.PacketConn
}

// openSockets binds the sockets the configured mode needs. On error every
// socket opened so far is closed.
func openSockets(cfg Config) (*sockets, error) {
	s := &sockets{}
	var err error

	switch cfg.Mode {
	case ModeRouting:
		s.multicast, err = openMulticast(cfg)
		if err != nil {
			return nil, err
		}
		s.localIP, err = resolveLocalIP(cfg, cfg.RoutingAddr)
		if err != nil {
			s.close()
			return nil, err
		}
		return s, nil

	default:
		target := cfg.DiscoveryAddr
		if cfg.Gateway.IsValid() {
			target = cfg.Gateway
		}
		if s.localIP, err = resolveLocalIP(cfg, target); err != nil {
			return nil, err
		}
		bind := bindAddr(cfg)

		if s.control, err = listenUDP(bind, cfg.ControlPort); err != nil {
			return nil, fmt.Errorf("control socket: %w", err)
		}
		if cfg.NAT {
			s.data = s.control
		} else if s.data, err = listenUDP(bind, cfg.DataPort); err != nil {
			s.close()
			return nil, fmt.Errorf("data socket: %w", err)
		}
		if s.discovery, err = listenUDP(bind, cfg.DiscoveryPort); err != nil {
			s.close()
			return nil, fmt.Errorf("discovery socket: %w", err)
		}
		if cfg.DiscoveryAddr.Addr().IsMulticast() {
			if err := configureMulticastSender(s.discovery, cfg); err != nil {
				s.close()
				return nil, fmt.Errorf("discovery socket: %w", err)
			}
		}
		return s, nil
	}
}

// conns returns the distinct sockets in inbox order.
func (s *sockets) conns() []namedConn {
	var out []namedConn
	if s.control != nil {
		out = append(out, namedConn{"control", s.control})
	}
	if s.data != nil && s.data != s.control {
		out = append(out, namedConn{"data", s.data})
	}
	if s.discovery != nil {
		out = append(out, namedConn{"discovery", s.discovery})
	}
	if s.multicast != nil {
		out = append(out, namedConn{"multicast", s.multicast})
	}
	return out
}

// close closes every socket and joins the errors.
func (s *sockets) close() error {
	var errs []error
	for _, nc := range s.conns() {
		if err := nc.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}

// localEndpoint returns the announced endpoint of conn.
func (s *sockets) localEndpoint(conn net.PacketConn) netip.AddrPort {
	var port uint16
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		port = uint16(ua.Port) //nolint:gosec // UDP port range
	}
	return netip.AddrPortFrom(s.localIP, port)
}

func bindAddr(cfg Config) netip.Addr {
	if cfg.LocalIP.IsValid() {
		return cfg.LocalIP.Unmap()
	}
	return netip.IPv4Unspecified()
}

func listenUDP(ip netip.Addr, port uint16) (net.PacketConn, error) {
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip, port)))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// resolveLocalIP returns the configured local IP, or the source address the
// kernel would use towards target. Connecting a UDP socket sends nothing.
func resolveLocalIP(cfg Config, target netip.AddrPort) (netip.Addr, error) {
	if cfg.LocalIP.IsValid() {
		return cfg.LocalIP.Unmap(), nil
	}
	if cfg.Interface != "" {
		if ip, err := interfaceIPv4(cfg.Interface); err == nil {
			return ip, nil
		}
	}
	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(target))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve local address towards %s: %w", target, err)
	}
	defer conn.Close()
	ap := conn.LocalAddr().(*net.UDPAddr).AddrPort() //nolint:forcetypeassert // udp4 dial
	return ap.Addr().Unmap(), nil
}

func interfaceIPv4(name string) (netip.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return netip.Addr{}, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		if pfx, err := netip.ParsePrefix(a.String()); err == nil && pfx.Addr().Is4() {
			return pfx.Addr(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("interface %s has no IPv4 address", name)
}

func multicastInterface(cfg Config) (*net.Interface, error) {
	if cfg.Interface == "" {
		return nil, nil //nolint:nilnil // nil selects the system default
	}
	return net.InterfaceByName(cfg.Interface)
}

// openMulticast binds the routing port and joins the group. A unicast
// routing address is used as-is, for point-to-point routing to one router.
func openMulticast(cfg Config) (net.PacketConn, error) {
	group := cfg.RoutingAddr
	if !group.Addr().IsMulticast() {
		conn, err := listenUDP(bindAddr(cfg), cfg.DataPort)
		if err != nil {
			return nil, fmt.Errorf("routing socket: %w", err)
		}
		return conn, nil
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", group.Port()))
	if err != nil {
		return nil, fmt.Errorf("routing socket: %w", err)
	}
	ifi, err := multicastInterface(cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("routing interface: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: net.IP(group.Addr().AsSlice())}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join %s: %w", group.Addr(), err)
	}
	if err := configureMulticastSender(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// configureMulticastSender sets TTL, interface and disables loopback so the
// client does not read its own routing indications.
func configureMulticastSender(conn net.PacketConn, cfg Config) error {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(cfg.MulticastTTL); err != nil {
		return fmt.Errorf("multicast TTL: %w", err)
	}
	if err := pc.SetMulticastLoopback(false); err != nil {
		return fmt.Errorf("multicast loopback: %w", err)
	}
	ifi, err := multicastInterface(cfg)
	if err != nil {
		return fmt.Errorf("multicast interface: %w", err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			return fmt.Errorf("multicast interface: %w", err)
		}
	}
	return nil
}
