package client

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// Default timeouts and intervals.
const (
	defaultConnectTimeout       = 10 * time.Second
	defaultConnectAttempts      = 3
	defaultRetryWait            = 1 * time.Second
	defaultHeartbeatInterval    = 60 * time.Second
	defaultHeartbeatTimeout     = 10 * time.Second
	defaultDisconnectTimeout    = 10 * time.Second
	defaultAckTimeout           = 1 * time.Second
	defaultSearchTimeout        = 3 * time.Second
	defaultDescriptionTimeout   = 3 * time.Second
	defaultResponseTimeout      = 3 * time.Second
	defaultMaxReconnectInterval = 2 * time.Minute
	defaultMulticastTTL         = 16

	// heartbeatFailureLimit is the number of consecutive failed heartbeat
	// cycles that end a session.
	heartbeatFailureLimit = 2
)

// MulticastAddr is the KNXnet/IP system setup multicast endpoint used for
// discovery and routing.
var MulticastAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{224, 0, 23, 12}), 3671)

// Mode selects how the client reaches the bus.
type Mode int

const (
	// ModeTunneling opens a point-to-point connection to one gateway.
	ModeTunneling Mode = iota
	// ModeRouting exchanges routing indications over multicast.
	ModeRouting
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeTunneling:
		return "tunneling"
	case ModeRouting:
		return "routing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "tunneling" or "routing".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tunneling", "tunnel":
		return ModeTunneling, nil
	case "routing":
		return ModeRouting, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// Config holds client configuration. Zero durations take their defaults.
type Config struct {
	// Mode selects tunneling or routing. Default: tunneling.
	Mode Mode

	// Gateway is the control endpoint of the gateway. When zero the client
	// discovers one with SEARCH_REQUEST.
	Gateway netip.AddrPort

	// ConnectionType is the tunnel or device management connection.
	// Default: tunnel.
	ConnectionType frame.ConnectionType

	// TunnelLayer is the layer requested for tunnel connections.
	// Default: link layer.
	TunnelLayer frame.TunnelLayer

	// NAT sends 0.0.0.0:0 HPAIs so the gateway replies to the datagram
	// source. Control and data then share one socket.
	NAT bool

	// LocalIP is the address sockets bind to and HPAIs announce. When zero
	// the outbound interface towards the gateway is used.
	LocalIP netip.Addr

	// Interface names the network interface for multicast. Empty means the
	// system default.
	Interface string

	// Local ports. Zero picks an ephemeral port.
	ControlPort   uint16
	DataPort      uint16
	DiscoveryPort uint16

	// DiscoveryAddr is where SEARCH_REQUEST is sent.
	// Default: 224.0.23.12:3671.
	DiscoveryAddr netip.AddrPort

	// RoutingAddr is the routing multicast group and port.
	// Default: 224.0.23.12:3671.
	RoutingAddr netip.AddrPort

	// MulticastTTL is the hop limit for multicast sends. Default: 16.
	MulticastTTL int

	// IndividualAddress is the source address used in routing mode.
	IndividualAddress address.Address

	ConnectTimeout       time.Duration // Default: 10s
	ConnectAttempts      int           // Default: 3
	RetryWait            time.Duration // Default: 1s
	HeartbeatInterval    time.Duration // Default: 60s
	HeartbeatTimeout     time.Duration // Default: 10s
	DisconnectTimeout    time.Duration // Default: 10s
	AckTimeout           time.Duration // Default: 1s
	SearchTimeout        time.Duration // Default: 3s
	DescriptionTimeout   time.Duration // Default: 3s
	ResponseTimeout      time.Duration // Read reply wait. Default: 3s
	MaxReconnectInterval time.Duration // Reconnect backoff cap. Default: 2m

	// ConfirmTimeout, when positive, makes tunneled writes wait for the
	// gateway's L_Data.con. Zero returns after the ACK.
	ConfirmTimeout time.Duration

	// AutoReconnect restarts the session after a gateway disconnect or a
	// fatal error.
	AutoReconnect bool

	// PollInterval bounds socket reads so shutdown is noticed. Zero uses
	// the queue default.
	PollInterval time.Duration
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.ConnectionType == 0 {
		c.ConnectionType = frame.TunnelConnection
	}
	if c.TunnelLayer == 0 {
		c.TunnelLayer = frame.LinkLayer
	}
	if !c.DiscoveryAddr.IsValid() {
		c.DiscoveryAddr = MulticastAddr
	}
	if !c.RoutingAddr.IsValid() {
		c.RoutingAddr = MulticastAddr
	}
	if c.MulticastTTL == 0 {
		c.MulticastTTL = defaultMulticastTTL
	}
	setDefault(&c.ConnectTimeout, defaultConnectTimeout)
	setDefault(&c.RetryWait, defaultRetryWait)
	setDefault(&c.HeartbeatInterval, defaultHeartbeatInterval)
	setDefault(&c.HeartbeatTimeout, defaultHeartbeatTimeout)
	setDefault(&c.DisconnectTimeout, defaultDisconnectTimeout)
	setDefault(&c.AckTimeout, defaultAckTimeout)
	setDefault(&c.SearchTimeout, defaultSearchTimeout)
	setDefault(&c.DescriptionTimeout, defaultDescriptionTimeout)
	setDefault(&c.ResponseTimeout, defaultResponseTimeout)
	setDefault(&c.MaxReconnectInterval, defaultMaxReconnectInterval)
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = defaultConnectAttempts
	}
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d == 0 {
		*d = v
	}
}

// Validate checks the configuration after defaults are applied.
//
// Returns:
//   - error: ErrInvalidConfig listing every problem, or nil
func (c Config) Validate() error {
	var errs []string

	if c.Mode != ModeTunneling && c.Mode != ModeRouting {
		errs = append(errs, fmt.Sprintf("unknown mode %d", c.Mode))
	}
	if c.ConnectionType != frame.TunnelConnection && c.ConnectionType != frame.DeviceManagementConnection {
		errs = append(errs, fmt.Sprintf("unsupported connection type %s", c.ConnectionType))
	}
	if c.Gateway.IsValid() && !c.Gateway.Addr().Unmap().Is4() {
		errs = append(errs, "gateway must be an IPv4 endpoint")
	}
	if c.LocalIP.IsValid() && !c.LocalIP.Unmap().Is4() {
		errs = append(errs, "local IP must be IPv4")
	}
	if !c.DiscoveryAddr.Addr().Unmap().Is4() {
		errs = append(errs, "discovery address must be IPv4")
	}
	if !c.RoutingAddr.Addr().Unmap().Is4() {
		errs = append(errs, "routing address must be IPv4")
	}
	if c.Mode == ModeRouting && c.IndividualAddress.IsZero() {
		errs = append(errs, "routing mode requires an individual address")
	}
	if !c.IndividualAddress.IsZero() && !c.IndividualAddress.IsIndividual() {
		errs = append(errs, "individual address must not be a group address")
	}
	if c.MulticastTTL < 1 || c.MulticastTTL > 255 {
		errs = append(errs, "multicast TTL must be 1-255")
	}
	if c.ConnectAttempts < 1 {
		errs = append(errs, "connect attempts must be at least 1")
	}
	if c.HeartbeatTimeout >= c.HeartbeatInterval {
		errs = append(errs, "heartbeat timeout must be shorter than the interval")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"connect timeout", c.ConnectTimeout},
		{"retry wait", c.RetryWait},
		{"disconnect timeout", c.DisconnectTimeout},
		{"ack timeout", c.AckTimeout},
		{"search timeout", c.SearchTimeout},
		{"description timeout", c.DescriptionTimeout},
		{"response timeout", c.ResponseTimeout},
		{"max reconnect interval", c.MaxReconnectInterval},
	} {
		if d.value < 0 {
			errs = append(errs, d.name+" must not be negative")
		}
	}
	if c.ConfirmTimeout < 0 {
		errs = append(errs, "confirm timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.New(strings.Join(errs, "; ")))
	}
	return nil
}
