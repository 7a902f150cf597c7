package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// defaultKNXPort is the IANA port for KNXnet/IP.
const defaultKNXPort = 3671

// Config is the root configuration structure for knxnetd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	KNXNet   KNXNetConfig   `yaml:"knxnet"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// KNXNetConfig contains the KNXnet/IP client settings.
type KNXNetConfig struct {
	// Mode is "tunneling" or "routing".
	Mode string `yaml:"mode"`

	// Gateway is the gateway control endpoint, "host:port" or "host".
	// Empty means discover one with a search request.
	Gateway string `yaml:"gateway"`

	// ConnectionType is "tunnel" or "device_management".
	ConnectionType string `yaml:"connection_type"`

	// TunnelLayer is "link", "raw" or "busmonitor".
	TunnelLayer string `yaml:"tunnel_layer"`

	// NAT announces 0.0.0.0:0 endpoints so replies follow the datagram source.
	NAT bool `yaml:"nat"`

	LocalIP   string `yaml:"local_ip"`
	Interface string `yaml:"interface"`

	ControlPort   int `yaml:"control_port"`
	DataPort      int `yaml:"data_port"`
	DiscoveryPort int `yaml:"discovery_port"`

	DiscoveryAddress string `yaml:"discovery_address"`
	RoutingAddress   string `yaml:"routing_address"`
	MulticastTTL     int    `yaml:"multicast_ttl"`

	// IndividualAddress is the source address in routing mode ("1.1.250").
	IndividualAddress string `yaml:"individual_address"`

	AutoReconnect bool `yaml:"auto_reconnect"`

	Timeouts KNXNetTimeoutConfig `yaml:"timeouts"`
}

// KNXNetTimeoutConfig holds client timers. Durations are YAML strings ("10s").
// Zero values take the client defaults.
type KNXNetTimeoutConfig struct {
	Connect           time.Duration `yaml:"connect"`
	ConnectAttempts   int           `yaml:"connect_attempts"`
	RetryWait         time.Duration `yaml:"retry_wait"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	Disconnect        time.Duration `yaml:"disconnect"`
	Ack               time.Duration `yaml:"ack"`
	Confirm           time.Duration `yaml:"confirm"`
	Search            time.Duration `yaml:"search"`
	Description       time.Duration `yaml:"description"`
	Response          time.Duration `yaml:"response"`
	MaxReconnect      time.Duration `yaml:"max_reconnect"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	// Enabled persists the status pool and the address inventory.
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of every published topic.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// StatsInterval is how often statistics snapshots are written, in seconds.
	StatsInterval int `yaml:"stats_interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// Frames logs every frame at debug level.
	Frames bool `yaml:"frames"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings. An empty secret disables
// authentication on the status surface.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KNXNET_SECTION_KEY
// For example: KNXNET_GATEWAY, KNXNET_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file. Empty uses defaults only.
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		KNXNet: KNXNetConfig{
			Mode:             "tunneling",
			ConnectionType:   "tunnel",
			TunnelLayer:      "link",
			DiscoveryAddress: client.MulticastAddr.String(),
			RoutingAddress:   client.MulticastAddr.String(),
			MulticastTTL:     16,
			AutoReconnect:    true,
		},
		Database: DatabaseConfig{
			Path:        "./data/knxnet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "knxnetd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "knxnet",
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "knxnet",
			BatchSize:     100,
			FlushInterval: 10,
			StatsInterval: 60,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{Issuer: "knxnetd"},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KNXNET_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"KNXNET_MODE", &cfg.KNXNet.Mode},
		{"KNXNET_GATEWAY", &cfg.KNXNet.Gateway},
		{"KNXNET_LOCAL_IP", &cfg.KNXNet.LocalIP},
		{"KNXNET_INTERFACE", &cfg.KNXNet.Interface},
		{"KNXNET_INDIVIDUAL_ADDRESS", &cfg.KNXNet.IndividualAddress},
		{"KNXNET_DATABASE_PATH", &cfg.Database.Path},
		{"KNXNET_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"KNXNET_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"KNXNET_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"KNXNET_INFLUXDB_URL", &cfg.InfluxDB.URL},
		{"KNXNET_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"KNXNET_API_HOST", &cfg.API.Host},
		{"KNXNET_LOG_LEVEL", &cfg.Logging.Level},
		{"KNXNET_JWT_SECRET", &cfg.Security.JWT.Secret},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"KNXNET_NAT", &cfg.KNXNet.NAT},
		{"KNXNET_AUTO_RECONNECT", &cfg.KNXNet.AutoReconnect},
		{"KNXNET_DATABASE_ENABLED", &cfg.Database.Enabled},
		{"KNXNET_MQTT_ENABLED", &cfg.MQTT.Enabled},
		{"KNXNET_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled},
		{"KNXNET_API_ENABLED", &cfg.API.Enabled},
	}
	for _, b := range bools {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = parsed
	}

	if v := os.Getenv("KNXNET_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KNXNET_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if _, err := c.KNXNet.ToClientConfig(); err != nil {
		errs = append(errs, "knxnet: "+err.Error())
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ToClientConfig converts the YAML section into a client configuration.
// Durations left at zero take the client defaults.
func (k KNXNetConfig) ToClientConfig() (client.Config, error) {
	var cfg client.Config
	var err error

	if cfg.Mode, err = client.ParseMode(k.Mode); err != nil {
		return client.Config{}, err
	}
	if k.Gateway != "" {
		if cfg.Gateway, err = parseEndpoint(k.Gateway); err != nil {
			return client.Config{}, fmt.Errorf("gateway: %w", err)
		}
	}
	if cfg.ConnectionType, err = parseConnectionType(k.ConnectionType); err != nil {
		return client.Config{}, err
	}
	if cfg.TunnelLayer, err = parseTunnelLayer(k.TunnelLayer); err != nil {
		return client.Config{}, err
	}
	if k.LocalIP != "" {
		if cfg.LocalIP, err = netip.ParseAddr(k.LocalIP); err != nil {
			return client.Config{}, fmt.Errorf("local_ip: %w", err)
		}
	}
	if k.DiscoveryAddress != "" {
		if cfg.DiscoveryAddr, err = parseEndpoint(k.DiscoveryAddress); err != nil {
			return client.Config{}, fmt.Errorf("discovery_address: %w", err)
		}
	}
	if k.RoutingAddress != "" {
		if cfg.RoutingAddr, err = parseEndpoint(k.RoutingAddress); err != nil {
			return client.Config{}, fmt.Errorf("routing_address: %w", err)
		}
	}
	if k.IndividualAddress != "" {
		if cfg.IndividualAddress, err = address.Parse(k.IndividualAddress); err != nil {
			return client.Config{}, fmt.Errorf("individual_address: %w", err)
		}
	}

	ports := []struct {
		name string
		in   int
		out  *uint16
	}{
		{"control_port", k.ControlPort, &cfg.ControlPort},
		{"data_port", k.DataPort, &cfg.DataPort},
		{"discovery_port", k.DiscoveryPort, &cfg.DiscoveryPort},
	}
	for _, p := range ports {
		if p.in < 0 || p.in > 65535 {
			return client.Config{}, fmt.Errorf("%s %d out of range", p.name, p.in)
		}
		*p.out = uint16(p.in) //nolint:gosec // range checked above
	}

	cfg.NAT = k.NAT
	cfg.Interface = k.Interface
	cfg.MulticastTTL = k.MulticastTTL
	cfg.AutoReconnect = k.AutoReconnect

	t := k.Timeouts
	cfg.ConnectTimeout = t.Connect
	cfg.ConnectAttempts = t.ConnectAttempts
	cfg.RetryWait = t.RetryWait
	cfg.HeartbeatInterval = t.HeartbeatInterval
	cfg.HeartbeatTimeout = t.Heartbeat
	cfg.DisconnectTimeout = t.Disconnect
	cfg.AckTimeout = t.Ack
	cfg.ConfirmTimeout = t.Confirm
	cfg.SearchTimeout = t.Search
	cfg.DescriptionTimeout = t.Description
	cfg.ResponseTimeout = t.Response
	cfg.MaxReconnectInterval = t.MaxReconnect

	check := cfg
	check.ApplyDefaults()
	if err := check.Validate(); err != nil {
		return client.Config{}, err
	}
	return cfg, nil
}

// parseEndpoint accepts "host:port" or a bare IPv4 address, which gets the
// KNXnet/IP port.
func parseEndpoint(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid endpoint %q", s)
	}
	return netip.AddrPortFrom(addr, defaultKNXPort), nil
}

func parseConnectionType(s string) (frame.ConnectionType, error) {
	switch strings.ToLower(s) {
	case "", "tunnel", "tunneling":
		return frame.TunnelConnection, nil
	case "device_management", "management":
		return frame.DeviceManagementConnection, nil
	default:
		return 0, fmt.Errorf("unknown connection_type %q", s)
	}
}

func parseTunnelLayer(s string) (frame.TunnelLayer, error) {
	switch strings.ToLower(s) {
	case "", "link":
		return frame.LinkLayer, nil
	case "raw":
		return frame.RawLayer, nil
	case "busmonitor":
		return frame.BusmonitorLayer, nil
	default:
		return 0, fmt.Errorf("unknown tunnel_layer %q", s)
	}
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
