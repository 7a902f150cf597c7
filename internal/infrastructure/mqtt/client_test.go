package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/config"
	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "knxnet-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "knxnet-test",
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "site1/knx/"}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"SystemStatus", topics.SystemStatus(), "site1/knx/system/status"},
		{"ConnectionState", topics.ConnectionState(), "site1/knx/connection/state"},
		{"Telegram group", topics.Telegram(address.MustGroup(1, 2, 3)), "site1/knx/telegram/1/2/3"},
		{"Telegram individual", topics.Telegram(address.MustIndividual(1, 1, 5)), "site1/knx/telegram/1.1.5"},
		{"Error", topics.Error(), "site1/knx/error"},
		{"Stats", topics.Stats(), "site1/knx/stats"},
		{"AllTelegrams", topics.AllTelegrams(), "site1/knx/telegram/#"},
		{"default prefix", Topics{}.SystemStatus(), "knxnet/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "knx"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg, "knxnet-test-1")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "knxnet-test-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "knx" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not set with minimum version")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("expected clean session with auto-reconnect")
	}
}

func TestNewClientConfiguresWill(t *testing.T) {
	c := newClient(testConfig())

	if !strings.HasPrefix(c.ClientID(), "knxnet-test-") {
		t.Errorf("ClientID() = %q, want knxnet-test- prefix", c.ClientID())
	}
	if other := newClient(testConfig()); other.ClientID() == c.ClientID() {
		t.Error("two clients share a client id")
	}

	opts := c.options
	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = enabled %v retained %v qos %d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "knxnet-test/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if p.Status != "offline" || p.Reason != "unexpected_disconnect" || p.ClientID != c.ClientID() {
		t.Errorf("will payload = %+v", p)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusPayload
	if err := json.Unmarshal(buildOnlinePayload("id-1"), &online); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(buildOfflinePayload("id-1"), &offline); err != nil {
		t.Fatal(err)
	}
	if online.Status != "online" || online.Reason != "" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline = %+v", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "knxnet/x", nil, 3, ErrInvalidQoS},
		{"oversized", "knxnet/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "knxnet/x", []byte("{}"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

func TestHandleDisconnectNotifies(t *testing.T) {
	c := &Client{connected: true}
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got error
	c.SetOnDisconnect(func(err error) { got = err })

	cause := errors.New("broker gone")
	c.handleDisconnect(cause)

	if c.IsConnected() {
		t.Error("IsConnected() = true after connection loss")
	}
	if !errors.Is(got, cause) {
		t.Errorf("OnDisconnect got %v", got)
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("logger warned %d times, want 1", len(logger.warns))
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
