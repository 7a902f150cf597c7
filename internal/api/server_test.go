package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/config"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/logging"
	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
	"github.com/nerrad567/knxnet-core/internal/knxnet/status"
	"github.com/nerrad567/knxnet-core/internal/observer"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClient struct {
	state   client.State
	cfg     client.Config
	channel uint8
	stats   stats.Statistics
}

func (f *fakeClient) State() client.State { return f.state }

func (f *fakeClient) ChannelID() (uint8, bool) {
	return f.channel, f.state == client.StateConnected
}

func (f *fakeClient) IndividualAddress() address.Address { return address.MustIndividual(1, 1, 250) }

func (f *fakeClient) Gateway() (netip.AddrPort, bool) {
	return netip.MustParseAddrPort("192.168.1.10:3671"), true
}

func (f *fakeClient) Config() client.Config   { return f.cfg }
func (f *fakeClient) Stats() stats.Statistics { return f.stats }

type fakeAddresses struct {
	groups []observer.GroupAddressRecord
	limit  int
}

func (f *fakeAddresses) GroupAddresses(_ context.Context, limit int) ([]observer.GroupAddressRecord, error) {
	f.limit = limit
	return f.groups, nil
}

func (f *fakeAddresses) Devices(context.Context) ([]observer.DeviceRecord, error) {
	return []observer.DeviceRecord{{Address: "1.1.5", MessageCount: 2}}, nil
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("broker unreachable") }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, "test", io.Discard)
}

func newTestServer(t *testing.T, mutate func(*Deps)) (*Server, *fakeClient) {
	t.Helper()
	fc := &fakeClient{
		state: client.StateConnected,
		cfg:   client.Config{Mode: client.ModeTunneling, ConnectionType: frame.TunnelConnection},
		stats: stats.Statistics{FramesSent: 3, FramesReceived: 5},
	}
	pool := status.NewPool(nil)
	pool.Update(status.Entry{
		Address: address.MustGroup(1, 2, 3),
		Source:  address.MustIndividual(1, 1, 5),
		APCI:    cemi.GroupValueWrite,
		Payload: []byte{0x01},
	})

	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1"},
		Logger:   testLogger(),
		Client:   fc,
		Status:   pool,
		Gatherer: prometheus.NewRegistry(),
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, fc
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Client: &fakeClient{}, Status: status.NewPool(nil)}},
		{"no client", Deps{Logger: testLogger(), Status: status.NewPool(nil)}},
		{"no status", Deps{Logger: testLogger(), Client: &fakeClient{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s, fc := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.Connection != "connected" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}

	fc.state = client.StateDisconnected
	rec = get(t, s.Handler(), "/api/v1/health", nil)
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Status != "degraded" {
		t.Errorf("disconnected health = %d %+v, want 200 degraded", rec.Code, resp)
	}
}

func TestHealthComponentFailure(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Health = map[string]HealthChecker{"mqtt": failingCheck{}}
	})

	var resp HealthResponse
	decode(t, get(t, s.Handler(), "/api/v1/health", nil), &resp)
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
	if resp.Components["mqtt"] != "broker unreachable" {
		t.Errorf("Components = %v", resp.Components)
	}
}

func TestConnection(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/api/v1/connection", nil)
	var resp ConnectionResponse
	decode(t, rec, &resp)

	if resp.State != "connected" || resp.Mode != "tunneling" || resp.ConnectionType != "tunnel" {
		t.Errorf("connection = %+v", resp)
	}
	if resp.Channel == nil {
		t.Fatal("Channel = nil, want set while connected")
	}
	if resp.IndividualAddress != "1.1.250" {
		t.Errorf("IndividualAddress = %q, want 1.1.250", resp.IndividualAddress)
	}
	if resp.Gateway != "192.168.1.10:3671" {
		t.Errorf("Gateway = %q", resp.Gateway)
	}
}

func TestStatistics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	var resp stats.Statistics
	decode(t, get(t, s.Handler(), "/api/v1/statistics", nil), &resp)
	if resp.FramesSent != 3 || resp.FramesReceived != 5 {
		t.Errorf("statistics = %+v", resp)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, nil)

	var list struct {
		Entries []StatusEntry `json:"entries"`
		Count   int           `json:"count"`
	}
	decode(t, get(t, s.Handler(), "/api/v1/status", nil), &list)
	if list.Count != 1 || len(list.Entries) != 1 {
		t.Fatalf("list = %+v, want one entry", list)
	}

	tests := []struct {
		name     string
		target   string
		wantCode int
	}{
		{"escaped group", "/api/v1/status/1%2F2%2F3", http.StatusOK},
		{"numeric group", "/api/v1/status/2563", http.StatusOK},
		{"unknown", "/api/v1/status/1%2F2%2F4", http.StatusNotFound},
		{"malformed", "/api/v1/status/nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s.Handler(), tt.target, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var e StatusEntry
			decode(t, rec, &e)
			if e.Address != "1/2/3" || e.Source != "1.1.5" || e.Payload != "01" || e.Type != "group" {
				t.Errorf("entry = %+v", e)
			}
		})
	}
}

func TestAddressesDisabled(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, target := range []string{"/api/v1/addresses/groups", "/api/v1/addresses/devices"} {
		if rec := get(t, s.Handler(), target, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", target, rec.Code)
		}
	}
}

func TestAddresses(t *testing.T) {
	src := &fakeAddresses{groups: []observer.GroupAddressRecord{{Address: "1/2/3", MessageCount: 4}}}
	s, _ := newTestServer(t, func(d *Deps) { d.Addresses = src })

	var groups struct {
		GroupAddresses []observer.GroupAddressRecord `json:"group_addresses"`
		Count          int                           `json:"count"`
	}
	rec := get(t, s.Handler(), "/api/v1/addresses/groups?limit=10", nil)
	decode(t, rec, &groups)
	if groups.Count != 1 || groups.GroupAddresses[0].Address != "1/2/3" {
		t.Errorf("groups = %+v", groups)
	}
	if src.limit != 10 {
		t.Errorf("limit = %d, want 10", src.limit)
	}

	if rec := get(t, s.Handler(), "/api/v1/addresses/groups?limit=-1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}

	var devices struct {
		Count int `json:"count"`
	}
	decode(t, get(t, s.Handler(), "/api/v1/addresses/devices", nil), &devices)
	if devices.Count != 1 {
		t.Errorf("devices count = %d, want 1", devices.Count)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := stats.New()
	collector.RecordSent(frame.TunnelingRequest, 21)
	reg.MustRegister(collector)

	s, _ := newTestServer(t, func(d *Deps) { d.Gatherer = reg })

	rec := get(t, s.Handler(), "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "knxnet_frames_sent_total") {
		t.Errorf("metrics output lacks knxnet_frames_sent_total:\n%s", rec.Body.String())
	}
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Security = config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, Issuer: "knxnetd"}}
	})

	valid, err := IssueToken(testSecret, "knxnetd", "operator", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	wrongIssuer, err := IssueToken(testSecret, "someone-else", "operator", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	wrongSecret, err := IssueToken("ffffffffffffffffffffffffffffffff", "knxnetd", "operator", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, err := IssueToken(testSecret, "knxnetd", "operator", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name     string
		target   string
		auth     string
		wantCode int
	}{
		{"health is public", "/api/v1/health", "", http.StatusOK},
		{"missing token", "/api/v1/connection", "", http.StatusUnauthorized},
		{"not bearer", "/api/v1/connection", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"valid token", "/api/v1/connection", "Bearer " + valid, http.StatusOK},
		{"wrong issuer", "/api/v1/connection", "Bearer " + wrongIssuer, http.StatusUnauthorized},
		{"wrong secret", "/api/v1/connection", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"query token outside websocket", "/api/v1/connection?access_token=" + valid, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.auth != "" {
				h.Set("Authorization", tt.auth)
			}
			if rec := get(t, s.Handler(), tt.target, h); rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}

	// A negative ttl still sets an expiry, in the past.
	if _, err := ParseToken(expired, testSecret, "knxnetd"); err == nil {
		t.Error("ParseToken(expired) error = nil, want error")
	}
}

func TestIssueTokenEmptySecret(t *testing.T) {
	if _, err := IssueToken("", "", "x", 0); err == nil {
		t.Error("IssueToken() error = nil, want error")
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	rec := get(t, s.Handler(), "/api/v1/health", http.Header{"Origin": {"http://panel.local"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q, want http://panel.local", got)
	}
	rec = get(t, s.Handler(), "/api/v1/health", http.Header{"Origin": {"http://evil.example"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := get(t, s.Handler(), "/api/v1/health", http.Header{"X-Request-Id": {"abc"}})
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
	rec = get(t, s.Handler(), "/api/v1/health", nil)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", got)
	}
}

func TestErrorResponses(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Security.JWT.Secret = testSecret
	})
	token, err := IssueToken(testSecret, "", "operator", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name       string
		method     string
		target     string
		withToken  bool
		wantStatus int
		wantCode   string
	}{
		{"malformed address", http.MethodGet, "/api/v1/status/nope", true, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing token", http.MethodGet, "/api/v1/status", false, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"unknown endpoint", http.MethodGet, "/api/v2/status", false, http.StatusNotFound, ErrCodeNotFound},
		{"write rejected", http.MethodPost, "/api/v1/health", false, http.StatusMethodNotAllowed, ErrCodeReadOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("X-Request-ID", "req-1")
			if tt.withToken {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			decode(t, rec, &resp)
			if resp.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.RequestID != "req-1" {
				t.Errorf("RequestID = %q, want req-1", resp.RequestID)
			}
			if resp.Message == "" {
				t.Error("Message is empty")
			}
		})
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/health", nil))
	if got := rec.Header().Get("Allow"); got != "GET, OPTIONS" {
		t.Errorf("Allow = %q, want GET, OPTIONS", got)
	}
}

func TestWriteErrorUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusTeapot, "short and stout")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Code != ErrCodeInternal || resp.RequestID != "" {
		t.Errorf("response = %+v", resp)
	}
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("Dial() error = %v (status %d)", err, code)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocketTelegramBroadcast(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Hub().Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelTelegram, ChannelConnectionState}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	s.Hub().OnTelegram(observer.Telegram{
		Direction: observer.Inbound,
		Service:   frame.TunnelingRequest,
		Message: cemi.Message{
			Code:        cemi.LDataInd,
			Source:      address.MustIndividual(1, 1, 5),
			Destination: address.MustGroup(1, 2, 3),
			APCI:        cemi.GroupValueWrite,
			Payload:     []byte{0x0c, 0x1a},
		},
		Time: time.Now(),
	})

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelTelegram {
		t.Fatalf("event = %+v", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", msg.Payload)
	}
	if payload["destination"] != "1/2/3" || payload["payload"] != "0c1a" {
		t.Errorf("payload = %v", payload)
	}

	// Not subscribed: dropped. The state event after it must arrive next.
	s.Hub().OnError(errors.New("ignored"))
	s.Hub().OnStateChange(client.StateConnected, client.StateDisconnected)
	msg = readWS(t, conn)
	if msg.EventType != ChannelConnectionState {
		t.Fatalf("event = %+v, want connection.state", msg)
	}
}

func TestWebSocketUnknownChannel(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "7",
		Payload: WSSubscribePayload{Channels: []string{"device.state_changed"}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError || msg.ID != "7" {
		t.Errorf("reply = %+v, want error", msg)
	}
}

func TestWebSocketAuth(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) {
		d.Security = config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}}
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	token, err := IssueToken(testSecret, "", "panel", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	conn := dialWS(t, srv, "?access_token="+token)
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypePong {
		t.Errorf("reply = %+v, want pong", msg)
	}
}

func TestStartAndClose(t *testing.T) {
	s, _ := newTestServer(t, func(d *Deps) { d.Config.Port = 0 })

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	resp, err := http.Get("http://" + s.Addr().String() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, open := <-s.Err(); open {
		t.Error("Err() yielded an error after clean shutdown")
	}
}
