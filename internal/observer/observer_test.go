package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/knxnet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

var (
	testGroup  = address.MustGroup(1, 2, 3)
	testSource = address.MustIndividual(1, 1, 5)
	testTime   = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
)

func groupWriteInd(payload ...byte) cemi.Message {
	m := cemi.NewGroupWrite(testGroup, payload)
	m.Code = cemi.LDataInd
	m.Source = testSource
	return m
}

func inboundTelegram(m cemi.Message) Telegram {
	return Telegram{Direction: Inbound, Service: frame.TunnelingRequest, Message: m, Time: testTime}
}

// recorder captures everything an Observer receives.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) OnTelegram(t Telegram)                { r.add("telegram " + string(t.Direction)) }
func (r *recorder) OnStateChange(from, to client.State) { r.add("state " + from.String() + "->" + to.String()) }
func (r *recorder) OnError(err error)                   { r.add("error " + err.Error()) }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type panicky struct{ NopObserver }

func (panicky) OnTelegram(Telegram) { panic("boom") }

func TestTelegramFromBody(t *testing.T) {
	msg := groupWriteInd(0x01)
	tests := []struct {
		name   string
		body   frame.Body
		wantOK bool
	}{
		{"tunneling request", frame.TunnelingRequestBody{Channel: 1, Sequence: 2, CEMI: msg}, true},
		{"routing indication", frame.RoutingIndicationBody{CEMI: msg}, true},
		{"device configuration", frame.DeviceConfigurationRequestBody{CEMI: cemi.NewPropertyRead(0x0000, 1, 0x0B, 1, 1)}, true},
		{"tunneling ack", frame.TunnelingAckBody{Channel: 1}, false},
		{"lost message", frame.RoutingLostMessageBody{Lost: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TelegramFromBody(tt.body, Outbound, testTime)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Service != tt.body.ServiceType() {
				t.Errorf("Service = %v, want %v", got.Service, tt.body.ServiceType())
			}
			if got.Direction != Outbound || !got.Time.Equal(testTime) {
				t.Errorf("Direction/Time = %v/%v", got.Direction, got.Time)
			}
		})
	}
}

func TestTelegramJSON(t *testing.T) {
	b, err := json.Marshal(inboundTelegram(groupWriteInd(0x0C, 0x1A)))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := map[string]any{
		"direction":   "in",
		"service":     "TUNNELING_REQUEST",
		"code":        "L_Data.ind",
		"source":      "1.1.5",
		"destination": "1/2/3",
		"apci":        "A_GroupValue_Write",
		"payload":     "0c1a",
		"time":        "2026-09-01T12:00:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestRegistryDispatchesInOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	reg := NewRegistry(0, a, nil, b)
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (nil skipped)", reg.Len())
	}

	reg.OnStateChange(client.StateConnecting, client.StateConnected)
	reg.OnIncomingBody(frame.TunnelingRequestBody{CEMI: groupWriteInd(1)})
	reg.OnIncomingBody(frame.TunnelingAckBody{}) // no cEMI, ignored
	reg.OnOutgoingBody(frame.RoutingIndicationBody{CEMI: groupWriteInd(1)})
	reg.OnError(errors.New("socket closed"))
	reg.OnError(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := reg.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"state connecting->connected", "telegram in", "telegram out", "error socket closed"}
	for _, r := range []*recorder{a, b} {
		got := r.snapshot()
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("events = %v, want %v", got, want)
		}
	}
}

func TestRegistryDropsWhenFull(t *testing.T) {
	reg := NewRegistry(1, &recorder{})
	for range 3 {
		reg.OnError(errors.New("x"))
	}
	if reg.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", reg.Dropped())
	}
}

func TestRegistryRecoversObserverPanic(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(0, panicky{}, rec)
	reg.OnIncomingBody(frame.TunnelingRequestBody{CEMI: groupWriteInd(1)})
	reg.OnError(errors.New("after"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = reg.Run(ctx)

	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("events = %v, want telegram and error", got)
	}
}

func TestRegistryClose(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(0, rec)

	done := make(chan error, 1)
	go func() { done <- reg.Run(context.Background()) }()

	reg.OnError(errors.New("before close"))
	deadline := time.Now().Add(time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	reg.Close()
	reg.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	reg.OnError(errors.New("after close"))
	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("events = %v, want only the event before Close", got)
	}
	if err := reg.Run(context.Background()); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Run() after Close error = %v, want ErrRegistryClosed", err)
	}
}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, payload, qos, retained})
	return p.err
}

func TestMQTTPublisher(t *testing.T) {
	pub := &fakePublisher{}
	p := NewMQTTPublisher(pub, mqtt.Topics{Prefix: "home/knx/"}, 1, nil)

	p.OnTelegram(inboundTelegram(groupWriteInd(0x01)))
	p.OnTelegram(Telegram{Direction: Inbound, Service: frame.DeviceConfigurationRequest, Message: cemi.NewPropertyRead(0, 1, 0x0B, 1, 1)})
	p.OnStateChange(client.StateConnecting, client.StateConnected)
	p.OnError(errors.New("ack timeout"))
	p.WriteStatistics(stats.Statistics{FramesSent: 4})

	want := []struct {
		topic    string
		retained bool
	}{
		{"home/knx/telegram/1/2/3", false},
		{"home/knx/connection/state", true},
		{"home/knx/error", false},
		{"home/knx/stats", true},
	}
	if len(pub.msgs) != len(want) {
		t.Fatalf("published %d messages, want %d", len(pub.msgs), len(want))
	}
	for i, w := range want {
		got := pub.msgs[i]
		if got.topic != w.topic || got.retained != w.retained || got.qos != 1 {
			t.Errorf("msg[%d] = %s retained=%v qos=%d, want %s retained=%v qos=1", i, got.topic, got.retained, got.qos, w.topic, w.retained)
		}
	}

	var state statePayload
	if err := json.Unmarshal(pub.msgs[1].payload, &state); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if state.State != "connected" || state.From != "connecting" {
		t.Errorf("state payload = %+v", state)
	}

	var s stats.Statistics
	if err := json.Unmarshal(pub.msgs[3].payload, &s); err != nil {
		t.Fatalf("stats payload: %v", err)
	}
	if s.FramesSent != 4 {
		t.Errorf("FramesSent = %d, want 4", s.FramesSent)
	}
}

func TestMQTTPublisherLogsFailure(t *testing.T) {
	logger := &mockLogger{}
	p := NewMQTTPublisher(&fakePublisher{err: mqtt.ErrNotConnected}, mqtt.Topics{}, 0, logger)
	p.OnError(errors.New("x"))
	if logger.count("warn") != 1 {
		t.Errorf("warn logs = %d, want 1", logger.count("warn"))
	}
}

type fakeWriter struct {
	telegrams []influxdb.TelegramPoint
	states    [][2]string
	stats     []stats.Statistics
}

func (w *fakeWriter) WriteTelegram(p influxdb.TelegramPoint)  { w.telegrams = append(w.telegrams, p) }
func (w *fakeWriter) WriteConnectionState(from, to string)    { w.states = append(w.states, [2]string{from, to}) }
func (w *fakeWriter) WriteStatistics(s stats.Statistics)      { w.stats = append(w.stats, s) }

func TestInfluxRecorder(t *testing.T) {
	w := &fakeWriter{}
	r := NewInfluxRecorder(w)

	r.OnTelegram(inboundTelegram(groupWriteInd(0x0C, 0x1A)))
	r.OnStateChange(client.StateConnected, client.StateConnecting)
	r.OnError(errors.New("ignored"))
	r.WriteStatistics(stats.Statistics{Resends: 1})

	if len(w.telegrams) != 1 {
		t.Fatalf("telegrams = %d, want 1", len(w.telegrams))
	}
	p := w.telegrams[0]
	if p.Direction != "in" || p.Destination != "1/2/3" || p.Source != "1.1.5" || p.APCI != "A_GroupValue_Write" {
		t.Errorf("point = %+v", p)
	}
	if string(p.Payload) != "\x0c\x1a" || !p.Time.Equal(testTime) {
		t.Errorf("payload/time = %x/%v", p.Payload, p.Time)
	}
	if len(w.states) != 1 || w.states[0] != [2]string{"connected", "connecting"} {
		t.Errorf("states = %v", w.states)
	}
	if len(w.stats) != 1 || w.stats[0].Resends != 1 {
		t.Errorf("stats = %v", w.stats)
	}
}

type mockLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *mockLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+" "+msg)
	l.mu.Unlock()
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *mockLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *mockLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *mockLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if len(line) > len(level) && line[:len(level)+1] == level+" " {
			n++
		}
	}
	return n
}

func TestLogObserver(t *testing.T) {
	tests := []struct {
		name      string
		frames    bool
		wantDebug int
	}{
		{"frames off", false, 0},
		{"frames on", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			o := NewLogObserver(logger, tt.frames)
			o.OnTelegram(inboundTelegram(groupWriteInd(1)))
			o.OnStateChange(client.StateConnecting, client.StateConnected)
			o.OnStateChange(client.StateConnected, client.StateDisconnected)
			o.OnError(errors.New("x"))

			if got := logger.count("debug"); got != tt.wantDebug {
				t.Errorf("debug = %d, want %d", got, tt.wantDebug)
			}
			if logger.count("info") != 1 || logger.count("warn") != 1 || logger.count("error") != 1 {
				t.Errorf("lines = %v", logger.lines)
			}
		})
	}
}

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) WriteStatistics(stats.Statistics) {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestStatsReporter(t *testing.T) {
	sink := &countingSink{}
	collector := stats.New()
	r := NewStatsReporter(10*time.Millisecond, collector.Snapshot, nil, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := sink.count(); n < 2 {
		t.Errorf("reports = %d, want at least 2", n)
	}
}

func TestStatsReporterInvalidInterval(t *testing.T) {
	r := NewStatsReporter(0, stats.New().Snapshot, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Error("Run() with zero interval should fail")
	}
}
