package client

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
	"github.com/nerrad567/knxnet-core/internal/knxnet/queue"
)

const testChannel = 0x07

var testTunnelAddress = address.MustIndividual(1, 1, 250)

// fakeGateway is a loopback KNXnet/IP server. It answers the core services
// like a gateway unless told otherwise and records every frame it receives.
type fakeGateway struct {
	t    *testing.T
	conn net.PacketConn
	done chan struct{}
	wg   sync.WaitGroup

	mu            sync.Mutex
	received      []frame.Body
	clientControl *net.UDPAddr
	clientData    *net.UDPAddr
	sendSeq       uint8

	connectStatus   frame.Status
	connectDelay    time.Duration
	ignoreHeartbeat bool
	// onTunneling replaces the default ACK. Called without mu held.
	onTunneling func(g *fakeGateway, req frame.TunnelingRequestBody)
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	g := &fakeGateway{t: t, conn: conn, done: make(chan struct{})}
	g.wg.Add(1)
	go g.loop()
	t.Cleanup(func() {
		close(g.done)
		conn.Close()
		g.wg.Wait()
	})
	return g
}

func (g *fakeGateway) addr() netip.AddrPort {
	return g.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (g *fakeGateway) hpai() frame.HPAI {
	h, err := frame.NewHPAI(g.addr())
	if err != nil {
		g.t.Errorf("gateway HPAI: %v", err)
	}
	return h
}

func (g *fakeGateway) loop() {
	defer g.wg.Done()
	buf := make([]byte, frame.MaxFrameSize)
	for {
		_ = g.conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		n, _, err := g.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-g.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		_, body, err := frame.Decode(buf[:n])
		if err != nil {
			g.t.Errorf("gateway received malformed frame: %v", err)
			continue
		}
		g.mu.Lock()
		g.received = append(g.received, body)
		g.mu.Unlock()
		g.handle(body)
	}
}

func (g *fakeGateway) handle(body frame.Body) {
	g.mu.Lock()
	status := g.connectStatus
	connectDelay := g.connectDelay
	ignoreHeartbeat := g.ignoreHeartbeat
	onTunneling := g.onTunneling
	g.mu.Unlock()

	switch b := body.(type) {
	case frame.SearchRequestBody:
		g.send(frame.SearchResponseBody{
			Control:  g.hpai(),
			Device:   frame.DeviceInfo{Medium: frame.MediumTP1, Address: address.MustIndividual(1, 1, 0), Name: "fake gateway"},
			Families: frame.SupportedFamilies{{Family: frame.FamilyCore, Version: 1}, {Family: frame.FamilyTunneling, Version: 1}},
		}, b.Discovery.UDPAddr())

	case frame.DescriptionRequestBody:
		g.send(frame.DescriptionResponseBody{
			Device:   frame.DeviceInfo{Medium: frame.MediumTP1, Address: address.MustIndividual(1, 1, 0), Name: "fake gateway"},
			Families: frame.SupportedFamilies{{Family: frame.FamilyTunneling, Version: 1}},
		}, b.Control.UDPAddr())

	case frame.ConnectRequestBody:
		g.mu.Lock()
		g.clientControl = b.Control.UDPAddr()
		g.clientData = b.Data.UDPAddr()
		g.sendSeq = 0
		g.mu.Unlock()
		time.Sleep(connectDelay)
		if !status.OK() {
			g.send(frame.ConnectResponseBody{Channel: 0, Status: status}, b.Control.UDPAddr())
			return
		}
		g.send(frame.ConnectResponseBody{
			Channel: testChannel,
			Status:  frame.StatusNoError,
			Data:    g.hpai(),
			CRD:     frame.CRD{Type: b.CRI.Type, Address: testTunnelAddress},
		}, b.Control.UDPAddr())

	case frame.ConnectionStateRequestBody:
		if ignoreHeartbeat {
			return
		}
		g.send(frame.ConnectionStateResponseBody{Channel: b.Channel, Status: frame.StatusNoError}, b.Control.UDPAddr())

	case frame.DisconnectRequestBody:
		g.send(frame.DisconnectResponseBody{Channel: b.Channel, Status: frame.StatusNoError}, b.Control.UDPAddr())

	case frame.TunnelingRequestBody:
		if onTunneling != nil {
			onTunneling(g, b)
			return
		}
		g.ack(b, frame.StatusNoError)

	case frame.DeviceConfigurationRequestBody:
		g.send(frame.DeviceConfigurationAckBody{Channel: b.Channel, Sequence: b.Sequence}, g.data())
	}
}

func (g *fakeGateway) ack(req frame.TunnelingRequestBody, status frame.Status) {
	g.send(frame.TunnelingAckBody{Channel: req.Channel, Sequence: req.Sequence, Status: status}, g.data())
}

func (g *fakeGateway) data() *net.UDPAddr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clientData
}

func (g *fakeGateway) control() *net.UDPAddr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clientControl
}

// nextSeq returns the gateway's next outbound tunneling sequence number.
func (g *fakeGateway) nextSeq() uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sendSeq
	g.sendSeq++
	return s
}

func (g *fakeGateway) send(body frame.Body, to *net.UDPAddr) {
	if to == nil {
		g.t.Errorf("gateway has no destination for %s", body.ServiceType())
		return
	}
	if _, err := g.conn.WriteTo(frame.Encode(body), to); err != nil {
		select {
		case <-g.done:
		default:
			g.t.Errorf("gateway WriteTo: %v", err)
		}
	}
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	fn(g)
	g.mu.Unlock()
}

// bodies returns received frames of type st.
func (g *fakeGateway) bodies(st frame.ServiceType) []frame.Body {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []frame.Body
	for _, b := range g.received {
		if b.ServiceType() == st {
			out = append(out, b)
		}
	}
	return out
}

func (g *fakeGateway) count(st frame.ServiceType) int {
	return len(g.bodies(st))
}

// recordingHooks captures state changes and errors.
type recordingHooks struct {
	queue.NopHooks

	mu          sync.Mutex
	transitions []string
	errs        []error
}

func (h *recordingHooks) OnStateChange(from, to State) {
	h.mu.Lock()
	h.transitions = append(h.transitions, from.String()+"->"+to.String())
	h.mu.Unlock()
}

func (h *recordingHooks) OnError(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *recordingHooks) saw(transition string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, tr := range h.transitions {
		if tr == transition {
			return true
		}
	}
	return false
}

func testConfig(gw netip.AddrPort) Config {
	return Config{
		Gateway:            gw,
		LocalIP:            netip.MustParseAddr("127.0.0.1"),
		DiscoveryAddr:      gw,
		ConnectTimeout:     200 * time.Millisecond,
		ConnectAttempts:    3,
		RetryWait:          20 * time.Millisecond,
		HeartbeatInterval:  time.Hour,
		HeartbeatTimeout:   100 * time.Millisecond,
		DisconnectTimeout:  200 * time.Millisecond,
		AckTimeout:         100 * time.Millisecond,
		SearchTimeout:      200 * time.Millisecond,
		DescriptionTimeout: 200 * time.Millisecond,
		ResponseTimeout:    300 * time.Millisecond,
		PollInterval:       10 * time.Millisecond,
	}
}

// startClient starts a client against cfg and closes it at cleanup.
func startClient(t *testing.T, cfg Config, hooks queue.Hooks) *Client {
	t.Helper()
	opts := []Option{}
	if hooks != nil {
		opts = append(opts, WithHooks(hooks))
	}
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	if err := c.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
