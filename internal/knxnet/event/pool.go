package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// Slot types held by the pool.
type (
	SearchEvent              = Multi[frame.SearchRequestBody, frame.SearchResponseBody]
	DescriptionEvent         = Multi[frame.DescriptionRequestBody, frame.DescriptionResponseBody]
	ConnectEvent             = Single[frame.ConnectRequestBody, frame.ConnectResponseBody]
	ConnectionStateEvent     = Single[frame.ConnectionStateRequestBody, frame.ConnectionStateResponseBody]
	DisconnectEvent          = Single[frame.DisconnectRequestBody, frame.DisconnectResponseBody]
	TunnelingEvent           = Single[frame.TunnelingRequestBody, frame.TunnelingAckBody]
	DeviceConfigurationEvent = Single[frame.DeviceConfigurationRequestBody, frame.DeviceConfigurationAckBody]
	ConfirmationEvent        = Single[cemi.Message, cemi.Message]
)

// Pool owns every correlation slot of one client. It is the only mutator
// of the slots it hands out.
type Pool struct {
	search          SearchEvent
	description     DescriptionEvent
	connect         ConnectEvent
	connectionState ConnectionStateEvent
	disconnect      DisconnectEvent

	mu            sync.Mutex
	tunneling     map[uint8]*TunnelingEvent
	deviceConfig  map[uint8]*DeviceConfigurationEvent
	confirmations map[address.Address]*ConfirmationEvent

	now func() time.Time
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		tunneling:     make(map[uint8]*TunnelingEvent),
		deviceConfig:  make(map[uint8]*DeviceConfigurationEvent),
		confirmations: make(map[address.Address]*ConfirmationEvent),
		now:           time.Now,
	}
}

// Record opens the exchange for req, discarding any earlier exchange of the
// same kind (and, for tunneling, the same sequence number).
//
// Returns:
//   - error: ErrNotCorrelated if req does not open an exchange
func (p *Pool) Record(req frame.Body) error {
	now := p.now()
	switch b := req.(type) {
	case frame.SearchRequestBody:
		p.search.setRequest(b, now)
	case frame.DescriptionRequestBody:
		p.description.setRequest(b, now)
	case frame.ConnectRequestBody:
		p.connect.setRequest(b, now)
	case frame.ConnectionStateRequestBody:
		p.connectionState.setRequest(b, now)
	case frame.DisconnectRequestBody:
		p.disconnect.setRequest(b, now)
	case frame.TunnelingRequestBody:
		ev := &TunnelingEvent{}
		ev.setRequest(b, now)
		p.mu.Lock()
		p.tunneling[b.Sequence] = ev
		p.mu.Unlock()
		if b.CEMI.Code == cemi.LDataReq {
			p.RecordConfirmation(b.CEMI)
		}
	case frame.DeviceConfigurationRequestBody:
		ev := &DeviceConfigurationEvent{}
		ev.setRequest(b, now)
		p.mu.Lock()
		p.deviceConfig[b.Sequence] = ev
		p.mu.Unlock()
	default:
		return fmt.Errorf("%w: %s", ErrNotCorrelated, req.ServiceType())
	}
	return nil
}

// RecordConfirmation opens a confirmation slot for an L_Data.req keyed by
// its destination.
func (p *Pool) RecordConfirmation(req cemi.Message) {
	ev := &ConfirmationEvent{}
	ev.setRequest(req, p.now())
	p.mu.Lock()
	p.confirmations[req.Destination] = ev
	p.mu.Unlock()
}

// Deliver stores resp in the slot it answers.
//
// Returns:
//   - bool: true if a waiting exchange accepted resp
func (p *Pool) Deliver(resp frame.Body) bool {
	now := p.now()
	switch b := resp.(type) {
	case frame.SearchResponseBody:
		return p.search.addResponse(b, now)
	case frame.DescriptionResponseBody:
		return p.description.addResponse(b, now)
	case frame.ConnectResponseBody:
		return p.connect.setResponse(b, now)
	case frame.ConnectionStateResponseBody:
		return p.connectionState.setResponse(b, now)
	case frame.DisconnectResponseBody:
		return p.disconnect.setResponse(b, now)
	case frame.TunnelingAckBody:
		if ev, ok := p.Tunneling(b.Sequence); ok {
			return ev.setResponse(b, now)
		}
	case frame.DeviceConfigurationAckBody:
		if ev, ok := p.DeviceConfiguration(b.Sequence); ok {
			return ev.setResponse(b, now)
		}
	case frame.TunnelingRequestBody:
		return p.deliverConfirmation(b.CEMI, now)
	case frame.RoutingIndicationBody:
		return p.deliverConfirmation(b.CEMI, now)
	}
	return false
}

func (p *Pool) deliverConfirmation(m cemi.Message, now time.Time) bool {
	if m.Code != cemi.LDataCon {
		return false
	}
	ev, ok := p.Confirmation(m.Destination)
	if !ok {
		return false
	}
	return ev.setResponse(m, now)
}

// Search returns the search slot.
func (p *Pool) Search() *SearchEvent { return &p.search }

// Description returns the description slot.
func (p *Pool) Description() *DescriptionEvent { return &p.description }

// Connect returns the connect slot.
func (p *Pool) Connect() *ConnectEvent { return &p.connect }

// ConnectionState returns the heartbeat slot.
func (p *Pool) ConnectionState() *ConnectionStateEvent { return &p.connectionState }

// Disconnect returns the disconnect slot.
func (p *Pool) Disconnect() *DisconnectEvent { return &p.disconnect }

// Tunneling returns the slot for sequence number seq.
func (p *Pool) Tunneling(seq uint8) (*TunnelingEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.tunneling[seq]
	return ev, ok
}

// DeviceConfiguration returns the slot for sequence number seq.
func (p *Pool) DeviceConfiguration(seq uint8) (*DeviceConfigurationEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.deviceConfig[seq]
	return ev, ok
}

// Confirmation returns the confirmation slot for dst.
func (p *Pool) Confirmation(dst address.Address) (*ConfirmationEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.confirmations[dst]
	return ev, ok
}

// Forget drops the tunneling slot for seq once its exchange is complete.
func (p *Pool) Forget(seq uint8) {
	p.mu.Lock()
	delete(p.tunneling, seq)
	p.mu.Unlock()
}

// ForgetDeviceConfiguration drops the device configuration slot for seq.
func (p *Pool) ForgetDeviceConfiguration(seq uint8) {
	p.mu.Lock()
	delete(p.deviceConfig, seq)
	p.mu.Unlock()
}

// Reset clears every slot. Called when a session ends.
func (p *Pool) Reset() {
	p.search.clear()
	p.description.clear()
	p.connect.clear()
	p.connectionState.clear()
	p.disconnect.clear()

	p.mu.Lock()
	clear(p.tunneling)
	clear(p.deviceConfig)
	clear(p.confirmations)
	p.mu.Unlock()
}
