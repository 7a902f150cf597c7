// Package stats counts KNXnet/IP traffic and exports the counters to
// Prometheus.
//
// All counters are atomics. The per service type table is built once in
// New and only read afterwards, so every Record method is safe for
// concurrent use from inbox and outbox goroutines.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// ErrorKind classifies an errored frame.
type ErrorKind string

// Error kinds.
const (
	ErrorDecode   ErrorKind = "decode"
	ErrorChannel  ErrorKind = "channel_mismatch"
	ErrorIO       ErrorKind = "io"
	ErrorDispatch ErrorKind = "dispatch"
)

type serviceCounters struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

// Collector accumulates statistics for one client.
type Collector struct {
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64

	decodeErrors      atomic.Uint64
	channelMismatches atomic.Uint64
	ioErrors          atomic.Uint64
	dispatchErrors    atomic.Uint64

	resends           atomic.Uint64
	heartbeatFailures atomic.Uint64
	reconnects        atomic.Uint64
	lostMessages      atomic.Uint64

	lastActivity atomic.Int64 // unix nanoseconds

	services map[frame.ServiceType]*serviceCounters
	unknown  serviceCounters
}

// Statistics is a point-in-time copy of the counters.
type Statistics struct {
	FramesSent        uint64            `json:"frames_sent"`
	FramesReceived    uint64            `json:"frames_received"`
	FramesErrored     uint64            `json:"frames_errored"`
	BytesSent         uint64            `json:"bytes_sent"`
	BytesReceived     uint64            `json:"bytes_received"`
	DecodeErrors      uint64            `json:"decode_errors"`
	ChannelMismatches uint64            `json:"channel_mismatches"`
	IOErrors          uint64            `json:"io_errors"`
	DispatchErrors    uint64            `json:"dispatch_errors"`
	Resends           uint64            `json:"resends"`
	HeartbeatFailures uint64            `json:"heartbeat_failures"`
	Reconnects        uint64            `json:"reconnects"`
	LostMessages      uint64            `json:"lost_messages"`
	LastActivity      time.Time         `json:"last_activity"`
	Sent              map[string]uint64 `json:"sent"`
	Received          map[string]uint64 `json:"received"`
}

// New returns a zeroed collector.
func New() *Collector {
	c := &Collector{services: make(map[frame.ServiceType]*serviceCounters)}
	for _, st := range frame.ServiceTypes() {
		c.services[st] = &serviceCounters{}
	}
	return c
}

func (c *Collector) service(st frame.ServiceType) *serviceCounters {
	if sc, ok := c.services[st]; ok {
		return sc
	}
	return &c.unknown
}

func (c *Collector) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// RecordSent counts one frame written to a socket.
func (c *Collector) RecordSent(st frame.ServiceType, n int) {
	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(n)) //nolint:gosec // datagram length
	c.service(st).sent.Add(1)
	c.touch()
}

// RecordReceived counts one frame decoded and accepted.
func (c *Collector) RecordReceived(st frame.ServiceType, n int) {
	c.framesReceived.Add(1)
	c.bytesReceived.Add(uint64(n)) //nolint:gosec // datagram length
	c.service(st).received.Add(1)
	c.touch()
}

// RecordError counts one errored frame.
func (c *Collector) RecordError(kind ErrorKind) {
	switch kind {
	case ErrorDecode:
		c.decodeErrors.Add(1)
	case ErrorChannel:
		c.channelMismatches.Add(1)
	case ErrorIO:
		c.ioErrors.Add(1)
	case ErrorDispatch:
		c.dispatchErrors.Add(1)
	}
}

// RecordResend counts a tunneling request sent a second time.
func (c *Collector) RecordResend() { c.resends.Add(1) }

// RecordHeartbeatFailure counts a missed or failed connection-state check.
func (c *Collector) RecordHeartbeatFailure() { c.heartbeatFailures.Add(1) }

// RecordReconnect counts a completed reconnect.
func (c *Collector) RecordReconnect() { c.reconnects.Add(1) }

// RecordLostMessages adds the count from a ROUTING_LOST_MESSAGE.
func (c *Collector) RecordLostMessages(n uint16) { c.lostMessages.Add(uint64(n)) }

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Statistics {
	s := Statistics{
		FramesSent:        c.framesSent.Load(),
		FramesReceived:    c.framesReceived.Load(),
		BytesSent:         c.bytesSent.Load(),
		BytesReceived:     c.bytesReceived.Load(),
		DecodeErrors:      c.decodeErrors.Load(),
		ChannelMismatches: c.channelMismatches.Load(),
		IOErrors:          c.ioErrors.Load(),
		DispatchErrors:    c.dispatchErrors.Load(),
		Resends:           c.resends.Load(),
		HeartbeatFailures: c.heartbeatFailures.Load(),
		Reconnects:        c.reconnects.Load(),
		LostMessages:      c.lostMessages.Load(),
		Sent:              make(map[string]uint64),
		Received:          make(map[string]uint64),
	}
	s.FramesErrored = s.DecodeErrors + s.ChannelMismatches + s.IOErrors + s.DispatchErrors
	if ts := c.lastActivity.Load(); ts != 0 {
		s.LastActivity = time.Unix(0, ts)
	}
	for st, sc := range c.services {
		if n := sc.sent.Load(); n > 0 {
			s.Sent[st.String()] = n
		}
		if n := sc.received.Load(); n > 0 {
			s.Received[st.String()] = n
		}
	}
	if n := c.unknown.sent.Load(); n > 0 {
		s.Sent["unknown"] = n
	}
	if n := c.unknown.received.Load(); n > 0 {
		s.Received["unknown"] = n
	}
	return s
}
