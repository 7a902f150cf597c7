package client

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

// seqClass classifies an inbound sequence number against the receive
// counter.
type seqClass int

const (
	seqExpected seqClass = iota
	seqDuplicate
	seqOutOfWindow
)

// session is the state of one logical connection. The channel id and
// counters are read by inbox and outbox goroutines, so they are atomics.
type session struct {
	// channel holds the channel id in the low byte; bit 8 marks it assigned.
	channel atomic.Uint32
	sendSeq atomic.Uint32
	recvSeq atomic.Uint32

	mu      sync.RWMutex
	address address.Address
	data    *net.UDPAddr
}

const channelAssigned = 0x100

func (s *session) channelID() (uint8, bool) {
	v := s.channel.Load()
	return uint8(v), v&channelAssigned != 0 //nolint:gosec // low byte
}

// establish records a successful connect.
func (s *session) establish(channel uint8, addr address.Address, data *net.UDPAddr) {
	s.mu.Lock()
	s.address = addr
	s.data = data
	s.mu.Unlock()
	s.sendSeq.Store(0)
	s.recvSeq.Store(0)
	s.channel.Store(uint32(channel) | channelAssigned)
}

// reset clears the session. The channel is dropped first so in-flight
// frames for it are rejected.
func (s *session) reset() {
	s.channel.Store(0)
	s.sendSeq.Store(0)
	s.recvSeq.Store(0)
	s.mu.Lock()
	s.address = address.Address{}
	s.data = nil
	s.mu.Unlock()
}

func (s *session) individualAddress() address.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *session) dataEndpoint() *net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// nextSend returns the sequence number for the next outbound request.
func (s *session) nextSend() uint8 {
	return uint8(s.sendSeq.Load()) //nolint:gosec // mod 256
}

// advanceSend is called after a matching acknowledgement.
func (s *session) advanceSend() {
	s.sendSeq.Store(uint32(s.nextSend() + 1))
}

// classify compares an inbound sequence number with the receive counter.
func (s *session) classify(seq uint8) seqClass {
	want := uint8(s.recvSeq.Load()) //nolint:gosec // mod 256
	switch seq {
	case want:
		return seqExpected
	case want - 1:
		return seqDuplicate
	default:
		return seqOutOfWindow
	}
}

// advanceRecv is called after acknowledging the expected sequence number.
func (s *session) advanceRecv() {
	next := uint8(s.recvSeq.Load()) + 1 //nolint:gosec // mod 256
	s.recvSeq.Store(uint32(next))
}
