package client

import (
	"net"
	"testing"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

func TestSessionChannel(t *testing.T) {
	var s session
	if _, ok := s.channelID(); ok {
		t.Error("channelID() assigned on a fresh session")
	}

	// Channel 0 is valid and must still count as assigned.
	s.establish(0, address.MustIndividual(1, 1, 250), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 3671})
	if ch, ok := s.channelID(); !ok || ch != 0 {
		t.Errorf("channelID() = %d, %v, want 0, true", ch, ok)
	}
	if got := s.individualAddress().String(); got != "1.1.250" {
		t.Errorf("individualAddress() = %s, want 1.1.250", got)
	}

	s.reset()
	if _, ok := s.channelID(); ok {
		t.Error("channelID() assigned after reset")
	}
	if s.dataEndpoint() != nil {
		t.Error("dataEndpoint() kept after reset")
	}
}

func TestSessionSendSequence(t *testing.T) {
	var s session
	s.establish(1, address.Address{}, nil)
	s.sendSeq.Store(255)

	if got := s.nextSend(); got != 255 {
		t.Fatalf("nextSend() = %d, want 255", got)
	}
	s.advanceSend()
	if got := s.nextSend(); got != 0 {
		t.Errorf("nextSend() after wrap = %d, want 0", got)
	}
}

func TestSessionClassify(t *testing.T) {
	var s session
	s.establish(1, address.Address{}, nil)

	tests := []struct {
		name string
		recv uint8
		seq  uint8
		want seqClass
	}{
		{"expected", 4, 4, seqExpected},
		{"duplicate", 4, 3, seqDuplicate},
		{"ahead", 4, 5, seqOutOfWindow},
		{"far behind", 4, 1, seqOutOfWindow},
		{"duplicate across wrap", 0, 255, seqDuplicate},
		{"expected at wrap", 255, 255, seqExpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.recvSeq.Store(uint32(tt.recv))
			if got := s.classify(tt.seq); got != tt.want {
				t.Errorf("classify(%d) with counter %d = %v, want %v", tt.seq, tt.recv, got, tt.want)
			}
		})
	}

	s.recvSeq.Store(255)
	s.advanceRecv()
	if got := s.recvSeq.Load(); got != 0 {
		t.Errorf("recvSeq after wrap = %d, want 0", got)
	}
}
