package frame

import (
	"encoding/binary"
	"fmt"
)

// Header constants.
const (
	// HeaderSize is the fixed KNXnet/IP header length.
	HeaderSize = 0x06

	// ProtocolVersion is KNXnet/IP version 1.0.
	ProtocolVersion = 0x10

	// MaxFrameSize bounds the total length field.
	MaxFrameSize = 0xFFFF
)

// Header is the six-byte frame header.
type Header struct {
	ServiceType ServiceType
	TotalLength uint16
}

// NewHeader returns the header for a body of the given type and length.
func NewHeader(st ServiceType, bodyLen int) Header {
	return Header{ServiceType: st, TotalLength: uint16(HeaderSize + bodyLen)} //nolint:gosec // bounded by MaxFrameSize in Encode
}

// BodyLength returns the body length declared by the header.
func (h Header) BodyLength() int {
	return int(h.TotalLength) - HeaderSize
}

// AppendTo appends the encoded header to b.
func (h Header) AppendTo(b []byte) []byte {
	b = append(b, HeaderSize, ProtocolVersion)
	b = binary.BigEndian.AppendUint16(b, uint16(h.ServiceType))
	return binary.BigEndian.AppendUint16(b, h.TotalLength)
}

// DecodeHeader reads the header at the start of data.
//
// Only the header constants are validated; the total length is checked
// against the buffer by Decode.
//
// Returns:
//   - Header: Decoded header
//   - error: ErrInvalidHeader or ErrLengthMismatch
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(data))
	}
	if data[0] != HeaderSize {
		return Header{}, fmt.Errorf("%w: header length 0x%02X, want 0x%02X", ErrInvalidHeader, data[0], HeaderSize)
	}
	if data[1] != ProtocolVersion {
		return Header{}, fmt.Errorf("%w: protocol version 0x%02X, want 0x%02X", ErrInvalidHeader, data[1], ProtocolVersion)
	}

	h := Header{
		ServiceType: ServiceType(binary.BigEndian.Uint16(data[2:4])),
		TotalLength: binary.BigEndian.Uint16(data[4:6]),
	}
	if h.TotalLength < HeaderSize {
		return Header{}, fmt.Errorf("%w: total length %d shorter than header", ErrLengthMismatch, h.TotalLength)
	}
	return h, nil
}

// String returns a human-readable representation of the header.
func (h Header) String() string {
	return fmt.Sprintf("Header{%s, len:%d}", h.ServiceType, h.TotalLength)
}
