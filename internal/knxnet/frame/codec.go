package frame

import (
	"bytes"
	"fmt"
)

// Body is a decoded service-specific frame body.
type Body interface {
	// ServiceType identifies the body variant.
	ServiceType() ServiceType

	// Len returns the encoded body length, excluding the header.
	Len() int

	// AppendTo appends the encoded body to b.
	AppendTo(b []byte) []byte
}

// ChannelBody is implemented by bodies that carry a channel id.
type ChannelBody interface {
	Body
	ChannelID() uint8
}

// validator is implemented by bodies with content that can be out of range
// for the wire format (names, variable-length telegrams).
type validator interface {
	validate() error
}

// Validate reports whether body can be encoded.
//
// Returns:
//   - error: ErrInvalidStructure describing the first problem, or nil
func Validate(body Body) error {
	if body == nil {
		return fmt.Errorf("%w: nil body", ErrInvalidStructure)
	}
	if !body.ServiceType().Known() {
		return fmt.Errorf("%w: %s", ErrUnknownServiceType, body.ServiceType())
	}
	if n := HeaderSize + body.Len(); n > MaxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrInvalidStructure, n, MaxFrameSize)
	}
	if v, ok := body.(validator); ok {
		if err := v.validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidStructure, body.ServiceType(), err)
		}
	}
	return nil
}

// Encode returns the header followed by the body encoding.
// Bodies rejected by Validate produce frames peers will not accept; callers
// that build bodies from external input should call Validate first.
func Encode(body Body) []byte {
	n := body.Len()
	b := make([]byte, 0, HeaderSize+n)
	b = NewHeader(body.ServiceType(), n).AppendTo(b)
	return body.AppendTo(b)
}

// Decode parses one complete frame.
//
// The buffer must contain exactly one frame: its length has to match the
// header's total length.
//
// Returns:
//   - Header: Decoded header
//   - Body: Fully decoded body, never partial
//   - error: ErrInvalidHeader, ErrLengthMismatch, ErrUnknownServiceType or a
//     *DecodeError wrapping ErrInvalidStructure
func Decode(data []byte) (Header, Body, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	if int(h.TotalLength) != len(data) {
		return Header{}, nil, fmt.Errorf("%w: header declares %d bytes, got %d", ErrLengthMismatch, h.TotalLength, len(data))
	}

	info, ok := services[h.ServiceType]
	if !ok {
		return Header{}, nil, fmt.Errorf("%w: 0x%04X", ErrUnknownServiceType, uint16(h.ServiceType))
	}

	r := &reader{b: data[HeaderSize:]}
	body := info.decode(r)
	r.expectEnd()
	if r.err != nil {
		return Header{}, nil, &DecodeError{ServiceType: h.ServiceType, Offset: r.errOff, Err: r.err}
	}
	return h, body, nil
}

// Equal reports whether two bodies have the same canonical encoding.
func Equal(a, b Body) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ServiceType() != b.ServiceType() {
		return false
	}
	return bytes.Equal(a.AppendTo(nil), b.AppendTo(nil))
}

// ChannelOf returns the channel id carried by body, if any.
func ChannelOf(body Body) (uint8, bool) {
	cb, ok := body.(ChannelBody)
	if !ok {
		return 0, false
	}
	return cb.ChannelID(), true
}
