// Package frame implements the KNXnet/IP frame codec.
//
// Every KNXnet/IP datagram starts with a six-byte header followed by a
// service-specific body:
//
//	+--------+---------+--------------+--------------+----------
//	| 0x06   | 0x10    | service type | total length | body ...
//	| hdrlen | version | (uint16 BE)  | (uint16 BE)  |
//	+--------+---------+--------------+--------------+----------
//
// The total length always equals six plus the encoded body length.
//
// # Architecture
//
//   - header.go:      Header encode/decode and the constant checks
//   - servicetype.go: closed table of service types, families and the
//     request/response pairing
//   - hpai.go, cri.go, dib.go: embedded structures shared by bodies
//   - core.go:        search, description, connect, connection-state and
//     disconnect bodies
//   - tunneling.go:   tunneling and device configuration bodies
//   - routing.go:     routing indication, lost message and busy bodies
//   - codec.go:       Encode, Decode and Equal
//
// # Bodies
//
// Bodies are immutable value types implementing Body. Bodies without slice
// fields compare with ==; for the others use Equal, which compares
// canonical encodings.
//
// # Errors
//
// Decode either returns a complete body or an error wrapping one of
// ErrInvalidHeader, ErrLengthMismatch, ErrUnknownServiceType or
// ErrInvalidStructure. Errors raised while decoding a body are *DecodeError
// values carrying the service type and byte offset.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use. The service type
// table is built once during package initialisation and never modified.
package frame
