package frame

import (
	"errors"
	"fmt"
)

// Structural decode errors.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidHeader is returned when the header length or protocol
	// version constants are wrong, or fewer than six bytes are available.
	ErrInvalidHeader = errors.New("frame: invalid header")

	// ErrLengthMismatch is returned when the header's total length does not
	// match the number of bytes received.
	ErrLengthMismatch = errors.New("frame: total length mismatch")

	// ErrUnknownServiceType is returned for service type codes missing from
	// the registry.
	ErrUnknownServiceType = errors.New("frame: unknown service type")

	// ErrInvalidStructure is returned when a body or embedded structure is
	// truncated, has trailing bytes, or carries a structure length that
	// disagrees with its fixed size.
	ErrInvalidStructure = errors.New("frame: invalid structure")
)

// DecodeError describes a body that failed to decode.
type DecodeError struct {
	// ServiceType of the frame being decoded.
	ServiceType ServiceType

	// Offset within the body where decoding stopped.
	Offset int

	// Err is the underlying cause (wraps a sentinel above).
	Err error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s body at offset %d: %v", e.ServiceType, e.Offset, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
