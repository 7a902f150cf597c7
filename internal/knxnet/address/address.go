// Package address implements KNX individual and group addresses.
//
// Both address kinds occupy 16 bits on the wire. The Type tag decides how
// the raw value is interpreted and printed:
//
//	Individual: AAAA LLLL DDDD DDDD   "area.line.device"   e.g. 1.1.5
//	Group:      MMMM MSSS SSSS SSSS   "main/middle/sub"    e.g. 1/2/3
//
// Group addresses also have a two-level view ("main/sub", sub 11 bits) and
// a free view (plain 0-65535). Views are presentation only; equality is
// always (Type, Raw).
package address

import (
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Type distinguishes individual from group addresses.
type Type uint8

// Address types.
const (
	// Individual is a physical device address.
	Individual Type = iota

	// Group is a logical multicast-like address.
	Group
)

// String returns the address type name.
func (t Type) String() string {
	switch t {
	case Individual:
		return "individual"
	case Group:
		return "group"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Address limits.
const (
	maxArea   = 15
	maxLine   = 15
	maxDevice = 255

	maxMain     = 31
	maxMiddle   = 7
	maxSub      = 255
	maxTwoLevel = 2047

	// Bit masks for extracting address parts from uint16.
	areaMask     = 0x0F
	lineMask     = 0x0F
	deviceMask   = 0xFF
	mainMask     = 0x1F
	middleMask   = 0x07
	subMask      = 0xFF
	twoLevelMask = 0x07FF

	// Size is the encoded length of an address in bytes.
	Size = 2
)

// Address is an immutable KNX address.
type Address struct {
	Type Type
	Raw  uint16
}

// NewIndividual builds an individual address from its parts.
//
// Parameters:
//   - area: 0-15
//   - line: 0-15
//   - device: 0-255
//
// Returns:
//   - Address: Individual address
//   - error: ErrInvalidAddress if a part is out of range
func NewIndividual(area, line, device uint8) (Address, error) {
	if area > maxArea || line > maxLine {
		return Address{}, fmt.Errorf("%w: individual %d.%d.%d out of range", ErrInvalidAddress, area, line, device)
	}
	return Address{Type: Individual, Raw: uint16(area)<<12 | uint16(line)<<8 | uint16(device)}, nil
}

// NewGroup builds a three-level group address from its parts.
func NewGroup(main, middle, sub uint8) (Address, error) {
	if main > maxMain || middle > maxMiddle {
		return Address{}, fmt.Errorf("%w: group %d/%d/%d out of range", ErrInvalidAddress, main, middle, sub)
	}
	return Address{Type: Group, Raw: uint16(main)<<11 | uint16(middle)<<8 | uint16(sub)}, nil
}

// MustIndividual is NewIndividual that panics on invalid input.
// Intended for constants and tests.
func MustIndividual(area, line, device uint8) Address {
	a, err := NewIndividual(area, line, device)
	if err != nil {
		panic(err)
	}
	return a
}

// MustGroup is NewGroup that panics on invalid input.
func MustGroup(main, middle, sub uint8) Address {
	a, err := NewGroup(main, middle, sub)
	if err != nil {
		panic(err)
	}
	return a
}

// FromRaw wraps a raw 16-bit value with the given type.
func FromRaw(t Type, raw uint16) Address {
	return Address{Type: t, Raw: raw}
}

// Decode reads an address of the given type from the first two bytes of b.
func Decode(t Type, b []byte) (Address, error) {
	if len(b) < Size {
		return Address{}, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidAddress, Size, len(b))
	}
	return Address{Type: t, Raw: binary.BigEndian.Uint16(b)}, nil
}

// Parse parses the textual forms "a.l.d", "m/mi/s", "m/s" and "n".
// A plain number is read as a free-format group address.
//
// Example:
//
//	ia, _ := address.Parse("1.1.5")
//	ga, _ := address.Parse("1/2/3")
func Parse(s string) (Address, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, "."):
		return parseIndividual(s)
	case strings.Contains(s, "/"):
		return parseGroup(s)
	default:
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		return Address{Type: Group, Raw: uint16(n)}, nil
	}
}

// ParseURL parses an address that was URL path-escaped (see URLEncode).
func ParseURL(encoded string) (Address, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return Address{}, fmt.Errorf("%w: URL decode failed: %w", ErrInvalidAddress, err)
	}
	return Parse(decoded)
}

func parseIndividual(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 { //nolint:mnd // area.line.device
		return Address{}, fmt.Errorf("%w: expected area.line.device, got %q", ErrInvalidAddress, s)
	}
	area, err := parsePart(parts[0], maxArea)
	if err != nil {
		return Address{}, fmt.Errorf("%w: area in %q", err, s)
	}
	line, err := parsePart(parts[1], maxLine)
	if err != nil {
		return Address{}, fmt.Errorf("%w: line in %q", err, s)
	}
	device, err := parsePart(parts[2], maxDevice)
	if err != nil {
		return Address{}, fmt.Errorf("%w: device in %q", err, s)
	}
	return Address{Type: Individual, Raw: uint16(area)<<12 | uint16(line)<<8 | uint16(device)}, nil
}

func parseGroup(s string) (Address, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 3: //nolint:mnd // main/middle/sub
		main, err := parsePart(parts[0], maxMain)
		if err != nil {
			return Address{}, fmt.Errorf("%w: main group in %q", err, s)
		}
		middle, err := parsePart(parts[1], maxMiddle)
		if err != nil {
			return Address{}, fmt.Errorf("%w: middle group in %q", err, s)
		}
		sub, err := parsePart(parts[2], maxSub)
		if err != nil {
			return Address{}, fmt.Errorf("%w: sub group in %q", err, s)
		}
		return Address{Type: Group, Raw: uint16(main)<<11 | uint16(middle)<<8 | uint16(sub)}, nil
	case 2: //nolint:mnd // main/sub
		main, err := parsePart(parts[0], maxMain)
		if err != nil {
			return Address{}, fmt.Errorf("%w: main group in %q", err, s)
		}
		sub, err := parsePart(parts[1], maxTwoLevel)
		if err != nil {
			return Address{}, fmt.Errorf("%w: sub group in %q", err, s)
		}
		return Address{Type: Group, Raw: uint16(main)<<11 | uint16(sub)}, nil
	default:
		return Address{}, fmt.Errorf("%w: expected main/middle/sub or main/sub, got %q", ErrInvalidAddress, s)
	}
}

func parsePart(s string, limit uint64) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v > limit {
		return 0, fmt.Errorf("%w: must be 0-%d", ErrInvalidAddress, limit)
	}
	return v, nil
}

// IsGroup reports whether a is a group address.
func (a Address) IsGroup() bool { return a.Type == Group }

// IsIndividual reports whether a is an individual address.
func (a Address) IsIndividual() bool { return a.Type == Individual }

// IsZero reports whether a is the individual address 0.0.0.
func (a Address) IsZero() bool { return a == Address{} }

// Bytes returns the two-byte big-endian encoding.
func (a Address) Bytes() [Size]byte {
	var b [Size]byte
	binary.BigEndian.PutUint16(b[:], a.Raw)
	return b
}

// AppendTo appends the two-byte encoding to b.
func (a Address) AppendTo(b []byte) []byte {
	return binary.BigEndian.AppendUint16(b, a.Raw)
}

// String returns "a.l.d" for individual and "m/mi/s" for group addresses.
func (a Address) String() string {
	if a.Type == Individual {
		return fmt.Sprintf("%d.%d.%d", (a.Raw>>12)&areaMask, (a.Raw>>8)&lineMask, a.Raw&deviceMask)
	}
	return a.ThreeLevel()
}

// ThreeLevel returns the main/middle/sub view of a group address.
func (a Address) ThreeLevel() string {
	return fmt.Sprintf("%d/%d/%d", (a.Raw>>11)&mainMask, (a.Raw>>8)&middleMask, a.Raw&subMask)
}

// TwoLevel returns the main/sub view of a group address.
func (a Address) TwoLevel() string {
	return fmt.Sprintf("%d/%d", (a.Raw>>11)&mainMask, a.Raw&twoLevelMask)
}

// Free returns the free-format view (plain decimal).
func (a Address) Free() string {
	return strconv.FormatUint(uint64(a.Raw), 10)
}

// URLEncode returns String() escaped for use as a single path segment.
//
// This is used in MQTT topics and HTTP paths where "/" is a level separator.
//
// Example: "1/2/3" → "1%2F2%2F3"
func (a Address) URLEncode() string {
	return url.PathEscape(a.String())
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
