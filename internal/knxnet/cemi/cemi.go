// Package cemi encodes and decodes Common External Message Interface frames.
//
// A cEMI frame is the KNX telegram carried inside TUNNELING_REQUEST,
// DEVICE_CONFIGURATION_REQUEST and ROUTING_INDICATION bodies. This package
// understands the structural fields only (message code, addresses, TPCI,
// APCI); payload bytes are opaque.
//
// L_Data layout:
//
//	Byte 0:      message code
//	Byte 1:      additional info length (n)
//	Byte 2..n+1: additional info
//	Byte +0:     control field 1
//	Byte +1:     control field 2 (bit 7 = destination is a group address)
//	Byte +2..3:  source individual address
//	Byte +4..5:  destination address
//	Byte +6:     NPDU length (TPDU octets after the first)
//	Byte +7:     TPCI | APCI high bits
//	Byte +8:     APCI low bits | optimized data
//	Byte +9..:   payload
//
// Property layout (M_PropRead/M_PropWrite/M_PropInfo):
//
//	code(1) object type(2) object instance(1) property id(1) count:4|start:12 (2) data
package cemi

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

// Structural constants.
const (
	apciMask          APCI = 0x03FF
	apciServiceMask   APCI = 0x03C0
	optimizedDataMask byte = 0x3F
	tpciControlFlag   byte = 0x80
	tpciMask          byte = 0xFC

	// DefaultControl1 is a standard frame, no repeat, broadcast, low priority.
	DefaultControl1 byte = 0xBC

	// DefaultControl2 is hop count 6 with an individual destination.
	DefaultControl2 byte = 0x60

	control2GroupFlag        byte = 0x80
	control1ConfirmErrorFlag byte = 0x01

	dataHeaderSize     = 9 // code + addil + ctrl1 + ctrl2 + src(2) + dst(2) + npdu len
	propertyHeaderSize = 7
	maxAdditionalInfo  = 0xFF
	maxNPDU            = 0xFE

	propertyCountShift            = 12
	propertyStartIndexMask uint16 = 0x0FFF
	propertyCountLimit            = 0x0F
)

// Property addresses an interface object property for device management.
type Property struct {
	ObjectType     uint16
	ObjectInstance uint8
	PropertyID     uint8
	Count          uint8 // 0-15
	StartIndex     uint16
	Data           []byte
}

// Message is a decoded cEMI frame.
//
// For L_Data codes the structural fields are populated. For property codes
// Property is populated. Any other code keeps its service bytes in Raw.
type Message struct {
	Code MessageCode

	AdditionalInfo []byte
	Control1       byte
	Control2       byte
	Source         address.Address
	Destination    address.Address
	TPCI           byte
	APCI           APCI

	// Payload holds the application data. For an optimized frame it is the
	// single six-bit value carried in the APCI octet.
	Payload   []byte
	Optimized bool

	Property Property

	Raw []byte
}

// NewGroupWrite builds an L_Data.req A_GroupValue_Write with payload carried
// after the APCI octet.
func NewGroupWrite(dst address.Address, payload []byte) Message {
	return newGroupValue(GroupValueWrite, dst, payload)
}

// NewGroupWriteCompact builds an L_Data.req A_GroupValue_Write with a
// six-bit value packed into the APCI octet (DPT 1, 2, 3).
func NewGroupWriteCompact(dst address.Address, value byte) Message {
	m := newGroupValue(GroupValueWrite, dst, []byte{value & optimizedDataMask})
	m.Optimized = true
	return m
}

// NewGroupResponse builds an L_Data.req A_GroupValue_Response.
func NewGroupResponse(dst address.Address, payload []byte) Message {
	return newGroupValue(GroupValueResponse, dst, payload)
}

// NewGroupRead builds an L_Data.req A_GroupValue_Read.
func NewGroupRead(dst address.Address) Message {
	m := newGroupValue(GroupValueRead, dst, nil)
	m.Payload = []byte{0}
	m.Optimized = true
	return m
}

func newGroupValue(apci APCI, dst address.Address, payload []byte) Message {
	return Message{
		Code:        LDataReq,
		Control1:    DefaultControl1,
		Control2:    DefaultControl2 | control2GroupFlag,
		Destination: dst,
		TPCI:        TPCIUnnumberedData,
		APCI:        apci,
		Payload:     cloneBytes(payload),
	}
}

// NewPropertyRead builds an M_PropRead.req.
func NewPropertyRead(objectType uint16, instance, propertyID, count uint8, start uint16) Message {
	return Message{
		Code: MPropReadReq,
		Property: Property{
			ObjectType:     objectType,
			ObjectInstance: instance,
			PropertyID:     propertyID,
			Count:          count,
			StartIndex:     start,
		},
	}
}

// IsGroupValue reports whether m is an L_Data group value read, write or
// response.
func (m Message) IsGroupValue() bool {
	if !m.Code.IsData() || !m.Destination.IsGroup() || m.TPCI&tpciControlFlag != 0 {
		return false
	}
	switch m.APCI.Service() {
	case GroupValueRead, GroupValueResponse, GroupValueWrite:
		return true
	}
	return false
}

// IsControl reports whether m is a transport layer control frame with no
// application data (T_Connect, T_Disconnect, T_Ack, T_Nak).
func (m Message) IsControl() bool {
	return m.Code.IsData() && m.TPCI&tpciControlFlag != 0
}

// ConfirmError reports whether an L_Data.con carries the error flag.
func (m Message) ConfirmError() bool {
	return m.Code == LDataCon && m.Control1&control1ConfirmErrorFlag != 0
}

// Value returns the application data, including the six-bit value of an
// optimized frame. Reads return nil.
func (m Message) Value() []byte {
	if m.APCI.Service() == GroupValueRead && m.IsGroupValue() {
		return nil
	}
	return cloneBytes(m.Payload)
}

// Len returns the encoded length in bytes.
func (m Message) Len() int {
	switch {
	case m.Code.IsData():
		return dataHeaderSize + len(m.AdditionalInfo) + 1 + m.npduLen()
	case m.Code.IsProperty():
		return propertyHeaderSize + len(m.Property.Data)
	default:
		return 1 + len(m.Raw)
	}
}

func (m Message) npduLen() int {
	switch {
	case m.TPCI&tpciControlFlag != 0:
		return 0
	case m.Optimized:
		return 1
	default:
		return 1 + len(m.Payload)
	}
}

// Bytes returns the wire encoding.
func (m Message) Bytes() []byte {
	return m.AppendTo(make([]byte, 0, m.Len()))
}

// AppendTo appends the wire encoding of m to b.
func (m Message) AppendTo(b []byte) []byte {
	b = append(b, byte(m.Code))
	switch {
	case m.Code.IsData():
		return m.appendData(b)
	case m.Code.IsProperty():
		return m.appendProperty(b)
	default:
		return append(b, m.Raw...)
	}
}

func (m Message) appendData(b []byte) []byte {
	b = append(b, byte(len(m.AdditionalInfo))) //nolint:gosec // bounded by Validate
	b = append(b, m.AdditionalInfo...)
	ctrl2 := m.Control2 &^ control2GroupFlag
	if m.Destination.IsGroup() {
		ctrl2 |= control2GroupFlag
	}
	b = append(b, m.Control1, ctrl2)
	b = m.Source.AppendTo(b)
	b = m.Destination.AppendTo(b)
	b = append(b, byte(m.npduLen())) //nolint:gosec // bounded by Validate

	if m.TPCI&tpciControlFlag != 0 {
		return append(b, m.TPCI)
	}

	apci := m.APCI & apciMask
	hi := m.TPCI&tpciMask | byte(apci>>8)
	lo := byte(apci)
	if m.Optimized {
		var v byte
		if len(m.Payload) > 0 {
			v = m.Payload[0] & optimizedDataMask
		}
		return append(b, hi, lo&^optimizedDataMask|v)
	}
	b = append(b, hi, lo)
	return append(b, m.Payload...)
}

func (m Message) appendProperty(b []byte) []byte {
	p := m.Property
	b = binary.BigEndian.AppendUint16(b, p.ObjectType)
	b = append(b, p.ObjectInstance, p.PropertyID)
	b = binary.BigEndian.AppendUint16(b, uint16(p.Count&propertyCountLimit)<<propertyCountShift|p.StartIndex&propertyStartIndexMask)
	return append(b, p.Data...)
}

// Validate checks that m can be encoded without truncation.
func (m Message) Validate() error {
	if m.Code.IsData() {
		if len(m.AdditionalInfo) > maxAdditionalInfo {
			return fmt.Errorf("%w: additional info %d bytes exceeds %d", ErrInvalidMessage, len(m.AdditionalInfo), maxAdditionalInfo)
		}
		if m.npduLen() > maxNPDU {
			return fmt.Errorf("%w: payload %d bytes exceeds frame limit", ErrInvalidMessage, len(m.Payload))
		}
		if m.Optimized && len(m.Payload) > 1 {
			return fmt.Errorf("%w: optimized frame carries %d payload bytes", ErrInvalidMessage, len(m.Payload))
		}
	}
	if m.Code.IsProperty() && m.Property.Count > propertyCountLimit {
		return fmt.Errorf("%w: property count %d exceeds %d", ErrInvalidMessage, m.Property.Count, propertyCountLimit)
	}
	return nil
}

// Decode parses a complete cEMI frame. The whole buffer must be consumed.
//
// Parameters:
//   - b: Raw cEMI bytes
//
// Returns:
//   - Message: Decoded frame (byte slices are copies)
//   - error: ErrInvalidMessage if the structure is truncated or inconsistent
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrInvalidMessage)
	}
	code := MessageCode(b[0])
	switch {
	case code.IsData():
		return decodeData(code, b)
	case code.IsProperty():
		return decodeProperty(code, b)
	default:
		return Message{Code: code, Raw: cloneBytes(b[1:])}, nil
	}
}

func decodeData(code MessageCode, b []byte) (Message, error) {
	if len(b) < 2 {
		return Message{}, fmt.Errorf("%w: %s truncated before additional info length", ErrInvalidMessage, code)
	}
	addLen := int(b[1])
	off := 2 + addLen
	if len(b) < off+dataHeaderSize-2 {
		return Message{}, fmt.Errorf("%w: %s truncated (%d bytes)", ErrInvalidMessage, code, len(b))
	}

	m := Message{
		Code:           code,
		AdditionalInfo: cloneBytes(b[2:off]),
		Control1:       b[off],
		Control2:       b[off+1],
	}
	dstType := address.Individual
	if m.Control2&control2GroupFlag != 0 {
		dstType = address.Group
	}
	m.Source = address.FromRaw(address.Individual, binary.BigEndian.Uint16(b[off+2:]))
	m.Destination = address.FromRaw(dstType, binary.BigEndian.Uint16(b[off+4:]))
	npdu := int(b[off+6])
	tpdu := b[off+7:]

	if len(tpdu) != npdu+1 {
		return Message{}, fmt.Errorf("%w: %s NPDU length %d does not match %d TPDU bytes", ErrInvalidMessage, code, npdu, len(tpdu))
	}

	if npdu == 0 {
		if tpdu[0]&tpciControlFlag == 0 {
			return Message{}, fmt.Errorf("%w: %s data TPDU without APCI", ErrInvalidMessage, code)
		}
		m.TPCI = tpdu[0]
		return m, nil
	}

	m.TPCI = tpdu[0] & tpciMask
	apci := APCI(tpdu[0]&^tpciMask)<<8 | APCI(tpdu[1])
	if npdu == 1 {
		m.APCI = apci & apciServiceMask
		m.Payload = []byte{tpdu[1] & optimizedDataMask}
		m.Optimized = true
		return m, nil
	}
	m.APCI = apci
	m.Payload = cloneBytes(tpdu[2:])
	return m, nil
}

func decodeProperty(code MessageCode, b []byte) (Message, error) {
	if len(b) < propertyHeaderSize {
		return Message{}, fmt.Errorf("%w: %s truncated (%d bytes)", ErrInvalidMessage, code, len(b))
	}
	ne := binary.BigEndian.Uint16(b[5:7])
	return Message{
		Code: code,
		Property: Property{
			ObjectType:     binary.BigEndian.Uint16(b[1:3]),
			ObjectInstance: b[3],
			PropertyID:     b[4],
			Count:          uint8(ne >> propertyCountShift), //nolint:gosec // 4 bits
			StartIndex:     ne & propertyStartIndexMask,
			Data:           cloneBytes(b[propertyHeaderSize:]),
		},
	}, nil
}

// String returns a short human-readable form.
func (m Message) String() string {
	switch {
	case m.Code.IsData() && m.IsControl():
		return fmt.Sprintf("%s{%s→%s, TPCI:0x%02X}", m.Code, m.Source, m.Destination, m.TPCI)
	case m.Code.IsData():
		return fmt.Sprintf("%s{%s→%s, %s, Data:%X}", m.Code, m.Source, m.Destination, m.APCI, m.Payload)
	case m.Code.IsProperty():
		return fmt.Sprintf("%s{obj:%d/%d, pid:%d, n:%d, start:%d, Data:%X}", m.Code,
			m.Property.ObjectType, m.Property.ObjectInstance, m.Property.PropertyID,
			m.Property.Count, m.Property.StartIndex, m.Property.Data)
	default:
		return fmt.Sprintf("%s{%X}", m.Code, m.Raw)
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
