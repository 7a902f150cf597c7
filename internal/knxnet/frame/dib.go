package frame

import (
	"bytes"
	"fmt"
	"net"

	"github.com/nerrad567/knxnet-core/internal/knxnet/address"
)

// DIB type codes.
const (
	DIBDeviceInfo        uint8 = 0x01
	DIBSupportedFamilies uint8 = 0x02
	DIBIPConfig          uint8 = 0x03
	DIBIPCurrentConfig   uint8 = 0x04
	DIBKNXAddresses      uint8 = 0x05
	DIBManufacturerData  uint8 = 0xFE
)

// KNX media.
const (
	MediumTP1   uint8 = 0x02
	MediumPL110 uint8 = 0x04
	MediumRF    uint8 = 0x10
	MediumIP    uint8 = 0x20
)

const (
	deviceInfoSize = 0x36
	deviceNameSize = 30
	dibHeaderSize  = 2
	familyPairSize = 2
)

// DeviceInfo is the device information DIB.
type DeviceInfo struct {
	Medium           uint8
	Status           uint8 // bit 0: programming mode
	Address          address.Address
	ProjectID        uint16
	SerialNumber     [6]byte
	MulticastAddress [4]byte
	MACAddress       [6]byte
	Name             string // at most 30 bytes, NUL padded on the wire
}

// ProgrammingMode reports the programming mode flag.
func (d DeviceInfo) ProgrammingMode() bool {
	return d.Status&0x01 != 0
}

// MAC returns the MAC address as net.HardwareAddr.
func (d DeviceInfo) MAC() net.HardwareAddr {
	return net.HardwareAddr(d.MACAddress[:])
}

func (d DeviceInfo) appendTo(b []byte) []byte {
	b = append(b, deviceInfoSize, DIBDeviceInfo, d.Medium, d.Status)
	b = d.Address.AppendTo(b)
	b = append(b, byte(d.ProjectID>>8), byte(d.ProjectID))
	b = append(b, d.SerialNumber[:]...)
	b = append(b, d.MulticastAddress[:]...)
	b = append(b, d.MACAddress[:]...)
	var name [deviceNameSize]byte
	copy(name[:], d.Name)
	return append(b, name[:]...)
}

func (r *reader) deviceInfo() DeviceInfo {
	if !r.structLength(deviceInfoSize, "device info DIB") {
		return DeviceInfo{}
	}
	if t := r.b[r.off+1]; t != DIBDeviceInfo {
		r.fail("device info DIB type 0x%02X", t)
		return DeviceInfo{}
	}
	r.off += dibHeaderSize
	d := DeviceInfo{
		Medium: r.u8("medium"),
		Status: r.u8("device status"),
	}
	d.Address = address.FromRaw(address.Individual, r.u16("individual address"))
	d.ProjectID = r.u16("project id")
	copy(d.SerialNumber[:], r.take(len(d.SerialNumber), "serial number"))
	copy(d.MulticastAddress[:], r.take(len(d.MulticastAddress), "multicast address"))
	copy(d.MACAddress[:], r.take(len(d.MACAddress), "MAC address"))
	name := r.take(deviceNameSize, "friendly name")
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	d.Name = string(name)
	return d
}

// FamilyVersion is one supported service family entry.
type FamilyVersion struct {
	Family  Family
	Version uint8
}

// SupportedFamilies is the supported service families DIB.
type SupportedFamilies []FamilyVersion

// Supports reports whether f is listed.
func (s SupportedFamilies) Supports(f Family) bool {
	for _, fv := range s {
		if fv.Family == f {
			return true
		}
	}
	return false
}

func (s SupportedFamilies) len() int {
	return dibHeaderSize + familyPairSize*len(s)
}

func (s SupportedFamilies) appendTo(b []byte) []byte {
	b = append(b, byte(s.len()), DIBSupportedFamilies) //nolint:gosec // bounded by validate
	for _, fv := range s {
		b = append(b, byte(fv.Family), fv.Version)
	}
	return b
}

func (r *reader) supportedFamilies() SupportedFamilies {
	if !r.need(dibHeaderSize, "supported families DIB") {
		return nil
	}
	n := int(r.b[r.off])
	if t := r.b[r.off+1]; t != DIBSupportedFamilies {
		r.fail("supported families DIB type 0x%02X", t)
		return nil
	}
	if n < dibHeaderSize || n%familyPairSize != 0 {
		r.fail("supported families DIB length %d", n)
		return nil
	}
	if !r.need(n, "supported families DIB") {
		return nil
	}
	r.off += dibHeaderSize
	count := (n - dibHeaderSize) / familyPairSize
	if count == 0 {
		return nil
	}
	out := make(SupportedFamilies, 0, count)
	for range count {
		out = append(out, FamilyVersion{Family: Family(r.u8("family")), Version: r.u8("version")})
	}
	return out
}

// RawDIB is a DIB this package does not interpret.
type RawDIB struct {
	Type uint8
	Data []byte
}

func (d RawDIB) len() int {
	return dibHeaderSize + len(d.Data)
}

func (d RawDIB) appendTo(b []byte) []byte {
	b = append(b, byte(d.len()), d.Type) //nolint:gosec // bounded by validate
	return append(b, d.Data...)
}

func (r *reader) rawDIBs() []RawDIB {
	var out []RawDIB
	for r.err == nil && r.remaining() > 0 {
		if !r.need(dibHeaderSize, "DIB") {
			return nil
		}
		n := int(r.b[r.off])
		if n < dibHeaderSize {
			r.fail("DIB length %d", n)
			return nil
		}
		block := r.take(n, "DIB")
		if block == nil {
			return nil
		}
		out = append(out, RawDIB{Type: block[1], Data: cloneBytes(block[dibHeaderSize:])})
	}
	return out
}

// description is the DIB set shared by SEARCH_RESPONSE and
// DESCRIPTION_RESPONSE.
type description struct {
	Device   DeviceInfo
	Families SupportedFamilies
	Extra    []RawDIB
}

func (d description) len() int {
	n := deviceInfoSize + d.Families.len()
	for _, x := range d.Extra {
		n += x.len()
	}
	return n
}

func (d description) appendTo(b []byte) []byte {
	b = d.Device.appendTo(b)
	b = d.Families.appendTo(b)
	for _, x := range d.Extra {
		b = x.appendTo(b)
	}
	return b
}

func (d description) validate() error {
	if len(d.Device.Name) > deviceNameSize {
		return fmt.Errorf("%w: device name %d bytes exceeds %d", ErrInvalidStructure, len(d.Device.Name), deviceNameSize)
	}
	if d.Families.len() > 0xFF {
		return fmt.Errorf("%w: %d families do not fit a DIB", ErrInvalidStructure, len(d.Families))
	}
	for _, x := range d.Extra {
		if x.len() > 0xFF {
			return fmt.Errorf("%w: DIB 0x%02X too long", ErrInvalidStructure, x.Type)
		}
	}
	return nil
}

func (r *reader) description() description {
	d := description{
		Device:   r.deviceInfo(),
		Families: r.supportedFamilies(),
	}
	d.Extra = r.rawDIBs()
	return d
}
