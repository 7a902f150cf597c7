package cemi

import "fmt"

// MessageCode identifies the cEMI service primitive.
type MessageCode uint8

// Link layer message codes.
const (
	LRawReq    MessageCode = 0x10
	LDataReq   MessageCode = 0x11
	LPollReq   MessageCode = 0x13
	LDataInd   MessageCode = 0x29
	LBusmonInd MessageCode = 0x2B
	LRawInd    MessageCode = 0x2D
	LDataCon   MessageCode = 0x2E
	LRawCon    MessageCode = 0x2F
)

// Device management message codes.
const (
	MResetInd      MessageCode = 0xF0
	MResetReq      MessageCode = 0xF1
	MPropWriteCon  MessageCode = 0xF5
	MPropWriteReq  MessageCode = 0xF6
	MPropInfoInd   MessageCode = 0xF7
	MFuncPropCmd   MessageCode = 0xF8
	MFuncStateRead MessageCode = 0xF9
	MFuncPropCon   MessageCode = 0xFA
	MPropReadCon   MessageCode = 0xFB
	MPropReadReq   MessageCode = 0xFC
)

// IsData reports whether the code is one of the L_Data primitives.
func (c MessageCode) IsData() bool {
	return c == LDataReq || c == LDataInd || c == LDataCon
}

// IsProperty reports whether the code is a property read/write/info primitive.
func (c MessageCode) IsProperty() bool {
	switch c {
	case MPropReadReq, MPropReadCon, MPropWriteReq, MPropWriteCon, MPropInfoInd:
		return true
	}
	return false
}

// String returns the primitive name.
func (c MessageCode) String() string {
	switch c {
	case LRawReq:
		return "L_Raw.req"
	case LDataReq:
		return "L_Data.req"
	case LPollReq:
		return "L_Poll_Data.req"
	case LDataInd:
		return "L_Data.ind"
	case LBusmonInd:
		return "L_Busmon.ind"
	case LRawInd:
		return "L_Raw.ind"
	case LDataCon:
		return "L_Data.con"
	case LRawCon:
		return "L_Raw.con"
	case MResetInd:
		return "M_Reset.ind"
	case MResetReq:
		return "M_Reset.req"
	case MPropWriteCon:
		return "M_PropWrite.con"
	case MPropWriteReq:
		return "M_PropWrite.req"
	case MPropInfoInd:
		return "M_PropInfo.ind"
	case MFuncPropCmd:
		return "M_FuncPropCommand.req"
	case MFuncStateRead:
		return "M_FuncPropStateRead.req"
	case MFuncPropCon:
		return "M_FuncPropCommand.con"
	case MPropReadCon:
		return "M_PropRead.con"
	case MPropReadReq:
		return "M_PropRead.req"
	default:
		return fmt.Sprintf("MessageCode(0x%02X)", uint8(c))
	}
}

// APCI is the 10-bit application layer control field.
//
// Group value services only use the upper four bits; the low six bits of
// an optimized frame carry data and are kept in Message.Payload instead.
type APCI uint16

// Application layer services.
const (
	GroupValueRead            APCI = 0x000
	GroupValueResponse        APCI = 0x040
	GroupValueWrite           APCI = 0x080
	IndividualAddressWrite    APCI = 0x0C0
	IndividualAddressRead     APCI = 0x100
	IndividualAddressResponse APCI = 0x140
	MemoryRead                APCI = 0x200
	MemoryResponse            APCI = 0x240
	MemoryWrite               APCI = 0x280
	DeviceDescriptorRead      APCI = 0x300
	DeviceDescriptorResponse  APCI = 0x340
	Restart                   APCI = 0x380
	PropertyValueRead         APCI = 0x3D5
	PropertyValueResponse     APCI = 0x3D6
	PropertyValueWrite        APCI = 0x3D7
)

// Service returns the four-bit service part of the APCI.
func (a APCI) Service() APCI {
	return a & apciServiceMask
}

// String returns the service name.
func (a APCI) String() string {
	switch a {
	case PropertyValueRead:
		return "A_PropertyValue_Read"
	case PropertyValueResponse:
		return "A_PropertyValue_Response"
	case PropertyValueWrite:
		return "A_PropertyValue_Write"
	}
	switch a.Service() {
	case GroupValueRead:
		return "A_GroupValue_Read"
	case GroupValueResponse:
		return "A_GroupValue_Response"
	case GroupValueWrite:
		return "A_GroupValue_Write"
	case IndividualAddressWrite:
		return "A_IndividualAddress_Write"
	case IndividualAddressRead:
		return "A_IndividualAddress_Read"
	case IndividualAddressResponse:
		return "A_IndividualAddress_Response"
	case MemoryRead:
		return "A_Memory_Read"
	case MemoryResponse:
		return "A_Memory_Response"
	case MemoryWrite:
		return "A_Memory_Write"
	case DeviceDescriptorRead:
		return "A_DeviceDescriptor_Read"
	case DeviceDescriptorResponse:
		return "A_DeviceDescriptor_Response"
	case Restart:
		return "A_Restart"
	default:
		return fmt.Sprintf("APCI(0x%03X)", uint16(a))
	}
}

// Transport layer control values (upper six bits of the first TPDU octet).
const (
	TPCIUnnumberedData byte = 0x00
	TPCINumberedData   byte = 0x40
	TPCIConnect        byte = 0x80
	TPCIDisconnect     byte = 0x81
	TPCIAck            byte = 0xC2
	TPCINak            byte = 0xC3
)
