package frame

import "fmt"

// Status is the status / error code carried by responses and acks.
type Status uint8

// Status codes.
const (
	StatusNoError                 Status = 0x00
	StatusHostProtocolType        Status = 0x01
	StatusVersionNotSupported     Status = 0x02
	StatusSequenceNumber          Status = 0x04
	StatusConnectionID            Status = 0x21
	StatusConnectionType          Status = 0x22
	StatusConnectionOption        Status = 0x23
	StatusNoMoreConnections       Status = 0x24
	StatusNoMoreUniqueConnections Status = 0x25
	StatusDataConnection          Status = 0x26
	StatusKNXConnection           Status = 0x27
	StatusTunnellingLayer         Status = 0x29
)

// OK reports whether s is E_NO_ERROR.
func (s Status) OK() bool {
	return s == StatusNoError
}

// String returns the symbolic name.
func (s Status) String() string {
	switch s {
	case StatusNoError:
		return "E_NO_ERROR"
	case StatusHostProtocolType:
		return "E_HOST_PROTOCOL_TYPE"
	case StatusVersionNotSupported:
		return "E_VERSION_NOT_SUPPORTED"
	case StatusSequenceNumber:
		return "E_SEQUENCE_NUMBER"
	case StatusConnectionID:
		return "E_CONNECTION_ID"
	case StatusConnectionType:
		return "E_CONNECTION_TYPE"
	case StatusConnectionOption:
		return "E_CONNECTION_OPTION"
	case StatusNoMoreConnections:
		return "E_NO_MORE_CONNECTIONS"
	case StatusNoMoreUniqueConnections:
		return "E_NO_MORE_UNIQUE_CONNECTIONS"
	case StatusDataConnection:
		return "E_DATA_CONNECTION"
	case StatusKNXConnection:
		return "E_KNX_CONNECTION"
	case StatusTunnellingLayer:
		return "E_TUNNELLING_LAYER"
	default:
		return fmt.Sprintf("Status(0x%02X)", uint8(s))
	}
}
