package frame

import "fmt"

// ServiceType is the two-byte service identifier in the frame header.
type ServiceType uint16

// Core services.
const (
	SearchRequest           ServiceType = 0x0201
	SearchResponse          ServiceType = 0x0202
	DescriptionRequest      ServiceType = 0x0203
	DescriptionResponse     ServiceType = 0x0204
	ConnectRequest          ServiceType = 0x0205
	ConnectResponse         ServiceType = 0x0206
	ConnectionStateRequest  ServiceType = 0x0207
	ConnectionStateResponse ServiceType = 0x0208
	DisconnectRequest       ServiceType = 0x0209
	DisconnectResponse      ServiceType = 0x020A
)

// Device management, tunneling and routing services.
const (
	DeviceConfigurationRequest ServiceType = 0x0310
	DeviceConfigurationAck     ServiceType = 0x0311
	TunnelingRequest           ServiceType = 0x0420
	TunnelingAck               ServiceType = 0x0421
	RoutingIndication          ServiceType = 0x0530
	RoutingLostMessage         ServiceType = 0x0531
	RoutingBusy                ServiceType = 0x0532
)

// Family groups service types by their high byte.
type Family uint8

// Service families.
const (
	FamilyCore             Family = 0x02
	FamilyDeviceManagement Family = 0x03
	FamilyTunneling        Family = 0x04
	FamilyRouting          Family = 0x05
	FamilyRemoteLogging    Family = 0x06
	FamilyRemoteConfig     Family = 0x07
	FamilyObjectServer     Family = 0x08
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyCore:
		return "core"
	case FamilyDeviceManagement:
		return "device_management"
	case FamilyTunneling:
		return "tunneling"
	case FamilyRouting:
		return "routing"
	case FamilyRemoteLogging:
		return "remote_logging"
	case FamilyRemoteConfig:
		return "remote_configuration"
	case FamilyObjectServer:
		return "object_server"
	default:
		return fmt.Sprintf("Family(0x%02X)", uint8(f))
	}
}

// Class describes the role of a service type in an exchange.
type Class uint8

// Service classes.
const (
	ClassRequest Class = iota + 1
	ClassResponse
	ClassAck
	ClassIndication
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassResponse:
		return "response"
	case ClassAck:
		return "ack"
	case ClassIndication:
		return "indication"
	default:
		return "unknown"
	}
}

type decoder func(r *reader) Body

type serviceInfo struct {
	name     string
	class    Class
	response ServiceType
	channel  bool
	decode   decoder
}

// serviceDef is one row of the static definition table.
type serviceDef struct {
	code     ServiceType
	name     string
	class    Class
	response ServiceType
	channel  bool
	decode   decoder
}

var serviceDefs = []serviceDef{
	{SearchRequest, "SEARCH_REQUEST", ClassRequest, SearchResponse, false, decodeSearchRequest},
	{SearchResponse, "SEARCH_RESPONSE", ClassResponse, 0, false, decodeSearchResponse},
	{DescriptionRequest, "DESCRIPTION_REQUEST", ClassRequest, DescriptionResponse, false, decodeDescriptionRequest},
	{DescriptionResponse, "DESCRIPTION_RESPONSE", ClassResponse, 0, false, decodeDescriptionResponse},
	{ConnectRequest, "CONNECT_REQUEST", ClassRequest, ConnectResponse, false, decodeConnectRequest},
	{ConnectResponse, "CONNECT_RESPONSE", ClassResponse, 0, true, decodeConnectResponse},
	{ConnectionStateRequest, "CONNECTIONSTATE_REQUEST", ClassRequest, ConnectionStateResponse, true, decodeConnectionStateRequest},
	{ConnectionStateResponse, "CONNECTIONSTATE_RESPONSE", ClassResponse, 0, true, decodeConnectionStateResponse},
	{DisconnectRequest, "DISCONNECT_REQUEST", ClassRequest, DisconnectResponse, true, decodeDisconnectRequest},
	{DisconnectResponse, "DISCONNECT_RESPONSE", ClassResponse, 0, true, decodeDisconnectResponse},
	{DeviceConfigurationRequest, "DEVICE_CONFIGURATION_REQUEST", ClassRequest, DeviceConfigurationAck, true, decodeDeviceConfigurationRequest},
	{DeviceConfigurationAck, "DEVICE_CONFIGURATION_ACK", ClassAck, 0, true, decodeDeviceConfigurationAck},
	{TunnelingRequest, "TUNNELING_REQUEST", ClassRequest, TunnelingAck, true, decodeTunnelingRequest},
	{TunnelingAck, "TUNNELING_ACK", ClassAck, 0, true, decodeTunnelingAck},
	{RoutingIndication, "ROUTING_INDICATION", ClassIndication, 0, false, decodeRoutingIndication},
	{RoutingLostMessage, "ROUTING_LOST_MESSAGE", ClassIndication, 0, false, decodeRoutingLostMessage},
	{RoutingBusy, "ROUTING_BUSY", ClassIndication, 0, false, decodeRoutingBusy},
}

// services is built once from serviceDefs; it is never written afterwards.
var services map[ServiceType]serviceInfo

func init() {
	services = buildServices(serviceDefs)
}

func buildServices(defs []serviceDef) map[ServiceType]serviceInfo {
	m := make(map[ServiceType]serviceInfo, len(defs))
	for _, d := range defs {
		m[d.code] = serviceInfo{
			name:     d.name,
			class:    d.class,
			response: d.response,
			channel:  d.channel,
			decode:   d.decode,
		}
	}
	for code, info := range m {
		if info.class != ClassRequest {
			if info.response != 0 {
				panic(fmt.Sprintf("frame: %s is not a request but declares a response", info.name))
			}
			continue
		}
		resp, ok := m[info.response]
		if !ok || (resp.class != ClassResponse && resp.class != ClassAck) {
			panic(fmt.Sprintf("frame: request 0x%04X has no response type", uint16(code)))
		}
	}
	return m
}

// Lookup reports whether code is a registered service type.
func Lookup(code uint16) (ServiceType, bool) {
	st := ServiceType(code)
	_, ok := services[st]
	return st, ok
}

// ServiceTypes returns all registered service types in table order.
func ServiceTypes() []ServiceType {
	out := make([]ServiceType, 0, len(serviceDefs))
	for _, d := range serviceDefs {
		out = append(out, d.code)
	}
	return out
}

// Known reports whether st is registered.
func (st ServiceType) Known() bool {
	_, ok := services[st]
	return ok
}

// Family returns the service family (high byte).
func (st ServiceType) Family() Family {
	return Family(st >> 8) //nolint:gosec // high byte
}

// Class returns the exchange role, or 0 for unknown types.
func (st ServiceType) Class() Class {
	return services[st].class
}

// IsRequest reports whether st expects a response.
func (st ServiceType) IsRequest() bool {
	return services[st].class == ClassRequest
}

// Response returns the response type paired with a request type.
func (st ServiceType) Response() (ServiceType, bool) {
	info, ok := services[st]
	if !ok || info.class != ClassRequest {
		return 0, false
	}
	return info.response, true
}

// CarriesChannel reports whether bodies of this type carry a channel id.
func (st ServiceType) CarriesChannel() bool {
	return services[st].channel
}

// String returns the service type name, e.g. "TUNNELING_REQUEST".
func (st ServiceType) String() string {
	if info, ok := services[st]; ok {
		return info.name
	}
	return fmt.Sprintf("ServiceType(0x%04X)", uint16(st))
}
