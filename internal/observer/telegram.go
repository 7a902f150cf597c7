package observer

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/nerrad567/knxnet-core/internal/knxnet/cemi"
	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// Direction tells whether a telegram was received or sent.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Telegram is a cEMI message seen on the wire.
type Telegram struct {
	Direction Direction
	Service   frame.ServiceType
	Message   cemi.Message
	Time      time.Time
}

// TelegramFromBody extracts the cEMI message carried by body. ok is false
// for bodies without one.
func TelegramFromBody(body frame.Body, dir Direction, now time.Time) (Telegram, bool) {
	var msg cemi.Message
	switch b := body.(type) {
	case frame.TunnelingRequestBody:
		msg = b.CEMI
	case frame.DeviceConfigurationRequestBody:
		msg = b.CEMI
	case frame.RoutingIndicationBody:
		msg = b.CEMI
	default:
		return Telegram{}, false
	}
	return Telegram{Direction: dir, Service: body.ServiceType(), Message: msg, Time: now}, true
}

// IsData reports whether the telegram is an L_Data frame with addresses.
func (t Telegram) IsData() bool {
	return t.Message.Code.IsData()
}

// APCIName returns the application service name, or "" for non-data frames
// and transport control frames.
func (t Telegram) APCIName() string {
	if !t.IsData() || t.Message.IsControl() {
		return ""
	}
	return t.Message.APCI.String()
}

// telegramJSON is the wire form shared by MQTT and the WebSocket feed.
type telegramJSON struct {
	Direction   Direction `json:"direction"`
	Service     string    `json:"service"`
	Code        string    `json:"code"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	APCI        string    `json:"apci,omitempty"`
	Payload     string    `json:"payload,omitempty"`
	Time        time.Time `json:"time"`
}

// MarshalJSON implements json.Marshaler.
func (t Telegram) MarshalJSON() ([]byte, error) {
	out := telegramJSON{
		Direction: t.Direction,
		Service:   t.Service.String(),
		Code:      t.Message.Code.String(),
		APCI:      t.APCIName(),
		Time:      t.Time.UTC(),
	}
	if t.IsData() {
		out.Source = t.Message.Source.String()
		out.Destination = t.Message.Destination.String()
		out.Payload = hex.EncodeToString(t.Message.Value())
	} else if t.Message.Code.IsProperty() {
		out.Payload = hex.EncodeToString(t.Message.Property.Data)
	} else {
		out.Payload = hex.EncodeToString(t.Message.Raw)
	}
	return json.Marshal(out)
}
