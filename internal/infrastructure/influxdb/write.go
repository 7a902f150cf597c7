package influxdb

import (
	"encoding/hex"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

// Measurement names.
const (
	MeasurementTelegram   = "knx_telegram"
	MeasurementConnection = "knxnet_connection"
	MeasurementStatistics = "knxnet_stats"
)

// TelegramPoint is one cEMI telegram seen on the wire.
type TelegramPoint struct {
	Direction   string // "in" or "out"
	Service     string // KNXnet/IP service carrying the telegram
	MessageCode string
	Source      string
	Destination string
	APCI        string
	Payload     []byte
	Time        time.Time
}

// WriteTelegram records a telegram. Addresses and the APCI are tags so
// history can be filtered per group address; the payload is a hex field.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteTelegram(p TelegramPoint) {
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.WritePointWithTime(MeasurementTelegram,
		map[string]string{
			"direction":    p.Direction,
			"service":      p.Service,
			"message_code": p.MessageCode,
			"destination":  p.Destination,
			"apci":         p.APCI,
		},
		map[string]interface{}{
			"source":  p.Source,
			"payload": hex.EncodeToString(p.Payload),
			"length":  len(p.Payload),
		},
		ts,
	)
}

// WriteConnectionState records a client state transition.
func (c *Client) WriteConnectionState(from, to string) {
	c.WritePoint(MeasurementConnection,
		map[string]string{"state": to},
		map[string]interface{}{"from": from},
	)
}

// WriteStatistics records a snapshot of the traffic counters.
func (c *Client) WriteStatistics(s stats.Statistics) {
	c.WritePoint(MeasurementStatistics, nil, map[string]interface{}{
		"frames_sent":        s.FramesSent,
		"frames_received":    s.FramesReceived,
		"frames_errored":     s.FramesErrored,
		"bytes_sent":         s.BytesSent,
		"bytes_received":     s.BytesReceived,
		"decode_errors":      s.DecodeErrors,
		"channel_mismatches": s.ChannelMismatches,
		"resends":            s.Resends,
		"heartbeat_failures": s.HeartbeatFailures,
		"reconnects":         s.Reconnects,
		"lost_messages":      s.LostMessages,
	})
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
