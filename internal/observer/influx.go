package observer

import (
	"github.com/nerrad567/knxnet-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

// PointWriter is the InfluxDB side consumed by InfluxRecorder.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WriteTelegram(p influxdb.TelegramPoint)
	WriteConnectionState(from, to string)
	WriteStatistics(s stats.Statistics)
}

// InfluxRecorder stores telegram history and state changes. Writes are
// batched by the InfluxDB client and never block.
type InfluxRecorder struct {
	NopObserver
	w PointWriter
}

// NewInfluxRecorder creates a recorder on w.
func NewInfluxRecorder(w PointWriter) *InfluxRecorder {
	return &InfluxRecorder{w: w}
}

func (r *InfluxRecorder) OnTelegram(t Telegram) {
	p := influxdb.TelegramPoint{
		Direction:   string(t.Direction),
		Service:     t.Service.String(),
		MessageCode: t.Message.Code.String(),
		APCI:        t.APCIName(),
		Time:        t.Time,
	}
	if t.IsData() {
		p.Source = t.Message.Source.String()
		p.Destination = t.Message.Destination.String()
		p.Payload = t.Message.Value()
	} else {
		p.Payload = t.Message.Property.Data
	}
	r.w.WriteTelegram(p)
}

func (r *InfluxRecorder) OnStateChange(from, to client.State) {
	r.w.WriteConnectionState(from.String(), to.String())
}

// WriteStatistics implements StatsSink.
func (r *InfluxRecorder) WriteStatistics(s stats.Statistics) {
	r.w.WriteStatistics(s)
}

var _ PointWriter = (*influxdb.Client)(nil)
