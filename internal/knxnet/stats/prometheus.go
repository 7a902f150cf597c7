package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "knxnet"

var (
	framesSentDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "frames_sent_total"),
		"Frames written to the gateway by service type.",
		[]string{"service"}, nil)

	framesReceivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "frames_received_total"),
		"Frames accepted from the gateway by service type.",
		[]string{"service"}, nil)

	bytesSentDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_sent_total"),
		"Bytes written to the gateway.", nil, nil)

	bytesReceivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "bytes_received_total"),
		"Bytes accepted from the gateway.", nil, nil)

	frameErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "frame_errors_total"),
		"Frames dropped or failed by kind.",
		[]string{"kind"}, nil)

	resendsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "tunneling", "resends_total"),
		"Tunneling requests resent after a missing ack.", nil, nil)

	heartbeatFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "connection", "heartbeat_failures_total"),
		"Connection-state requests that failed or timed out.", nil, nil)

	reconnectsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "connection", "reconnects_total"),
		"Completed reconnects.", nil, nil)

	lostMessagesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "routing", "lost_messages_total"),
		"Telegrams reported lost by routers.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- framesSentDesc
	ch <- framesReceivedDesc
	ch <- bytesSentDesc
	ch <- bytesReceivedDesc
	ch <- frameErrorsDesc
	ch <- resendsDesc
	ch <- heartbeatFailuresDesc
	ch <- reconnectsDesc
	ch <- lostMessagesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.Snapshot()

	for service, n := range s.Sent {
		ch <- prometheus.MustNewConstMetric(framesSentDesc, prometheus.CounterValue, float64(n), service)
	}
	for service, n := range s.Received {
		ch <- prometheus.MustNewConstMetric(framesReceivedDesc, prometheus.CounterValue, float64(n), service)
	}
	ch <- prometheus.MustNewConstMetric(bytesSentDesc, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(bytesReceivedDesc, prometheus.CounterValue, float64(s.BytesReceived))

	errs := map[ErrorKind]uint64{
		ErrorDecode:   s.DecodeErrors,
		ErrorChannel:  s.ChannelMismatches,
		ErrorIO:       s.IOErrors,
		ErrorDispatch: s.DispatchErrors,
	}
	for kind, n := range errs {
		ch <- prometheus.MustNewConstMetric(frameErrorsDesc, prometheus.CounterValue, float64(n), string(kind))
	}

	ch <- prometheus.MustNewConstMetric(resendsDesc, prometheus.CounterValue, float64(s.Resends))
	ch <- prometheus.MustNewConstMetric(heartbeatFailuresDesc, prometheus.CounterValue, float64(s.HeartbeatFailures))
	ch <- prometheus.MustNewConstMetric(reconnectsDesc, prometheus.CounterValue, float64(s.Reconnects))
	ch <- prometheus.MustNewConstMetric(lostMessagesDesc, prometheus.CounterValue, float64(s.LostMessages))
}

var _ prometheus.Collector = (*Collector)(nil)
