package observer

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/knxnet-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
	"github.com/nerrad567/knxnet-core/internal/knxnet/stats"
)

// Publisher is the MQTT side consumed by MQTTPublisher. *mqtt.Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTPublisher publishes telegrams, state changes and errors. Telegrams go
// to {prefix}/telegram/{destination}; state is retained.
type MQTTPublisher struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewMQTTPublisher creates a publisher. logger may be nil.
func NewMQTTPublisher(pub Publisher, topics mqtt.Topics, qos byte, logger Logger) *MQTTPublisher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &MQTTPublisher{pub: pub, topics: topics, qos: qos, logger: logger}
}

type statePayload struct {
	State string    `json:"state"`
	From  string    `json:"from"`
	Time  time.Time `json:"time"`
}

type errorPayload struct {
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// OnTelegram publishes data telegrams. Device management frames have no
// destination address and are skipped.
func (p *MQTTPublisher) OnTelegram(t Telegram) {
	if !t.IsData() {
		return
	}
	p.publish(p.topics.Telegram(t.Message.Destination), t, false)
}

// OnStateChange publishes the new state, retained.
func (p *MQTTPublisher) OnStateChange(from, to client.State) {
	p.publish(p.topics.ConnectionState(), statePayload{State: to.String(), From: from.String(), Time: time.Now().UTC()}, true)
}

// OnError publishes err.
func (p *MQTTPublisher) OnError(err error) {
	p.publish(p.topics.Error(), errorPayload{Error: err.Error(), Time: time.Now().UTC()}, false)
}

// WriteStatistics implements StatsSink.
func (p *MQTTPublisher) WriteStatistics(s stats.Statistics) {
	p.publish(p.topics.Stats(), s, true)
}

func (p *MQTTPublisher) publish(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("encoding mqtt payload", "topic", topic, "error", err)
		return
	}
	if err := p.pub.Publish(topic, payload, p.qos, retained); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

var _ Publisher = (*mqtt.Client)(nil)
