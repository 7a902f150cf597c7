package observer

import (
	"encoding/hex"

	"github.com/nerrad567/knxnet-core/internal/knxnet/client"
)

// LogObserver writes client activity to a logger. Telegrams are logged at
// debug level and only when frames is true.
type LogObserver struct {
	logger Logger
	frames bool
}

// NewLogObserver creates a log observer.
func NewLogObserver(logger Logger, frames bool) *LogObserver {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LogObserver{logger: logger, frames: frames}
}

func (o *LogObserver) OnTelegram(t Telegram) {
	if !o.frames {
		return
	}
	kv := []any{"direction", string(t.Direction), "service", t.Service.String(), "code", t.Message.Code.String()}
	if t.IsData() {
		kv = append(kv,
			"source", t.Message.Source.String(),
			"destination", t.Message.Destination.String(),
			"apci", t.APCIName(),
			"payload", hex.EncodeToString(t.Message.Value()),
		)
	}
	o.logger.Debug("telegram", kv...)
}

func (o *LogObserver) OnStateChange(from, to client.State) {
	if to == client.StateError || to == client.StateDisconnected {
		o.logger.Warn("connection state changed", "from", from.String(), "to", to.String())
		return
	}
	o.logger.Info("connection state changed", "from", from.String(), "to", to.String())
}

func (o *LogObserver) OnError(err error) {
	o.logger.Error("knxnet client error", "error", err)
}
