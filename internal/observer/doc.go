// Package observer fans KNXnet/IP client activity out to the daemon's sinks.
//
// A Registry is installed on the client with client.WithHooks. It turns
// frame bodies carrying cEMI into Telegram values and, together with state
// changes and errors, queues them for a single dispatch goroutine. Each
// registered Observer sees every event in order. The set of observers is
// fixed when the Registry is built.
//
// Observers shipped here:
//
//	MQTTPublisher    telegrams, state and errors to the MQTT topic tree
//	InfluxRecorder   telegram, state and statistics points in InfluxDB
//	AddressRecorder  group addresses and devices seen, in SQLite
//	LogObserver      structured log lines
//
// StatsReporter periodically hands statistics snapshots to StatsSinks.
//
// Thread Safety:
//   - Hook methods never block; when the queue is full the event is dropped
//     and counted.
//   - Observer methods run on the dispatch goroutine only.
package observer
