package queue

import "github.com/nerrad567/knxnet-core/internal/knxnet/frame"

// Hooks receives notifications from the queues. Implementations must not
// block; they run on the inbox and outbox goroutines.
type Hooks interface {
	// OnIncomingBody is called for every accepted inbound body after its
	// handler ran.
	OnIncomingBody(body frame.Body)

	// OnOutgoingBody is called after a body was written to its socket.
	OnOutgoingBody(body frame.Body)

	// OnError is called for socket failures and recovered panics.
	OnError(err error)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) OnIncomingBody(frame.Body) {}
func (NopHooks) OnOutgoingBody(frame.Body) {}
func (NopHooks) OnError(error)             {}

// Logger is the logging interface used by the queues.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
