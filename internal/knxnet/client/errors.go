package client

import (
	"errors"
	"fmt"

	"github.com/nerrad567/knxnet-core/internal/knxnet/frame"
)

// Domain errors for the KNXnet/IP client.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectFailed is returned when every connect attempt failed.
	ErrConnectFailed = errors.New("client: connect failed")

	// ErrAckTimeout is returned when a tunneling request was not
	// acknowledged after its single resend. The session is torn down.
	ErrAckTimeout = errors.New("client: no acknowledgement")

	// ErrNoResponse is returned when an exchange timed out.
	ErrNoResponse = errors.New("client: no response")

	// ErrNotConnected is returned for operations that need a session.
	ErrNotConnected = errors.New("client: not connected")

	// ErrInvalidTransition is returned for a state change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("client: invalid state transition")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client: closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("client: already started")

	// ErrNotStarted is returned for operations that need open sockets.
	ErrNotStarted = errors.New("client: not started")

	// ErrNoGateway is returned when discovery found no usable gateway.
	ErrNoGateway = errors.New("client: no gateway found")

	// ErrWrongConnectionType is returned for telegrams the session
	// connection type cannot carry.
	ErrWrongConnectionType = errors.New("client: operation not supported by connection type")

	// ErrNegativeConfirmation is returned when the gateway confirmed a
	// telegram with the error flag set.
	ErrNegativeConfirmation = errors.New("client: negative confirmation")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("client: invalid configuration")
)

// StatusError reports a response or acknowledgement carrying a non-success
// status code.
type StatusError struct {
	Service frame.ServiceType
	Status  frame.Status
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("client: %s failed with %s", e.Service, e.Status)
}

// ExchangeError reports an exchange that failed after one or more
// attempts.
type ExchangeError struct {
	Service  frame.ServiceType
	Attempts int
	Err      error
}

// Error implements error.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("client: %s failed after %d attempt(s): %v", e.Service, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}
