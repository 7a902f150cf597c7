package queue

import "errors"

// Queue errors.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned when submitting to a closed outbox.
	ErrClosed = errors.New("queue: closed")

	// ErrNoRoute is returned when the router has no socket for a body.
	ErrNoRoute = errors.New("queue: no route for body")

	// ErrIO wraps socket read and write failures passed to Hooks.OnError.
	ErrIO = errors.New("queue: socket I/O failed")

	// ErrDispatchPanic wraps a recovered panic from a handler or hook.
	ErrDispatchPanic = errors.New("queue: dispatch panicked")
)
