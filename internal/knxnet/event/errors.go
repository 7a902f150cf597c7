package event

import "errors"

// Domain errors for the event pool.
var (
	// ErrNoResponse is returned when a bounded wait times out.
	ErrNoResponse = errors.New("event: no response")

	// ErrNotCorrelated is returned by Record for bodies that do not open an
	// exchange.
	ErrNotCorrelated = errors.New("event: body type is not correlated")
)
