package cemi

import "errors"

// ErrInvalidMessage is returned when a cEMI frame is malformed.
var ErrInvalidMessage = errors.New("cemi: invalid message")
