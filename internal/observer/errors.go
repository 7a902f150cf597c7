package observer

import "errors"

var (
	// ErrRegistryClosed is returned by Run after Close.
	ErrRegistryClosed = errors.New("observer: registry closed")

	// ErrRecorderNotStarted is returned when AddressRecorder is used before Start.
	ErrRecorderNotStarted = errors.New("observer: address recorder not started")
)
