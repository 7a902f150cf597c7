package address

import "errors"

// ErrInvalidAddress is returned when an address cannot be parsed or decoded.
var ErrInvalidAddress = errors.New("address: invalid KNX address")
