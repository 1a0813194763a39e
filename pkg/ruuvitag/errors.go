package ruuvitag

import "errors"

var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrUnsupportedFormat = errors.New("unsupported data format")
	ErrOutOfRange        = errors.New("value out of range")
	ErrSensorTimeout     = errors.New("sensor timeout")
)
