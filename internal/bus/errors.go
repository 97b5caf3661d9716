package bus

import "errors"

// Domain errors for the bus package.
var (
	// ErrClosed is returned by operations on a closed endpoint.
	ErrClosed = errors.New("bus: endpoint closed")

	// ErrInvalidTopic is returned for an empty topic, or a publish topic
	// containing wildcards.
	ErrInvalidTopic = errors.New("bus: invalid topic")

	// ErrInvalidFilter is returned when a subscription filter misuses wildcards.
	ErrInvalidFilter = errors.New("bus: invalid topic filter")
)
