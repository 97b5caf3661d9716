package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNoConfig) {
//	    // run with built-in defaults
//	}
var (
	// ErrNoConfig is returned by SyncConfig when the server could not be
	// reached and no cached configuration exists.
	ErrNoConfig = errors.New("device: no configuration available")

	// ErrInvalidConfig is returned when the server answers get_config with
	// something other than a JSON object.
	ErrInvalidConfig = errors.New("device: configuration is not a JSON object")
)
