package identity

import "errors"

// Domain errors for the identity package.
//
//	if errors.Is(err, identity.ErrHandshakeTimeout) {
//	    // no authority answered
//	}
var (
	// ErrUnassigned is returned when topics are derived from Unassigned.
	ErrUnassigned = errors.New("identity: unassigned")

	// ErrInvalidIdentity is returned when stored text is not a valid identity.
	ErrInvalidIdentity = errors.New("identity: invalid value")

	// ErrNoIdentity is returned by Load when the store holds no usable identity.
	ErrNoIdentity = errors.New("identity: none stored")

	// ErrHandshakeTimeout is returned when no matching reply arrives in time.
	ErrHandshakeTimeout = errors.New("identity: handshake timed out")

	// ErrHandshakeFailed is returned when the handshake cannot be sent.
	ErrHandshakeFailed = errors.New("identity: handshake failed")

	// ErrProvisioningFailed wraps every error that leaves the device without
	// an identity.
	ErrProvisioningFailed = errors.New("identity: provisioning failed")

	// ErrAllocatorExhausted is returned when no further identity can be issued.
	ErrAllocatorExhausted = errors.New("identity: allocator exhausted")
)
