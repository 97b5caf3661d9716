package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is the durable numeric identity assigned to a device.
// Assigned identities are non-negative.
type Identity int64

// Unassigned marks a device that has not completed provisioning.
const Unassigned Identity = -1

// Valid reports whether id is an assigned identity.
func (id Identity) Valid() bool {
	return id >= 0
}

// String returns the base-10 form used in topics and in the store.
func (id Identity) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Parse reads a stored identity. Surrounding whitespace is ignored; anything
// other than a non-negative base-10 integer is rejected.
func Parse(s string) (Identity, error) {
	trimmed := strings.TrimSpace(s)
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return Unassigned, fmt.Errorf("%w: %q", ErrInvalidIdentity, trimmed)
	}
	if n < 0 {
		return Unassigned, fmt.Errorf("%w: %d is negative", ErrInvalidIdentity, n)
	}
	return Identity(n), nil
}
