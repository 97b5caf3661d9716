package kvstore

import "errors"

var (
	// ErrNotFound is returned by Load for a key that has no value.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("kvstore: empty key")
)
