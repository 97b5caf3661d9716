package kvstore

import (
	"context"
	"time"
)

// Store is durable byte key/value persistence.
//
// Load returns ErrNotFound when the key has never been saved. Save replaces
// any existing value.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Timestamped is implemented by stores that record when each key was last
// saved. UpdatedAt returns ErrNotFound for a key that was never saved.
type Timestamped interface {
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
}

// Well-known keys.
const (
	// KeyIdentity holds the device identity as base-10 text.
	KeyIdentity = "uuid"

	// KeyConfig holds the last configuration object fetched from the server.
	KeyConfig = "config"

	// KeyNextIdentity holds the authority's next identity to hand out.
	KeyNextIdentity = "authority/next_uuid"
)
