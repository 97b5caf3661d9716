package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/espdisplay-rpc/internal/kvstore"
)

// Allocator hands out identities to handshake requests.
type Allocator interface {
	// Allocate returns the identity for requestID.
	Allocate(ctx context.Context, requestID string) (Identity, error)
}

// StoreAllocator issues increasing identities from a counter persisted in a
// key/value store under kvstore.KeyNextIdentity.
type StoreAllocator struct {
	store kvstore.Store
	first Identity
	mu    sync.Mutex
}

// NewStoreAllocator creates an allocator whose first identity on an empty
// store is first.
func NewStoreAllocator(store kvstore.Store, first Identity) *StoreAllocator {
	if !first.Valid() {
		first = 0
	}
	return &StoreAllocator{store: store, first: first}
}

// Allocate returns the next identity and advances the stored counter.
// requestID is not used; every call yields a new identity.
func (a *StoreAllocator) Allocate(ctx context.Context, _ string) (Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.first
	raw, err := a.store.Load(ctx, kvstore.KeyNextIdentity)
	switch {
	case err == nil:
		stored, perr := Parse(string(raw))
		if perr != nil {
			return Unassigned, fmt.Errorf("reading identity counter: %w", perr)
		}
		if stored > next {
			next = stored
		}
	case !errors.Is(err, kvstore.ErrNotFound):
		return Unassigned, fmt.Errorf("reading identity counter: %w", err)
	}

	if next == math.MaxInt64 {
		return Unassigned, ErrAllocatorExhausted
	}
	if err := a.store.Save(ctx, kvstore.KeyNextIdentity, []byte((next + 1).String())); err != nil {
		return Unassigned, fmt.Errorf("advancing identity counter: %w", err)
	}
	return next, nil
}

// SQLiteAllocator records every assignment in the assignments table.
// A request id that was already answered gets the same identity again, so a
// device retrying after a lost reply does not burn a second identity.
type SQLiteAllocator struct {
	db    *sql.DB
	first Identity
}

// NewSQLiteAllocator creates an allocator over a migrated database.
func NewSQLiteAllocator(db *sql.DB, first Identity) *SQLiteAllocator {
	if !first.Valid() {
		first = 0
	}
	return &SQLiteAllocator{db: db, first: first}
}

// Allocate returns the identity recorded for requestID, assigning the next
// free one when the request is new.
func (a *SQLiteAllocator) Allocate(ctx context.Context, requestID string) (Identity, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return Unassigned, fmt.Errorf("starting allocation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	var existing int64
	err = tx.QueryRowContext(ctx,
		"SELECT identity FROM assignments WHERE request_id = ? ORDER BY identity LIMIT 1", requestID,
	).Scan(&existing)
	switch {
	case err == nil:
		return Identity(existing), nil
	case !errors.Is(err, sql.ErrNoRows):
		return Unassigned, fmt.Errorf("looking up request %s: %w", requestID, err)
	}

	var highest sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(identity) FROM assignments").Scan(&highest); err != nil {
		return Unassigned, fmt.Errorf("reading highest identity: %w", err)
	}

	next := a.first
	if highest.Valid {
		if highest.Int64 == math.MaxInt64 {
			return Unassigned, ErrAllocatorExhausted
		}
		if Identity(highest.Int64+1) > next {
			next = Identity(highest.Int64 + 1)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO assignments (identity, request_id, assigned_at) VALUES (?, ?, ?)",
		int64(next), requestID, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return Unassigned, fmt.Errorf("recording assignment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Unassigned, fmt.Errorf("committing assignment: %w", err)
	}
	return next, nil
}

// Count returns the number of identities handed out.
func (a *SQLiteAllocator) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assignments").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting assignments: %w", err)
	}
	return n, nil
}
