package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/espdisplay-rpc/internal/kvstore"
)

// MethodGetConfig is the server method SyncConfig calls.
const MethodGetConfig = "get_config"

// Caller is the part of rpc.Engine SyncConfig needs.
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// Config is the outcome of SyncConfig.
type Config struct {
	// Raw is the configuration object.
	Raw json.RawMessage

	// Cached is true when Raw came from the store because the server could
	// not provide one. FetchErr then holds the reason.
	Cached   bool
	FetchErr error

	// CachedAt is when the cached copy was saved. Zero unless Cached and the
	// store implements kvstore.Timestamped.
	CachedAt time.Time

	// CacheErr is set when a fresh configuration could not be saved.
	CacheErr error
}

// SyncConfig fetches the device configuration from the server and caches it.
//
// A fresh object is saved under kvstore.KeyConfig and returned. If the call
// fails, or the server answers with anything but a JSON object, the cached
// copy is returned instead, stamped with its save time when the store
// records one.
//
// Parameters:
//   - ctx: bounds the call and the store operations
//   - caller: provisioned engine
//   - store: configuration cache
//   - timeout: call timeout; zero selects the engine default
//
// Returns:
//   - Config: the configuration and where it came from
//   - error: ErrNoConfig (wrapping the fetch error) when neither source has one
func SyncConfig(ctx context.Context, caller Caller, store kvstore.Store, timeout time.Duration) (Config, error) {
	raw, err := fetchConfig(ctx, caller, timeout)
	if err == nil {
		cfg := Config{Raw: raw}
		if saveErr := store.Save(ctx, kvstore.KeyConfig, raw); saveErr != nil {
			cfg.CacheErr = fmt.Errorf("saving config: %w", saveErr)
		}
		return cfg, nil
	}

	cached, loadErr := store.Load(ctx, kvstore.KeyConfig)
	if loadErr != nil {
		if !errors.Is(loadErr, kvstore.ErrNotFound) {
			return Config{}, fmt.Errorf("%w: %w (cache: %w)", ErrNoConfig, err, loadErr)
		}
		return Config{}, fmt.Errorf("%w: %w", ErrNoConfig, err)
	}
	if !isObject(cached) {
		return Config{}, fmt.Errorf("%w: %w (cached value is not an object)", ErrNoConfig, err)
	}

	cfg := Config{Raw: json.RawMessage(cached), Cached: true, FetchErr: err}
	if ts, ok := store.(kvstore.Timestamped); ok {
		// A missing stamp leaves CachedAt zero.
		if at, tsErr := ts.UpdatedAt(ctx, kvstore.KeyConfig); tsErr == nil {
			cfg.CachedAt = at
		}
	}
	return cfg, nil
}

func fetchConfig(ctx context.Context, caller Caller, timeout time.Duration) (json.RawMessage, error) {
	raw, err := caller.Call(ctx, MethodGetConfig, nil, timeout)
	if err != nil {
		return nil, err
	}
	if !isObject(raw) {
		return nil, ErrInvalidConfig
	}
	return raw, nil
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
