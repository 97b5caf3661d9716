package rpc

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Method handles one inbound request. params is the raw "params" member
// (JSON null when absent). The returned value is marshalled as the result.
// Returning an *Error sends that error; any other error is reported to the
// caller as an internal error.
type Method func(ctx context.Context, params json.RawMessage) (any, error)

type registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

func newRegistry() *registry {
	return &registry{methods: make(map[string]Method)}
}

// set stores fn under name, replacing any previous registration.
func (r *registry) set(name string, fn Method) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.methods[name]
	r.methods[name] = fn
	return replaced
}

func (r *registry) lookup(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.methods[name]
	return fn, ok
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.methods))
	for name := range r.methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
