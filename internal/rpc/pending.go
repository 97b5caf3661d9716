package rpc

import (
	"encoding/json"
	"sync"
)

// outcome is what a response delivers to a waiting call.
type outcome struct {
	result json.RawMessage
	err    *Error
}

// pendingCall is one outstanding request. done is closed exactly once, when
// the first matching response arrives.
type pendingCall struct {
	method   string
	done     chan struct{}
	resolved bool
	outcome  outcome
}

// pendingTable maps correlation ids to outstanding calls.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

// add registers id. It returns false when id is already outstanding.
func (t *pendingTable) add(id, method string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.calls[id]; exists {
		return nil, false
	}
	pc := &pendingCall{method: method, done: make(chan struct{})}
	t.calls[id] = pc
	return pc, true
}

// resolve delivers o to id. It returns false when id is unknown or was
// already resolved; such responses are discarded.
func (t *pendingTable) resolve(id string, o outcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pc, ok := t.calls[id]
	if !ok || pc.resolved {
		return false
	}
	pc.resolved = true
	pc.outcome = o
	close(pc.done)
	return true
}

// result returns the delivered outcome, if any.
func (t *pendingTable) result(pc *pendingCall) (outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pc.outcome, pc.resolved
}

func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
