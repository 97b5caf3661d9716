package bus

import (
	"sync"
	"sync/atomic"
)

// DefaultInboxSize is the inbox capacity used when Connect is given zero.
const DefaultInboxSize = 64

// Memory is an in-process broker. Each participant obtains an Endpoint via
// Connect; endpoints implement Transport.
//
// Delivery follows MQTT filter matching. A publishing endpoint receives its
// own message when one of its filters matches, like a broker without
// no-local. A message is delivered at most once per endpoint even when
// several of its filters match.
//
// All methods are safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	drop      func(Message) bool
	published atomic.Uint64
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		endpoints: make(map[*Endpoint]struct{}),
	}
}

// Connect attaches a new endpoint with an inbox of the given capacity.
func (m *Memory) Connect(inboxSize int) *Endpoint {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	ep := &Endpoint{
		broker:  m,
		filters: make(map[string]struct{}),
		inbox:   make(chan Message, inboxSize),
	}

	m.mu.Lock()
	m.endpoints[ep] = struct{}{}
	m.mu.Unlock()

	return ep
}

// SetDropFilter installs fn to discard publications before routing. A nil fn
// removes the filter. Used to simulate lost traffic.
func (m *Memory) SetDropFilter(fn func(Message) bool) {
	m.mu.Lock()
	m.drop = fn
	m.mu.Unlock()
}

// Published returns the number of publications routed or dropped so far.
func (m *Memory) Published() uint64 {
	return m.published.Load()
}

func (m *Memory) route(msg Message) {
	m.published.Add(1)

	m.mu.RLock()
	drop := m.drop
	targets := make([]*Endpoint, 0, len(m.endpoints))
	for ep := range m.endpoints {
		targets = append(targets, ep)
	}
	m.mu.RUnlock()

	if drop != nil && drop(msg) {
		return
	}

	for _, ep := range targets {
		ep.deliver(msg)
	}
}

func (m *Memory) detach(ep *Endpoint) {
	m.mu.Lock()
	delete(m.endpoints, ep)
	m.mu.Unlock()
}

// Endpoint is one participant on a Memory broker.
type Endpoint struct {
	broker *Memory

	mu      sync.Mutex
	filters map[string]struct{}
	inbox   chan Message
	closed  bool

	dropped atomic.Uint64
}

var _ Transport = (*Endpoint)(nil)

// Publish routes a copy of payload to every matching endpoint.
func (e *Endpoint) Publish(topic string, payload []byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	body := make([]byte, len(payload))
	copy(body, payload)
	e.broker.route(Message{Topic: topic, Payload: body})
	return nil
}

// Subscribe adds filter to this endpoint.
func (e *Endpoint) Subscribe(filter string) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.filters[filter] = struct{}{}
	return nil
}

// Unsubscribe removes filter from this endpoint.
func (e *Endpoint) Unsubscribe(filter string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	delete(e.filters, filter)
	return nil
}

// Messages returns the endpoint's inbox.
func (e *Endpoint) Messages() <-chan Message {
	return e.inbox
}

// Subscriptions returns the number of active filters.
func (e *Endpoint) Subscriptions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.filters)
}

// Dropped returns the number of messages lost because the inbox was full.
func (e *Endpoint) Dropped() uint64 {
	return e.dropped.Load()
}

// Close detaches the endpoint and closes its inbox. Close is idempotent.
func (e *Endpoint) Close() error {
	e.broker.detach(e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.filters = nil
	close(e.inbox)
	return nil
}

func (e *Endpoint) deliver(msg Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.matches(msg.Topic) {
		return
	}
	select {
	case e.inbox <- msg:
	default:
		e.dropped.Add(1)
	}
}

// matches must be called with e.mu held.
func (e *Endpoint) matches(topic string) bool {
	for f := range e.filters {
		if Match(f, topic) {
			return true
		}
	}
	return false
}
