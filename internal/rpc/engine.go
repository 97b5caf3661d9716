package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/espdisplay-rpc/internal/bus"
	"github.com/nerrad567/espdisplay-rpc/internal/identity"
)

// Engine correlates JSON-RPC requests and responses over a bus.Transport.
//
// One Engine serves one identity. It dispatches inbound requests to
// registered methods and matches inbound responses to outstanding calls.
// Inbound traffic is processed whenever the owner calls Pump or Run, and
// also while a Call is waiting, so a method may be invoked during a Call.
//
// Thread Safety: all methods are safe for concurrent use. No lock is held
// while a method runs.
type Engine struct {
	transport bus.Transport
	opts      Options
	log       Logger
	rec       Recorder
	warn      *rate.Limiter

	pending *pendingTable
	methods *registry

	mu        sync.RWMutex
	id        identity.Identity
	topics    identity.Topics
	ready     bool
	startedAt time.Time
}

// Status is a point-in-time view of an engine.
type Status struct {
	Identity identity.Identity `json:"identity"`
	Role     string            `json:"role"`
	Ready    bool              `json:"ready"`
	Inbound  string            `json:"inbound,omitempty"`
	Outbound string            `json:"outbound,omitempty"`
	Pending  int               `json:"pending"`
	Methods  []string          `json:"methods"`
	Uptime   string            `json:"uptime,omitempty"`
}

// New creates an unprovisioned engine over transport.
//
// Parameters:
//   - transport: message transport shared with the rest of the process
//   - opts: engine options; zero values select defaults
//
// Returns:
//   - *Engine: engine ready for RegisterMethod and Begin
func New(transport bus.Transport, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		transport: transport,
		opts:      opts,
		log:       opts.Logger,
		rec:       opts.Recorder,
		warn:      rate.NewLimiter(opts.WarnRate, opts.WarnBurst),
		pending:   newPendingTable(),
		methods:   newRegistry(),
		id:        identity.Unassigned,
	}
}

// Begin binds the engine to id and subscribes to its inbound topic.
//
// Returns ErrNotProvisioned when id is unassigned and ErrAlreadyStarted on a
// second call. A failed subscribe leaves the engine unprovisioned so Begin
// may be retried.
func (e *Engine) Begin(ctx context.Context, id identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !id.Valid() {
		return ErrNotProvisioned
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return ErrAlreadyStarted
	}

	topics, err := identity.TopicsFor(e.opts.Prefix, id)
	if err != nil {
		return fmt.Errorf("deriving topics: %w", err)
	}
	if e.opts.Role == RoleController {
		topics = topics.Reverse()
	}

	if err := e.transport.Subscribe(topics.Inbound); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topics.Inbound, err)
	}

	e.id = id
	e.topics = topics
	e.ready = true
	e.startedAt = time.Now()

	e.log.Info("rpc engine started",
		"identity", id.String(),
		"role", e.opts.Role.String(),
		"inbound", topics.Inbound,
		"outbound", topics.Outbound,
	)
	return nil
}

// RegisterMethod binds name to fn. Registering an existing name replaces
// the previous method. Empty names and nil functions are ignored.
func (e *Engine) RegisterMethod(name string, fn Method) {
	if name == "" || fn == nil {
		e.log.Warn("ignoring invalid method registration", "method", name)
		return
	}
	if e.methods.set(name, fn) {
		e.log.Debug("method replaced", "method", name)
	}
}

// Methods returns the registered method names, sorted.
func (e *Engine) Methods() []string {
	return e.methods.names()
}

// Identity returns the bound identity, or identity.Unassigned before Begin.
func (e *Engine) Identity() identity.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.id
}

// Topics returns the topic pair in use and whether Begin has succeeded.
func (e *Engine) Topics() (identity.Topics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.topics, e.ready
}

// PendingCount returns the number of outstanding calls.
func (e *Engine) PendingCount() int {
	return e.pending.len()
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.RLock()
	st := Status{
		Identity: e.id,
		Role:     e.opts.Role.String(),
		Ready:    e.ready,
		Inbound:  e.topics.Inbound,
		Outbound: e.topics.Outbound,
	}
	if e.ready {
		st.Uptime = time.Since(e.startedAt).Truncate(time.Second).String()
	}
	e.mu.RUnlock()

	st.Pending = e.pending.len()
	st.Methods = e.methods.names()
	return st
}

// Call sends method with params to the peer and waits for the response.
//
// Inbound traffic is dispatched while waiting. The pending entry is removed
// before Call returns, whatever the outcome, so a late response is
// discarded.
//
// Parameters:
//   - ctx: cancels the wait
//   - method: remote method name
//   - params: marshalled as the "params" member; nil sends null
//   - timeout: how long to wait; zero or negative selects the default
//
// Returns:
//   - json.RawMessage: the raw "result" member on success
//   - error: *Error for a remote error, ErrTimeout, ErrNotProvisioned,
//     ErrPublishFailed, ErrTransportClosed or the context error
func (e *Engine) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	start := time.Now()
	result, err := e.call(ctx, method, params, timeout)
	e.rec.CallCompleted(method, OutcomeOf(err), time.Since(start))
	return result, err
}

// CallInto is Call followed by unmarshalling the result into out.
func (e *Engine) CallInto(ctx context.Context, method string, params any, timeout time.Duration, out any) error {
	raw, err := e.Call(ctx, method, params, timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

func (e *Engine) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	topics, ready := e.Topics()
	if !ready {
		return nil, ErrNotProvisioned
	}
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	id, pc, err := e.issue(method)
	if err != nil {
		return nil, err
	}
	defer e.pending.remove(id)

	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", method, err)
	}
	if err := e.transport.Publish(topics.Outbound, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	e.log.Debug("rpc call sent", "method", method, "id", id)
	return e.wait(ctx, pc, timeout)
}

// issue draws an unused correlation id and registers it.
func (e *Engine) issue(method string) (string, *pendingCall, error) {
	for range maxIDAttempts {
		id := e.opts.NewID()
		if id == "" {
			continue
		}
		if pc, ok := e.pending.add(id, method); ok {
			return id, pc, nil
		}
	}
	return "", nil, ErrIDExhausted
}

func (e *Engine) wait(ctx context.Context, pc *pendingCall, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	messages := e.transport.Messages()
	for {
		select {
		case <-pc.done:
			return deliver(pc.outcome)

		case msg, ok := <-messages:
			if !ok {
				if o, resolved := e.pending.result(pc); resolved {
					return deliver(o)
				}
				return nil, ErrTransportClosed
			}
			e.handle(ctx, msg)

		case <-timer.C:
			if o, resolved := e.pending.result(pc); resolved {
				return deliver(o)
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, pc.method, timeout)

		case <-ctx.Done():
			if o, resolved := e.pending.result(pc); resolved {
				return deliver(o)
			}
			return nil, ctx.Err()
		}
	}
}

func deliver(o outcome) (json.RawMessage, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.result, nil
}

// Pump dispatches the inbound messages queued right now and returns how
// many it processed. It never blocks waiting for traffic.
func (e *Engine) Pump() int {
	return e.pump(context.Background())
}

func (e *Engine) pump(ctx context.Context) int {
	messages := e.transport.Messages()
	queued := len(messages)
	n := 0
	for n < queued {
		select {
		case msg, ok := <-messages:
			if !ok {
				return n
			}
			e.handle(ctx, msg)
			n++
		default:
			return n
		}
	}
	return n
}

// Run dispatches inbound traffic until ctx is done or the transport closes.
// It returns nil on cancellation and ErrTransportClosed otherwise.
func (e *Engine) Run(ctx context.Context) error {
	messages := e.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return ErrTransportClosed
			}
			e.handle(ctx, msg)
		}
	}
}

// handle routes one inbound message.
func (e *Engine) handle(ctx context.Context, msg bus.Message) {
	topics, ready := e.Topics()
	if !ready {
		e.drop(DropNotReady)
		return
	}

	switch msg.Topic {
	case topics.Inbound:
	case topics.Outbound:
		e.drop(DropLoopback)
		return
	default:
		e.drop(DropForeignTopic)
		return
	}

	in, err := decodeInbound(msg.Payload)
	if err != nil {
		e.drop(DropMalformed)
		e.warnf("dropping malformed payload", "topic", msg.Topic, "size", len(msg.Payload), "error", err)
		return
	}

	switch in.kind() {
	case kindRequest:
		e.dispatch(ctx, topics, in)
	case kindResponse:
		e.resolve(in)
	default:
		e.drop(DropUnrecognised)
		e.warnf("dropping message that is neither request nor response", "topic", msg.Topic)
	}
}

// dispatch runs the method named by a request and publishes its response.
func (e *Engine) dispatch(ctx context.Context, topics identity.Topics, in inbound) {
	name, isString := in.method()
	id := in.id()
	if id == "" {
		// No id means nowhere to send the response.
		e.drop(DropUnanswerable)
		e.warnf("dropping request without id", "method", name)
		return
	}

	start := time.Now()
	var (
		result json.RawMessage
		rerr   *Error
	)
	if !isString {
		rerr = &Error{Code: CodeInvalidRequest, Message: "Invalid Request"}
	} else {
		result, rerr = e.invoke(ctx, name, in.params())
	}

	var (
		payload []byte
		err     error
		code    int
	)
	if rerr != nil {
		code = rerr.Code
		payload, err = encodeError(id, rerr)
	} else {
		payload, err = encodeResult(id, result)
	}
	if err != nil {
		e.log.Error("encoding response failed", "method", name, "id", id, "error", err)
		return
	}

	if err := e.transport.Publish(topics.Outbound, payload); err != nil {
		e.log.Warn("publishing response failed", "method", name, "id", id, "error", err)
	}
	e.rec.RequestHandled(name, code, time.Since(start))
}

// invoke looks up and runs a method, mapping failures to JSON-RPC errors.
func (e *Engine) invoke(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, *Error) {
	fn, ok := e.methods.lookup(name)
	if !ok {
		e.log.Debug("method not found", "method", name)
		return nil, errMethodNotFound()
	}

	value, err := safeInvoke(ctx, fn, params)
	if err != nil {
		if rerr, ok := IsRemote(err); ok && rerr != nil {
			return nil, rerr
		}
		e.log.Warn("method failed", "method", name, "error", err)
		return nil, errInternal()
	}

	raw, err := marshalValue(value)
	if err != nil {
		e.log.Warn("method result not encodable", "method", name, "error", err)
		return nil, errInternal()
	}
	return raw, nil
}

func safeInvoke(ctx context.Context, fn Method, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()
	return fn(ctx, params)
}

// resolve hands a response to the matching pending call.
func (e *Engine) resolve(in inbound) {
	id := in.id()
	o := outcome{result: in.Result, err: in.remoteError()}
	if o.err == nil && len(o.result) == 0 {
		o.result = json.RawMessage("null")
	}
	if id == "" || !e.pending.resolve(id, o) {
		e.drop(DropUnsolicited)
		e.log.Debug("discarding unmatched response", "id", id)
	}
}

func (e *Engine) drop(reason string) {
	e.rec.MessageDropped(reason)
}

func (e *Engine) warnf(msg string, args ...any) {
	if e.warn.Allow() {
		e.log.Warn(msg, args...)
		return
	}
	e.log.Debug(msg, args...)
}
