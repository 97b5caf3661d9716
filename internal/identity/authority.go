package identity

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/espdisplay-rpc/internal/bus"
)

// AuthorityOptions configures an Authority. Zero values select defaults.
type AuthorityOptions struct {
	Prefix string
	Topics ProvisioningTopics
	Logger Logger

	// OnAssign, if set, is called after each reply is published.
	OnAssign func(id Identity, requestID string)
}

// AuthorityStats counts handshake traffic.
type AuthorityStats struct {
	Requests uint64
	Assigned uint64
	Rejected uint64
}

// Authority answers device handshakes: each subscribe request on the
// provisioning topic gets a subscribe_reply with a fresh identity on the
// broadcast topic.
type Authority struct {
	transport bus.Transport
	alloc     Allocator
	topics    ProvisioningTopics
	log       Logger
	onAssign  func(Identity, string)

	requests atomic.Uint64
	assigned atomic.Uint64
	rejected atomic.Uint64
}

// NewAuthority creates an authority issuing identities from alloc.
func NewAuthority(transport bus.Transport, alloc Allocator, opts AuthorityOptions) *Authority {
	defaults := DefaultProvisioningTopics(opts.Prefix)
	if opts.Topics.Subscribe == "" {
		opts.Topics.Subscribe = defaults.Subscribe
	}
	if opts.Topics.Broadcast == "" {
		opts.Topics.Broadcast = defaults.Broadcast
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Authority{
		transport: transport,
		alloc:     alloc,
		topics:    opts.Topics,
		log:       opts.Logger,
		onAssign:  opts.OnAssign,
	}
}

// Start subscribes to the provisioning topic.
func (a *Authority) Start() error {
	if err := a.transport.Subscribe(a.topics.Subscribe); err != nil {
		return fmt.Errorf("subscribing to %s: %w", a.topics.Subscribe, err)
	}
	a.log.Info("identity authority listening", "topic", a.topics.Subscribe)
	return nil
}

// Serve subscribes and answers handshakes until ctx is done or the
// transport closes its queue.
func (a *Authority) Serve(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	defer func() {
		if err := a.transport.Unsubscribe(a.topics.Subscribe); err != nil {
			a.log.Debug("unsubscribe on shutdown failed", "error", err)
		}
	}()

	messages := a.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return bus.ErrClosed
			}
			if err := a.HandleMessage(ctx, msg); err != nil {
				a.log.Error("handshake reply failed", "error", err)
			}
		}
	}
}

// HandleMessage answers one message. Messages that are not handshake
// requests are ignored and return nil.
func (a *Authority) HandleMessage(ctx context.Context, msg bus.Message) error {
	if msg.Topic != a.topics.Subscribe {
		return nil
	}

	req, ok := decodeHandshake(msg.Payload)
	if !ok || req.RequestType != RequestTypeSubscribe || req.RequestID == "" {
		a.rejected.Add(1)
		a.log.Warn("ignoring malformed handshake request", "payload_bytes", len(msg.Payload))
		return nil
	}
	a.requests.Add(1)

	id, err := a.alloc.Allocate(ctx, req.RequestID)
	if err != nil {
		return fmt.Errorf("allocating identity for %s: %w", req.RequestID, err)
	}

	payload, err := encodeReply(req.RequestID, id)
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}
	if err := a.transport.Publish(a.topics.Broadcast, payload); err != nil {
		return fmt.Errorf("publishing reply: %w", err)
	}

	a.assigned.Add(1)
	a.log.Info("identity assigned", "identity", int64(id), "request_id", req.RequestID)
	if a.onAssign != nil {
		a.onAssign(id, req.RequestID)
	}
	return nil
}

// Stats returns handshake counters.
func (a *Authority) Stats() AuthorityStats {
	return AuthorityStats{
		Requests: a.requests.Load(),
		Assigned: a.assigned.Load(),
		Rejected: a.rejected.Load(),
	}
}
