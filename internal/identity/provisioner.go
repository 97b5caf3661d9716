package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/espdisplay-rpc/internal/bus"
	"github.com/nerrad567/espdisplay-rpc/internal/kvstore"
)

// Logger is the logging surface used by the provisioner and the authority.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Provisioner. Zero values select the defaults.
type Options struct {
	// Prefix is the topic prefix for the per-identity pair.
	Prefix string

	// Topics overrides the handshake topics derived from Prefix.
	Topics ProvisioningTopics

	// Key is the store key holding the identity. Default kvstore.KeyIdentity.
	Key string

	Logger Logger

	// NewRequestID generates handshake request ids. Default uuid.NewString.
	NewRequestID func() string
}

func (o Options) withDefaults() Options {
	defaults := DefaultProvisioningTopics(o.Prefix)
	if o.Topics.Subscribe == "" {
		o.Topics.Subscribe = defaults.Subscribe
	}
	if o.Topics.Broadcast == "" {
		o.Topics.Broadcast = defaults.Broadcast
	}
	if o.Key == "" {
		o.Key = kvstore.KeyIdentity
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.NewRequestID == nil {
		o.NewRequestID = uuid.NewString
	}
	return o
}

// Provisioner obtains the device identity, from the store when one was
// saved by an earlier boot and from the broadcast handshake otherwise.
//
// The handshake reads the transport's message queue directly, so it must
// finish before anything else starts pumping the same transport.
type Provisioner struct {
	store     kvstore.Store
	transport bus.Transport
	opts      Options
	log       Logger
}

// NewProvisioner creates a provisioner.
func NewProvisioner(store kvstore.Store, transport bus.Transport, opts Options) *Provisioner {
	opts = opts.withDefaults()
	return &Provisioner{
		store:     store,
		transport: transport,
		opts:      opts,
		log:       opts.Logger,
	}
}

// Load reads the stored identity. It returns ErrNoIdentity when nothing
// usable is stored; a malformed value is logged and treated as absent.
func (p *Provisioner) Load(ctx context.Context) (Identity, error) {
	raw, err := p.store.Load(ctx, p.opts.Key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return Unassigned, ErrNoIdentity
		}
		return Unassigned, fmt.Errorf("loading identity: %w", err)
	}

	id, err := Parse(string(raw))
	if err != nil {
		p.log.Warn("ignoring stored identity", "key", p.opts.Key, "error", err)
		return Unassigned, ErrNoIdentity
	}
	return id, nil
}

// Handshake requests a new identity from the authority.
//
// It subscribes to the broadcast topic, publishes a subscribe request and
// waits for the reply carrying its request id. Other broadcasts and any
// other traffic read meanwhile are discarded. The broadcast subscription is
// released on every path. A timeout of zero or less means
// DefaultHandshakeTimeout.
func (p *Provisioner) Handshake(ctx context.Context, timeout time.Duration) (Identity, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	requestID := p.opts.NewRequestID()
	broadcast := p.opts.Topics.Broadcast

	if err := p.transport.Subscribe(broadcast); err != nil {
		return Unassigned, fmt.Errorf("%w: subscribing to %s: %w", ErrHandshakeFailed, broadcast, err)
	}
	defer func() {
		if err := p.transport.Unsubscribe(broadcast); err != nil {
			p.log.Warn("releasing broadcast subscription failed", "topic", broadcast, "error", err)
		}
	}()

	payload, err := encodeRequest(requestID)
	if err != nil {
		return Unassigned, fmt.Errorf("%w: encoding request: %w", ErrHandshakeFailed, err)
	}
	if err := p.transport.Publish(p.opts.Topics.Subscribe, payload); err != nil {
		return Unassigned, fmt.Errorf("%w: publishing request: %w", ErrHandshakeFailed, err)
	}
	p.log.Info("identity handshake started", "request_id", requestID, "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	messages := p.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			return Unassigned, ctx.Err()
		case <-timer.C:
			return Unassigned, fmt.Errorf("%w after %v", ErrHandshakeTimeout, timeout)
		case msg, ok := <-messages:
			if !ok {
				return Unassigned, fmt.Errorf("%w: %w", ErrHandshakeFailed, bus.ErrClosed)
			}
			if msg.Topic != broadcast {
				continue
			}
			if id, ok := replyIdentity(msg.Payload, requestID); ok {
				p.log.Info("identity assigned", "identity", int64(id), "request_id", requestID)
				return id, nil
			}
			p.log.Debug("ignoring broadcast", "request_id", requestID)
		}
	}
}

// Provision returns the stored identity or runs the handshake and saves the
// result. A failed save is logged and does not fail provisioning; the
// identity stays valid for this process and the next boot handshakes again.
func (p *Provisioner) Provision(ctx context.Context, timeout time.Duration) (Identity, Topics, error) {
	id, err := p.Load(ctx)
	switch {
	case err == nil:
		topics, terr := TopicsFor(p.opts.Prefix, id)
		if terr != nil {
			return Unassigned, Topics{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, terr)
		}
		p.log.Info("identity loaded from store", "identity", int64(id))
		return id, topics, nil
	case !errors.Is(err, ErrNoIdentity):
		p.log.Warn("identity store unreadable, requesting a new identity", "error", err)
	}

	id, err = p.Handshake(ctx, timeout)
	if err != nil {
		return Unassigned, Topics{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	if err := p.store.Save(ctx, p.opts.Key, []byte(id.String())); err != nil {
		p.log.Error("persisting identity failed", "identity", int64(id), "error", err)
	}

	topics, err := TopicsFor(p.opts.Prefix, id)
	if err != nil {
		return Unassigned, Topics{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}
	return id, topics, nil
}

// Provision is the one-shot form of NewProvisioner(...).Provision.
func Provision(ctx context.Context, store kvstore.Store, transport bus.Transport, timeout time.Duration, opts Options) (Identity, Topics, error) {
	return NewProvisioner(store, transport, opts).Provision(ctx, timeout)
}
