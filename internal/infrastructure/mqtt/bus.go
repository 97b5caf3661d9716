package mqtt

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/espdisplay-rpc/internal/bus"
)

// defaultInboxSize is used when NewBus is given a non-positive size.
const defaultInboxSize = 64

// Bus adapts a Client to bus.Transport.
//
// Messages from every subscription land in one bounded inbox. The paho
// delivery goroutine never blocks on it: when the inbox is full the message
// is dropped and counted.
type Bus struct {
	client *Client
	qos    byte

	mu     sync.RWMutex
	closed bool
	inbox  chan bus.Message

	dropped atomic.Uint64
}

var _ bus.Transport = (*Bus)(nil)

// NewBus creates a transport over client publishing and subscribing at qos.
func NewBus(client *Client, qos byte, inboxSize int) *Bus {
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	return &Bus{
		client: client,
		qos:    qos,
		inbox:  make(chan bus.Message, inboxSize),
	}
}

// Publish sends payload to topic, never retained.
func (b *Bus) Publish(topic string, payload []byte) error {
	if err := bus.ValidateTopic(topic); err != nil {
		return err
	}
	if b.isClosed() {
		return bus.ErrClosed
	}
	return b.client.Publish(topic, payload, b.qos, false)
}

// Subscribe routes messages matching filter into the inbox.
func (b *Bus) Subscribe(filter string) error {
	if err := bus.ValidateFilter(filter); err != nil {
		return err
	}
	if b.isClosed() {
		return bus.ErrClosed
	}
	return b.client.Subscribe(filter, b.qos, b.enqueue)
}

// Unsubscribe stops routing filter into the inbox.
func (b *Bus) Unsubscribe(filter string) error {
	if b.isClosed() {
		return bus.ErrClosed
	}
	return b.client.Unsubscribe(filter)
}

// Messages returns the inbox. It is closed by Close.
func (b *Bus) Messages() <-chan bus.Message {
	return b.inbox
}

// Dropped returns the number of messages lost to a full inbox.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops delivery and closes the inbox. The underlying Client stays
// connected; its owner closes it. Close is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.inbox)
	return nil
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Bus) enqueue(topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	select {
	case b.inbox <- bus.Message{Topic: topic, Payload: payload}:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			if logger := b.client.getLogger(); logger != nil {
				logger.Warn("MQTT inbox full, dropping message", "topic", topic, "dropped_total", n)
			}
		}
	}
	return nil
}
