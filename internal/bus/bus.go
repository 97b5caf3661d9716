package bus

// Message is one inbound publication as seen by a subscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport is the pub/sub surface the identity handshake and the RPC engine
// run over.
//
// Inbound messages for every active subscription are queued on the channel
// returned by Messages. Consumers drain it without blocking to implement a
// pump; the channel is shared, so every message is delivered to exactly one
// reader.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Publish sends payload on topic. Delivery is best effort.
	Publish(topic string, payload []byte) error

	// Subscribe starts queueing messages whose topic matches filter.
	// Subscribing twice to the same filter is not an error.
	Subscribe(filter string) error

	// Unsubscribe stops queueing messages for filter. Messages already
	// queued stay queued.
	Unsubscribe(filter string) error

	// Messages returns the inbound queue.
	Messages() <-chan Message
}
