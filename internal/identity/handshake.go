package identity

import (
	"encoding/json"
	"time"
)

// Handshake request types.
const (
	RequestTypeSubscribe      = "subscribe"
	RequestTypeSubscribeReply = "subscribe_reply"
)

// DefaultHandshakeTimeout bounds a handshake when the caller passes zero.
const DefaultHandshakeTimeout = 5 * time.Second

// handshakeMessage is the wire form of both the request and the reply.
type handshakeMessage struct {
	RequestID   string `json:"request_id"`
	RequestType string `json:"request_type"`
	UUID        *int64 `json:"uuid,omitempty"`
}

func encodeRequest(requestID string) ([]byte, error) {
	return json.Marshal(handshakeMessage{
		RequestID:   requestID,
		RequestType: RequestTypeSubscribe,
	})
}

func encodeReply(requestID string, id Identity) ([]byte, error) {
	n := int64(id)
	return json.Marshal(handshakeMessage{
		RequestID:   requestID,
		RequestType: RequestTypeSubscribeReply,
		UUID:        &n,
	})
}

// decodeHandshake parses payload. ok is false for anything that is not a
// JSON object with the handshake fields.
func decodeHandshake(payload []byte) (handshakeMessage, bool) {
	var m handshakeMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return handshakeMessage{}, false
	}
	return m, true
}

// replyIdentity extracts the identity from a reply to requestID.
func replyIdentity(payload []byte, requestID string) (Identity, bool) {
	m, ok := decodeHandshake(payload)
	if !ok || m.RequestID != requestID || m.RequestType != RequestTypeSubscribeReply {
		return Unassigned, false
	}
	if m.UUID == nil || *m.UUID < 0 {
		return Unassigned, false
	}
	return Identity(*m.UUID), true
}
