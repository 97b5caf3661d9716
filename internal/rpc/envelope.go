package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Version is written into every outbound envelope and ignored on input.
const Version = "2.0"

// request is the outbound request envelope.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      string          `json:"id"`
}

// response is the outbound response envelope. Exactly one of Result and
// Error is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// kind classifies an inbound envelope by which fields are present.
type kind int

const (
	kindOther kind = iota
	kindRequest
	kindResponse
)

// inbound is a decoded inbound envelope. Field presence is kept as raw
// JSON so "result": null still counts as a response.
type inbound struct {
	Method json.RawMessage `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

var errNotObject = errors.New("rpc: payload is not a JSON object")

func decodeInbound(payload []byte) (inbound, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return inbound{}, errNotObject
	}
	var in inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return inbound{}, err
	}
	return in, nil
}

func (in inbound) kind() kind {
	switch {
	case len(in.Method) > 0:
		return kindRequest
	case len(in.Result) > 0 || (len(in.Error) > 0 && !bytes.Equal(in.Error, []byte("null"))):
		// An explicit null error only counts alongside a result.
		return kindResponse
	default:
		return kindOther
	}
}

// method returns the method name, or false when it is not a string.
func (in inbound) method() (string, bool) {
	var name string
	if err := json.Unmarshal(in.Method, &name); err != nil {
		return "", false
	}
	return name, true
}

// id returns the correlation id. Non-string ids are treated as absent.
func (in inbound) id() string {
	if len(in.ID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(in.ID, &id); err != nil {
		return ""
	}
	return id
}

// remoteError decodes the error member. A member that is not an error
// object still yields an *Error so the call resolves as a remote failure.
func (in inbound) remoteError() *Error {
	if len(in.Error) == 0 || bytes.Equal(in.Error, []byte("null")) {
		return nil
	}
	var e Error
	if err := json.Unmarshal(in.Error, &e); err != nil {
		return &Error{Code: CodeInternalError, Message: string(in.Error)}
	}
	return &e
}

// params returns the params member, with absent params as JSON null.
func (in inbound) params() json.RawMessage {
	if len(in.Params) == 0 {
		return json.RawMessage("null")
	}
	return in.Params
}

func encodeRequest(id, method string, params any) ([]byte, error) {
	raw, err := marshalValue(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(request{JSONRPC: Version, Method: method, Params: raw, ID: id})
}

func encodeResult(id string, result json.RawMessage) ([]byte, error) {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return json.Marshal(response{JSONRPC: Version, Result: result, ID: id})
}

func encodeError(id string, e *Error) ([]byte, error) {
	return json.Marshal(response{JSONRPC: Version, Error: e, ID: id})
}

// marshalValue encodes v, passing json.RawMessage and []byte JSON through.
func marshalValue(v any) (json.RawMessage, error) {
	switch x := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(x) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(x) {
			return nil, errors.New("rpc: invalid raw JSON value")
		}
		return x, nil
	default:
		return json.Marshal(v)
	}
}
