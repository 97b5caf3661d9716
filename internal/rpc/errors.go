package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes used by the engine.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Engine errors.
var (
	// ErrTimeout is returned by Call when no response arrives in time.
	ErrTimeout = errors.New("rpc: call timed out")

	// ErrNotProvisioned is returned before Begin, or by Begin with an
	// unassigned identity.
	ErrNotProvisioned = errors.New("rpc: engine not provisioned")

	// ErrAlreadyStarted is returned by a second Begin.
	ErrAlreadyStarted = errors.New("rpc: engine already started")

	// ErrPublishFailed wraps transport errors while sending a request.
	ErrPublishFailed = errors.New("rpc: publish failed")

	// ErrIDExhausted is returned when no unused correlation id could be drawn.
	ErrIDExhausted = errors.New("rpc: could not allocate correlation id")

	// ErrTransportClosed is returned by Call and Run when the transport
	// closed its message queue.
	ErrTransportClosed = errors.New("rpc: transport closed")

	errHandlerPanic = errors.New("rpc: method panicked")
)

// Error is a JSON-RPC error object. Call returns it when the remote side
// answered with an error; a Method may return one to choose the code sent
// back.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// InvalidParams is a shorthand for methods rejecting their params.
func InvalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func errMethodNotFound() *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found"}
}

func errInternal() *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error"}
}

// IsRemote reports whether err carries a remote *Error, and returns it.
func IsRemote(err error) (*Error, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}
