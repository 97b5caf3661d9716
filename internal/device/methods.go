package device

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

// Built-in method names.
const (
	MethodAdd    = "add"
	MethodEcho   = "echo"
	MethodStatus = "status"
)

// Registrar is the part of rpc.Engine that methods are registered on.
type Registrar interface {
	RegisterMethod(name string, fn rpc.Method)
}

// StatusProvider reports the engine state returned by the status method.
type StatusProvider interface {
	Status() rpc.Status
}

// Register installs the built-in methods on r.
//
// Parameters:
//   - r: engine to register on
//   - status: source for the status method; nil leaves status unregistered
func Register(r Registrar, status StatusProvider) {
	r.RegisterMethod(MethodAdd, Add)
	r.RegisterMethod(MethodEcho, Echo)
	if status != nil {
		r.RegisterMethod(MethodStatus, Status(status))
	}
}

type addParams struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// Add returns a+b. Missing operands count as zero.
func Add(_ context.Context, params json.RawMessage) (any, error) {
	var p addParams
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return int64(0), nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.InvalidParams("add expects {\"a\": int, \"b\": int}")
	}
	return p.A + p.B, nil
}

// Echo returns its params unchanged.
func Echo(_ context.Context, params json.RawMessage) (any, error) {
	return params, nil
}

// Status returns a method reporting p's current state.
func Status(p StatusProvider) rpc.Method {
	return func(context.Context, json.RawMessage) (any, error) {
		return p.Status(), nil
	}
}
