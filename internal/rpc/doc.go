// Package rpc implements JSON-RPC 2.0 request/response correlation over a
// publish/subscribe transport.
//
// An Engine is bound to one device identity with Begin. A device engine
// receives on <prefix>/<id>/server and publishes on <prefix>/<id>/client; a
// controller engine uses the same pair reversed.
//
//	engine := rpc.New(transport, rpc.Options{Logger: log})
//	engine.RegisterMethod("add", addHandler)
//	if err := engine.Begin(ctx, id); err != nil {
//	    return err
//	}
//	raw, err := engine.Call(ctx, "get_config", nil, 5*time.Second)
//
// # Envelopes
//
// Requests carry jsonrpc, method, params and a string id. Responses carry
// either result or error, never both, and echo the id. Messages whose id is
// missing or not a string cannot be answered and are dropped.
//
// # Dispatch
//
// Inbound messages are handled only when the owner calls Pump or Run, or
// while a Call is waiting for its response. A method may therefore run
// inside another goroutine's Call; methods may themselves issue calls.
//
// Unknown methods are answered with -32601. A method that panics or fails
// with a plain error is answered with -32603; returning an *Error sends it
// unchanged.
package rpc
