// Package identity provisions the durable numeric identity of a display
// device and derives its per-identity topic pair.
//
// # Handshake
//
// A device without a stored identity subscribes to the broadcast topic and
// publishes to the provisioning topic:
//
//	espdisplay/subscribe  <- {"request_id":"<id>","request_type":"subscribe"}
//	espdisplay/broadcast  -> {"request_id":"<id>","request_type":"subscribe_reply","uuid":42}
//
// The reply whose request_id matches is accepted; the identity is saved
// under the "uuid" key and reused on every later boot.
//
// # Topics
//
// Identity 42 with the default prefix talks on:
//
//	espdisplay/42/server  inbound, the controller publishes here
//	espdisplay/42/client  outbound, the device publishes here
//
// The Authority type implements the other side of the handshake.
package identity
