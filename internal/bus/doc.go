// Package bus defines the publish/subscribe transport contract and an
// in-process broker implementing it.
//
// The MQTT adapter in internal/infrastructure/mqtt satisfies the same
// Transport interface, so the identity handshake and the RPC engine are
// written once and tested against Memory.
//
//	broker := bus.NewMemory()
//	device := broker.Connect(16)
//	controller := broker.Connect(16)
//
//	_ = controller.Subscribe("espdisplay/+/client")
//	_ = device.Publish("espdisplay/42/client", payload)
//	msg := <-controller.Messages()
//
// Payloads handed out by Messages are shared between receivers and must
// not be modified.
package bus
