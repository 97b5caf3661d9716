// Package mqtt connects to the MQTT broker and adapts the connection to
// the bus.Transport contract used by the identity handshake and the RPC
// engine.
//
// The Client handles connection state, auto-reconnect with subscription
// restoration, and a retained status notice (with a matching Last Will) on
// <prefix>/status/<client_id>. Bus layers a bounded inbox on top so that
// inbound traffic waits until the engine pumps it.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Prefix: cfg.RPC.TopicPrefix})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	transport := mqtt.NewBus(client, byte(cfg.MQTT.QoS), cfg.MQTT.InboxSize)
//	engine := rpc.New(transport, rpc.Options{})
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) outside the lab; TLS 1.2 is the minimum
//   - Credentials come from config or ESPDISPLAY_MQTT_USERNAME/PASSWORD
//   - Payloads are plain JSON; anyone with broker access can read them
package mqtt
