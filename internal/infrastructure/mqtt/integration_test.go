//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/config"
	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

// Integration tests against a live broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		InboxSize: 32,
	}
}

func connectBus(t *testing.T, clientID string) *Bus {
	t.Helper()
	topics := Topics{Prefix: "espdisplay-it"}
	client, err := Connect(integrationConfig(clientID), topics)
	if err != nil {
		t.Skipf("broker unavailable: %v", err)
	}
	b := NewBus(client, 1, 32)
	t.Cleanup(func() {
		b.Close()      //nolint:errcheck // Test cleanup
		client.Close() //nolint:errcheck // Test cleanup
	})
	return b
}

func TestIntegration_RPCRoundTrip(t *testing.T) {
	deviceBus := connectBus(t, "espdisplay-it-device")
	controllerBus := connectBus(t, "espdisplay-it-controller")

	device := rpc.New(deviceBus, rpc.Options{Prefix: "espdisplay-it"})
	controller := rpc.New(controllerBus, rpc.Options{Prefix: "espdisplay-it", Role: rpc.RoleController})

	device.RegisterMethod("add", func(_ context.Context, params json.RawMessage) (any, error) {
		var args []int
		if err := json.Unmarshal(params, &args); err != nil || len(args) != 2 {
			return nil, rpc.InvalidParams("add expects two integers")
		}
		return args[0] + args[1], nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := device.Begin(ctx, 4242); err != nil {
		t.Fatalf("device Begin() error = %v", err)
	}
	if err := controller.Begin(ctx, 4242); err != nil {
		t.Fatalf("controller Begin() error = %v", err)
	}
	go device.Run(ctx) //nolint:errcheck // Stopped by cancel

	// Give the broker a moment to register both subscriptions.
	time.Sleep(200 * time.Millisecond)

	var sum int
	if err := controller.CallInto(ctx, "add", []int{20, 22}, 5*time.Second, &sum); err != nil {
		t.Fatalf("CallInto() error = %v", err)
	}
	if sum != 42 {
		t.Errorf("sum = %d, want 42", sum)
	}
}

func TestIntegration_StatusRetained(t *testing.T) {
	watcher := connectBus(t, "espdisplay-it-watcher")
	_ = connectBus(t, "espdisplay-it-status")

	if err := watcher.Subscribe(Topics{Prefix: "espdisplay-it"}.Status("espdisplay-it-status")); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-watcher.Messages():
		var body statusPayload
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			t.Fatalf("decoding status: %v", err)
		}
		if body.Status != "online" {
			t.Errorf("status = %q, want online", body.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no retained status received")
	}
}
