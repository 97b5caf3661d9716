package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/espdisplay-rpc/internal/bus"
	"github.com/nerrad567/espdisplay-rpc/internal/kvstore"
)

const testTimeout = 2 * time.Second

func fixedRequestID(id string) func() string {
	return func() string { return id }
}

// startAuthority runs an Authority on its own endpoint until the test ends.
func startAuthority(t *testing.T, broker *bus.Memory, alloc Allocator) *Authority {
	t.Helper()

	ep := broker.Connect(16)
	auth := NewAuthority(ep, alloc, AuthorityOptions{})
	if err := auth.Start(); err != nil {
		t.Fatalf("Authority.Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = auth.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		ep.Close() //nolint:errcheck // Test cleanup
	})
	return auth
}

func TestProvision_PersistedIdentitySkipsHandshake(t *testing.T) {
	broker := bus.NewMemory()
	device := broker.Connect(8)
	spy := broker.Connect(8)
	_ = spy.Subscribe("espdisplay/#")

	store := kvstore.NewMemory()
	_ = store.Save(context.Background(), kvstore.KeyIdentity, []byte("42"))

	id, topics, err := Provision(context.Background(), store, device, testTimeout, Options{})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if id != 42 {
		t.Errorf("identity = %d, want 42", id)
	}
	if topics.Inbound != "espdisplay/42/server" || topics.Outbound != "espdisplay/42/client" {
		t.Errorf("topics = %+v", topics)
	}

	if broker.Published() != 0 {
		t.Errorf("published %d messages, want none", broker.Published())
	}
	if len(spy.Messages()) != 0 {
		t.Error("a message reached the provisioning topics")
	}
	if device.Subscriptions() != 0 {
		t.Errorf("device left %d subscriptions behind", device.Subscriptions())
	}
}

func TestProvision_HandshakeAssignsAndPersists(t *testing.T) {
	broker := bus.NewMemory()
	authStore := kvstore.NewMemory()
	auth := startAuthority(t, broker, NewStoreAllocator(authStore, 100))

	device := broker.Connect(8)
	store := kvstore.NewMemory()

	id, topics, err := Provision(context.Background(), store, device, testTimeout, Options{})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if id != 100 {
		t.Errorf("identity = %d, want 100", id)
	}
	if topics.Inbound != "espdisplay/100/server" {
		t.Errorf("Inbound = %q", topics.Inbound)
	}

	raw, err := store.Load(context.Background(), kvstore.KeyIdentity)
	if err != nil {
		t.Fatalf("identity not persisted: %v", err)
	}
	if string(raw) != "100" {
		t.Errorf("persisted %q, want %q", raw, "100")
	}

	if device.Subscriptions() != 0 {
		t.Errorf("broadcast subscription not released, %d left", device.Subscriptions())
	}
	if stats := auth.Stats(); stats.Assigned != 1 {
		t.Errorf("authority assigned %d, want 1", stats.Assigned)
	}

	// A second boot reuses the stored identity without a new assignment.
	again, _, err := Provision(context.Background(), store, broker.Connect(8), testTimeout, Options{})
	if err != nil || again != 100 {
		t.Fatalf("second Provision() = %d, %v", again, err)
	}
	if stats := auth.Stats(); stats.Assigned != 1 {
		t.Errorf("authority assigned %d after reboot, want 1", stats.Assigned)
	}
}

func TestProvision_InvalidStoredValueRunsHandshake(t *testing.T) {
	tests := []string{"garbage", "-1", ""}

	for _, stored := range tests {
		t.Run(stored, func(t *testing.T) {
			broker := bus.NewMemory()
			startAuthority(t, broker, NewStoreAllocator(kvstore.NewMemory(), 5))

			store := kvstore.NewMemory()
			_ = store.Save(context.Background(), kvstore.KeyIdentity, []byte(stored))

			id, _, err := Provision(context.Background(), store, broker.Connect(8), testTimeout, Options{})
			if err != nil {
				t.Fatalf("Provision() error = %v", err)
			}
			if id != 5 {
				t.Errorf("identity = %d, want 5", id)
			}
		})
	}
}

func TestHandshake_IgnoresNonMatchingBroadcasts(t *testing.T) {
	broker := bus.NewMemory()
	device := broker.Connect(16)
	fake := broker.Connect(16)
	_ = fake.Subscribe("espdisplay/subscribe")

	go func() {
		msg, ok := <-fake.Messages()
		if !ok {
			return
		}
		var req handshakeMessage
		_ = json.Unmarshal(msg.Payload, &req)

		replies := []string{
			`not json`,
			`{"request_id":"someone-else","request_type":"subscribe_reply","uuid":1}`,
			`{"request_id":"` + req.RequestID + `","request_type":"subscribe","uuid":2}`,
			`{"request_id":"` + req.RequestID + `","request_type":"subscribe_reply","uuid":-3}`,
			`{"request_id":"` + req.RequestID + `","request_type":"subscribe_reply","uuid":77}`,
		}
		_ = fake.Publish("espdisplay/42/server", []byte(`{"method":"noise"}`))
		for _, r := range replies {
			_ = fake.Publish("espdisplay/broadcast", []byte(r))
		}
	}()

	p := NewProvisioner(kvstore.NewMemory(), device, Options{NewRequestID: fixedRequestID("req-1")})
	id, err := p.Handshake(context.Background(), testTimeout)
	if err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if id != 77 {
		t.Errorf("identity = %d, want 77", id)
	}
}

func TestHandshake_RequestShape(t *testing.T) {
	broker := bus.NewMemory()
	device := broker.Connect(4)
	spy := broker.Connect(4)
	_ = spy.Subscribe("espdisplay/subscribe")

	p := NewProvisioner(kvstore.NewMemory(), device, Options{NewRequestID: fixedRequestID("abc123")})
	_, _ = p.Handshake(context.Background(), 10*time.Millisecond)

	select {
	case msg := <-spy.Messages():
		var got map[string]any
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("request is not JSON: %v", err)
		}
		if got["request_id"] != "abc123" || got["request_type"] != "subscribe" {
			t.Errorf("request = %v", got)
		}
		if _, has := got["uuid"]; has {
			t.Error("request must not carry uuid")
		}
	default:
		t.Fatal("no request published")
	}
}

func TestProvision_Timeout(t *testing.T) {
	broker := bus.NewMemory()
	device := broker.Connect(4)

	start := time.Now()
	id, _, err := Provision(context.Background(), kvstore.NewMemory(), device, 50*time.Millisecond, Options{})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrProvisioningFailed) || !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Provision() error = %v, want ErrProvisioningFailed wrapping ErrHandshakeTimeout", err)
	}
	if id.Valid() {
		t.Errorf("identity = %d, want Unassigned", id)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if device.Subscriptions() != 0 {
		t.Errorf("broadcast subscription not released, %d left", device.Subscriptions())
	}
}

func TestProvision_ContextCancelled(t *testing.T) {
	broker := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Provision(ctx, kvstore.NewMemory(), broker.Connect(4), testTimeout, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Provision() error = %v, want context.Canceled", err)
	}
}

func TestProvision_SaveFailureIsNotFatal(t *testing.T) {
	broker := bus.NewMemory()
	startAuthority(t, broker, NewStoreAllocator(kvstore.NewMemory(), 9))

	store := kvstore.NewMemory()
	store.FailSaves(errors.New("flash write failed"))

	id, topics, err := Provision(context.Background(), store, broker.Connect(8), testTimeout, Options{})
	if err != nil {
		t.Fatalf("Provision() error = %v, want nil despite save failure", err)
	}
	if id != 9 || topics.Outbound != "espdisplay/9/client" {
		t.Errorf("Provision() = %d %+v", id, topics)
	}
	if store.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1 attempt", store.Saves())
	}
}

func TestProvision_CustomTopicsAndKey(t *testing.T) {
	broker := bus.NewMemory()
	ep := broker.Connect(8)
	auth := NewAuthority(ep, NewStoreAllocator(kvstore.NewMemory(), 1), AuthorityOptions{Prefix: "lab"})
	_ = auth.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = auth.Serve(ctx) }()

	store := kvstore.NewMemory()
	id, topics, err := Provision(context.Background(), store, broker.Connect(8), testTimeout, Options{
		Prefix: "lab",
		Key:    "device/identity",
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if topics.Inbound != "lab/1/server" {
		t.Errorf("Inbound = %q", topics.Inbound)
	}
	if raw, _ := store.Load(context.Background(), "device/identity"); string(raw) != id.String() {
		t.Errorf("stored %q under custom key, want %q", raw, id.String())
	}
}

func TestHandshake_TransportClosed(t *testing.T) {
	broker := bus.NewMemory()
	device := broker.Connect(4)

	p := NewProvisioner(kvstore.NewMemory(), device, Options{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		device.Close() //nolint:errcheck // Simulated transport loss
	}()

	_, err := p.Handshake(context.Background(), testTimeout)
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("Handshake() error = %v, want ErrHandshakeFailed", err)
	}
}
