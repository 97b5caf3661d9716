package identity

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/espdisplay-rpc/internal/bus"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/database"
	"github.com/nerrad567/espdisplay-rpc/internal/kvstore"
	_ "github.com/nerrad567/espdisplay-rpc/migrations"
)

// failingAllocator always returns err.
type failingAllocator struct{ err error }

func (f failingAllocator) Allocate(context.Context, string) (Identity, error) {
	return Unassigned, f.err
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "authority.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestAuthority_HandleMessage(t *testing.T) {
	broker := bus.NewMemory()
	ep := broker.Connect(8)
	listener := broker.Connect(8)
	_ = listener.Subscribe("espdisplay/broadcast")

	auth := NewAuthority(ep, NewStoreAllocator(kvstore.NewMemory(), 10), AuthorityOptions{})
	ctx := context.Background()

	tests := []struct {
		name      string
		msg       bus.Message
		wantReply bool
	}{
		{"valid request", bus.Message{Topic: "espdisplay/subscribe", Payload: []byte(`{"request_id":"a1","request_type":"subscribe"}`)}, true},
		{"wrong topic", bus.Message{Topic: "espdisplay/other", Payload: []byte(`{"request_id":"a2","request_type":"subscribe"}`)}, false},
		{"wrong type", bus.Message{Topic: "espdisplay/subscribe", Payload: []byte(`{"request_id":"a3","request_type":"subscribe_reply"}`)}, false},
		{"missing request id", bus.Message{Topic: "espdisplay/subscribe", Payload: []byte(`{"request_type":"subscribe"}`)}, false},
		{"malformed", bus.Message{Topic: "espdisplay/subscribe", Payload: []byte(`{`)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := auth.HandleMessage(ctx, tt.msg); err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}
			got := len(listener.Messages()) > 0
			if got != tt.wantReply {
				t.Fatalf("reply published = %v, want %v", got, tt.wantReply)
			}
			if !got {
				return
			}
			msg := <-listener.Messages()
			var reply map[string]any
			if err := json.Unmarshal(msg.Payload, &reply); err != nil {
				t.Fatalf("reply is not JSON: %v", err)
			}
			if reply["request_id"] != "a1" || reply["request_type"] != "subscribe_reply" || reply["uuid"] != float64(10) {
				t.Errorf("reply = %v", reply)
			}
		})
	}

	stats := auth.Stats()
	if stats.Requests != 1 || stats.Assigned != 1 || stats.Rejected != 3 {
		t.Errorf("Stats() = %+v, want 1 request, 1 assigned, 3 rejected", stats)
	}
}

func TestAuthority_AllocatorFailure(t *testing.T) {
	ep := bus.NewMemory().Connect(4)
	boom := errors.New("counter unavailable")
	auth := NewAuthority(ep, failingAllocator{err: boom}, AuthorityOptions{})

	err := auth.HandleMessage(context.Background(), bus.Message{
		Topic:   "espdisplay/subscribe",
		Payload: []byte(`{"request_id":"x","request_type":"subscribe"}`),
	})
	if !errors.Is(err, boom) {
		t.Errorf("HandleMessage() error = %v, want allocator error", err)
	}
	if auth.Stats().Assigned != 0 {
		t.Error("failed allocation counted as assigned")
	}
}

func TestAuthority_ServeStopsOnClosedTransport(t *testing.T) {
	ep := bus.NewMemory().Connect(4)
	auth := NewAuthority(ep, NewStoreAllocator(kvstore.NewMemory(), 0), AuthorityOptions{})

	_ = ep.Close()
	if err := auth.Serve(context.Background()); err == nil {
		t.Error("Serve() on closed transport expected error")
	}
}

func TestStoreAllocator(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	alloc := NewStoreAllocator(store, 3)
	for want := Identity(3); want < 6; want++ {
		got, err := alloc.Allocate(ctx, "")
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		if got != want {
			t.Errorf("Allocate() = %d, want %d", got, want)
		}
	}

	// A new allocator over the same store continues the sequence.
	resumed := NewStoreAllocator(store, 0)
	if got, _ := resumed.Allocate(ctx, ""); got != 6 {
		t.Errorf("resumed Allocate() = %d, want 6", got)
	}

	// Raising the floor skips ahead.
	raised := NewStoreAllocator(store, 50)
	if got, _ := raised.Allocate(ctx, ""); got != 50 {
		t.Errorf("raised Allocate() = %d, want 50", got)
	}
}

func TestStoreAllocator_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("corrupt counter", func(t *testing.T) {
		store := kvstore.NewMemory()
		_ = store.Save(ctx, kvstore.KeyNextIdentity, []byte("nope"))
		if _, err := NewStoreAllocator(store, 0).Allocate(ctx, ""); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("Allocate() error = %v, want ErrInvalidIdentity", err)
		}
	})

	t.Run("save failure", func(t *testing.T) {
		store := kvstore.NewMemory()
		store.FailSaves(errors.New("read-only"))
		if _, err := NewStoreAllocator(store, 0).Allocate(ctx, ""); err == nil {
			t.Error("Allocate() expected error when the counter cannot advance")
		}
	})
}

func TestSQLiteAllocator(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	alloc := NewSQLiteAllocator(db.DB, 1000)

	first, err := alloc.Allocate(ctx, "req-a")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, _ := alloc.Allocate(ctx, "req-b")
	retry, _ := alloc.Allocate(ctx, "req-a")

	if first != 1000 || second != 1001 {
		t.Errorf("identities = %d, %d, want 1000, 1001", first, second)
	}
	if retry != first {
		t.Errorf("retried request got %d, want %d", retry, first)
	}

	n, err := alloc.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestAuthority_WithSQLiteAllocatorEndToEnd(t *testing.T) {
	broker := bus.NewMemory()
	db := openTestDB(t)
	startAuthority(t, broker, NewSQLiteAllocator(db.DB, 1))

	seen := make(map[Identity]bool)
	for i := 0; i < 3; i++ {
		id, _, err := Provision(context.Background(), kvstore.NewMemory(), broker.Connect(8), testTimeout, Options{})
		if err != nil {
			t.Fatalf("Provision() #%d error = %v", i, err)
		}
		if seen[id] {
			t.Fatalf("identity %d issued twice", id)
		}
		seen[id] = true
	}
}

func TestAuthority_OnAssign(t *testing.T) {
	broker := bus.NewMemory()
	ep := broker.Connect(8)

	var gotID Identity
	var gotRequest string
	auth := NewAuthority(ep, NewStoreAllocator(kvstore.NewMemory(), 5), AuthorityOptions{
		OnAssign: func(id Identity, requestID string) {
			gotID, gotRequest = id, requestID
		},
	})

	msg := bus.Message{Topic: "espdisplay/subscribe", Payload: []byte(`{"request_id":"r9","request_type":"subscribe"}`)}
	if err := auth.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if gotID != 5 || gotRequest != "r9" {
		t.Errorf("OnAssign got (%d, %q), want (5, \"r9\")", gotID, gotRequest)
	}
}
