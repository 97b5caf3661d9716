package influxdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/config"
)

// fakeWriter captures points in line protocol.
type fakeWriter struct {
	mu      sync.Mutex
	lines   []string
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.lines = append(w.lines, write.PointToLineProtocol(p, time.Nanosecond))
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writeAPI: w, connected: true}, w
}

func TestWriteMetrics(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Client)
		want  []string
	}{
		{
			name:  "call",
			write: func(c *Client) { c.WriteCallMetric(42, "get_config", "timeout", 5*time.Second) },
			want:  []string{"rpc_calls,", "identity=42", "method=get_config", "outcome=timeout", "latency_ms=5000"},
		},
		{
			name:  "request",
			write: func(c *Client) { c.WriteRequestMetric(42, "add", -32601, 1500*time.Microsecond) },
			want:  []string{"rpc_requests,", "method=add", "code=-32601i", "latency_ms=1.5"},
		},
		{
			name:  "drop",
			write: func(c *Client) { c.WriteDropMetric(7, "malformed") },
			want:  []string{"rpc_drops,", "identity=7", "reason=malformed", "count=1i"},
		},
		{
			name:  "assignment",
			write: func(c *Client) { c.WriteAssignment(43, "req-1") },
			want:  []string{"identity_assignments,", "identity=43i", `request_id="req-1"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestClient()
			tt.write(c)
			if len(w.lines) != 1 {
				t.Fatalf("points written = %d, want 1", len(w.lines))
			}
			for _, part := range tt.want {
				if !strings.Contains(w.lines[0], part) {
					t.Errorf("line %q missing %q", w.lines[0], part)
				}
			}
		})
	}
}

func TestWriteSkippedWhenDisconnected(t *testing.T) {
	c, w := newTestClient()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes on Close = %d, want 1", w.flushes)
	}

	c.WriteCallMetric(1, "m", "success", time.Millisecond)
	c.Flush()
	if len(w.lines) != 0 {
		t.Errorf("points written after Close = %d, want 0", len(w.lines))
	}
	if w.flushes != 1 {
		t.Errorf("Flush after Close reached the writer")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{name: "configured", cfg: config.InfluxDBConfig{BatchSize: 500, FlushInterval: 2}, wantBatch: 500, wantFlush: 2000},
		{name: "zero falls back", cfg: config.InfluxDBConfig{}, wantBatch: 100, wantFlush: 10000},
		{name: "negative falls back", cfg: config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, wantBatch: 100, wantFlush: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(tt.cfg)
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("FlushInterval() = %d ms, want %d", got, tt.wantFlush)
			}
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	_, err := Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "x",
		Org:     "o",
		Bucket:  "b",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// TestConnect_Live runs against a local InfluxDB when RUN_INTEGRATION is set.
func TestConnect_Live(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("RUN_INTEGRATION not set")
	}
	client, err := Connect(config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "espdisplay-dev-token",
		Org:           "espdisplay",
		Bucket:        "metrics",
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	client.WriteCallMetric(42, "get_config", "success", 12*time.Millisecond)
	client.Flush()
}
