package telemetry

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/espdisplay-rpc/internal/identity"
	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reg
}

func TestMetrics_Recorder(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.CallCompleted("get_config", rpc.OutcomeSuccess, 20*time.Millisecond)
	m.CallCompleted("get_config", rpc.OutcomeTimeout, 5*time.Second)
	m.CallCompleted("get_config", rpc.OutcomeTimeout, 5*time.Second)
	m.RequestHandled("add", 0, time.Millisecond)
	m.RequestHandled("nope", rpc.CodeMethodNotFound, time.Millisecond)
	m.MessageDropped(rpc.DropMalformed)
	m.AssignmentMade()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"successful calls", testutil.ToFloat64(m.calls.WithLabelValues("get_config", "success")), 1},
		{"timed out calls", testutil.ToFloat64(m.calls.WithLabelValues("get_config", "timeout")), 2},
		{"answered requests", testutil.ToFloat64(m.requests.WithLabelValues("add", "0")), 1},
		{"method not found", testutil.ToFloat64(m.requests.WithLabelValues("nope", "-32601")), 1},
		{"malformed drops", testutil.ToFloat64(m.drops.WithLabelValues("malformed")), 1},
		{"assignments", testutil.ToFloat64(m.assignments), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.callLatency); n != 1 {
		t.Errorf("call latency series = %d, want 1", n)
	}
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first NewMetrics() error = %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second NewMetrics() on the same registry succeeded")
	}
}

func TestMetrics_FuncCollectors(t *testing.T) {
	m, reg := newTestMetrics(t)
	pending := 3
	if err := m.ObservePending(func() int { return pending }); err != nil {
		t.Fatalf("ObservePending() error = %v", err)
	}
	if err := m.ObserveTransportDrops(func() uint64 { return 7 }); err != nil {
		t.Fatalf("ObserveTransportDrops() error = %v", err)
	}

	expected := `
# HELP espdisplay_rpc_pending_calls Outbound calls waiting for a response.
# TYPE espdisplay_rpc_pending_calls gauge
espdisplay_rpc_pending_calls 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "espdisplay_rpc_pending_calls"); err != nil {
		t.Errorf("pending gauge mismatch: %v", err)
	}

	expected = `
# HELP espdisplay_transport_inbox_overflow_total Inbound messages lost because the transport inbox was full.
# TYPE espdisplay_transport_inbox_overflow_total counter
espdisplay_transport_inbox_overflow_total 7
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "espdisplay_transport_inbox_overflow_total"); err != nil {
		t.Errorf("transport drop counter mismatch: %v", err)
	}
}

type fakeWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *fakeWriter) add(s string) {
	w.mu.Lock()
	w.lines = append(w.lines, s)
	w.mu.Unlock()
}

func (w *fakeWriter) WriteCallMetric(id int64, method, outcome string, _ time.Duration) {
	w.add("call " + identity.Identity(id).String() + " " + method + " " + outcome)
}

func (w *fakeWriter) WriteRequestMetric(id int64, method string, code int, _ time.Duration) {
	w.add("request " + identity.Identity(id).String() + " " + method)
}

func (w *fakeWriter) WriteDropMetric(id int64, reason string) {
	w.add("drop " + identity.Identity(id).String() + " " + reason)
}

func TestInflux_TagsIdentity(t *testing.T) {
	w := &fakeWriter{}
	rec := NewInflux(w, func() identity.Identity { return 42 })

	rec.CallCompleted("get_config", rpc.OutcomeRemoteError, time.Millisecond)
	rec.RequestHandled("add", 0, time.Millisecond)
	rec.MessageDropped(rpc.DropLoopback)

	want := []string{
		"call 42 get_config remote_error",
		"request 42 add",
		"drop 42 loopback",
	}
	if strings.Join(w.lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", w.lines, want)
	}
}

func TestInflux_NoIdentityFunc(t *testing.T) {
	w := &fakeWriter{}
	NewInflux(w, nil).MessageDropped(rpc.DropNotReady)
	if len(w.lines) != 1 || w.lines[0] != "drop -1 not_ready" {
		t.Errorf("lines = %q", w.lines)
	}
}

func TestCombine(t *testing.T) {
	if _, ok := Combine().(rpc.NopRecorder); !ok {
		t.Error("Combine() should return NopRecorder")
	}
	if _, ok := Combine(nil, nil).(rpc.NopRecorder); !ok {
		t.Error("Combine(nil, nil) should return NopRecorder")
	}

	a, b := &fakeWriter{}, &fakeWriter{}
	ra := NewInflux(a, nil)
	if got := Combine(nil, ra); got != rpc.Recorder(ra) {
		t.Error("Combine with one recorder should return it unchanged")
	}

	all := Combine(ra, NewInflux(b, nil))
	all.MessageDropped("x")
	all.CallCompleted("m", rpc.OutcomeSuccess, 0)
	all.RequestHandled("m", 0, 0)
	if len(a.lines) != 3 || len(b.lines) != 3 {
		t.Errorf("fan-out reached %d and %d writes, want 3 each", len(a.lines), len(b.lines))
	}
}
