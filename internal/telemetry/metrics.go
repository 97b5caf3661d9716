package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

const namespace = "espdisplay"

// Metrics holds the Prometheus collectors for RPC traffic. It implements
// rpc.Recorder.
type Metrics struct {
	calls          *prometheus.CounterVec
	callLatency    *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	drops          *prometheus.CounterVec
	assignments    prometheus.Counter

	reg prometheus.Registerer
}

var _ rpc.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
//
// Parameters:
//   - reg: registry to register with; nil uses prometheus.DefaultRegisterer
//
// Returns:
//   - *Metrics: ready to pass as rpc.Options.Recorder
//   - error: if a collector is already registered
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		reg: reg,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Outbound RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Time from publishing a request to Call returning.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Inbound requests answered, by method and response code (0 for a result).",
		}, []string{"method", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Time spent running a method for an inbound request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "dropped_messages_total",
			Help:      "Inbound messages discarded, by reason.",
		}, []string{"reason"}),
		assignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "assignments_total",
			Help:      "Identities handed out by the authority.",
		}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.callLatency, m.requests, m.requestLatency, m.drops, m.assignments} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// CallCompleted implements rpc.Recorder.
func (m *Metrics) CallCompleted(method string, outcome rpc.Outcome, elapsed time.Duration) {
	m.calls.WithLabelValues(method, outcome.String()).Inc()
	m.callLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RequestHandled implements rpc.Recorder.
func (m *Metrics) RequestHandled(method string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// MessageDropped implements rpc.Recorder.
func (m *Metrics) MessageDropped(reason string) {
	m.drops.WithLabelValues(reason).Inc()
}

// AssignmentMade counts one identity handed out by the authority.
func (m *Metrics) AssignmentMade() {
	m.assignments.Inc()
}

// ObservePending exports fn as the pending-call gauge. fn is typically
// Engine.PendingCount.
func (m *Metrics) ObservePending(fn func() int) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "pending_calls",
		Help:      "Outbound calls waiting for a response.",
	}, func() float64 { return float64(fn()) })
	if err := m.reg.Register(g); err != nil {
		return fmt.Errorf("registering pending gauge: %w", err)
	}
	return nil
}

// ObserveTransportDrops exports fn as the transport inbox overflow counter.
// fn is typically mqtt.Bus.Dropped.
func (m *Metrics) ObserveTransportDrops(fn func() uint64) error {
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "inbox_overflow_total",
		Help:      "Inbound messages lost because the transport inbox was full.",
	}, func() float64 { return float64(fn()) })
	if err := m.reg.Register(c); err != nil {
		return fmt.Errorf("registering transport drop counter: %w", err)
	}
	return nil
}
