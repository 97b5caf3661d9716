package telemetry

import (
	"time"

	"github.com/nerrad567/espdisplay-rpc/internal/identity"
	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

// PointWriter is the subset of *influxdb.Client used for RPC metrics.
type PointWriter interface {
	WriteCallMetric(identity int64, method, outcome string, latency time.Duration)
	WriteRequestMetric(identity int64, method string, code int, latency time.Duration)
	WriteDropMetric(identity int64, reason string)
}

// Influx forwards engine activity to InfluxDB, tagged with the identity the
// engine is bound to.
type Influx struct {
	w        PointWriter
	identity func() identity.Identity
}

var _ rpc.Recorder = (*Influx)(nil)

// NewInflux creates a recorder writing through w. identityFn is read on
// every point so that points written before Begin carry -1.
func NewInflux(w PointWriter, identityFn func() identity.Identity) *Influx {
	return &Influx{w: w, identity: identityFn}
}

func (i *Influx) id() int64 {
	if i.identity == nil {
		return int64(identity.Unassigned)
	}
	return int64(i.identity())
}

// CallCompleted implements rpc.Recorder.
func (i *Influx) CallCompleted(method string, outcome rpc.Outcome, elapsed time.Duration) {
	i.w.WriteCallMetric(i.id(), method, outcome.String(), elapsed)
}

// RequestHandled implements rpc.Recorder.
func (i *Influx) RequestHandled(method string, code int, elapsed time.Duration) {
	i.w.WriteRequestMetric(i.id(), method, code, elapsed)
}

// MessageDropped implements rpc.Recorder.
func (i *Influx) MessageDropped(reason string) {
	i.w.WriteDropMetric(i.id(), reason)
}
