package telemetry

import (
	"time"

	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

// Fanout reports to every recorder in order.
type Fanout []rpc.Recorder

// Combine returns a recorder reporting to each non-nil r. It returns
// rpc.NopRecorder when none remain and r itself when only one does.
func Combine(recorders ...rpc.Recorder) rpc.Recorder {
	var out Fanout
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return rpc.NopRecorder{}
	case 1:
		return out[0]
	default:
		return out
	}
}

// CallCompleted implements rpc.Recorder.
func (f Fanout) CallCompleted(method string, outcome rpc.Outcome, elapsed time.Duration) {
	for _, r := range f {
		r.CallCompleted(method, outcome, elapsed)
	}
}

// RequestHandled implements rpc.Recorder.
func (f Fanout) RequestHandled(method string, code int, elapsed time.Duration) {
	for _, r := range f {
		r.RequestHandled(method, code, elapsed)
	}
}

// MessageDropped implements rpc.Recorder.
func (f Fanout) MessageDropped(reason string) {
	for _, r := range f {
		r.MessageDropped(reason)
	}
}
