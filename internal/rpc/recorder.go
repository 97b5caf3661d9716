package rpc

import (
	"context"
	"errors"
	"time"
)

// Outcome classifies how an outbound call ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRemoteError
	OutcomeTimeout
	OutcomeCanceled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRemoteError:
		return "remote_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "failed"
	}
}

// OutcomeOf maps a Call error to its Outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if _, ok := IsRemote(err); ok {
		return OutcomeRemoteError
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}

// Reasons passed to Recorder.MessageDropped.
const (
	DropMalformed    = "malformed"
	DropUnanswerable = "unanswerable"
	DropUnsolicited  = "unsolicited"
	DropForeignTopic = "foreign_topic"
	DropLoopback     = "loopback"
	DropNotReady     = "not_ready"
	DropUnrecognised = "unrecognised"
)

// Recorder observes engine activity. Implementations must be safe for
// concurrent use and must not block.
type Recorder interface {
	// CallCompleted is reported once per Call after it returns.
	CallCompleted(method string, outcome Outcome, elapsed time.Duration)

	// RequestHandled is reported once per answered inbound request.
	// code is 0 on success or the JSON-RPC error code sent.
	RequestHandled(method string, code int, elapsed time.Duration)

	// MessageDropped is reported for every inbound message discarded.
	MessageDropped(reason string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) CallCompleted(string, Outcome, time.Duration) {}
func (NopRecorder) RequestHandled(string, int, time.Duration)    {}
func (NopRecorder) MessageDropped(string)                        {}
