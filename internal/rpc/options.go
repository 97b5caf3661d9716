package rpc

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultTimeout applies to calls made with a zero timeout.
const DefaultTimeout = 5 * time.Second

// maxIDAttempts bounds correlation id redraws on collision.
const maxIDAttempts = 8

// Role selects which end of the topic pair an engine sits on.
type Role int

const (
	// RoleDevice listens on <prefix>/<id>/server and publishes on
	// <prefix>/<id>/client.
	RoleDevice Role = iota

	// RoleController is the mirror image, used by whoever drives a device.
	RoleController
)

func (r Role) String() string {
	if r == RoleController {
		return "controller"
	}
	return "device"
}

// Logger is the logging surface used by the engine.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Prefix is the topic prefix. Default "espdisplay".
	Prefix string

	Role Role

	// DefaultTimeout replaces a zero or negative Call timeout.
	DefaultTimeout time.Duration

	Logger   Logger
	Recorder Recorder

	// WarnRate and WarnBurst limit warnings about malformed traffic.
	// Defaults: one per second, burst of 5.
	WarnRate  rate.Limit
	WarnBurst int

	// NewID draws correlation ids. Default uuid.NewString.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Recorder == nil {
		o.Recorder = NopRecorder{}
	}
	if o.WarnRate == 0 {
		o.WarnRate = rate.Every(time.Second)
	}
	if o.WarnBurst <= 0 {
		o.WarnBurst = 5
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}
