package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/config"
	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/logging"
	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure clients (mqtt, database,
// influxdb) that can report their own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusProvider reports engine state. *rpc.Engine satisfies it.
type StatusProvider interface {
	Status() rpc.Status
}

// Caller issues RPC calls. *rpc.Engine satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger

	// Engine is optional; without it /identity answers 503.
	Engine StatusProvider

	// Caller is optional; without it /rpc/{method} answers 503.
	Caller      Caller
	CallTimeout time.Duration

	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthChecker

	// Gatherer backs /metrics. nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Version string
}

// Server is the admin HTTP server.
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	engine      StatusProvider
	caller      Caller
	callTimeout time.Duration
	checks      map[string]HealthChecker
	gatherer    prometheus.Gatherer
	version     string
	server      *http.Server
}

// New creates an API server. It does not listen until Start.
//
// Parameters:
//   - deps: Required dependencies (config, logger) and optional components
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = rpc.DefaultTimeout
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		engine:      deps.Engine,
		caller:      deps.Caller,
		callTimeout: deps.CallTimeout,
		checks:      deps.Checks,
		gatherer:    deps.Gatherer,
		version:     deps.Version,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
