package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/espdisplay-rpc/internal/rpc"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

type componentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth runs every registered check. Any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	overall := "ok"
	components := make([]componentHealth, 0, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()

		c := componentHealth{Name: name, Status: "ok"}
		if err != nil {
			c.Status = "unhealthy"
			c.Error = err.Error()
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		components = append(components, c)
	}

	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}

// handleIdentity reports the engine's identity, topics and registered methods.
func (s *Server) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil {
		writeUnavailable(w, "no rpc engine in this process")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleCall forwards the request body as params to the named method and
// answers with its result.
//
// Status mapping: remote error 502, timeout 504, engine not started 503.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.caller == nil {
		writeUnavailable(w, "no rpc engine in this process")
		return
	}
	method := chi.URLParam(r, "method")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading body: "+err.Error())
		return
	}
	var params json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			writeBadRequest(w, "body is not valid JSON")
			return
		}
		params = body
	}

	result, err := s.caller.Call(r.Context(), method, params, s.callTimeout)
	if err != nil {
		s.writeCallError(w, method, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"result": result})
}

func (s *Server) writeCallError(w http.ResponseWriter, method string, err error) {
	if rerr, ok := rpc.IsRemote(err); ok {
		writeJSON(w, http.StatusBadGateway, Error{
			Status:  http.StatusBadGateway,
			Code:    ErrCodeRemote,
			Message: rerr.Message,
			RPCCode: rerr.Code,
		})
		return
	}

	switch {
	case errors.Is(err, rpc.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, rpc.ErrNotProvisioned):
		writeUnavailable(w, err.Error())
	default:
		s.logger.Warn("admin rpc call failed", "method", method, "error", err)
		writeInternalError(w, err.Error())
	}
}
