package main

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tapcast/tapcast/internal/types"
)

// REST API for driving capture from automation (playout systems, cron,
// monitoring). Authenticated with the X-API-Key header.

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// apiKeyAuth returns middleware for API key authentication.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.GetAPIKey()
		if apiKey == "" {
			s.writeError(w, http.StatusServiceUnavailable, "API key not configured")
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// apiCaptureRequest is the optional body for POST /api/capture/start.
type apiCaptureRequest struct {
	Endpoint string `json:"endpoint"`
	Input    string `json:"input"`
}

// handleAPICaptureStart handles POST /api/capture/start.
func (s *Server) handleAPICaptureStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req apiCaptureRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = s.config.Endpoint()
	}
	if endpoint == "" {
		s.writeError(w, http.StatusBadRequest, "no processing endpoint configured")
		return
	}
	input := req.Input
	if input == "" {
		input = s.config.AudioInput()
	}

	// Block until the worker acknowledges so automation gets the real
	// outcome, not an optimistic accept.
	if err := s.orch.StartWait(endpoint, input); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "capturing", "endpoint": endpoint})
}

// handleAPICaptureStop handles POST /api/capture/stop.
func (s *Server) handleAPICaptureStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.orch.Stop(); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "capture_stopping"})
}

// apiStatusResponse is the body of GET /api/status.
type apiStatusResponse struct {
	Status  types.StatusReply    `json:"status"`
	Session types.CaptureSession `json:"session"`
	Uptime  int64                `json:"uptime_ms,omitempty"`
}

// handleAPIStatus handles GET /api/status.
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	session := s.orch.Status()
	resp := apiStatusResponse{
		Status:  s.orch.StatusReply(),
		Session: session,
	}
	if session.State == types.StateStreaming && !session.StartedAt.IsZero() {
		resp.Uptime = time.Since(session.StartedAt).Milliseconds()
	}

	s.writeJSON(w, http.StatusOK, resp)
}
