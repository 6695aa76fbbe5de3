package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/voicebridge/voicebridge/internal/dispatch"
	"github.com/voicebridge/voicebridge/internal/rules"
	"github.com/voicebridge/voicebridge/internal/version"
)

// signatureHeader carries the platform HMAC signature on webhook deliveries.
const signatureHeader = "Elevenlabs-Signature"

// maxWebhookBody bounds a single webhook delivery.
const maxWebhookBody = 4 * 1024 * 1024 // 4MB

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Clients  int    `json:"clients"`
	Inflight int    `json:"inflight"`
}

// WebhookResponse acknowledges an accepted webhook delivery.
type WebhookResponse struct {
	Status  string `json:"status"` // "accepted" | "duplicate"
	RunID   string `json:"runId,omitempty"`
	EventID string `json:"eventId,omitempty"`
}

// handleWebhook verifies, normalizes, and dispatches one platform event.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.allow(r.RemoteAddr) {
		writeError(w, http.StatusTooManyRequests, "too many failed requests")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if s.cfg.Gateway.SkipVerify {
		s.log.Warn().Msg("webhook signature check skipped")
	} else if !VerifySignature(s.cfg.Gateway.WebhookSecret, body, r.Header.Get(signatureHeader)) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature mismatch")
		s.loginLimiter.recordFailure(r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := NormalizeEvent(body, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.dispatcher.Dispatch(r.Context(), ev)
	switch {
	case err == nil && run == nil:
		// Redelivery of an already completed event.
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "duplicate", EventID: ev.ID})
	case err == nil:
		s.log.Info().
			Str("event", ev.ID).
			Str("agent", ev.AgentID).
			Str("type", ev.Type).
			Str("run", run.ID).
			Msg("event accepted")
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "accepted", RunID: run.ID, EventID: ev.ID})
	case errors.Is(err, dispatch.ErrUnknownAgent):
		writeError(w, http.StatusNotFound, "no agent configured for id "+ev.AgentID)
	default:
		var resErr *rules.ResolutionError
		if errors.As(err, &resErr) {
			writeError(w, http.StatusUnprocessableEntity, resErr.Error())
			return
		}
		s.log.Error().Err(err).Str("event", ev.ID).Msg("dispatch failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleHealth reports liveness plus a few cheap gauges.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Clients:  s.clients.Count(),
		Inflight: s.dispatcher.InflightCount(),
	})
}

// handleReload re-reads agent definitions and the rule matrix. In-flight
// runs keep the snapshot they started with.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !s.adminAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.configs.Reload(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	snap := s.configs.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": snap.Version,
		"agents":  len(snap.Agents),
	})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
