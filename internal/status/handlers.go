package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/agent"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/link"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := rootPage.Execute(w, s.agent.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to render status page")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Snapshot())
}

// handleConfigure accepts the provisioning form: ssid and server are
// required, pass is optional and left blank keeps the stored one.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	creds := device.Credentials{
		SSID:       r.PostForm.Get("ssid"),
		Passphrase: r.PostForm.Get("pass"),
		ServerURL:  strings.TrimSpace(r.PostForm.Get("server")),
	}
	if creds.SSID == "" || creds.ServerURL == "" {
		http.Error(w, "missing required fields (ssid/server)", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
	defer cancel()

	if err := s.agent.Configure(ctx, creds); err != nil {
		log.Error().Err(err).Msg("Failed to apply provisioning request")
		http.Error(w, "failed to save configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := savedPage.Execute(w, creds.SSID); err != nil {
		log.Error().Err(err).Msg("Failed to render confirmation page")
	}
}

type relayRequest struct {
	On *bool `json:"on"`
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"on\": bool}")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
	defer cancel()

	if err := s.agent.SetRelay(ctx, *req.On, "local"); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Snapshot())
}

type polarityRequest struct {
	Polarity string `json:"polarity"`
}

func (s *Server) handlePolarity(w http.ResponseWriter, r *http.Request) {
	var req polarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"polarity\": string}")
		return
	}
	p, err := device.ParsePolarity(req.Polarity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
	defer cancel()

	if err := s.agent.SetPolarity(ctx, p); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Snapshot())
}

type apRequest struct {
	Persistent *bool `json:"persistent"`
}

func (s *Server) handleAP(w http.ResponseWriter, r *http.Request) {
	var req apRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Persistent == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"persistent\": bool}")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), opTimeout)
	defer cancel()

	if err := s.agent.SetAPPersistent(ctx, *req.Persistent); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, "event ledger disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}

	entries, err := s.events.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "phase": s.agent.Snapshot().Phase})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not found", http.StatusNotFound)
}

func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "agent busy, try again")
	case errors.Is(err, link.ErrAPNotConcurrent):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
