package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/courier/internal/events"
)

// HealthzResponse is the GET /healthz body.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ChannelDepth  int    `json:"channel_depth"`
}

// StatusResponse is the GET /v1/status body.
type StatusResponse struct {
	Channel       string   `json:"channel"`
	ChannelDepth  int      `json:"channel_depth"`
	Workers       []string `json:"workers"`
	UptimeSeconds int64    `json:"uptime_seconds"`
}

// EventsResponse is the GET /v1/events body.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.channel.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute channel depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute channel depth")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ChannelDepth:  depth,
	})
}

// handleStatus handles GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := s.channel.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute channel depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute channel depth")
		return
	}

	workers := s.workers
	if workers == nil {
		workers = []string{}
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Channel:       s.config.ChannelName,
		ChannelDepth:  depth,
		Workers:       workers,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleEvents handles GET /v1/events?since=<id>.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = parsed
	}

	evs := s.hub.SnapshotSince(since)
	if evs == nil {
		evs = []events.Event{}
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: evs})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
