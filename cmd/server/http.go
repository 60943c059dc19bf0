package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"milestone-bot/internal/domain"
	"milestone-bot/internal/health"
	"milestone-bot/internal/observability"
	"milestone-bot/internal/storage"
)

// cycleTrigger runs a cycle on demand; false means one is already running.
type cycleTrigger interface {
	Trigger(ctx context.Context) (domain.CycleStats, bool)
}

type statsSource interface {
	CurrentStats() domain.CycleStats
}

// Server serves the HTTP surface.
type Server struct {
	provider   string
	stats      statsSource
	trigger    cycleTrigger
	health     *health.Checker
	milestones storage.MilestoneConfigStore
	groups     *domain.GroupRegistry
	cycles     storage.CycleRunStore // optional
	metrics    *observability.Metrics
	stream     http.Handler
	logger     *slog.Logger
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /trigger", s.handleTrigger)
	mux.HandleFunc("GET /cycles", s.handleCycles)
	mux.HandleFunc("GET /milestones", s.handleListMilestones)
	mux.HandleFunc("POST /milestones", s.handleCreateMilestone)
	mux.HandleFunc("DELETE /milestones/{id}", s.handleDeactivateMilestone)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.stream != nil {
		mux.Handle("GET /ws", s.stream)
	}
	return mux
}

// RootResponse is the JSON response for / endpoint.
type RootResponse struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Provider string `json:"provider"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{Name: appName, Version: version, Provider: s.provider})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, health.NewStatsView(s.stats.CurrentStats()))
}

// TriggerResponse is the JSON response for /trigger endpoint.
type TriggerResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Stats   *health.StatsView `json:"stats,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.trigger.Trigger(context.WithoutCancel(r.Context()))
	if !ok {
		writeJSON(w, http.StatusOK, TriggerResponse{Success: false, Message: "Polling cycle is already running"})
		return
	}
	view := health.NewStatsView(stats)
	writeJSON(w, http.StatusOK, TriggerResponse{Success: true, Message: "Polling cycle completed", Stats: &view})
}

// CycleRunResponse is one entry of the /cycles response.
type CycleRunResponse struct {
	CycleID    string `json:"cycle_id"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at"`
	DurationMs int64  `json:"duration_ms"`
	Processed  int    `json:"processed"`
	AlertsSent int    `json:"alerts_sent"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.cycles == nil {
		writeError(w, http.StatusNotFound, "cycle history is not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.cycles.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list cycle runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cycle runs")
		return
	}
	out := make([]CycleRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, CycleRunResponse{
			CycleID:    run.CycleID,
			StartedAt:  run.StartedAt.UTC().Format(timeFormat),
			EndedAt:    run.EndedAt.UTC().Format(timeFormat),
			DurationMs: run.DurationMs,
			Processed:  run.Processed,
			AlertsSent: run.AlertsSent,
			Skipped:    run.Skipped,
			Errors:     run.Errors,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// MilestoneResponse is the JSON form of a milestone config.
type MilestoneResponse struct {
	ID        int64   `json:"id"`
	Group     string  `json:"group"`
	Value     float64 `json:"value"`
	Label     string  `json:"label"`
	IsActive  bool    `json:"is_active"`
	CreatedBy *string `json:"created_by,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

func newMilestoneResponse(m domain.MilestoneConfig) MilestoneResponse {
	return MilestoneResponse{
		ID:        m.ID,
		Group:     string(m.Group),
		Value:     m.Value,
		Label:     m.Label,
		IsActive:  m.IsActive,
		CreatedBy: m.CreatedBy,
		Notes:     m.Notes,
	}
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	groups := s.groups.Groups()
	if g := r.URL.Query().Get("group"); g != "" {
		if _, ok := s.groups.Lookup(domain.Group(g)); !ok {
			writeError(w, http.StatusBadRequest, "unknown group")
			return
		}
		groups = []domain.Group{domain.Group(g)}
	}

	out := []MilestoneResponse{}
	for _, g := range groups {
		list, err := s.milestones.ListActive(r.Context(), g)
		if err != nil {
			s.logger.Error("list milestones", "group", g, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list milestones")
			return
		}
		for _, m := range list {
			out = append(out, newMilestoneResponse(m))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateMilestoneRequest is the body of POST /milestones.
type CreateMilestoneRequest struct {
	Group     string  `json:"group"`
	Value     float64 `json:"value"`
	Label     string  `json:"label"`
	CreatedBy *string `json:"created_by"`
	Notes     *string `json:"notes"`
}

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	var req CreateMilestoneRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, ok := s.groups.Lookup(domain.Group(req.Group)); !ok {
		writeError(w, http.StatusBadRequest, "unknown group")
		return
	}
	if req.Value <= 0 {
		writeError(w, http.StatusBadRequest, "value must be positive")
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		req.Label = strconv.FormatFloat(req.Value, 'f', -1, 64) + "x"
	}

	created, err := s.milestones.Create(r.Context(), &domain.MilestoneConfig{
		Group:     domain.Group(req.Group),
		Value:     req.Value,
		Label:     req.Label,
		IsActive:  true,
		CreatedBy: req.CreatedBy,
		Notes:     req.Notes,
	})
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "value must be positive")
	case errors.Is(err, storage.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "an active milestone with this value exists")
	case err != nil:
		s.logger.Error("create milestone", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create milestone")
	default:
		s.logger.Info("milestone created", "group", created.Group, "value", created.Value, "id", created.ID)
		writeJSON(w, http.StatusCreated, newMilestoneResponse(*created))
	}
}

func (s *Server) handleDeactivateMilestone(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid milestone id")
		return
	}
	switch err := s.milestones.Deactivate(r.Context(), id); {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "milestone not found")
	case err != nil:
		s.logger.Error("deactivate milestone", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate milestone")
	default:
		s.logger.Info("milestone deactivated", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
