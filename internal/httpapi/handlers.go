package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/repo"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

func (s *Server) monitorID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// validMonitorURL accepts absolute http/https URLs with a host.
func validMonitorURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ---- monitor CRUD ----

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.Monitors.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, monitors)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := s.Monitors.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type createPayload struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) handleCreateMonitor(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if !validMonitorURL(p.URL) {
		writeError(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	m := &domain.Monitor{
		URL:       p.URL,
		Name:      p.Name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Monitors.Create(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "could not create monitor")
		return
	}

	s.Logger.Info("monitor_created",
		zap.Int64("monitor_id", m.ID),
		zap.String("url", m.URL),
	)
	writeJSON(w, http.StatusCreated, m)
}

type updatePayload struct {
	URL      *string `json:"url"`
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

func (s *Server) handleUpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var p updatePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.URL != nil && !validMonitorURL(*p.URL) {
		writeError(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	m, err := s.Monitors.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}

	if p.URL != nil {
		m.URL = *p.URL
	}
	if p.Name != nil {
		m.Name = *p.Name
		if m.Name == "" {
			m.Name = m.URL
		}
	}
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}

	if err := s.Monitors.Update(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "could not update monitor")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	err := s.Monitors.Delete(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete monitor")
		return
	}
	s.Logger.Info("monitor_deleted", zap.Int64("monitor_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"message": "monitor deleted"})
}

// ---- check triggers ----

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	if err := s.Deep.RunAll(r.Context(), true); err != nil {
		writeError(w, http.StatusInternalServerError, "deep check batch failed")
		return
	}
	monitors, err := s.Monitors.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "all monitors refreshed",
		"data":    monitors,
	})
}

func (s *Server) handleCheckAllLight(w http.ResponseWriter, r *http.Request) {
	if err := s.Light.RunAll(r.Context(), true); err != nil {
		writeError(w, http.StatusInternalServerError, "light check batch failed")
		return
	}
	monitors, err := s.Monitors.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "all monitors light-checked",
		"data":    monitors,
	})
}

func (s *Server) handleCheckOne(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := s.Monitors.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}

	if err := s.Deep.CheckOne(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "deep check failed")
		return
	}
	m, err = s.Monitors.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "monitor refreshed",
		"data":    m,
	})
}

func (s *Server) handleCheckOneLight(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := s.Monitors.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}

	// On-demand heartbeats always apply the 405 fallback; only scheduled
	// batches follow the configured policy.
	light := *s.Light
	light.RetryGetOn405 = true
	if err := light.CheckOne(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "light check failed")
		return
	}
	m, err = s.Monitors.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "monitor light-checked",
		"data":    m,
	})
}

// ---- logs ----

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	logs, err := s.Logs.ListByMonitor(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list logs error")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.Logs.DeleteForMonitor(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "delete logs error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logs deleted"})
}

func (s *Server) handleDeleteAllLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.Logs.DeleteAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "delete logs error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "all logs deleted"})
}

// ---- stability ----

func (s *Server) handleStability(w http.ResponseWriter, r *http.Request) {
	id, ok := s.monitorID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if _, err := s.Monitors.Get(r.Context(), id); errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}

	score, err := s.Scorer.Score(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stability error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"monitor_id":      id,
		"stability_score": score,
	})
}
