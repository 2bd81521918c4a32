package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/check"
	apimw "github.com/ktshq/sitewatch/internal/httpapi/middleware"
	"github.com/ktshq/sitewatch/internal/repo"
)

type Server struct {
	Logger   *zap.Logger
	Monitors repo.MonitorStore
	Logs     repo.LogStore
	Settings repo.SettingsStore
	Deep     *check.DeepRunner
	Light    *check.LightRunner
	Scorer   *check.StabilityScorer
}

func NewServer(l *zap.Logger, monitors repo.MonitorStore, logs repo.LogStore, settings repo.SettingsStore, deep *check.DeepRunner, light *check.LightRunner, scorer *check.StabilityScorer) *Server {
	return &Server{
		Logger:   l,
		Monitors: monitors,
		Logs:     logs,
		Settings: settings,
		Deep:     deep,
		Light:    light,
		Scorer:   scorer,
	}
}

func (s *Server) Router(keys apimw.Keys, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// read endpoints: any key
	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAny(keys))
		r.Use(apimw.RateLimit(publicRPM, publicBurst))

		r.Get("/api/monitors", s.handleListMonitors)
		r.Get("/api/monitors/{id}", s.handleGetMonitor)
		r.Get("/api/monitors/{id}/logs", s.handleListLogs)
		r.Get("/api/monitors/{id}/stability", s.handleStability)

		r.Get("/api/settings/interval", s.handleGetSetting(repo.KeyDeepIntervalMinutes, repo.DefaultDeepIntervalMinutes, "interval_minutes"))
		r.Get("/api/settings/interval-light", s.handleGetSetting(repo.KeyLightIntervalMinutes, repo.DefaultLightIntervalMinutes, "interval_minutes"))
		r.Get("/api/settings/light-batch-size", s.handleGetSetting(repo.KeyLightBatchSize, repo.DefaultLightBatchSize, "batch_size"))
		r.Get("/api/settings/log-retention", s.handleGetSetting(repo.KeyLogRetentionDays, repo.DefaultLogRetentionDays, "retention_days"))
	})

	// mutating endpoints: admin key
	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAdmin(keys))
		r.Use(apimw.RateLimit(adminRPM, adminBurst))

		r.Post("/api/monitors", s.handleCreateMonitor)
		r.Patch("/api/monitors/{id}", s.handleUpdateMonitor)
		r.Delete("/api/monitors/{id}", s.handleDeleteMonitor)

		r.Post("/api/monitors/check", s.handleCheckAll)
		r.Post("/api/monitors/check-light", s.handleCheckAllLight)
		r.Post("/api/monitors/{id}/check", s.handleCheckOne)
		r.Post("/api/monitors/{id}/check-light", s.handleCheckOneLight)

		r.Delete("/api/monitors/{id}/logs", s.handleDeleteLogs)
		r.Delete("/api/logs", s.handleDeleteAllLogs)

		r.Put("/api/settings/interval", s.handleSetSetting(repo.KeyDeepIntervalMinutes, "interval_minutes", 1, 10080))
		r.Put("/api/settings/interval-light", s.handleSetSetting(repo.KeyLightIntervalMinutes, "interval_minutes", 1, 10080))
		r.Put("/api/settings/light-batch-size", s.handleSetSetting(repo.KeyLightBatchSize, "batch_size", 1, 1000))
		r.Put("/api/settings/log-retention", s.handleSetSetting(repo.KeyLogRetentionDays, "retention_days", 1, 365))
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
