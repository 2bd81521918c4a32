package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// handleGetSetting returns a GET handler for one settings key, responding
// with {"<field>": value}.
func (s *Server) handleGetSetting(key string, fallback int, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := s.Settings.GetInt(r.Context(), key, fallback)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "settings error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{field: v})
	}
}

// handleSetSetting returns a PUT handler for one settings key. Values outside
// [min, max] are rejected before anything is written.
func (s *Server) handleSetSetting(key, field string, min, max int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]int
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "bad payload")
			return
		}
		v, ok := payload[field]
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", field))
			return
		}
		if v < min || v > max {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be between %d and %d", field, min, max))
			return
		}
		if err := s.Settings.Set(r.Context(), key, v); err != nil {
			writeError(w, http.StatusInternalServerError, "settings error")
			return
		}
		s.Logger.Info("setting_updated", zap.String("key", key), zap.Int("value", v))
		writeJSON(w, http.StatusOK, map[string]int{field: v})
	}
}
