package middleware

import (
	"net/http"
	"strings"
)

// Keys carries the configured API keys per tier, straight from config.FromEnv.
// A tier with no keys disables its check entirely, so a bare local setup runs
// without any keys.
type Keys struct {
	Public []string
	Admin  []string
}

type keySet map[string]struct{}

func newKeySet(keys []string) keySet {
	s := make(keySet, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

func (s keySet) contains(key string) bool {
	if key == "" {
		return false
	}
	_, ok := s[key]
	return ok
}

// extractKey reads the caller's key from "Authorization: Bearer <key>" or the
// X-API-Key header. Bearer wins when both are present.
func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// deny writes the same {"error": ...} body shape the API handlers use.
func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RequireAny admits requests carrying any configured key, public or admin.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	public := newKeySet(keys.Public)
	admin := newKeySet(keys.Admin)
	return func(next http.Handler) http.Handler {
		if len(public) == 0 && len(admin) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if public.contains(key) || admin.contains(key) {
				next.ServeHTTP(w, r)
				return
			}
			deny(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// RequireAdmin admits only admin keys; public keys get 403, not 401, so the
// caller can tell a bad key from an underprivileged one.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	admin := newKeySet(keys.Admin)
	return func(next http.Handler) http.Handler {
		if len(admin) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if admin.contains(extractKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			deny(w, http.StatusForbidden, "forbidden")
		})
	}
}
