package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/check"
	"github.com/ktshq/sitewatch/internal/domain"
	apimw "github.com/ktshq/sitewatch/internal/httpapi/middleware"
	"github.com/ktshq/sitewatch/internal/probe"
	"github.com/ktshq/sitewatch/internal/repo/memory"
)

func newTestAPI(t *testing.T, keys apimw.Keys) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	logger := zap.NewNop()
	gate := check.NewGate(store, store)
	deep := check.NewDeepRunner(logger, store, store, probe.NewHTTPProber(), gate, 2)
	light := check.NewLightRunner(logger, store, store, store, probe.NewHTTPProber(), 2*time.Second, 2)
	scorer := check.NewStabilityScorer(store)
	srv := NewServer(logger, store, store, store, deep, light, scorer)
	return store, srv.Router(keys, 0, 0, 0, 0)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestMonitorCRUD(t *testing.T) {
	_, h := newTestAPI(t, apimw.Keys{})

	// invalid payloads never create anything
	if rec := doJSON(t, h, http.MethodPost, "/api/monitors", map[string]string{"url": "ftp://example.com"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("ftp url: want 400, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/monitors", map[string]string{"url": "not a url"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage url: want 400, got %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/monitors", map[string]string{"url": "https://example.com", "name": "Example"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Monitor
	decodeBody(t, rec, &created)
	if created.ID == 0 || created.Name != "Example" || !created.IsActive {
		t.Fatalf("unexpected created monitor: %+v", created)
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: want 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/monitors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: want 200, got %d", rec.Code)
	}
	var list []domain.Monitor
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("want 1 monitor listed, got %d", len(list))
	}

	// patch flips is_active and renames
	inactive := false
	name := "Renamed"
	rec = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/api/monitors/%d", created.ID), map[string]any{"is_active": inactive, "name": name})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var patched domain.Monitor
	decodeBody(t, rec, &patched)
	if patched.IsActive || patched.Name != "Renamed" {
		t.Fatalf("patch not applied: %+v", patched)
	}

	// patch with a broken url is rejected without side effects
	rec = doJSON(t, h, http.MethodPatch, fmt.Sprintf("/api/monitors/%d", created.ID), map[string]any{"url": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad patch url: want 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/monitors/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: want 200, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d", created.ID), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: want 404, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodDelete, "/api/monitors/999", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("delete unknown: want 404, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodGet, "/api/monitors/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id: want 400, got %d", rec.Code)
	}
}

func TestCheckOneEndpoint(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer target.Close()

	store, h := newTestAPI(t, apimw.Keys{})
	m := &domain.Monitor{URL: target.URL, IsActive: true}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/monitors/%d/check", m.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data domain.Monitor `json:"data"`
	}
	decodeBody(t, rec, &resp)
	if resp.Data.LastStatus != 200 {
		t.Fatalf("want refreshed last_status 200, got %d", resp.Data.LastStatus)
	}
	if resp.Data.StabilityScore == nil || *resp.Data.StabilityScore != 100 {
		t.Fatalf("want stability 100, got %v", resp.Data.StabilityScore)
	}

	logs, _ := store.ListByMonitor(context.Background(), m.ID, 10)
	if len(logs) != 3 {
		t.Fatalf("deep trigger must log 3 attempts, got %d", len(logs))
	}

	if rec = doJSON(t, h, http.MethodPost, "/api/monitors/999/check", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("check unknown: want 404, got %d", rec.Code)
	}
}

func TestCheckOneLightAlwaysRetries405(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(200)
	}))
	defer target.Close()

	store, h := newTestAPI(t, apimw.Keys{})
	m := &domain.Monitor{URL: target.URL, IsActive: true}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/monitors/%d/check-light", m.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check-light: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data domain.Monitor `json:"data"`
	}
	decodeBody(t, rec, &resp)
	// on-demand heartbeats retry a 405 as GET even when the scheduled policy
	// is off
	if resp.Data.LastStatus != 200 {
		t.Fatalf("want 200 after GET fallback, got %d", resp.Data.LastStatus)
	}
}

func TestListLogsLimit(t *testing.T) {
	store, h := newTestAPI(t, apimw.Keys{})
	m := &domain.Monitor{URL: "https://example.com", IsActive: true}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}
	now := time.Now().UTC()
	for i := 0; i < 60; i++ {
		status := 200
		rt := 100
		if err := store.Append(context.Background(), &domain.AttemptLog{
			MonitorID:      m.ID,
			StatusCode:     &status,
			ResponseTimeMS: &rt,
			CheckedAt:      now.Add(-time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var logs []domain.AttemptLog

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d/logs", m.ID), nil)
	decodeBody(t, rec, &logs)
	if len(logs) != 50 {
		t.Fatalf("default limit is 50, got %d rows", len(logs))
	}
	// newest first
	if logs[0].CheckedAt.Before(logs[1].CheckedAt) {
		t.Fatalf("logs must come back newest first")
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d/logs?limit=10", m.ID), nil)
	decodeBody(t, rec, &logs)
	if len(logs) != 10 {
		t.Fatalf("want 10 rows, got %d", len(logs))
	}

	// absurd limits get clamped, not rejected
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d/logs?limit=500000", m.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clamped limit: want 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &logs)
	if len(logs) != 60 {
		t.Fatalf("want all 60 rows under the clamp, got %d", len(logs))
	}
}

func TestDeleteLogsEndpoints(t *testing.T) {
	store, h := newTestAPI(t, apimw.Keys{})
	a := &domain.Monitor{URL: "https://a.example.com", IsActive: true}
	b := &domain.Monitor{URL: "https://b.example.com", IsActive: true}
	for _, m := range []*domain.Monitor{a, b} {
		if err := store.Create(context.Background(), m); err != nil {
			t.Fatalf("create: %v", err)
		}
		status := 200
		if err := store.Append(context.Background(), &domain.AttemptLog{MonitorID: m.ID, StatusCode: &status, CheckedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if rec := doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/monitors/%d/logs", a.ID), nil); rec.Code != http.StatusOK {
		t.Fatalf("delete logs: want 200, got %d", rec.Code)
	}
	logsA, _ := store.ListByMonitor(context.Background(), a.ID, 10)
	logsB, _ := store.ListByMonitor(context.Background(), b.ID, 10)
	if len(logsA) != 0 || len(logsB) != 1 {
		t.Fatalf("per-monitor delete leaked: %d/%d", len(logsA), len(logsB))
	}

	if rec := doJSON(t, h, http.MethodDelete, "/api/logs", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete all logs: want 200, got %d", rec.Code)
	}
	logsB, _ = store.ListByMonitor(context.Background(), b.ID, 10)
	if len(logsB) != 0 {
		t.Fatalf("want everything gone, got %d", len(logsB))
	}
}

func TestSettingsEndpoints(t *testing.T) {
	_, h := newTestAPI(t, apimw.Keys{})

	rec := doJSON(t, h, http.MethodGet, "/api/settings/interval", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get interval: want 200, got %d", rec.Code)
	}
	var got map[string]int
	decodeBody(t, rec, &got)
	if got["interval_minutes"] != 60 {
		t.Fatalf("want default 60, got %d", got["interval_minutes"])
	}

	rec = doJSON(t, h, http.MethodPut, "/api/settings/interval", map[string]int{"interval_minutes": 30})
	if rec.Code != http.StatusOK {
		t.Fatalf("put interval: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/api/settings/interval", nil)
	decodeBody(t, rec, &got)
	if got["interval_minutes"] != 30 {
		t.Fatalf("update not persisted, got %d", got["interval_minutes"])
	}

	// out of range and missing field are both rejected
	if rec = doJSON(t, h, http.MethodPut, "/api/settings/interval", map[string]int{"interval_minutes": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero interval: want 400, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodPut, "/api/settings/log-retention", map[string]int{"retention_days": 9999}); rec.Code != http.StatusBadRequest {
		t.Fatalf("huge retention: want 400, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodPut, "/api/settings/light-batch-size", map[string]int{"wrong_field": 5}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing field: want 400, got %d", rec.Code)
	}
}

func TestStabilityEndpoint(t *testing.T) {
	store, h := newTestAPI(t, apimw.Keys{})
	m := &domain.Monitor{URL: "https://example.com", IsActive: true}
	if err := store.Create(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}

	// no data yet: score is null, not an error
	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d/stability", m.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stability: want 200, got %d", rec.Code)
	}
	var resp struct {
		MonitorID      int64 `json:"monitor_id"`
		StabilityScore *int  `json:"stability_score"`
	}
	decodeBody(t, rec, &resp)
	if resp.StabilityScore != nil {
		t.Fatalf("no data should yield null score, got %d", *resp.StabilityScore)
	}

	status, rt := 200, 100
	if err := store.Append(context.Background(), &domain.AttemptLog{
		MonitorID: m.ID, StatusCode: &status, ResponseTimeMS: &rt, CheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/monitors/%d/stability", m.ID), nil)
	decodeBody(t, rec, &resp)
	if resp.StabilityScore == nil || *resp.StabilityScore != 100 {
		t.Fatalf("want score 100, got %v", resp.StabilityScore)
	}

	if rec = doJSON(t, h, http.MethodGet, "/api/monitors/999/stability", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown monitor: want 404, got %d", rec.Code)
	}
}

func TestAPIKeyTiers(t *testing.T) {
	keys := apimw.Keys{Public: []string{"pub-key"}, Admin: []string{"adm-key"}}
	_, h := newTestAPI(t, keys)

	send := func(method, path, key string) int {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(`{"url":"https://example.com"}`))
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodGet, "/api/monitors", ""); code != http.StatusUnauthorized {
		t.Fatalf("no key on read: want 401, got %d", code)
	}
	if code := send(http.MethodGet, "/api/monitors", "pub-key"); code != http.StatusOK {
		t.Fatalf("public key on read: want 200, got %d", code)
	}
	if code := send(http.MethodGet, "/api/monitors", "adm-key"); code != http.StatusOK {
		t.Fatalf("admin key on read: want 200, got %d", code)
	}
	if code := send(http.MethodPost, "/api/monitors", "pub-key"); code != http.StatusForbidden {
		t.Fatalf("public key on write: want 403, got %d", code)
	}
	if code := send(http.MethodPost, "/api/monitors", "adm-key"); code != http.StatusCreated {
		t.Fatalf("admin key on write: want 201, got %d", code)
	}

	// bearer form works too
	req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
	req.Header.Set("Authorization", "Bearer pub-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer public key: want 200, got %d", rec.Code)
	}

	// health stays open
	if code := send(http.MethodGet, "/healthz", ""); code != http.StatusOK {
		t.Fatalf("healthz must not require a key, got %d", code)
	}
}
