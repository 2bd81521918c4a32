package check

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/probe"
	"github.com/ktshq/sitewatch/internal/repo"
	"github.com/ktshq/sitewatch/internal/repo/memory"
)

// fakeProber returns a canned result without touching the network.
type fakeProber struct {
	status int
}

func (f *fakeProber) Do(ctx context.Context, target string, cfg probe.Config) probe.Result {
	code := f.status
	return probe.Result{StatusCode: &code, ResponseTimeMS: 5}
}

func newLightRunner(store *memory.Store, p probe.Prober) *LightRunner {
	return NewLightRunner(zap.NewNop(), store, store, store, p, 2*time.Second, 2)
}

func TestLightCheck_SingleRowAndDeepFieldsPreserved(t *testing.T) {
	var method string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		if r.Header.Get("User-Agent") != LightUserAgent {
			t.Errorf("unexpected user agent: %s", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(200)
	}))
	defer s.Close()

	store := memory.New()
	m := addMonitor(t, store, s.URL)

	// seed state from an earlier deep check
	score := 67
	days := 42
	hsts := true
	if err := store.UpdateState(context.Background(), m.ID, domain.StateUpdate{
		LastStatus:       500,
		StabilityScore:   &score,
		SSLDaysRemaining: &days,
		HasHSTS:          &hsts,
		LastCheckedAt:    time.Now().UTC().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	r := newLightRunner(store, probe.NewHTTPProber())
	if err := r.CheckOne(context.Background(), m); err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	if method != http.MethodHead {
		t.Fatalf("light check must use HEAD, got %s", method)
	}

	logs, _ := store.ListByMonitor(context.Background(), m.ID, 10)
	if len(logs) != 1 {
		t.Fatalf("want exactly 1 log row, got %d", len(logs))
	}
	if logs[0].StatusCode == nil || *logs[0].StatusCode != 200 {
		t.Fatalf("want logged status 200, got %v", logs[0].StatusCode)
	}

	got, _ := store.Get(context.Background(), m.ID)
	if got.LastStatus != 200 {
		t.Fatalf("want last_status 200, got %d", got.LastStatus)
	}
	if got.LastResponseTimeMS == nil {
		t.Fatalf("want response time recorded")
	}
	// deep-check fields stay put
	if got.StabilityScore == nil || *got.StabilityScore != 67 {
		t.Fatalf("stability must survive a light check, got %v", got.StabilityScore)
	}
	if got.SSLDaysRemaining == nil || *got.SSLDaysRemaining != 42 {
		t.Fatalf("ssl days must survive a light check, got %v", got.SSLDaysRemaining)
	}
	if got.HasHSTS == nil || !*got.HasHSTS {
		t.Fatalf("hsts must survive a light check, got %v", got.HasHSTS)
	}
}

func TestLightCheck_405RetryPolicy(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(200)
	}))
	defer s.Close()

	// policy off: the 405 stands
	store := memory.New()
	m := addMonitor(t, store, s.URL)
	r := newLightRunner(store, probe.NewHTTPProber())
	if err := r.CheckOne(context.Background(), m); err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	got, _ := store.Get(context.Background(), m.ID)
	if got.LastStatus != http.StatusMethodNotAllowed {
		t.Fatalf("want 405 without retry policy, got %d", got.LastStatus)
	}

	// policy on: retried as GET
	store2 := memory.New()
	m2 := addMonitor(t, store2, s.URL)
	r2 := newLightRunner(store2, probe.NewHTTPProber())
	r2.RetryGetOn405 = true
	if err := r2.CheckOne(context.Background(), m2); err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	got2, _ := store2.Get(context.Background(), m2.ID)
	if got2.LastStatus != 200 {
		t.Fatalf("want 200 after GET retry, got %d", got2.LastStatus)
	}
	logs, _ := store2.ListByMonitor(context.Background(), m2.ID, 10)
	if len(logs) != 1 {
		t.Fatalf("retry must still produce a single log row, got %d", len(logs))
	}
}

func TestLightCheck_TransportFailureRecordsZeroStatus(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	dead := s.URL
	s.Close()

	store := memory.New()
	m := addMonitor(t, store, dead)
	r := newLightRunner(store, probe.NewHTTPProber())
	if err := r.CheckOne(context.Background(), m); err != nil {
		t.Fatalf("CheckOne: %v", err)
	}

	logs, _ := store.ListByMonitor(context.Background(), m.ID, 10)
	if len(logs) != 1 {
		t.Fatalf("want 1 log row, got %d", len(logs))
	}
	if logs[0].StatusCode == nil || *logs[0].StatusCode != 0 {
		t.Fatalf("heartbeat failure logs status 0, got %v", logs[0].StatusCode)
	}
	if logs[0].ErrorMessage == nil || *logs[0].ErrorMessage == "" {
		t.Fatalf("want error message set")
	}
	got, _ := store.Get(context.Background(), m.ID)
	if got.LastStatus != 0 {
		t.Fatalf("want last_status 0, got %d", got.LastStatus)
	}
}

func TestLightRunAll_OldestBatchRotation(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		m := addMonitor(t, store, "http://example.test/m")
		// stagger last_checked_at: monitor 1 is oldest
		if err := store.UpdateHeartbeat(ctx, m.ID, domain.HeartbeatUpdate{
			LastStatus:    200,
			LastCheckedAt: time.Now().UTC().Add(time.Duration(i-100) * time.Minute),
		}); err != nil {
			t.Fatalf("seed heartbeat: %v", err)
		}
	}
	if err := store.Set(ctx, repo.KeyLightBatchSize, 15); err != nil {
		t.Fatalf("set batch size: %v", err)
	}

	r := newLightRunner(store, &fakeProber{status: 200})

	if err := r.RunAll(ctx, false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	first := checkedMonitorIDs(t, store)
	if len(first) != 15 {
		t.Fatalf("want 15 monitors checked in one tick, got %d", len(first))
	}
	for id := range first {
		if id > 15 {
			t.Fatalf("tick touched monitor %d; want only the 15 oldest", id)
		}
	}

	// the next tick must pick a disjoint set, since the first 15 now carry
	// the newest timestamps
	if err := r.RunAll(ctx, false); err != nil {
		t.Fatalf("second RunAll: %v", err)
	}
	second := checkedMonitorIDs(t, store)
	if len(second) != 30 {
		t.Fatalf("want 30 distinct monitors after two ticks, got %d", len(second))
	}
}

func TestLightRunAll_ForcedChecksAll(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		addMonitor(t, store, "http://example.test/m")
	}
	if err := store.Set(ctx, repo.KeyLightBatchSize, 5); err != nil {
		t.Fatalf("set batch size: %v", err)
	}

	r := newLightRunner(store, &fakeProber{status: 200})
	if err := r.RunAll(ctx, true); err != nil {
		t.Fatalf("forced RunAll: %v", err)
	}
	if got := checkedMonitorIDs(t, store); len(got) != 20 {
		t.Fatalf("forced run must ignore batching, checked %d of 20", len(got))
	}
}

// checkedMonitorIDs collects the ids of monitors that have at least one log row.
func checkedMonitorIDs(t *testing.T, store *memory.Store) map[int64]bool {
	t.Helper()
	ctx := context.Background()
	monitors, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list monitors: %v", err)
	}
	out := make(map[int64]bool)
	for _, m := range monitors {
		logs, err := store.ListByMonitor(ctx, m.ID, 1)
		if err != nil {
			t.Fatalf("list logs: %v", err)
		}
		if len(logs) > 0 {
			out[m.ID] = true
		}
	}
	return out
}
