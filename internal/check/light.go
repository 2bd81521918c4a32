package check

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/probe"
	"github.com/ktshq/sitewatch/internal/repo"
)

// LightUserAgent identifies heartbeat traffic so target operators can tell
// it apart from real visitors.
const LightUserAgent = "SiteWatchBot/1.0 (Light Check)"

// LightRunner is the cheap heartbeat: one HEAD request per monitor, touching
// only status/latency/last-checked. SSL, WordPress and stability fields keep
// whatever the last deep check wrote.
type LightRunner struct {
	Logger   *zap.Logger
	Monitors repo.MonitorStore
	Logs     repo.LogStore
	Settings repo.SettingsStore
	Prober   probe.Prober
	Timeout  time.Duration
	// RetryGetOn405 retries a HEAD that got 405 Method Not Allowed as GET,
	// so servers that reject HEAD aren't classified as down. Policy, not a
	// hard rule: scheduled batches historically ran without it.
	RetryGetOn405 bool
	Concurrency   int
	Now           func() time.Time
}

func NewLightRunner(logger *zap.Logger, monitors repo.MonitorStore, logs repo.LogStore, settings repo.SettingsStore, prober probe.Prober, timeout time.Duration, concurrency int) *LightRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &LightRunner{
		Logger:      logger,
		Monitors:    monitors,
		Logs:        logs,
		Settings:    settings,
		Prober:      prober,
		Timeout:     timeout,
		Concurrency: concurrency,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunAll heartbeats a batch of monitors. Forced runs cover every active
// monitor; scheduled runs take the configured batch of the oldest-checked
// ones so a large fleet gets fair round-robin coverage per tick.
func (r *LightRunner) RunAll(ctx context.Context, forced bool) error {
	var (
		monitors []*domain.Monitor
		err      error
	)
	if forced {
		monitors, err = r.Monitors.ListActive(ctx)
	} else {
		batch, serr := r.Settings.GetInt(ctx, repo.KeyLightBatchSize, repo.DefaultLightBatchSize)
		if serr != nil {
			return serr
		}
		monitors, err = r.Monitors.ListOldestChecked(ctx, batch)
	}
	if err != nil {
		return err
	}
	if len(monitors) == 0 {
		r.Logger.Debug("light_check_nothing_due")
		return nil
	}

	sem := make(chan struct{}, r.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, m := range monitors {
		m := m
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			if err := r.CheckOne(ctx, m); err != nil {
				r.Logger.Warn("light_check_store_error",
					zap.Int64("monitor_id", m.ID),
					zap.String("url", m.URL),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	r.Logger.Info("light_check_batch_done",
		zap.Int("monitors", len(monitors)),
		zap.Int("store_errors", len(errs)),
		zap.Bool("forced", forced),
	)
	return errors.Join(errs...)
}

// CheckOne performs a single heartbeat probe and records exactly one log row.
func (r *LightRunner) CheckOne(ctx context.Context, m *domain.Monitor) error {
	cfg := probe.Config{
		Method:    http.MethodHead,
		Timeout:   r.Timeout,
		UserAgent: LightUserAgent,
	}
	res := r.Prober.Do(ctx, m.URL, cfg)
	elapsed := res.ResponseTimeMS

	if r.RetryGetOn405 && res.Failure == nil && res.StatusCode != nil && *res.StatusCode == http.StatusMethodNotAllowed {
		cfg.Method = http.MethodGet
		retry := r.Prober.Do(ctx, m.URL, cfg)
		elapsed += retry.ResponseTimeMS
		res = retry
	}

	// Heartbeats record status 0 on transport failure rather than null; the
	// error message carries the detail either way.
	status := 0
	if res.Failure == nil && res.StatusCode != nil {
		status = *res.StatusCode
	}
	var errMsg *string
	if res.Failure != nil {
		msg := res.Failure.Message
		errMsg = &msg
	}

	now := r.Now()
	row := &domain.AttemptLog{
		MonitorID:      m.ID,
		StatusCode:     &status,
		ResponseTimeMS: &elapsed,
		ErrorMessage:   errMsg,
		CheckedAt:      now,
	}
	if err := r.Logs.Append(ctx, row); err != nil {
		return err
	}

	rt := elapsed
	if err := r.Monitors.UpdateHeartbeat(ctx, m.ID, domain.HeartbeatUpdate{
		LastStatus:         status,
		LastResponseTimeMS: &rt,
		LastCheckedAt:      now,
	}); err != nil {
		return err
	}

	r.Logger.Debug("light_check_done",
		zap.Int64("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.Int("status", status),
		zap.Int("response_time_ms", elapsed),
		zap.Bool("up", domain.IsUpStatus(status)),
	)
	return nil
}
