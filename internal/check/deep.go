package check

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/probe"
	"github.com/ktshq/sitewatch/internal/repo"
)

const (
	// deepAttempts is the fixed sample count per deep check. Three
	// near-simultaneous samples smooth out transient blips without a long
	// observation window.
	deepAttempts = 3

	deepTimeout      = 5 * time.Second
	deepMaxRedirects = 10
)

// SSLInspector matches probe.InspectSSL; swappable in tests.
type SSLInspector func(ctx context.Context, host string, port int) (*probe.SSLInfo, error)

// DeepRunner produces a high-confidence health assessment per monitor by
// sampling it several times and merging SSL/WordPress/HSTS metadata.
type DeepRunner struct {
	Logger      *zap.Logger
	Monitors    repo.MonitorStore
	Logs        repo.LogStore
	Prober      probe.Prober
	InspectSSL  SSLInspector
	Gate        *Gate
	Concurrency int
	Now         func() time.Time
}

func NewDeepRunner(logger *zap.Logger, monitors repo.MonitorStore, logs repo.LogStore, prober probe.Prober, gate *Gate, concurrency int) *DeepRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DeepRunner{
		Logger:      logger,
		Monitors:    monitors,
		Logs:        logs,
		Prober:      prober,
		InspectSSL:  probe.InspectSSL,
		Gate:        gate,
		Concurrency: concurrency,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunAll deep-checks every active monitor. A scheduled (non-forced) run is
// skipped entirely when the deep interval has not elapsed yet; a forced run
// always proceeds. Probe failures stay local to their monitor; only store
// errors surface.
func (r *DeepRunner) RunAll(ctx context.Context, forced bool) error {
	if !forced {
		due, err := r.Gate.DeepDue(ctx)
		if err != nil {
			return err
		}
		if !due {
			r.Logger.Debug("deep_check_not_due")
			return nil
		}
	}

	monitors, err := r.Monitors.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(monitors) == 0 {
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
				r.Logger.Warn("deep_check_store_error",
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

	r.Logger.Info("deep_check_batch_done",
		zap.Int("monitors", len(monitors)),
		zap.Int("store_errors", len(errs)),
		zap.Bool("forced", forced),
	)
	return errors.Join(errs...)
}

// CheckOne runs the full 3-sample diagnostic against one monitor and writes
// the aggregated state back. The returned error is always a store error;
// probe failures are recorded in the attempt logs instead.
func (r *DeepRunner) CheckOne(ctx context.Context, m *domain.Monitor) error {
	var (
		statusCodes   []int
		responseTimes []int
		successes     int

		redirectCount *int
		hasHSTS       *bool
		isWordPress   *bool
		wpVersion     *string
		lastModified  *time.Time
	)

	for i := 0; i < deepAttempts; i++ {
		cfg := probe.Config{
			Method:       http.MethodGet,
			Timeout:      deepTimeout,
			MaxRedirects: deepMaxRedirects,
			ReadBody:     i == 0,
		}
		res := r.Prober.Do(ctx, m.URL, cfg)

		row := &domain.AttemptLog{
			MonitorID: m.ID,
			CheckedAt: r.Now(),
		}
		if res.Failure != nil {
			msg := res.Failure.Message
			row.ErrorMessage = &msg
		} else {
			code := *res.StatusCode
			rt := res.ResponseTimeMS
			row.StatusCode = &code
			row.ResponseTimeMS = &rt

			statusCodes = append(statusCodes, code)
			responseTimes = append(responseTimes, rt)
			if domain.IsUpStatus(code) {
				successes++
			}

			// Metadata comes from the first attempt only; repeating the
			// extraction per sample buys nothing.
			if i == 0 {
				rc := res.RedirectCount
				redirectCount = &rc
				hsts := res.HasHSTS
				hasHSTS = &hsts
				wp, ver := probe.DetectWordPress(res.Body)
				isWordPress = &wp
				wpVersion = ver
				lastModified = res.LastModified
			}
		}

		if err := r.Logs.Append(ctx, row); err != nil {
			return err
		}
	}

	update := domain.StateUpdate{
		LastStatus:            roundMean(statusCodes),
		LastResponseTimeMS:    meanPtr(responseTimes),
		HasHSTS:               hasHSTS,
		RedirectCount:         redirectCount,
		IsWordPress:           isWordPress,
		WordPressVersion:      wpVersion,
		ContentLastModifiedAt: lastModified,
		LastCheckedAt:         r.Now(),
	}
	score := int(math.Round(float64(successes) / deepAttempts * 100))
	update.StabilityScore = &score

	if u, err := url.Parse(m.URL); err == nil && u.Scheme == "https" {
		port := 443
		if p := u.Port(); p != "" {
			if n, perr := strconv.Atoi(p); perr == nil {
				port = n
			}
		}
		if info, err := r.InspectSSL(ctx, u.Hostname(), port); err == nil && info != nil {
			days := info.DaysRemaining
			exp := info.ExpiresAt
			update.SSLDaysRemaining = &days
			update.SSLExpiresAt = &exp
		} else if err != nil {
			r.Logger.Debug("ssl_inspect_failed",
				zap.Int64("monitor_id", m.ID),
				zap.Error(err),
			)
		}
	}

	if err := r.Monitors.UpdateState(ctx, m.ID, update); err != nil {
		return err
	}

	r.Logger.Debug("deep_check_done",
		zap.Int64("monitor_id", m.ID),
		zap.String("url", m.URL),
		zap.Int("avg_status", update.LastStatus),
		zap.Int("stability_score", score),
	)
	return nil
}

// roundMean is the rounded mean of the collected codes, 0 when no attempt
// completed. Averaging status codes is odd but it is the contract: the
// per-attempt truth lives in the logs.
func roundMean(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(values))))
}

func meanPtr(values []int) *int {
	if len(values) == 0 {
		return nil
	}
	v := roundMean(values)
	return &v
}
