package repo

import (
	"context"
	"errors"
	"time"

	"github.com/ktshq/sitewatch/internal/domain"
)

// ErrNotFound is returned when a monitor id does not exist.
var ErrNotFound = errors.New("not found")

// Ports (interfaces) — swap in any DB adapter later.

type MonitorStore interface {
	Create(ctx context.Context, m *domain.Monitor) error
	Get(ctx context.Context, id int64) (*domain.Monitor, error)
	List(ctx context.Context) ([]*domain.Monitor, error)
	ListActive(ctx context.Context) ([]*domain.Monitor, error)
	// ListOldestChecked returns active monitors ordered by last_checked_at
	// ascending (never-checked first), capped at limit.
	ListOldestChecked(ctx context.Context, limit int) ([]*domain.Monitor, error)
	// MaxLastChecked is the newest last_checked_at across all monitors,
	// nil when no monitor has ever been checked.
	MaxLastChecked(ctx context.Context) (*time.Time, error)
	Update(ctx context.Context, m *domain.Monitor) error
	UpdateState(ctx context.Context, id int64, s domain.StateUpdate) error
	UpdateHeartbeat(ctx context.Context, id int64, h domain.HeartbeatUpdate) error
	// Delete removes the monitor and cascades to its attempt logs.
	Delete(ctx context.Context, id int64) error
}

type LogStore interface {
	Append(ctx context.Context, l *domain.AttemptLog) error
	// ListByMonitor returns up to limit rows, newest first (checked_at desc,
	// id desc).
	ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*domain.AttemptLog, error)
	// ListRecent returns up to limit rows with checked_at >= since, newest
	// first.
	ListRecent(ctx context.Context, monitorID int64, since time.Time, limit int) ([]*domain.AttemptLog, error)
	DeleteForMonitor(ctx context.Context, monitorID int64) error
	DeleteAll(ctx context.Context) error
	// DeleteOlderThan drops rows with checked_at before cutoff and reports
	// how many went.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SettingsStore is an opaque key-value table for runtime tunables
// (check intervals, batch size, log retention).
type SettingsStore interface {
	GetInt(ctx context.Context, key string, fallback int) (int, error)
	Set(ctx context.Context, key string, value int) error
}

// Settings keys and defaults shared by the scheduler and the API.
const (
	KeyDeepIntervalMinutes  = "monitor_interval_minutes"
	KeyLightIntervalMinutes = "monitor_interval_light_minutes"
	KeyLightBatchSize       = "monitor_light_batch_size"
	KeyLogRetentionDays     = "log_retention_days"

	DefaultDeepIntervalMinutes  = 60
	DefaultLightIntervalMinutes = 1
	DefaultLightBatchSize       = 15
	DefaultLogRetentionDays     = 15
)
