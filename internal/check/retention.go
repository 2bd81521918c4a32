package check

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/repo"
)

// RetentionSweeper drops attempt logs older than the configured retention.
type RetentionSweeper struct {
	Logger   *zap.Logger
	Logs     repo.LogStore
	Settings repo.SettingsStore
	Now      func() time.Time
}

func NewRetentionSweeper(logger *zap.Logger, logs repo.LogStore, settings repo.SettingsStore) *RetentionSweeper {
	return &RetentionSweeper{
		Logger:   logger,
		Logs:     logs,
		Settings: settings,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep deletes rows with checked_at older than the retention window and
// returns how many were dropped. A retention below one day deletes nothing.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	days, err := s.Settings.GetInt(ctx, repo.KeyLogRetentionDays, repo.DefaultLogRetentionDays)
	if err != nil {
		return 0, err
	}
	if days < 1 {
		s.Logger.Warn("log_retention_disabled", zap.Int("days", days))
		return 0, nil
	}

	cutoff := s.Now().AddDate(0, 0, -days)
	dropped, err := s.Logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.Logger.Info("log_retention_sweep",
		zap.Int("days", days),
		zap.Int64("deleted", dropped),
	)
	return dropped, nil
}
