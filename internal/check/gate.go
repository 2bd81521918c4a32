package check

import (
	"context"
	"time"

	"github.com/ktshq/sitewatch/internal/repo"
)

// Gate decides whether a scheduled deep batch is due. The "last run" signal
// is max(last_checked_at) queried from the store rather than a process-wide
// timestamp, so it survives restarts and hides no global state.
type Gate struct {
	Monitors repo.MonitorStore
	Settings repo.SettingsStore
	Now      func() time.Time
}

func NewGate(monitors repo.MonitorStore, settings repo.SettingsStore) *Gate {
	return &Gate{
		Monitors: monitors,
		Settings: settings,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// DeepDue reports whether the configured deep interval has elapsed since the
// newest check of any monitor. A fleet that has never been checked is due.
func (g *Gate) DeepDue(ctx context.Context) (bool, error) {
	minutes, err := g.Settings.GetInt(ctx, repo.KeyDeepIntervalMinutes, repo.DefaultDeepIntervalMinutes)
	if err != nil {
		return false, err
	}
	last, err := g.Monitors.MaxLastChecked(ctx)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return g.Now().Sub(*last) >= time.Duration(minutes)*time.Minute, nil
}
