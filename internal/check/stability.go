package check

import (
	"context"
	"math"
	"time"

	"github.com/ktshq/sitewatch/internal/domain"
	"github.com/ktshq/sitewatch/internal/repo"
)

const (
	// stabilityWindow / stabilityMaxRows bound the trailing sample the score
	// is computed over: the last 24 hours, at most 96 attempts.
	stabilityWindow  = 24 * time.Hour
	stabilityMaxRows = 96

	// stabilityLatencyCeilingMS: an attempt slower than this counts as failed
	// here even when the status was fine. Deliberately stricter than the
	// deep-check score, which looks at status only; the two are distinct
	// metrics and are kept that way.
	stabilityLatencyCeilingMS = 5000
)

// StabilityScorer recomputes a trailing health percentage straight from the
// attempt logs, independent of the rolling score the deep check maintains.
type StabilityScorer struct {
	Logs repo.LogStore
	Now  func() time.Time
}

func NewStabilityScorer(logs repo.LogStore) *StabilityScorer {
	return &StabilityScorer{
		Logs: logs,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

// Score returns round(100 * successes / total) over the window, or nil when
// there is no data at all.
func (s *StabilityScorer) Score(ctx context.Context, monitorID int64) (*int, error) {
	since := s.Now().Add(-stabilityWindow)
	rows, err := s.Logs.ListRecent(ctx, monitorID, since, stabilityMaxRows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	successes := 0
	for _, row := range rows {
		if row.StatusCode == nil || !domain.IsUpStatus(*row.StatusCode) {
			continue
		}
		if row.ResponseTimeMS == nil || *row.ResponseTimeMS > stabilityLatencyCeilingMS {
			continue
		}
		successes++
	}

	score := int(math.Round(float64(successes) / float64(len(rows)) * 100))
	return &score, nil
}
