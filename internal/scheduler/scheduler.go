package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ktshq/sitewatch/internal/check"
)

// Scheduler drives the periodic, non-forced check passes. The runners gate
// and batch themselves; the scheduler only supplies ticks. The same runners
// are invoked synchronously by the API handlers for forced checks.
type Scheduler struct {
	Logger        *zap.Logger
	Deep          *check.DeepRunner
	Light         *check.LightRunner
	Retention     *check.RetentionSweeper
	DeepTick      time.Duration
	LightTick     time.Duration
	RetentionTick time.Duration
}

func New(logger *zap.Logger, deep *check.DeepRunner, light *check.LightRunner, retention *check.RetentionSweeper, deepTick, lightTick, retentionTick time.Duration) *Scheduler {
	if deepTick <= 0 {
		deepTick = time.Minute
	}
	if lightTick <= 0 {
		lightTick = time.Minute
	}
	if retentionTick <= 0 {
		retentionTick = time.Hour
	}
	return &Scheduler{
		Logger:        logger,
		Deep:          deep,
		Light:         light,
		Retention:     retention,
		DeepTick:      deepTick,
		LightTick:     lightTick,
		RetentionTick: retentionTick,
	}
}

// Run starts the loops. Each does an immediate pass, then runs per tick.
// Stops when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, "deep", s.DeepTick, func(ctx context.Context) error {
		return s.Deep.RunAll(ctx, false)
	})
	go s.loop(ctx, "light", s.LightTick, func(ctx context.Context) error {
		return s.Light.RunAll(ctx, false)
	})
	go s.loop(ctx, "retention", s.RetentionTick, func(ctx context.Context) error {
		_, err := s.Retention.Sweep(ctx)
		return err
	})
	<-ctx.Done()
	s.Logger.Info("scheduler_stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, tick time.Duration, pass func(context.Context) error) {
	t := time.NewTicker(tick)
	defer t.Stop()

	// immediate pass
	if err := pass(ctx); err != nil {
		s.Logger.Warn("scheduled_pass_error", zap.String("loop", name), zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := pass(ctx); err != nil {
				s.Logger.Warn("scheduled_pass_error", zap.String("loop", name), zap.Error(err))
			}
		}
	}
}
