package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"EventPoster/internal/ports"
)

// Scheduler wires two daily drivers with the morning and post phases of the pipeline.
type Scheduler struct {
	morning  ports.Scheduler
	post     ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	// one phase at a time per city
	mu sync.Mutex
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(morning, post ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{morning: morning, post: post, pipeline: pipeline, logger: orDiscard(logger)}
}

// Start registers both phases with their drivers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.pipeline == nil {
		return nil
	}

	if s.morning != nil {
		if err := s.morning.Start(ctx, s.job(ctx, "morning", s.pipeline.Morning)); err != nil {
			return err
		}
	}
	if s.post != nil {
		if err := s.post.Start(ctx, s.job(ctx, "post", s.pipeline.Post)); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully tears down the underlying schedulers.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	if s.morning != nil {
		errs = append(errs, s.morning.Stop(ctx))
	}
	if s.post != nil {
		errs = append(errs, s.post.Stop(ctx))
	}
	return errors.Join(errs...)
}

func (s *Scheduler) job(ctx context.Context, phase string, run func(context.Context) error) func(time.Time) {
	return func(trigger time.Time) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.logger.Info("scheduled phase starting", "phase", phase, "trigger", trigger.Format(time.RFC3339))
		if err := run(ctx); err != nil {
			s.logger.Error("scheduled phase failed", "phase", phase, "error", err)
			return
		}
		s.logger.Info("scheduled phase done", "phase", phase)
	}
}
