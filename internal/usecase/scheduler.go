package usecase

import (
	"context"
	"time"

	"ProtagonismAnalyzer/internal/ports"
)

// Scheduler wires the ticking driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	runID    func() string
}

// NewScheduler returns a helper to start/stop recurring runs. runID names
// each run.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, runID func() string) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, runID: runID}
}

// Start registers the pipeline with the provided scheduler. Each tick is an
// independent run; errors are already logged and summarised by the pipeline.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.pipeline.logger.Info("scheduled run triggered", "at", trigger)
		_, _ = s.pipeline.Run(ctx, s.runID(), nil)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
