// Package scheduler runs the pipeline steps on independent fixed intervals
// until the context is cancelled.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mailcoach/internal/config"
)

// Step is one recurring unit of pipeline work. It reports how many items it
// handled so the scheduler can log useful pass summaries.
type Step func(ctx context.Context) (int, error)

type job struct {
	name     string
	interval time.Duration
	step     Step
}

// Scheduler ticks each registered job on its own goroutine. Jobs run once
// immediately on start, then on every interval tick. A job that returns an
// error is logged and retried on the next tick.
type Scheduler struct {
	jobs   []job
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Add registers a named job. Jobs with a non-positive interval are skipped,
// which is how individual steps are disabled through configuration.
func (s *Scheduler) Add(name string, intervalSeconds int, step Step) {
	if intervalSeconds <= 0 {
		s.logger.Warn().Str("job", name).Msg("job disabled, non-positive interval")
		return
	}
	s.jobs = append(s.jobs, job{
		name:     name,
		interval: time.Duration(intervalSeconds) * time.Second,
		step:     step,
	})
}

// Run blocks until ctx is cancelled and every job goroutine has drained.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runJob(ctx, j)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j job) {
	logger := s.logger.With().Str("job", j.name).Logger()
	logger.Info().Dur("interval", j.interval).Msg("job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.runOnce(ctx, j, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("job stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, j, logger)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j job, logger zerolog.Logger) {
	start := time.Now()
	handled, err := j.step(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("job run failed")
		return
	}
	if handled > 0 {
		logger.Debug().Int("handled", handled).Dur("took", time.Since(start)).Msg("job run complete")
	}
}

// FromConfig registers the standard step set with intervals from cfg.
// Nil steps are skipped (e.g. ingestion when no mail source is configured).
func FromConfig(s *Scheduler, cfg *config.Config, ingest, process, notify Step) {
	if ingest != nil {
		s.Add("ingest", cfg.IngestIntervalSeconds, ingest)
	}
	if process != nil {
		s.Add("process", cfg.ProcessIntervalSeconds, process)
	}
	if notify != nil {
		s.Add("notify", cfg.NotifyIntervalSeconds, notify)
	}
}
