// Package scheduler re-runs the feed importer on a fixed interval so the
// price data stays current without anyone calling the ingestion endpoints.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/importer"
	"github.com/zolsal/price-service/internal/store"
)

// ImportRunner runs a full import across the given chains.
type ImportRunner interface {
	Run(ctx context.Context, slugs []chains.Slug) (*importer.Result, error)
}

// RunChecker reports the id of the currently live import run, or
// store.ErrNotFound when none is running.
type RunChecker interface {
	RunningImportRun(ctx context.Context) (string, error)
}

// ImportScheduler periodically triggers a full import of all chains.
type ImportScheduler struct {
	runner   ImportRunner
	runs     RunChecker
	interval time.Duration
	logger   zerolog.Logger
	stopChan chan struct{}
}

// New creates a scheduler that imports every interval.
func New(runner ImportRunner, runs RunChecker, interval time.Duration) *ImportScheduler {
	return &ImportScheduler{
		runner:   runner,
		runs:     runs,
		interval: interval,
		logger:   log.With().Str("component", "scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic import loop. It blocks until the context is
// cancelled or Stop is called, so callers run it in a goroutine.
func (s *ImportScheduler) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("starting import scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("import scheduler stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("import scheduler stopping (stop signal)")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop signals the scheduler to stop.
func (s *ImportScheduler) Stop() {
	close(s.stopChan)
}

// tick runs one scheduled import unless a run is already live. Manual runs
// started through the admin endpoints and the scheduled ones share the same
// run table, so the check covers both.
func (s *ImportScheduler) tick(ctx context.Context) {
	runID, err := s.runs.RunningImportRun(ctx)
	switch {
	case err == nil:
		s.logger.Info().
			Str("run_id", runID).
			Msg("skipping scheduled import, a run is already active")
		return
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Error().Err(err).Msg("could not check for an active import run")
		return
	}

	result, err := s.runner.Run(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled import failed")
		return
	}
	s.logger.Info().
		Str("run_id", result.RunID).
		Str("status", result.Status).
		Dur("duration", result.Duration).
		Msg("scheduled import finished")
}
