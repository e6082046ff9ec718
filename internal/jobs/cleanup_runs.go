// Package jobs hosts background maintenance that runs beside the HTTP
// server but is not part of serving requests.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RetentionConfig controls pruning of finished import run records.
type RetentionConfig struct {
	Interval   time.Duration // how often the prune job fires
	RetainDays int           // finished runs older than this are removed
	Enabled    bool
}

// DefaultRetentionConfig keeps 90 days of run history, pruned daily.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Interval:   24 * time.Hour,
		RetainDays: 90,
		Enabled:    true,
	}
}

// RunStore is the slice of the store the retention job needs.
type RunStore interface {
	PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRetention prunes old import run records in the background. Runs that
// are still in flight are never touched regardless of age.
type RunRetention struct {
	config RetentionConfig
	store  RunStore
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunRetention creates the retention job. Call Start to begin sweeping.
func NewRunRetention(config RetentionConfig, store RunStore) *RunRetention {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunRetention{
		config: config,
		store:  store,
		logger: log.With().Str("component", "run_retention").Logger(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the background sweep loop. The first sweep runs
// immediately so a long-lived deployment prunes right after boot.
func (r *RunRetention) Start() {
	if !r.config.Enabled {
		r.logger.Info().Msg("run retention is disabled, not starting")
		close(r.done)
		return
	}

	r.logger.Info().
		Dur("interval", r.config.Interval).
		Int("retain_days", r.config.RetainDays).
		Msg("starting run retention job")
	go r.loop()
}

// Stop cancels the loop and waits briefly for it to wind down.
func (r *RunRetention) Stop() {
	r.cancel()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		r.logger.Warn().Msg("run retention job did not stop gracefully")
	}
}

func (r *RunRetention) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.sweep()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep deletes finished runs older than the retention window.
func (r *RunRetention) sweep() {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -r.config.RetainDays)

	pruned, err := r.store.PruneImportRuns(r.ctx, cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to prune import runs")
		return
	}

	if pruned > 0 {
		r.logger.Info().
			Int64("pruned", pruned).
			Dur("duration", time.Since(start)).
			Msg("pruned old import runs")
	} else {
		r.logger.Debug().Msg("no import runs to prune")
	}
}
