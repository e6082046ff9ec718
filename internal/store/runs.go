package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zolsal/price-service/internal/types"
)

// InsertImportRun records the start of an ingestion run.
func (s *Store) InsertImportRun(ctx context.Context, run *types.ImportRun) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_runs (run_id, status, chains, started_at)
		VALUES ($1, $2, $3, $4)
	`, run.RunID, run.Status, run.Chains, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// FinishImportRun stamps a run with its terminal status and final counters.
func (s *Store) FinishImportRun(ctx context.Context, runID, status string, counters types.ImportCounters, errMsg string) error {
	payload, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("encode run counters: %w", err)
	}

	ct, err := s.db.Exec(ctx, `
		UPDATE import_runs
		SET status = $2, counters = $3, completed_at = now(), error_message = $4
		WHERE run_id = $1
	`, runID, status, payload, errMsg)
	if err != nil {
		return fmt.Errorf("finish import run: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("import run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// MarkInterruptedRuns flips runs left 'running' by a previous process to
// 'interrupted'. Called once at boot, before anything new starts.
func (s *Store) MarkInterruptedRuns(ctx context.Context) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE import_runs
		SET status = $1, completed_at = now()
		WHERE status = $2
	`, types.RunStatusInterrupted, types.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return ct.RowsAffected(), nil
}

// RunningImportRun returns the id of an in-flight run, or ErrNotFound.
func (s *Store) RunningImportRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRow(ctx, `
		SELECT run_id FROM import_runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1
	`, types.RunStatusRunning).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query running import run: %w", err)
	}
	return runID, nil
}

// RecentImportRuns lists the latest runs, newest first.
func (s *Store) RecentImportRuns(ctx context.Context, limit int) ([]types.ImportRun, error) {
	rows, err := s.db.Query(ctx, `
		SELECT run_id, status, chains, counters, started_at, completed_at, error_message
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	defer rows.Close()

	var out []types.ImportRun
	for rows.Next() {
		var run types.ImportRun
		var counters []byte
		if err := rows.Scan(&run.RunID, &run.Status, &run.Chains, &counters, &run.StartedAt, &run.CompletedAt, &run.Error); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		if len(counters) > 0 {
			if err := json.Unmarshal(counters, &run.Counters); err != nil {
				return nil, fmt.Errorf("decode run counters: %w", err)
			}
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// PruneImportRuns deletes finished runs that started before cutoff and
// returns how many were removed. In-flight runs are never pruned.
func (s *Store) PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM import_runs
		WHERE started_at < $1 AND status <> $2
	`, cutoff, types.RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("prune import runs: %w", err)
	}
	return ct.RowsAffected(), nil
}

// GetImportRun fetches one run by id.
func (s *Store) GetImportRun(ctx context.Context, runID string) (*types.ImportRun, error) {
	var run types.ImportRun
	var counters []byte
	err := s.db.QueryRow(ctx, `
		SELECT run_id, status, chains, counters, started_at, completed_at, error_message
		FROM import_runs
		WHERE run_id = $1
	`, runID).Scan(&run.RunID, &run.Status, &run.Chains, &counters, &run.StartedAt, &run.CompletedAt, &run.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("import run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query import run: %w", err)
	}
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &run.Counters); err != nil {
			return nil, fmt.Errorf("decode run counters: %w", err)
		}
	}
	return &run, nil
}
