// Package startup brings a fresh or long-idle deployment to a servable
// state: schema present, chain rows seeded, stale runs swept, and the
// first import kicked off when the database holds no price data yet.
package startup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/importer"
)

// Store is the slice of the relational layer startup needs.
type Store interface {
	MissingTables(ctx context.Context) ([]string, error)
	EnsureSchema(ctx context.Context) error
	SeedChains(ctx context.Context) error
	MarkInterruptedRuns(ctx context.Context) (int64, error)
	TableCounts(ctx context.Context) (map[string]int64, error)
}

// ImportRunner runs a full import across the given chains.
type ImportRunner interface {
	Run(ctx context.Context, slugs []chains.Slug) (*importer.Result, error)
}

// Config controls startup behavior.
type Config struct {
	// Testing makes startup hands-off: it probes and logs but never runs
	// DDL or writes. Test harnesses own their schema.
	Testing bool
	// AutoImport launches a full ingestion in the background when the
	// database holds no price data.
	AutoImport bool
}

// Manager prepares the database before the server starts accepting
// traffic.
type Manager struct {
	store    Store
	importer ImportRunner
	cfg      Config
	logger   zerolog.Logger
}

// NewManager wires a startup manager.
func NewManager(store Store, imp ImportRunner, cfg Config) *Manager {
	return &Manager{
		store:    store,
		importer: imp,
		cfg:      cfg,
		logger:   log.With().Str("component", "startup").Logger(),
	}
}

// Run probes the schema, creates it when missing, sweeps runs orphaned by
// a previous process, and logs a per-table row-count summary. A non-nil
// error means the process must not serve: either the database is
// unreachable or the schema could not be brought to a usable state.
func (m *Manager) Run(ctx context.Context) error {
	missing, err := m.store.MissingTables(ctx)
	if err != nil {
		return fmt.Errorf("probe schema: %w", err)
	}

	if m.cfg.Testing {
		if len(missing) > 0 {
			m.logger.Warn().Strs("tables", missing).Msg("schema incomplete, DDL suppressed in testing mode")
			return nil
		}
		return m.logSummary(ctx)
	}

	if len(missing) > 0 {
		m.logger.Info().Strs("tables", missing).Msg("creating database schema")
		if err := m.store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		still, err := m.store.MissingTables(ctx)
		if err != nil {
			return fmt.Errorf("probe schema: %w", err)
		}
		if len(still) > 0 {
			return fmt.Errorf("tables still missing after schema creation: %s", strings.Join(still, ", "))
		}
	} else {
		// Chain rows can be absent even when every table exists.
		if err := m.store.SeedChains(ctx); err != nil {
			return fmt.Errorf("seed chains: %w", err)
		}
	}

	if n, err := m.store.MarkInterruptedRuns(ctx); err != nil {
		m.logger.Error().Err(err).Msg("could not sweep stale import runs")
	} else if n > 0 {
		m.logger.Warn().Int64("runs", n).Msg("stale running imports marked interrupted")
	}

	counts, err := m.store.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("table counts: %w", err)
	}
	m.logCounts(counts)

	if dataEmpty(counts) {
		if m.cfg.AutoImport {
			m.logger.Info().Msg("no price data yet, starting initial import")
			go func() {
				// Serving must not wait on the portals.
				if _, err := m.importer.Run(context.Background(), nil); err != nil {
					m.logger.Error().Err(err).Msg("initial import failed")
				}
			}()
		} else {
			m.logger.Warn().Msg("no price data and auto import is off, searches will come back empty")
		}
	}
	return nil
}

func (m *Manager) logSummary(ctx context.Context) error {
	counts, err := m.store.TableCounts(ctx)
	if err != nil {
		return fmt.Errorf("table counts: %w", err)
	}
	m.logCounts(counts)
	return nil
}

func (m *Manager) logCounts(counts map[string]int64) {
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	event := m.logger.Info()
	for _, table := range tables {
		event = event.Int64(table, counts[table])
	}
	event.Msg("database ready")
}

// dataEmpty reports a database with nothing to serve: missing chain rows,
// or no branches, or no products.
func dataEmpty(counts map[string]int64) bool {
	return counts["chains"] < 2 || counts["branches"] == 0 || counts["chain_products"] == 0
}
