// Package importer drives the two-phase ingestion protocol. Per chain it
// first syncs branches from the stores feed, then streams price files into
// batched upserts. Failures are absorbed at the narrowest useful granularity
// (file, record, or batch) and surface only through counters and logs; a run
// aborts early solely on context cancellation.
package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zolsal/price-service/internal/adapters"
	"github.com/zolsal/price-service/internal/adapters/registry"
	"github.com/zolsal/price-service/internal/archive"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/pkg/runid"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

// Config tunes one importer instance.
type Config struct {
	// BatchSize is the number of price records per transaction.
	BatchSize int
	// FileLimit caps price files per chain. Zero means no cap.
	FileLimit int
	// Workers bounds concurrent file downloads within a phase.
	Workers int
	// ImproveNames lets a strictly longer product name replace the stored one.
	ImproveNames bool
	// ArchiveDir keeps a copy of every fetched feed under this directory.
	// Empty disables archiving.
	ArchiveDir string
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		BatchSize:    1000,
		FileLimit:    0,
		Workers:      4,
		ImproveNames: true,
	}
}

// Store is the slice of the relational layer the importer writes through.
type Store interface {
	GetChainByName(ctx context.Context, name string) (*store.Chain, error)
	UpsertBranch(ctx context.Context, chainID int64, rec types.StoreRecord) (int64, bool, error)
	BranchIDMap(ctx context.Context, chainID int64) (map[string]int64, error)
	ApplyPriceBatch(ctx context.Context, chainID int64, items []store.PriceBatchItem, improveNames bool) (store.PriceBatchResult, error)
	InsertImportRun(ctx context.Context, run *types.ImportRun) error
	FinishImportRun(ctx context.Context, runID, status string, counters types.ImportCounters, errMsg string) error
}

// Result is what one full run produced.
type Result struct {
	RunID    string               `json:"run_id"`
	Status   string               `json:"status"`
	Counters types.ImportCounters `json:"counters"`
	Duration time.Duration        `json:"duration"`
}

// chainJob carries the resolved identity of the chain being imported.
type chainJob struct {
	slug    string
	chainID int64
	adapter adapters.ChainAdapter
	logger  zerolog.Logger
}

// Importer owns the ingestion protocol for all configured chains.
type Importer struct {
	store    Store
	fetcher  adapters.Fetcher
	registry *registry.Registry
	cfg      Config
	archive  archive.Store
	metrics  *MetricsRecorder
	logger   zerolog.Logger
}

// New wires an importer. Zero BatchSize and Workers fall back to defaults.
func New(st Store, fetcher adapters.Fetcher, reg *registry.Registry, cfg Config) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	imp := &Importer{
		store:    st,
		fetcher:  fetcher,
		registry: reg,
		cfg:      cfg,
		metrics:  NewMetricsRecorder(),
		logger:   log.With().Str("component", "importer").Logger(),
	}
	if cfg.ArchiveDir != "" {
		imp.archive = archive.NewLocal(cfg.ArchiveDir)
	}
	return imp
}

// Run imports the given chains, all configured chains when slugs is empty.
// Every run is recorded in import_runs before any feed work starts; the
// returned error is non-nil only when the run record cannot be written or
// the context was cancelled mid-run.
func (imp *Importer) Run(ctx context.Context, slugs []chains.Slug) (*Result, error) {
	run, err := imp.BeginRun(ctx, slugs)
	if err != nil {
		return nil, err
	}
	return imp.ExecuteRun(ctx, run)
}

// BeginRun records a new running import and returns it, letting callers
// that execute asynchronously hand out the run id before any feed work
// starts.
func (imp *Importer) BeginRun(ctx context.Context, slugs []chains.Slug) (*types.ImportRun, error) {
	if len(slugs) == 0 {
		slugs = chains.Slugs
	}
	names := make([]string, len(slugs))
	for i, slug := range slugs {
		names[i] = string(slug)
	}

	run := &types.ImportRun{
		RunID:     runid.New("run"),
		Status:    types.RunStatusRunning,
		Chains:    names,
		StartedAt: time.Now().UTC(),
	}
	if err := imp.store.InsertImportRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record import run: %w", err)
	}
	imp.logger.Info().Str("run_id", run.RunID).Strs("chains", names).Msg("import run started")
	return run, nil
}

// ExecuteRun performs a run recorded by BeginRun. The returned error is
// non-nil only when the context was cancelled mid-run.
func (imp *Importer) ExecuteRun(ctx context.Context, run *types.ImportRun) (*Result, error) {
	var counters types.ImportCounters
	for _, name := range run.Chains {
		if ctx.Err() != nil {
			break
		}
		counters.Add(imp.importChain(ctx, chains.Slug(name)))
	}

	status := types.RunStatusCompleted
	errMsg := ""
	if err := ctx.Err(); err != nil {
		status = types.RunStatusFailed
		errMsg = err.Error()
	}

	// Bookkeeping survives the cancellation that ended the run.
	if err := imp.store.FinishImportRun(context.Background(), run.RunID, status, counters, errMsg); err != nil {
		imp.logger.Error().Err(err).Str("run_id", run.RunID).Msg("finish import run")
	}

	duration := time.Since(run.StartedAt)
	imp.metrics.RecordRun(status, duration)
	imp.logger.Info().
		Str("run_id", run.RunID).
		Str("status", status).
		Dur("duration", duration).
		Int("branches_created", counters.BranchesCreated).
		Int("products_created", counters.ProductsCreated).
		Int("prices_created", counters.PricesCreated).
		Int("prices_updated", counters.PricesUpdated).
		Int("errors", counters.Errors).
		Msg("import run finished")

	result := &Result{RunID: run.RunID, Status: status, Counters: counters, Duration: duration}
	return result, ctx.Err()
}

// importChain runs both phases for one chain. Chain-level failures are
// absorbed into the counters; only cancellation stops the phase machinery.
func (imp *Importer) importChain(ctx context.Context, slug chains.Slug) types.ImportCounters {
	var counters types.ImportCounters
	logger := imp.logger.With().Str("chain", string(slug)).Logger()

	chainRow, err := imp.store.GetChainByName(ctx, string(slug))
	if err != nil {
		logger.Error().Err(err).Msg("chain row missing, skipping chain")
		counters.Errors++
		return counters
	}
	adapter, err := imp.registry.GetOrInit(slug)
	if err != nil {
		logger.Error().Err(err).Msg("no adapter for chain")
		counters.Errors++
		return counters
	}
	job := chainJob{slug: string(slug), chainID: chainRow.ChainID, adapter: adapter, logger: logger}

	branchMap := imp.importStores(ctx, job, &counters)
	if ctx.Err() != nil {
		return counters
	}
	logger.Info().
		Int("branches_known", len(branchMap)).
		Int("branches_created", counters.BranchesCreated).
		Int("branches_updated", counters.BranchesUpdated).
		Msg("stores phase complete")

	imp.importPrices(ctx, job, branchMap, &counters)
	return counters
}

// importStores fetches and applies the stores feed, then returns the chain's
// full store_id to branch_id map. Branches from earlier runs stay resolvable
// even when today's stores feed is unreachable.
func (imp *Importer) importStores(ctx context.Context, job chainJob, counters *types.ImportCounters) map[string]int64 {
	files, err := job.adapter.ListStoreFiles(ctx)
	if err != nil {
		job.logger.Error().Err(err).Msg("list store files")
		counters.Errors++
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(imp.cfg.Workers))

	for _, file := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(f types.DiscoveredFile) {
			defer sem.Release(1)
			defer wg.Done()
			fileCounters := imp.importStoreFile(ctx, job, f)
			mu.Lock()
			counters.Add(fileCounters)
			mu.Unlock()
		}(file)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	branchMap, err := imp.store.BranchIDMap(ctx, job.chainID)
	if err != nil {
		job.logger.Error().Err(err).Msg("load branch map")
		counters.Errors++
		return nil
	}
	return branchMap
}

func (imp *Importer) importStoreFile(ctx context.Context, job chainJob, f types.DiscoveredFile) types.ImportCounters {
	var counters types.ImportCounters

	data, err := imp.fetcher.GetBytes(ctx, f.URL)
	if err != nil {
		job.logger.Warn().Err(err).Str("file", f.Filename).Msg("store file fetch failed")
		imp.metrics.RecordFileFailed(job.slug, f.Kind)
		counters.FilesFailed++
		return counters
	}
	imp.archiveFeed(ctx, job, f, data)
	parsed, err := job.adapter.ParseStores(data)
	if err != nil {
		job.logger.Warn().Err(err).Str("file", f.Filename).Msg("store file unparseable")
		imp.metrics.RecordFileFailed(job.slug, f.Kind)
		counters.FilesFailed++
		return counters
	}
	imp.metrics.RecordFileFetched(job.slug, f.Kind)
	counters.FilesFetched++
	if len(parsed.Warnings) > 0 {
		job.logger.Debug().Str("file", f.Filename).Int("warnings", len(parsed.Warnings)).Msg("store entries skipped")
	}

	for _, rec := range parsed.Records {
		_, created, err := imp.store.UpsertBranch(ctx, job.chainID, rec)
		if err != nil {
			job.logger.Error().Err(err).Str("store_id", rec.StoreID).Msg("upsert branch")
			counters.Errors++
			continue
		}
		if created {
			counters.BranchesCreated++
		} else {
			counters.BranchesUpdated++
		}
	}
	return counters
}

// importPrices fetches each price file and applies its records in batched
// transactions. Records whose store is not in branchMap are dropped and
// counted; a batch that fails is skipped whole.
func (imp *Importer) importPrices(ctx context.Context, job chainJob, branchMap map[string]int64, counters *types.ImportCounters) {
	files, err := job.adapter.ListPriceFiles(ctx)
	if err != nil {
		job.logger.Error().Err(err).Msg("list price files")
		counters.Errors++
		return
	}
	if imp.cfg.FileLimit > 0 && len(files) > imp.cfg.FileLimit {
		job.logger.Info().Int("discovered", len(files)).Int("limit", imp.cfg.FileLimit).Msg("price file list capped")
		files = files[:imp.cfg.FileLimit]
	}
	if len(branchMap) == 0 {
		job.logger.Warn().Msg("no branches known for chain, every price record will be skipped")
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(imp.cfg.Workers))

	for _, file := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(f types.DiscoveredFile) {
			defer sem.Release(1)
			defer wg.Done()
			fileCounters := imp.importPriceFile(ctx, job, branchMap, f)
			mu.Lock()
			counters.Add(fileCounters)
			mu.Unlock()
		}(file)
	}
	wg.Wait()
}

func (imp *Importer) importPriceFile(ctx context.Context, job chainJob, branchMap map[string]int64, f types.DiscoveredFile) types.ImportCounters {
	var counters types.ImportCounters

	data, err := imp.fetcher.GetBytes(ctx, f.URL)
	if err != nil {
		job.logger.Warn().Err(err).Str("file", f.Filename).Msg("price file fetch failed")
		imp.metrics.RecordFileFailed(job.slug, f.Kind)
		counters.FilesFailed++
		return counters
	}
	imp.archiveFeed(ctx, job, f, data)
	parsed, err := job.adapter.ParsePrices(data)
	if err != nil {
		job.logger.Warn().Err(err).Str("file", f.Filename).Msg("price file unparseable")
		imp.metrics.RecordFileFailed(job.slug, f.Kind)
		counters.FilesFailed++
		return counters
	}
	imp.metrics.RecordFileFetched(job.slug, f.Kind)
	counters.FilesFetched++
	if len(parsed.Warnings) > 0 {
		job.logger.Debug().Str("file", f.Filename).Int("warnings", len(parsed.Warnings)).Msg("price entries skipped")
	}

	items := make([]store.PriceBatchItem, 0, len(parsed.Records))
	for _, rec := range parsed.Records {
		branchID, ok := branchMap[rec.StoreID]
		if !ok {
			counters.BranchesSkipped++
			continue
		}
		items = append(items, store.PriceBatchItem{
			BranchID:    branchID,
			Barcode:     rec.Barcode,
			Name:        rec.Name,
			PriceAgorot: rec.PriceAgorot,
		})
	}
	if counters.BranchesSkipped > 0 {
		job.logger.Debug().Str("file", f.Filename).Str("store_id", parsed.StoreID).Int("records", counters.BranchesSkipped).Msg("records without a branch dropped")
		imp.metrics.RecordBranchesSkipped(job.slug, counters.BranchesSkipped)
	}

	for start := 0; start < len(items); start += imp.cfg.BatchSize {
		// Cancellation is honored between batches, never inside one.
		if ctx.Err() != nil {
			return counters
		}
		end := min(start+imp.cfg.BatchSize, len(items))
		res, err := imp.store.ApplyPriceBatch(ctx, job.chainID, items[start:end], imp.cfg.ImproveNames)
		if err != nil {
			job.logger.Warn().Err(err).Str("file", f.Filename).Int("records", end-start).Msg("price batch rolled back")
			counters.Errors++
			continue
		}
		imp.metrics.RecordBatch(job.slug, res)
		counters.ProductsCreated += res.ProductsCreated
		counters.ProductsUpdated += res.ProductsUpdated
		counters.PricesCreated += res.PricesCreated
		counters.PricesUpdated += res.PricesUpdated
	}
	return counters
}

// archiveFeed keeps a copy of the raw payload when archiving is enabled,
// before any parse attempt, so unparseable feeds can be replayed. Archive
// failures are logged and never affect the run.
func (imp *Importer) archiveFeed(ctx context.Context, job chainJob, f types.DiscoveredFile, data []byte) {
	if imp.archive == nil {
		return
	}
	_, err := imp.archive.SaveFeed(ctx, archive.FeedFile{
		ChainSlug: job.slug,
		Kind:      string(f.Kind),
		Filename:  f.Filename,
		SourceURL: f.URL,
		Payload:   data,
	})
	if err != nil {
		job.logger.Warn().Err(err).Str("file", f.Filename).Msg("feed archive write failed")
	}
}
