package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zolsal/price-service/internal/adapters/registry"
	"github.com/zolsal/price-service/internal/archive"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

// fakeFetcher serves canned payloads by URL.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]string
	errs     map[string]error
	calls    []string
}

func (f *fakeFetcher) GetBytes(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.payloads[url]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", url)
	}
	return []byte(body), nil
}

func (f *fakeFetcher) GetString(ctx context.Context, url string) (string, error) {
	b, err := f.GetBytes(ctx, url)
	return string(b), err
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeAdapter maps fetched payloads to canned parse results.
type fakeAdapter struct {
	slug       chains.Slug
	storeFiles []types.DiscoveredFile
	priceFiles []types.DiscoveredFile
	stores     map[string]*types.StoreParseResult
	prices     map[string]*types.PriceParseResult
}

func (a *fakeAdapter) Slug() chains.Slug   { return a.slug }
func (a *fakeAdapter) DisplayName() string { return "Fake " + string(a.slug) }

func (a *fakeAdapter) ListStoreFiles(context.Context) ([]types.DiscoveredFile, error) {
	return a.storeFiles, nil
}

func (a *fakeAdapter) ListPriceFiles(context.Context) ([]types.DiscoveredFile, error) {
	return a.priceFiles, nil
}

func (a *fakeAdapter) ParseStores(content []byte) (*types.StoreParseResult, error) {
	res, ok := a.stores[string(content)]
	if !ok {
		return nil, errors.New("unparseable stores payload")
	}
	return res, nil
}

func (a *fakeAdapter) ParsePrices(content []byte) (*types.PriceParseResult, error) {
	res, ok := a.prices[string(content)]
	if !ok {
		return nil, errors.New("unparseable price payload")
	}
	return res, nil
}

type finishedRun struct {
	runID    string
	status   string
	errMsg   string
	counters types.ImportCounters
}

// fakeStore is an in-memory Store that emulates the upsert semantics closely
// enough for counter assertions.
type fakeStore struct {
	mu           sync.Mutex
	chainIDs     map[string]int64
	branches     map[int64]map[string]int64 // chainID -> storeID -> branchID
	nextBranchID int64
	products     map[string]bool // chainID/barcode
	prices       map[string]int  // chainID/barcode/branchID -> agorot
	batches      [][]store.PriceBatchItem
	batchErrs    []error
	insertRunErr error
	runs         []*types.ImportRun
	finished     []finishedRun
	branchOps    int
	batchOps     int
	phaseBroken  bool // a price batch arrived before the last branch upsert
}

func newFakeStore(chainIDs map[string]int64) *fakeStore {
	return &fakeStore{
		chainIDs: chainIDs,
		branches: make(map[int64]map[string]int64),
		products: make(map[string]bool),
		prices:   make(map[string]int),
	}
}

func (s *fakeStore) GetChainByName(_ context.Context, name string) (*store.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.chainIDs[name]
	if !ok {
		return nil, fmt.Errorf("chain %q: %w", name, store.ErrNotFound)
	}
	return &store.Chain{ChainID: id, Name: name}, nil
}

func (s *fakeStore) UpsertBranch(_ context.Context, chainID int64, rec types.StoreRecord) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branchOps++
	if s.batchOps > 0 {
		s.phaseBroken = true
	}
	if s.branches[chainID] == nil {
		s.branches[chainID] = make(map[string]int64)
	}
	if id, ok := s.branches[chainID][rec.StoreID]; ok {
		return id, false, nil
	}
	s.nextBranchID++
	s.branches[chainID][rec.StoreID] = s.nextBranchID
	return s.nextBranchID, true, nil
}

func (s *fakeStore) BranchIDMap(_ context.Context, chainID int64) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.branches[chainID]))
	for storeID, branchID := range s.branches[chainID] {
		out[storeID] = branchID
	}
	return out, nil
}

func (s *fakeStore) ApplyPriceBatch(_ context.Context, chainID int64, items []store.PriceBatchItem, _ bool) (store.PriceBatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchOps++
	s.batches = append(s.batches, items)
	if len(s.batchErrs) > 0 {
		err := s.batchErrs[0]
		s.batchErrs = s.batchErrs[1:]
		if err != nil {
			return store.PriceBatchResult{}, err
		}
	}

	var res store.PriceBatchResult
	for _, it := range items {
		productKey := fmt.Sprintf("%d/%s", chainID, it.Barcode)
		if !s.products[productKey] {
			s.products[productKey] = true
			res.ProductsCreated++
		}
		priceKey := fmt.Sprintf("%s/%d", productKey, it.BranchID)
		old, ok := s.prices[priceKey]
		switch {
		case !ok:
			s.prices[priceKey] = it.PriceAgorot
			res.PricesCreated++
		case old != it.PriceAgorot:
			s.prices[priceKey] = it.PriceAgorot
			res.PricesUpdated++
		}
	}
	return res, nil
}

func (s *fakeStore) InsertImportRun(_ context.Context, run *types.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertRunErr != nil {
		return s.insertRunErr
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) FinishImportRun(_ context.Context, runID, status string, counters types.ImportCounters, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, finishedRun{runID: runID, status: status, errMsg: errMsg, counters: counters})
	return nil
}

func newImporterFixture(t *testing.T, adapter *fakeAdapter, fetcher *fakeFetcher, st *fakeStore, cfg Config) *Importer {
	t.Helper()
	reg := registry.NewRegistry(fetcher)
	reg.Register(adapter.slug, adapter)
	return New(st, fetcher, reg, cfg)
}

func storesFile(url string) types.DiscoveredFile {
	return types.DiscoveredFile{URL: url, Filename: url, Kind: types.FileKindStores}
}

func priceFile(url string) types.DiscoveredFile {
	return types.DiscoveredFile{URL: url, Filename: url, Kind: types.FileKindPrices}
}

func TestImporterRunTwoPhases(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		storeFiles: []types.DiscoveredFile{storesFile("stores.xml")},
		priceFiles: []types.DiscoveredFile{priceFile("prices.xml")},
		stores: map[string]*types.StoreParseResult{
			"STORES": {
				Records: []types.StoreRecord{
					{StoreID: "1", Name: "סניף מרכז", City: "חולון"},
					{StoreID: "2", Name: "סניף צפון", City: "חיפה"},
				},
				TotalStores: 2,
				ValidStores: 2,
			},
		},
		prices: map[string]*types.PriceParseResult{
			"PRICES": {
				StoreID: "1",
				Records: []types.PriceRecord{
					{StoreID: "1", Barcode: "7290000000001", Name: "חלב תנובה 3%", PriceAgorot: 650},
					{StoreID: "1", Barcode: "7290000000002", Name: "לחם אחיד פרוס", PriceAgorot: 590},
					{StoreID: "9", Barcode: "7290000000003", Name: "קוטג' תנובה", PriceAgorot: 540},
				},
				TotalProducts: 3,
				ValidProducts: 3,
			},
		},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"stores.xml": "STORES", "prices.xml": "PRICES"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())

	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, 2, result.Counters.FilesFetched)
	assert.Equal(t, 2, result.Counters.BranchesCreated)
	assert.Equal(t, 0, result.Counters.BranchesUpdated)
	assert.Equal(t, 2, result.Counters.ProductsCreated)
	assert.Equal(t, 2, result.Counters.PricesCreated)
	assert.Equal(t, 1, result.Counters.BranchesSkipped, "the record for unknown store 9 must be dropped")
	assert.Equal(t, 0, result.Counters.Errors)

	require.Len(t, st.runs, 1)
	assert.Equal(t, types.RunStatusRunning, st.runs[0].Status)
	assert.Equal(t, []string{"shufersal"}, st.runs[0].Chains)
	require.Len(t, st.finished, 1)
	assert.Equal(t, st.runs[0].RunID, st.finished[0].runID)
	assert.Equal(t, types.RunStatusCompleted, st.finished[0].status)
	assert.Equal(t, result.Counters, st.finished[0].counters)

	assert.False(t, st.phaseBroken, "no price batch may precede the stores phase")
}

func TestImporterSecondRunIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Victory,
		storeFiles: []types.DiscoveredFile{storesFile("stores.xml")},
		priceFiles: []types.DiscoveredFile{priceFile("prices.xml")},
		stores: map[string]*types.StoreParseResult{
			"STORES": {Records: []types.StoreRecord{{StoreID: "001", Name: "ויקטורי חולון", City: "חולון"}}},
		},
		prices: map[string]*types.PriceParseResult{
			"PRICES": {
				StoreID: "001",
				Records: []types.PriceRecord{{StoreID: "001", Barcode: "7290000000001", Name: "חלב", PriceAgorot: 650}},
			},
		},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"stores.xml": "STORES", "prices.xml": "PRICES"}}
	st := newFakeStore(map[string]int64{"victory": 2})
	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())

	first, err := imp.Run(context.Background(), []chains.Slug{chains.Victory})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Counters.BranchesCreated)
	assert.Equal(t, 1, first.Counters.PricesCreated)

	second, err := imp.Run(context.Background(), []chains.Slug{chains.Victory})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Counters.BranchesCreated)
	assert.Equal(t, 1, second.Counters.BranchesUpdated)
	assert.Equal(t, 0, second.Counters.ProductsCreated)
	assert.Equal(t, 0, second.Counters.PricesCreated)
	assert.Equal(t, 0, second.Counters.PricesUpdated, "an unchanged price must not count as updated")
}

func TestImporterFetchFailureSkipsFile(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		priceFiles: []types.DiscoveredFile{priceFile("down.xml"), priceFile("up.xml")},
		stores:     map[string]*types.StoreParseResult{},
		prices: map[string]*types.PriceParseResult{
			"PRICES": {
				StoreID: "1",
				Records: []types.PriceRecord{{StoreID: "1", Barcode: "7290000000001", Name: "חלב", PriceAgorot: 650}},
			},
		},
	}
	fetcher := &fakeFetcher{
		payloads: map[string]string{"up.xml": "PRICES"},
		errs:     map[string]error{"down.xml": errors.New("connect: connection refused")},
	}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	st.branches[1] = map[string]int64{"1": 11}

	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())
	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, 1, result.Counters.FilesFailed)
	assert.Equal(t, 1, result.Counters.FilesFetched)
	assert.Equal(t, 1, result.Counters.PricesCreated)
}

func TestImporterParseFailureSkipsFile(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		priceFiles: []types.DiscoveredFile{priceFile("garbage.xml")},
		stores:     map[string]*types.StoreParseResult{},
		prices:     map[string]*types.PriceParseResult{},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"garbage.xml": "NOT XML"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	st.branches[1] = map[string]int64{"1": 11}

	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())
	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, 1, result.Counters.FilesFailed)
	assert.Equal(t, 0, result.Counters.PricesCreated)
	assert.Empty(t, st.batches)
}

func TestImporterChunksBatches(t *testing.T) {
	records := make([]types.PriceRecord, 5)
	for i := range records {
		records[i] = types.PriceRecord{
			StoreID:     "1",
			Barcode:     fmt.Sprintf("729000000000%d", i),
			Name:        fmt.Sprintf("מוצר %d", i),
			PriceAgorot: 100 + i,
		}
	}
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		priceFiles: []types.DiscoveredFile{priceFile("prices.xml")},
		stores:     map[string]*types.StoreParseResult{},
		prices:     map[string]*types.PriceParseResult{"PRICES": {StoreID: "1", Records: records}},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"prices.xml": "PRICES"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	st.branches[1] = map[string]int64{"1": 11}

	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.Workers = 1
	imp := newImporterFixture(t, adapter, fetcher, st, cfg)

	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Counters.PricesCreated)

	require.Len(t, st.batches, 3)
	assert.Len(t, st.batches[0], 2)
	assert.Len(t, st.batches[1], 2)
	assert.Len(t, st.batches[2], 1)
}

func TestImporterSkipsFailedBatchAndContinues(t *testing.T) {
	records := make([]types.PriceRecord, 4)
	for i := range records {
		records[i] = types.PriceRecord{
			StoreID:     "1",
			Barcode:     fmt.Sprintf("729000000000%d", i),
			Name:        fmt.Sprintf("מוצר %d", i),
			PriceAgorot: 100 + i,
		}
	}
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		priceFiles: []types.DiscoveredFile{priceFile("prices.xml")},
		stores:     map[string]*types.StoreParseResult{},
		prices:     map[string]*types.PriceParseResult{"PRICES": {StoreID: "1", Records: records}},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"prices.xml": "PRICES"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	st.branches[1] = map[string]int64{"1": 11}
	st.batchErrs = []error{errors.New(`ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)`)}

	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.Workers = 1
	imp := newImporterFixture(t, adapter, fetcher, st, cfg)

	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, 1, result.Counters.Errors, "the rolled-back batch counts once")
	assert.Equal(t, 2, result.Counters.PricesCreated, "only the second batch commits")
	require.Len(t, st.batches, 2)
}

func TestImporterCapsPriceFiles(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		priceFiles: []types.DiscoveredFile{priceFile("p1.xml"), priceFile("p2.xml"), priceFile("p3.xml")},
		stores:     map[string]*types.StoreParseResult{},
		prices: map[string]*types.PriceParseResult{
			"PRICES": {StoreID: "1", Records: []types.PriceRecord{{StoreID: "1", Barcode: "7290000000001", Name: "חלב", PriceAgorot: 650}}},
		},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"p1.xml": "PRICES", "p2.xml": "PRICES", "p3.xml": "PRICES"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	st.branches[1] = map[string]int64{"1": 11}

	cfg := DefaultConfig()
	cfg.FileLimit = 1
	imp := newImporterFixture(t, adapter, fetcher, st, cfg)

	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counters.FilesFetched)
	assert.Equal(t, 1, fetcher.fetchCount())
}

func TestImporterUnknownChainCountsError(t *testing.T) {
	adapter := &fakeAdapter{slug: chains.Shufersal}
	fetcher := &fakeFetcher{payloads: map[string]string{}}
	st := newFakeStore(map[string]int64{}) // chain row never seeded

	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())
	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusCompleted, result.Status)
	assert.Equal(t, 1, result.Counters.Errors)
	assert.Equal(t, 0, fetcher.fetchCount())
}

func TestImporterBeginThenExecute(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		storeFiles: []types.DiscoveredFile{storesFile("stores.xml")},
		stores: map[string]*types.StoreParseResult{
			"STORES": {Records: []types.StoreRecord{{StoreID: "1", Name: "סניף מרכז", City: "חולון"}}},
		},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"stores.xml": "STORES"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())

	run, err := imp.BeginRun(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(run.RunID, "run_"))
	assert.Equal(t, []string{"shufersal", "victory"}, run.Chains, "empty slugs means every configured chain")

	// The record exists before any feed work, so a poll URL handed out now
	// already resolves.
	require.Len(t, st.runs, 1)
	assert.Empty(t, st.finished)
	assert.Zero(t, fetcher.fetchCount())

	result, err := imp.ExecuteRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, result.RunID)
	require.Len(t, st.finished, 1)
	assert.Equal(t, run.RunID, st.finished[0].runID)
}

func TestImporterRunRecordFailureAborts(t *testing.T) {
	adapter := &fakeAdapter{slug: chains.Shufersal}
	fetcher := &fakeFetcher{payloads: map[string]string{}}
	st := newFakeStore(map[string]int64{"shufersal": 1})
	st.insertRunErr = errors.New("connection refused")

	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())
	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, fetcher.fetchCount())
}

func TestImporterCancelledRunMarkedFailed(t *testing.T) {
	adapter := &fakeAdapter{slug: chains.Shufersal}
	fetcher := &fakeFetcher{payloads: map[string]string{}}
	st := newFakeStore(map[string]int64{"shufersal": 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imp := newImporterFixture(t, adapter, fetcher, st, DefaultConfig())
	result, err := imp.Run(ctx, []chains.Slug{chains.Shufersal})
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, types.RunStatusFailed, result.Status)
	require.Len(t, st.finished, 1)
	assert.Equal(t, types.RunStatusFailed, st.finished[0].status)
	assert.NotEmpty(t, st.finished[0].errMsg)
}

func TestImporterArchivesRawFeeds(t *testing.T) {
	adapter := &fakeAdapter{
		slug:       chains.Shufersal,
		storeFiles: []types.DiscoveredFile{storesFile("stores.xml")},
		priceFiles: []types.DiscoveredFile{priceFile("garbled.xml")},
		stores: map[string]*types.StoreParseResult{
			"STORES": {Records: []types.StoreRecord{{StoreID: "1", Name: "סניף מרכז", City: "חולון"}}},
		},
		prices: map[string]*types.PriceParseResult{},
	}
	fetcher := &fakeFetcher{payloads: map[string]string{"stores.xml": "STORES", "garbled.xml": "NOT-XML"}}
	st := newFakeStore(map[string]int64{"shufersal": 1})

	cfg := DefaultConfig()
	cfg.ArchiveDir = t.TempDir()
	imp := newImporterFixture(t, adapter, fetcher, st, cfg)

	result, err := imp.Run(context.Background(), []chains.Slug{chains.Shufersal})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counters.FilesFailed, "the garbled price file fails to parse")

	arch := archive.NewLocal(cfg.ArchiveDir)
	keys, err := arch.List(context.Background(), "feeds/shufersal/")
	require.NoError(t, err)
	require.Len(t, keys, 2, "both payloads are archived, the unparseable one included")

	var storeKey, priceKey string
	for _, k := range keys {
		switch {
		case strings.HasSuffix(k, "stores.xml"):
			storeKey = k
		case strings.HasSuffix(k, "garbled.xml"):
			priceKey = k
		}
	}
	require.NotEmpty(t, storeKey)
	require.NotEmpty(t, priceKey)

	payload, err := arch.Get(context.Background(), priceKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("NOT-XML"), payload)

	info, err := arch.GetInfo(context.Background(), storeKey)
	require.NoError(t, err)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, "shufersal", info.Metadata.ChainSlug)
	assert.Equal(t, "stores", info.Metadata.Kind)
}
