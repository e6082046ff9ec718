package types

import "time"

// FileKind identifies which of the two published feed types a file belongs to.
type FileKind string

const (
	FileKindStores FileKind = "stores"
	FileKindPrices FileKind = "prices"
)

// DiscoveredFile represents a downloadable feed file found on a chain's index page.
type DiscoveredFile struct {
	URL      string   `json:"url"`
	Filename string   `json:"filename"`
	Kind     FileKind `json:"kind"`
}

// StoreRecord is the chain-agnostic shape of one store entry from a stores feed.
// SubChainID is informational; only some chains publish it.
type StoreRecord struct {
	StoreID    string `json:"storeId"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	SubChainID string `json:"subChainId,omitempty"`
}

// PriceRecord is the chain-agnostic shape of one product price from a price feed.
// PriceAgorot is the price in agorot (hundredths of a shekel).
type PriceRecord struct {
	StoreID     string `json:"storeId"`
	Barcode     string `json:"barcode"`
	Name        string `json:"name"`
	PriceAgorot int    `json:"priceAgorot"`
}

// ParseWarning describes a single skipped element inside an otherwise usable file.
type ParseWarning struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// StoreParseResult is the outcome of parsing one stores XML file.
type StoreParseResult struct {
	Records     []StoreRecord  `json:"records"`
	Warnings    []ParseWarning `json:"warnings,omitempty"`
	TotalStores int            `json:"totalStores"`
	ValidStores int            `json:"validStores"`
}

// PriceParseResult is the outcome of parsing one price XML file. StoreID is the
// file-level store identifier resolved from the document root.
type PriceParseResult struct {
	StoreID       string         `json:"storeId"`
	Records       []PriceRecord  `json:"records"`
	Warnings      []ParseWarning `json:"warnings,omitempty"`
	TotalProducts int            `json:"totalProducts"`
	ValidProducts int            `json:"validProducts"`
}

// CartItem is one basket line: a barcode and how many units of it.
// Name is an optional caller-supplied label echoed back in responses.
type CartItem struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name,omitempty"`
}

// ImportCounters accumulates the per-run ingestion counters. Only committed
// batches contribute; a rolled-back batch adds solely to Errors.
type ImportCounters struct {
	FilesFetched    int `json:"files_fetched"`
	FilesFailed     int `json:"files_failed"`
	BranchesCreated int `json:"branches_created"`
	BranchesUpdated int `json:"branches_updated"`
	ProductsCreated int `json:"products_created"`
	ProductsUpdated int `json:"products_updated"`
	PricesCreated   int `json:"prices_created"`
	PricesUpdated   int `json:"prices_updated"`
	BranchesSkipped int `json:"branches_skipped"`
	Errors          int `json:"errors"`
}

// Add accumulates another set of counters into c.
func (c *ImportCounters) Add(other ImportCounters) {
	c.FilesFetched += other.FilesFetched
	c.FilesFailed += other.FilesFailed
	c.BranchesCreated += other.BranchesCreated
	c.BranchesUpdated += other.BranchesUpdated
	c.ProductsCreated += other.ProductsCreated
	c.ProductsUpdated += other.ProductsUpdated
	c.PricesCreated += other.PricesCreated
	c.PricesUpdated += other.PricesUpdated
	c.BranchesSkipped += other.BranchesSkipped
	c.Errors += other.Errors
}

// ImportRun is the persisted record of one ingestion pass.
type ImportRun struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	Chains      []string       `json:"chains"`
	Counters    ImportCounters `json:"counters"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Import run statuses.
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusInterrupted = "interrupted"
)
