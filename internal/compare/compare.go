// Package compare ranks the branches of a city by how cheaply they can
// fill a shopping cart. A branch that stocks more of the cart always beats
// a cheaper branch that stocks less; price only breaks ties within the
// same availability.
package compare

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

// MaxCandidates caps the candidate list in a comparison response.
const MaxCandidates = 50

// PriceSource is the slice of the store the comparator reads from.
type PriceSource interface {
	BranchesInCity(ctx context.Context, city string) ([]store.CityBranch, error)
	PricePointsByBarcodes(ctx context.Context, branchIDs []int64, barcodes []string) ([]store.PricePointRow, error)
}

// ItemDetail is one cart line priced at one branch.
type ItemDetail struct {
	Barcode         string `json:"barcode"`
	Name            string `json:"name,omitempty"`
	Quantity        int    `json:"quantity"`
	UnitPriceAgorot int    `json:"unitPriceAgorot"`
	LineTotalAgorot int    `json:"lineTotalAgorot"`
	Available       bool   `json:"available"`
}

// StoreResult is one branch's full quote for the cart.
type StoreResult struct {
	ChainName      string       `json:"chainName"`
	ChainDisplay   string       `json:"chainDisplay"`
	StoreID        string       `json:"storeId"`
	BranchName     string       `json:"branchName"`
	Address        string       `json:"address,omitempty"`
	City           string       `json:"city"`
	TotalAgorot    int          `json:"totalAgorot"`
	AvailableItems int          `json:"availableItems"`
	MissingItems   int          `json:"missingItems"`
	Items          []ItemDetail `json:"items"`
}

// Savings is the spread between the most and least expensive branches that
// can fill the whole cart.
type Savings struct {
	AmountAgorot int     `json:"amountAgorot"`
	Percent      float64 `json:"percent"`
}

// CartComparison is the comparator's answer. CheapestStore is nil when no
// branch in the city stocks even one cart item; that is a valid result,
// not an error.
type CartComparison struct {
	City          string           `json:"city"`
	CheapestStore *StoreResult     `json:"cheapestStore"`
	AllStores     []StoreResult    `json:"allStores"`
	Savings       *Savings         `json:"savings,omitempty"`
	Items         []types.CartItem `json:"items"`
	TotalItems    int              `json:"totalItems"`
}

// Comparator prices carts against every branch of a city.
type Comparator struct {
	source  PriceSource
	metrics *MetricsRecorder
	logger  zerolog.Logger
}

// NewComparator creates a comparator over the given price source.
func NewComparator(source PriceSource, metrics *MetricsRecorder) *Comparator {
	if metrics == nil {
		metrics = NewMetricsRecorder()
	}
	return &Comparator{
		source:  source,
		metrics: metrics,
		logger:  log.With().Str("component", "comparator").Logger(),
	}
}

// Compare prices the cart at every branch of the city and ranks the
// branches by availability, then by total. Quantity validation belongs to
// the caller; zero-quantity lines price to zero and count toward neither
// availability counter.
func (c *Comparator) Compare(ctx context.Context, city string, items []types.CartItem) (*CartComparison, error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordComparison(time.Since(start).Seconds(), len(items))
	}()

	result := &CartComparison{
		City:       city,
		AllStores:  []StoreResult{},
		Items:      items,
		TotalItems: len(items),
	}

	branches, err := c.source.BranchesInCity(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("resolve city %q: %w", city, err)
	}
	if len(branches) == 0 {
		return result, nil
	}

	prices, err := c.branchPrices(ctx, branches, items)
	if err != nil {
		return nil, err
	}

	candidates := make([]StoreResult, 0, len(branches))
	for _, branch := range branches {
		quote := priceCart(branch, prices[branch.BranchID], items)
		if quote.AvailableItems == 0 {
			continue
		}
		candidates = append(candidates, quote)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AvailableItems != candidates[j].AvailableItems {
			return candidates[i].AvailableItems > candidates[j].AvailableItems
		}
		if candidates[i].TotalAgorot != candidates[j].TotalAgorot {
			return candidates[i].TotalAgorot < candidates[j].TotalAgorot
		}
		return candidates[i].StoreID < candidates[j].StoreID
	})

	result.Savings = savings(candidates)
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	result.AllStores = candidates
	if len(candidates) > 0 {
		result.CheapestStore = &candidates[0]
	}

	c.logger.Debug().
		Str("city", city).
		Int("items", len(items)).
		Int("candidates", len(candidates)).
		Msg("cart compared")
	return result, nil
}

// branchPrices fetches every (branch, barcode) price in one query and
// indexes it for the per-branch pass.
func (c *Comparator) branchPrices(ctx context.Context, branches []store.CityBranch, items []types.CartItem) (map[int64]map[string]store.PricePointRow, error) {
	ids := make([]int64, len(branches))
	for i, b := range branches {
		ids[i] = b.BranchID
	}

	seen := make(map[string]bool, len(items))
	barcodes := make([]string, 0, len(items))
	for _, item := range items {
		if item.Barcode == "" || seen[item.Barcode] {
			continue
		}
		seen[item.Barcode] = true
		barcodes = append(barcodes, item.Barcode)
	}

	rows, err := c.source.PricePointsByBarcodes(ctx, ids, barcodes)
	if err != nil {
		return nil, fmt.Errorf("lookup cart prices: %w", err)
	}

	prices := make(map[int64]map[string]store.PricePointRow)
	for _, row := range rows {
		byBarcode := prices[row.BranchID]
		if byBarcode == nil {
			byBarcode = make(map[string]store.PricePointRow)
			prices[row.BranchID] = byBarcode
		}
		if _, ok := byBarcode[row.Barcode]; !ok {
			byBarcode[row.Barcode] = row
		}
	}
	return prices, nil
}

// priceCart quotes the full cart at one branch.
func priceCart(branch store.CityBranch, prices map[string]store.PricePointRow, items []types.CartItem) StoreResult {
	quote := StoreResult{
		ChainName:    branch.ChainName,
		ChainDisplay: branch.ChainDisplay,
		StoreID:      branch.StoreID,
		BranchName:   branch.Name,
		Address:      branch.Address,
		City:         branch.City,
		Items:        make([]ItemDetail, 0, len(items)),
	}

	for _, item := range items {
		row, found := prices[item.Barcode]
		detail := ItemDetail{
			Barcode:   item.Barcode,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Available: found,
		}
		if found {
			detail.UnitPriceAgorot = row.PriceAgorot
			if row.Name != "" {
				detail.Name = row.Name
			}
		}
		if item.Quantity != 0 {
			if found {
				detail.LineTotalAgorot = row.PriceAgorot * item.Quantity
				quote.TotalAgorot += detail.LineTotalAgorot
				quote.AvailableItems++
			} else {
				quote.MissingItems++
			}
		}
		quote.Items = append(quote.Items, detail)
	}
	return quote
}

// savings reports the spread between the best and worst complete-basket
// branches. Fewer than two complete baskets means no spread to report.
func savings(candidates []StoreResult) *Savings {
	best, worst, complete := 0, 0, 0
	for _, c := range candidates {
		if c.MissingItems > 0 {
			continue
		}
		if complete == 0 || c.TotalAgorot < best {
			best = c.TotalAgorot
		}
		if complete == 0 || c.TotalAgorot > worst {
			worst = c.TotalAgorot
		}
		complete++
	}
	if complete < 2 {
		return nil
	}

	s := &Savings{AmountAgorot: worst - best}
	if worst > 0 {
		s.Percent = float64(s.AmountAgorot) / float64(worst) * 100
	}
	return s
}
