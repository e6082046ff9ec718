// Package search groups per-branch price points into products for the
// public read API. Grouping is by barcode across chains, so the same
// product sold by both chains comes back as one result with every branch
// that stocks it.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zolsal/price-service/internal/store"
)

const (
	// DefaultLimit is the result cap applied when the caller does not ask
	// for one.
	DefaultLimit = 20
	// MaxLimit is the hard cap on results per query.
	MaxLimit = 100
)

// Source is the slice of the store the search service reads from.
type Source interface {
	BranchesInCity(ctx context.Context, city string) ([]store.CityBranch, error)
	SearchPricePoints(ctx context.Context, branchIDs []int64, query string) ([]store.PricePointRow, error)
	PricePointsByBarcodes(ctx context.Context, branchIDs []int64, barcodes []string) ([]store.PricePointRow, error)
	ListCities(ctx context.Context) ([]string, error)
	ListChains(ctx context.Context) ([]store.Chain, error)
}

// PricePoint is one branch's offer for a product, with the branch and chain
// metadata a client needs to render it.
type PricePoint struct {
	ChainName    string `json:"chainName"`
	ChainDisplay string `json:"chainDisplay"`
	StoreID      string `json:"storeId"`
	BranchName   string `json:"branchName"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city"`
	PriceAgorot  int    `json:"priceAgorot"`
	LastUpdated  string `json:"lastUpdated"`
	IsCheapest   bool   `json:"isCheapest"`
}

// Stats summarizes the price spread of a product across the branches that
// stock it. All money values are agorot.
type Stats struct {
	MinAgorot   int     `json:"minAgorot"`
	MaxAgorot   int     `json:"maxAgorot"`
	AvgAgorot   float64 `json:"avgAgorot"`
	RangeAgorot int     `json:"rangeAgorot"`
	StoreCount  int     `json:"storeCount"`
}

// Product is one barcode with every price point found for it in the target
// city. Name is the longest observed product name across chains.
type Product struct {
	Barcode string       `json:"barcode"`
	Name    string       `json:"name"`
	Prices  []PricePoint `json:"prices"`
	Stats   Stats        `json:"stats"`
}

// Service answers product search and catalog queries against the store.
type Service struct {
	source Source
	logger zerolog.Logger
}

// New creates a search service over the given source.
func New(source Source) *Service {
	return &Service{
		source: source,
		logger: log.With().Str("component", "search").Logger(),
	}
}

// SearchProducts returns up to limit products whose name contains the query,
// scoped to branches in the given city. Products stocked by more branches
// sort first; ties break by ascending minimum price. An unknown city or a
// query with no matches yields an empty slice, not an error.
func (s *Service) SearchProducts(ctx context.Context, query, city string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	branches, err := s.source.BranchesInCity(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("resolve city %q: %w", city, err)
	}
	if len(branches) == 0 {
		return []Product{}, nil
	}

	rows, err := s.source.SearchPricePoints(ctx, branchIDs(branches), query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	products := groupByBarcode(branches, rows)
	sort.Slice(products, func(i, j int) bool {
		if products[i].Stats.StoreCount != products[j].Stats.StoreCount {
			return products[i].Stats.StoreCount > products[j].Stats.StoreCount
		}
		if products[i].Stats.MinAgorot != products[j].Stats.MinAgorot {
			return products[i].Stats.MinAgorot < products[j].Stats.MinAgorot
		}
		return products[i].Barcode < products[j].Barcode
	})
	if len(products) > limit {
		products = products[:limit]
	}

	s.logger.Debug().
		Str("query", query).
		Str("city", city).
		Int("results", len(products)).
		Msg("product search")
	return products, nil
}

// ProductByBarcode returns the single product for a barcode in a city.
// A city with no branches or a barcode no branch stocks is ErrNotFound.
func (s *Service) ProductByBarcode(ctx context.Context, barcode, city string) (*Product, error) {
	branches, err := s.source.BranchesInCity(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("resolve city %q: %w", city, err)
	}
	if len(branches) == 0 {
		return nil, fmt.Errorf("no branches in city %q: %w", city, store.ErrNotFound)
	}

	rows, err := s.source.PricePointsByBarcodes(ctx, branchIDs(branches), []string{barcode})
	if err != nil {
		return nil, fmt.Errorf("lookup barcode %q: %w", barcode, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("barcode %q in city %q: %w", barcode, city, store.ErrNotFound)
	}

	products := groupByBarcode(branches, rows)
	return &products[0], nil
}

// Cities returns the distinct sorted set of cities with at least one branch.
func (s *Service) Cities(ctx context.Context) ([]string, error) {
	return s.source.ListCities(ctx)
}

// Chains returns the seeded chains.
func (s *Service) Chains(ctx context.Context) ([]store.Chain, error) {
	return s.source.ListChains(ctx)
}

func branchIDs(branches []store.CityBranch) []int64 {
	ids := make([]int64, len(branches))
	for i, b := range branches {
		ids[i] = b.BranchID
	}
	return ids
}

// groupByBarcode folds price-point rows into Product values. Rows arrive
// ordered by barcode then ascending price, so each group's first row is its
// cheapest offer.
func groupByBarcode(branches []store.CityBranch, rows []store.PricePointRow) []Product {
	byID := make(map[int64]store.CityBranch, len(branches))
	for _, b := range branches {
		byID[b.BranchID] = b
	}

	var products []Product
	var cur *Product
	for _, row := range rows {
		branch, ok := byID[row.BranchID]
		if !ok {
			continue
		}
		if cur == nil || cur.Barcode != row.Barcode {
			products = append(products, Product{Barcode: row.Barcode, Name: row.Name})
			cur = &products[len(products)-1]
		}
		cur.Prices = append(cur.Prices, PricePoint{
			ChainName:    branch.ChainName,
			ChainDisplay: branch.ChainDisplay,
			StoreID:      branch.StoreID,
			BranchName:   branch.Name,
			Address:      branch.Address,
			City:         branch.City,
			PriceAgorot:  row.PriceAgorot,
			LastUpdated:  row.LastUpdated.Format(time.RFC3339),
		})
		// Chains may label the same barcode differently. Keep the longest.
		if utf8.RuneCountInString(row.Name) > utf8.RuneCountInString(cur.Name) {
			cur.Name = row.Name
		}
	}

	for i := range products {
		finishProduct(&products[i])
	}
	return products
}

func finishProduct(p *Product) {
	if len(p.Prices) == 0 {
		return
	}
	p.Prices[0].IsCheapest = true

	lo, hi, sum := p.Prices[0].PriceAgorot, p.Prices[0].PriceAgorot, 0
	for _, pp := range p.Prices {
		lo = min(lo, pp.PriceAgorot)
		hi = max(hi, pp.PriceAgorot)
		sum += pp.PriceAgorot
	}
	p.Stats = Stats{
		MinAgorot:   lo,
		MaxAgorot:   hi,
		AvgAgorot:   float64(sum) / float64(len(p.Prices)),
		RangeAgorot: hi - lo,
		StoreCount:  len(p.Prices),
	}
}
