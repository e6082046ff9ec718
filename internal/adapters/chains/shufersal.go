package chains

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zolsal/price-service/internal/adapters"
	"github.com/zolsal/price-service/internal/adapters/discovery"
	chainscfg "github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/parsers/xmlmap"
	"github.com/zolsal/price-service/internal/types"
)

// shufersalDownloadLabel is the anchor text on every feed download link.
const shufersalDownloadLabel = "לחץ להורדה"

// ShufersalAdapter reads the Shufersal transparency portal. The price index
// (category 2) is paginated; page 1 carries a ">>" anchor whose href's page
// parameter names the last page. The stores index (category 5) is a single
// page with the same anchor layout.
type ShufersalAdapter struct {
	cfg     chainscfg.Config
	fetcher adapters.Fetcher
}

// NewShufersalAdapter creates a Shufersal adapter using the given fetcher.
func NewShufersalAdapter(fetcher adapters.Fetcher) *ShufersalAdapter {
	cfg, _ := chainscfg.Get(chainscfg.Shufersal)
	return &ShufersalAdapter{cfg: cfg, fetcher: fetcher}
}

// Slug returns the chain slug.
func (a *ShufersalAdapter) Slug() chainscfg.Slug {
	return chainscfg.Shufersal
}

// DisplayName returns the chain's Hebrew display name.
func (a *ShufersalAdapter) DisplayName() string {
	return a.cfg.DisplayName
}

// ListStoreFiles discovers the stores feed files from the category-5 index.
func (a *ShufersalAdapter) ListStoreFiles(ctx context.Context) ([]types.DiscoveredFile, error) {
	html, err := a.fetcher.GetString(ctx, a.cfg.StoreIndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch stores index: %w", err)
	}
	return a.collectDownloads(html, types.FileKindStores, map[string]bool{}), nil
}

// ListPriceFiles walks the paginated category-2 index and returns every
// download link, deduplicated by filename across pages.
func (a *ShufersalAdapter) ListPriceFiles(ctx context.Context) ([]types.DiscoveredFile, error) {
	first, err := a.fetcher.GetString(ctx, a.cfg.PriceIndexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch price index: %w", err)
	}

	lastPage, found := discovery.LastPage(first)
	if !found {
		log.Warn().
			Str("chain", string(a.Slug())).
			Msg("price index has no last-page marker, crawling page 1 only")
	}

	seen := make(map[string]bool)
	files := a.collectDownloads(first, types.FileKindPrices, seen)

	for page := 2; page <= lastPage; page++ {
		pageURL := discovery.WithPage(a.cfg.PriceIndexURL, page)
		html, err := a.fetcher.GetString(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch price index page %d: %w", page, err)
		}
		files = append(files, a.collectDownloads(html, types.FileKindPrices, seen)...)
	}

	return files, nil
}

// collectDownloads extracts the download anchors from one index page. seen is
// keyed by filename and shared across pages, since the portal repeats entries
// on page boundaries.
func (a *ShufersalAdapter) collectDownloads(html string, kind types.FileKind, seen map[string]bool) []types.DiscoveredFile {
	anchors := discovery.AnchorsWithText(discovery.ExtractAnchors(html), shufersalDownloadLabel)

	files := make([]types.DiscoveredFile, 0, len(anchors))
	for _, anchor := range anchors {
		fileURL := discovery.NormalizeHref(anchor.Href, a.cfg.BaseURL)
		filename := discovery.FilenameFromURL(fileURL)
		if seen[filename] {
			continue
		}
		seen[filename] = true
		files = append(files, types.DiscoveredFile{
			URL:      fileURL,
			Filename: filename,
			Kind:     kind,
		})
	}
	return files
}

// ParseStores parses a Shufersal stores feed: a flat STORE list with
// uppercase child elements. Store ids are stripped of leading zeros so they
// line up with the ids the price feeds carry.
func (a *ShufersalAdapter) ParseStores(content []byte) (*types.StoreParseResult, error) {
	doc, err := xmlmap.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse stores xml: %w", err)
	}

	stores := xmlmap.FindAll(doc, "STORE", "Store")
	result := &types.StoreParseResult{TotalStores: len(stores)}

	for i, node := range stores {
		storeID := stripLeadingZeros(xmlmap.ChildString(node, "STOREID"))
		if storeID == "" {
			result.Warnings = append(result.Warnings, types.ParseWarning{
				Index:   i,
				Field:   "STOREID",
				Message: "missing store id",
			})
			continue
		}
		result.Records = append(result.Records, types.StoreRecord{
			StoreID: storeID,
			Name:    xmlmap.ChildString(node, "STORENAME"),
			Address: xmlmap.ChildString(node, "ADDRESS"),
			City:    xmlmap.ChildString(node, "CITY"),
		})
	}

	result.ValidStores = len(result.Records)
	return result, nil
}

// ParsePrices parses a Shufersal price feed. The file-level store id follows
// the same leading-zero rule as the stores feed.
func (a *ShufersalAdapter) ParsePrices(content []byte) (*types.PriceParseResult, error) {
	doc, err := xmlmap.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse price xml: %w", err)
	}
	return parsePriceDocument(doc, true)
}
