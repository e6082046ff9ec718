package chains

import (
	"context"
	"fmt"
	"strings"

	"github.com/zolsal/price-service/internal/adapters"
	"github.com/zolsal/price-service/internal/adapters/discovery"
	chainscfg "github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/parsers/xmlmap"
	"github.com/zolsal/price-service/internal/types"
)

// victoryDownloadLabel is the anchor text on the matrix catalog download links.
const victoryDownloadLabel = "לחץ כאן להורדה"

// VictoryAdapter reads the Victory listings on the matrix catalog portal.
// Each feed type is a single index page; hrefs there may use backslashes and
// may be relative, and the feed type is picked by substring match on the href.
type VictoryAdapter struct {
	cfg     chainscfg.Config
	fetcher adapters.Fetcher
}

// NewVictoryAdapter creates a Victory adapter using the given fetcher.
func NewVictoryAdapter(fetcher adapters.Fetcher) *VictoryAdapter {
	cfg, _ := chainscfg.Get(chainscfg.Victory)
	return &VictoryAdapter{cfg: cfg, fetcher: fetcher}
}

// Slug returns the chain slug.
func (a *VictoryAdapter) Slug() chainscfg.Slug {
	return chainscfg.Victory
}

// DisplayName returns the chain's Hebrew display name.
func (a *VictoryAdapter) DisplayName() string {
	return a.cfg.DisplayName
}

// ListStoreFiles discovers the stores feed files.
func (a *VictoryAdapter) ListStoreFiles(ctx context.Context) ([]types.DiscoveredFile, error) {
	return a.listFiles(ctx, a.cfg.StoreIndexURL, "stores", types.FileKindStores)
}

// ListPriceFiles discovers the price feed files.
func (a *VictoryAdapter) ListPriceFiles(ctx context.Context) ([]types.DiscoveredFile, error) {
	return a.listFiles(ctx, a.cfg.PriceIndexURL, "price", types.FileKindPrices)
}

// listFiles pulls one index page and keeps download anchors whose href
// mentions wanted (case-insensitive). The portal lists both feed types with
// the same anchor label, distinguished only by the file path in the href.
func (a *VictoryAdapter) listFiles(ctx context.Context, indexURL, wanted string, kind types.FileKind) ([]types.DiscoveredFile, error) {
	html, err := a.fetcher.GetString(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s index: %w", kind, err)
	}

	anchors := discovery.AnchorsWithText(discovery.ExtractAnchors(html), victoryDownloadLabel)
	seen := make(map[string]bool)

	files := make([]types.DiscoveredFile, 0, len(anchors))
	for _, anchor := range anchors {
		if !strings.Contains(strings.ToLower(anchor.Href), wanted) {
			continue
		}
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
	return files, nil
}

// ParseStores parses a Victory stores feed: branches nested under
// Store/Branches/Branch with mixed-case child elements. Store ids are kept
// verbatim, leading zeros included.
func (a *VictoryAdapter) ParseStores(content []byte) (*types.StoreParseResult, error) {
	doc, err := xmlmap.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse stores xml: %w", err)
	}

	branches := xmlmap.Path(doc, "Store.Branches.Branch")
	if len(branches) == 0 {
		// Some exports wrap the same layout in an extra envelope element.
		branches = xmlmap.FindAll(doc, "Branch")
	}

	result := &types.StoreParseResult{TotalStores: len(branches)}
	for i, node := range branches {
		storeID := xmlmap.ChildString(node, "StoreID")
		if storeID == "" {
			result.Warnings = append(result.Warnings, types.ParseWarning{
				Index:   i,
				Field:   "StoreID",
				Message: "missing store id",
			})
			continue
		}
		result.Records = append(result.Records, types.StoreRecord{
			StoreID:    storeID,
			Name:       xmlmap.ChildString(node, "StoreName"),
			Address:    xmlmap.ChildString(node, "Address"),
			City:       xmlmap.ChildString(node, "City"),
			SubChainID: xmlmap.ChildString(node, "SubChainID"),
		})
	}

	result.ValidStores = len(result.Records)
	return result, nil
}

// ParsePrices parses a Victory price feed. The layout mirrors Shufersal's,
// but store ids are not zero-stripped.
func (a *VictoryAdapter) ParsePrices(content []byte) (*types.PriceParseResult, error) {
	doc, err := xmlmap.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse price xml: %w", err)
	}
	return parsePriceDocument(doc, false)
}
