// Package adapters defines the per-chain contract for discovering and parsing
// the price transparency feeds. Each supermarket chain publishes gzipped XML
// files behind an HTML index page; the layout of both varies per chain, so
// every chain gets its own adapter that hides those differences behind a
// single interface.
package adapters

import (
	"context"

	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/types"
)

// ChainAdapter is the contract every chain implementation satisfies. List
// methods hit the chain's portal and return downloadable feed files; Parse
// methods turn a fetched (already gunzipped) XML document into chain-agnostic
// records. Parse methods never return an error for individual bad elements;
// those are skipped and reported via warnings in the result.
type ChainAdapter interface {
	Slug() chains.Slug
	DisplayName() string
	ListStoreFiles(ctx context.Context) ([]types.DiscoveredFile, error)
	ListPriceFiles(ctx context.Context) ([]types.DiscoveredFile, error)
	ParseStores(content []byte) (*types.StoreParseResult, error)
	ParsePrices(content []byte) (*types.PriceParseResult, error)
}

// Fetcher is the slice of the HTTP client the adapters need. *fetch.Client
// implements it; tests substitute canned responses.
type Fetcher interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
	GetString(ctx context.Context, url string) (string, error)
}
