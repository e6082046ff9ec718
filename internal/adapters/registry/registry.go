// Package registry wires chain slugs to their adapter implementations.
package registry

import (
	"fmt"
	"sync"

	"github.com/zolsal/price-service/internal/adapters"
	adapterimpl "github.com/zolsal/price-service/internal/adapters/chains"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/fetch"
)

// Registry manages chain adapter registration and retrieval. Adapters share
// the registry's fetcher so the politeness limiter spans all chains.
type Registry struct {
	mu       sync.RWMutex
	fetcher  adapters.Fetcher
	adapters map[chains.Slug]adapters.ChainAdapter
}

// DefaultRegistry is the process-wide registry instance.
var DefaultRegistry = NewRegistry(fetch.NewClient(fetch.DefaultConfig()))

// NewRegistry creates a registry whose adapters use the given fetcher.
func NewRegistry(fetcher adapters.Fetcher) *Registry {
	return &Registry{
		fetcher:  fetcher,
		adapters: make(map[chains.Slug]adapters.ChainAdapter),
	}
}

// Register registers an adapter for a chain, replacing any existing one.
func (r *Registry) Register(slug chains.Slug, adapter adapters.ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[slug] = adapter
}

// Get retrieves a registered adapter.
func (r *Registry) Get(slug chains.Slug) (adapters.ChainAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[slug]
	return adapter, ok
}

// GetOrInit retrieves an adapter, constructing and registering it on first
// use.
func (r *Registry) GetOrInit(slug chains.Slug) (adapters.ChainAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.adapters[slug]; ok {
		return adapter, nil
	}

	var adapter adapters.ChainAdapter
	switch slug {
	case chains.Shufersal:
		adapter = adapterimpl.NewShufersalAdapter(r.fetcher)
	case chains.Victory:
		adapter = adapterimpl.NewVictoryAdapter(r.fetcher)
	default:
		return nil, fmt.Errorf("no adapter implementation for chain: %s", slug)
	}

	r.adapters[slug] = adapter
	return adapter, nil
}

// List returns the registered slugs in seed order.
func (r *Registry) List() []chains.Slug {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]chains.Slug, 0, len(r.adapters))
	for _, slug := range chains.Slugs {
		if _, ok := r.adapters[slug]; ok {
			out = append(out, slug)
		}
	}
	return out
}

// IsRegistered checks whether a chain has an adapter registered.
func (r *Registry) IsRegistered(slug chains.Slug) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[slug]
	return ok
}

// GetAdapter gets or initializes an adapter from the default registry.
func GetAdapter(slug chains.Slug) (adapters.ChainAdapter, error) {
	return DefaultRegistry.GetOrInit(slug)
}

// InitializeDefaultAdapters constructs every supported adapter in the default
// registry. Called once at startup so misconfigured chains surface early.
func InitializeDefaultAdapters() error {
	for _, slug := range chains.Slugs {
		if _, err := DefaultRegistry.GetOrInit(slug); err != nil {
			return fmt.Errorf("initialize %s adapter: %w", slug, err)
		}
	}
	return nil
}
