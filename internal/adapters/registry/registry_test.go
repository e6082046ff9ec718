package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/fetch"
)

func TestGetOrInitConstructsKnownAdapters(t *testing.T) {
	r := NewRegistry(fetch.NewClient(fetch.DefaultConfig()))

	for _, slug := range chains.Slugs {
		adapter, err := r.GetOrInit(slug)
		require.NoError(t, err)
		assert.Equal(t, slug, adapter.Slug())
		assert.True(t, r.IsRegistered(slug))
	}

	assert.Equal(t, chains.Slugs, r.List())
}

func TestGetOrInitReturnsSameInstance(t *testing.T) {
	r := NewRegistry(fetch.NewClient(fetch.DefaultConfig()))

	first, err := r.GetOrInit(chains.Shufersal)
	require.NoError(t, err)
	second, err := r.GetOrInit(chains.Shufersal)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetOrInitUnknownChain(t *testing.T) {
	r := NewRegistry(fetch.NewClient(fetch.DefaultConfig()))

	_, err := r.GetOrInit(chains.Slug("rami-levy"))
	require.Error(t, err)
	assert.False(t, r.IsRegistered(chains.Slug("rami-levy")))
}
