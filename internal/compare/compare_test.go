package compare

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

type mockPriceSource struct {
	branches     []store.CityBranch
	prices       map[int64]map[string]int // branchID -> barcode -> agorot
	names        map[string]string        // barcode -> product name
	lastBarcodes []string
}

func newMockPriceSource() *mockPriceSource {
	return &mockPriceSource{
		prices: make(map[int64]map[string]int),
		names:  make(map[string]string),
	}
}

func (m *mockPriceSource) addBranch(branchID int64, chain, storeID, name string) {
	m.branches = append(m.branches, store.CityBranch{
		BranchID:  branchID,
		ChainName: chain,
		StoreID:   storeID,
		Name:      name,
		City:      "חיפה",
	})
}

func (m *mockPriceSource) setPrice(branchID int64, barcode string, agorot int) {
	if m.prices[branchID] == nil {
		m.prices[branchID] = make(map[string]int)
	}
	m.prices[branchID][barcode] = agorot
}

func (m *mockPriceSource) BranchesInCity(ctx context.Context, city string) ([]store.CityBranch, error) {
	return m.branches, nil
}

func (m *mockPriceSource) PricePointsByBarcodes(ctx context.Context, branchIDs []int64, barcodes []string) ([]store.PricePointRow, error) {
	m.lastBarcodes = barcodes
	ts := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	var rows []store.PricePointRow
	for _, id := range branchIDs {
		for _, barcode := range barcodes {
			if agorot, ok := m.prices[id][barcode]; ok {
				rows = append(rows, store.PricePointRow{
					BranchID:    id,
					Barcode:     barcode,
					Name:        m.names[barcode],
					PriceAgorot: agorot,
					LastUpdated: ts,
				})
			}
		}
	}
	return rows, nil
}

const (
	milk  = "7290000000001"
	bread = "7290000000002"
	gum   = "7290000000003"
)

func storeIDs(stores []StoreResult) []string {
	ids := make([]string, len(stores))
	for i, s := range stores {
		ids[i] = s.StoreID
	}
	return ids
}

func TestCompareRanksByAvailabilityThenPrice(t *testing.T) {
	mock := newMockPriceSource()
	mock.addBranch(10, "shufersal", "001", "שופרסל דיל חיפה")
	mock.addBranch(11, "shufersal", "002", "שופרסל שלי כרמל")
	mock.addBranch(20, "victory", "31", "ויקטורי חיפה")
	mock.names[milk] = "חלב טרי 3%"
	mock.names[bread] = "לחם אחיד פרוס"

	// Branch 10 carries everything at 2000 total, branch 20 at 1500.
	// Branch 11 is the cheapest basket but is missing the bread.
	mock.setPrice(10, milk, 650)
	mock.setPrice(10, bread, 700)
	mock.setPrice(11, milk, 550)
	mock.setPrice(20, milk, 500)
	mock.setPrice(20, bread, 500)

	cart := []types.CartItem{
		{Barcode: milk, Quantity: 2},
		{Barcode: bread, Quantity: 1},
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)
	require.Len(t, result.AllStores, 3)

	// A complete basket beats a cheaper incomplete one.
	require.NotNil(t, result.CheapestStore)
	assert.Equal(t, "31", result.CheapestStore.StoreID)
	assert.Equal(t, 1500, result.CheapestStore.TotalAgorot)
	assert.Equal(t, []string{"31", "001", "002"}, storeIDs(result.AllStores))

	// available + missing covers every cart line at the winner.
	assert.Equal(t, len(cart), result.CheapestStore.AvailableItems+result.CheapestStore.MissingItems)
	assert.Equal(t, 2, result.CheapestStore.AvailableItems)

	// Savings spread across the two complete baskets: 2000 vs 1500.
	require.NotNil(t, result.Savings)
	assert.Equal(t, 500, result.Savings.AmountAgorot)
	assert.InDelta(t, 25.0, result.Savings.Percent, 0.0001)

	// Per-item detail at the winner carries unit and line totals.
	winner := result.CheapestStore
	require.Len(t, winner.Items, 2)
	assert.Equal(t, "חלב טרי 3%", winner.Items[0].Name)
	assert.Equal(t, 500, winner.Items[0].UnitPriceAgorot)
	assert.Equal(t, 1000, winner.Items[0].LineTotalAgorot)
	assert.True(t, winner.Items[0].Available)
}

func TestCompareOrderingInvariant(t *testing.T) {
	mock := newMockPriceSource()
	for i := int64(1); i <= 8; i++ {
		mock.addBranch(i, "shufersal", fmt.Sprintf("%03d", i), "branch")
		mock.setPrice(i, milk, 400+int(i)*7)
		if i%2 == 0 {
			mock.setPrice(i, bread, 900-int(i)*13)
		}
	}

	cart := []types.CartItem{
		{Barcode: milk, Quantity: 1},
		{Barcode: bread, Quantity: 3},
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)
	require.NotEmpty(t, result.AllStores)

	for i := 1; i < len(result.AllStores); i++ {
		prev, cur := result.AllStores[i-1], result.AllStores[i]
		better := prev.AvailableItems > cur.AvailableItems ||
			(prev.AvailableItems == cur.AvailableItems && prev.TotalAgorot <= cur.TotalAgorot)
		assert.True(t, better, "candidate %d out of order", i)
	}
}

func TestCompareZeroQuantityCountsNowhere(t *testing.T) {
	mock := newMockPriceSource()
	mock.addBranch(10, "shufersal", "001", "שופרסל דיל חיפה")
	mock.setPrice(10, milk, 600)
	mock.setPrice(10, gum, 350)

	cart := []types.CartItem{
		{Barcode: milk, Quantity: 1},
		{Barcode: gum, Quantity: 0},
		{Barcode: bread, Quantity: 0}, // not stocked, still no counter
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)
	require.NotNil(t, result.CheapestStore)

	winner := result.CheapestStore
	assert.Equal(t, 600, winner.TotalAgorot)
	assert.Equal(t, 1, winner.AvailableItems)
	assert.Equal(t, 0, winner.MissingItems)

	require.Len(t, winner.Items, 3)
	assert.True(t, winner.Items[1].Available)
	assert.Equal(t, 350, winner.Items[1].UnitPriceAgorot)
	assert.Zero(t, winner.Items[1].LineTotalAgorot)
	assert.False(t, winner.Items[2].Available)
}

func TestCompareUnknownBarcodeMissingEverywhere(t *testing.T) {
	mock := newMockPriceSource()
	mock.addBranch(10, "shufersal", "001", "שופרסל דיל חיפה")
	mock.addBranch(20, "victory", "31", "ויקטורי חיפה")
	mock.setPrice(10, milk, 600)
	mock.setPrice(20, milk, 550)

	cart := []types.CartItem{
		{Barcode: milk, Quantity: 1},
		{Barcode: "0000000000000", Quantity: 1},
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)
	require.Len(t, result.AllStores, 2)

	for _, candidate := range result.AllStores {
		assert.Equal(t, 1, candidate.MissingItems)
	}
	assert.Nil(t, result.Savings, "no complete basket, no savings")
}

func TestCompareNoStockIsSuccessNotError(t *testing.T) {
	mock := newMockPriceSource()
	mock.addBranch(10, "shufersal", "001", "שופרסל דיל חיפה")

	cart := []types.CartItem{{Barcode: "0000000000000", Quantity: 2}}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)
	assert.Nil(t, result.CheapestStore)
	assert.Empty(t, result.AllStores)
	assert.Equal(t, cart, result.Items)
	assert.Equal(t, 1, result.TotalItems)
}

func TestCompareUnknownCityIsSuccessNotError(t *testing.T) {
	cmp := NewComparator(newMockPriceSource(), nil)

	result, err := cmp.Compare(context.Background(), "עיר שאיננה", []types.CartItem{{Barcode: milk, Quantity: 1}})
	require.NoError(t, err)
	assert.Nil(t, result.CheapestStore)
	assert.Empty(t, result.AllStores)
}

func TestCompareCapsCandidateList(t *testing.T) {
	mock := newMockPriceSource()
	for i := int64(1); i <= 60; i++ {
		mock.addBranch(i, "shufersal", fmt.Sprintf("%03d", i), "branch")
		mock.setPrice(i, milk, 100+int(i))
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", []types.CartItem{{Barcode: milk, Quantity: 1}})
	require.NoError(t, err)

	assert.Len(t, result.AllStores, MaxCandidates)
	assert.Equal(t, 101, result.CheapestStore.TotalAgorot)

	// Savings sees every candidate, including the ones the cap trimmed.
	require.NotNil(t, result.Savings)
	assert.Equal(t, 59, result.Savings.AmountAgorot)
	assert.InDelta(t, float64(59)/float64(160)*100, result.Savings.Percent, 0.0001)
}

func TestCompareSavingsNeedsTwoCompleteBaskets(t *testing.T) {
	mock := newMockPriceSource()
	mock.addBranch(10, "shufersal", "001", "שופרסל דיל חיפה")
	mock.addBranch(11, "shufersal", "002", "שופרסל שלי כרמל")
	mock.setPrice(10, milk, 600)
	mock.setPrice(10, bread, 700)
	mock.setPrice(11, milk, 550)

	cart := []types.CartItem{
		{Barcode: milk, Quantity: 1},
		{Barcode: bread, Quantity: 1},
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)
	require.Len(t, result.AllStores, 2)
	assert.Nil(t, result.Savings)
}

func TestCompareDedupesBarcodeLookups(t *testing.T) {
	mock := newMockPriceSource()
	mock.addBranch(10, "shufersal", "001", "שופרסל דיל חיפה")
	mock.setPrice(10, milk, 600)

	cart := []types.CartItem{
		{Barcode: milk, Quantity: 1},
		{Barcode: milk, Quantity: 2},
	}

	cmp := NewComparator(mock, nil)
	result, err := cmp.Compare(context.Background(), "חיפה", cart)
	require.NoError(t, err)

	assert.Equal(t, []string{milk}, mock.lastBarcodes)

	// Both cart lines are still priced independently.
	winner := result.CheapestStore
	require.NotNil(t, winner)
	assert.Equal(t, 2, winner.AvailableItems)
	assert.Equal(t, 600+1200, winner.TotalAgorot)
}
