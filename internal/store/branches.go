package store

import (
	"context"
	"fmt"

	"github.com/zolsal/price-service/internal/types"
)

// CityBranch is a branch row joined with its chain, as the search and
// comparison layers consume it.
type CityBranch struct {
	BranchID     int64  `json:"branch_id"`
	ChainID      int64  `json:"chain_id"`
	ChainName    string `json:"chain_name"`
	ChainDisplay string `json:"chain_display"`
	StoreID      string `json:"store_id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	City         string `json:"city"`
}

// UpsertBranch inserts or refreshes a branch keyed by (chain_id, store_id)
// and reports whether the row was newly created.
func (s *Store) UpsertBranch(ctx context.Context, chainID int64, rec types.StoreRecord) (int64, bool, error) {
	// (xmax = 0) distinguishes a fresh insert from a conflict update.
	query := `
		INSERT INTO branches (chain_id, store_id, name, address, city)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain_id, store_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			city = EXCLUDED.city
		RETURNING branch_id, (xmax = 0) AS created`

	var branchID int64
	var created bool
	err := s.db.QueryRow(ctx, query, chainID, rec.StoreID, rec.Name, rec.Address, rec.City).
		Scan(&branchID, &created)
	if err != nil {
		return 0, false, fmt.Errorf("upsert branch %d/%s: %w", chainID, rec.StoreID, err)
	}
	return branchID, created, nil
}

// BranchIDMap returns store_id → branch_id for one chain. The importer builds
// this after Phase 1 and resolves every price record through it.
func (s *Store) BranchIDMap(ctx context.Context, chainID int64) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT store_id, branch_id FROM branches WHERE chain_id = $1`, chainID)
	if err != nil {
		return nil, fmt.Errorf("query branch map: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var storeID string
		var branchID int64
		if err := rows.Scan(&storeID, &branchID); err != nil {
			return nil, fmt.Errorf("scan branch map row: %w", err)
		}
		out[storeID] = branchID
	}
	return out, rows.Err()
}

const cityBranchColumns = `
	b.branch_id, b.chain_id, c.name, c.display_name,
	b.store_id, b.name, b.address, b.city`

// BranchesInCity returns the branches serving a city, all chains included.
// An exact city match is tried first; when it finds nothing the match relaxes
// to case-insensitive containment in either direction, so "תל אביב" finds
// branches filed under "תל אביב - יפו" and vice versa.
func (s *Store) BranchesInCity(ctx context.Context, city string) ([]CityBranch, error) {
	exact := `
		SELECT ` + cityBranchColumns + `
		FROM branches b
		JOIN chains c ON c.chain_id = b.chain_id
		WHERE b.city = $1
		ORDER BY b.branch_id`

	branches, err := s.queryCityBranches(ctx, exact, city)
	if err != nil {
		return nil, err
	}
	if len(branches) > 0 {
		return branches, nil
	}

	contains := `
		SELECT ` + cityBranchColumns + `
		FROM branches b
		JOIN chains c ON c.chain_id = b.chain_id
		WHERE b.city <> '' AND (
			lower(b.city) LIKE '%' || lower($1) || '%'
			OR lower($1) LIKE '%' || lower(b.city) || '%'
		)
		ORDER BY b.branch_id`

	return s.queryCityBranches(ctx, contains, city)
}

func (s *Store) queryCityBranches(ctx context.Context, query, city string) ([]CityBranch, error) {
	rows, err := s.db.Query(ctx, query, city)
	if err != nil {
		return nil, fmt.Errorf("query city branches: %w", err)
	}
	defer rows.Close()

	var out []CityBranch
	for rows.Next() {
		var b CityBranch
		if err := rows.Scan(
			&b.BranchID, &b.ChainID, &b.ChainName, &b.ChainDisplay,
			&b.StoreID, &b.Name, &b.Address, &b.City,
		); err != nil {
			return nil, fmt.Errorf("scan city branch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListCities returns the distinct branch cities, sorted.
func (s *Store) ListCities(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT city FROM branches WHERE city <> '' ORDER BY city`)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, city)
	}
	return out, rows.Err()
}
