package store

import (
	"context"
	"fmt"
	"time"
)

// PricePointRow is one (product, branch, price) observation. Branch metadata
// is resolved by the caller from the CityBranch set it already holds.
type PricePointRow struct {
	BranchID    int64     `json:"branch_id"`
	Barcode     string    `json:"barcode"`
	Name        string    `json:"name"`
	PriceAgorot int       `json:"price_agorot"`
	LastUpdated time.Time `json:"last_updated"`
}

// SearchPricePoints returns every price point in the given branches whose
// product name contains the query, case-insensitively. Rows come back
// barcode-grouped and price-sorted so callers can stream them into grouped
// results.
func (s *Store) SearchPricePoints(ctx context.Context, branchIDs []int64, query string) ([]PricePointRow, error) {
	if len(branchIDs) == 0 {
		return nil, nil
	}

	sql := `
		SELECT bp.branch_id, cp.barcode, cp.name, bp.price_agorot, bp.last_updated
		FROM chain_products cp
		JOIN branch_prices bp ON bp.chain_product_id = cp.chain_product_id
		WHERE bp.branch_id = ANY($1)
		  AND lower(cp.name) LIKE '%' || lower($2) || '%'
		ORDER BY cp.barcode, bp.price_agorot, bp.branch_id`

	return s.queryPricePoints(ctx, sql, branchIDs, query)
}

// PricePointsByBarcodes returns every price point in the given branches for
// the given barcodes. Used for the barcode lookup and the cart comparator.
func (s *Store) PricePointsByBarcodes(ctx context.Context, branchIDs []int64, barcodes []string) ([]PricePointRow, error) {
	if len(branchIDs) == 0 || len(barcodes) == 0 {
		return nil, nil
	}

	sql := `
		SELECT bp.branch_id, cp.barcode, cp.name, bp.price_agorot, bp.last_updated
		FROM chain_products cp
		JOIN branch_prices bp ON bp.chain_product_id = cp.chain_product_id
		WHERE bp.branch_id = ANY($1)
		  AND cp.barcode = ANY($2)
		ORDER BY cp.barcode, bp.price_agorot, bp.branch_id`

	return s.queryPricePoints(ctx, sql, branchIDs, barcodes)
}

func (s *Store) queryPricePoints(ctx context.Context, sql string, args ...any) ([]PricePointRow, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query price points: %w", err)
	}
	defer rows.Close()

	var out []PricePointRow
	for rows.Next() {
		var p PricePointRow
		if err := rows.Scan(&p.BranchID, &p.Barcode, &p.Name, &p.PriceAgorot, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
