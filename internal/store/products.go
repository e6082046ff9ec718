package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
)

// PriceBatchItem is one price record with its branch already resolved.
type PriceBatchItem struct {
	BranchID    int64
	Barcode     string
	Name        string
	PriceAgorot int
}

// PriceBatchResult reports what one committed batch changed.
type PriceBatchResult struct {
	ProductsCreated int
	ProductsUpdated int
	PricesCreated   int
	PricesUpdated   int
}

type pricePairKey struct {
	barcode  string
	branchID int64
}

// ApplyPriceBatch applies one batch of price records in a single transaction:
// products are upserted by (chain_id, barcode), then prices by
// (chain_product_id, branch_id). A product name is replaced only when
// improveNames is set and the candidate is strictly longer. A price row is
// rewritten only when the price actually differs, and only then does its
// last_updated move. Any error rolls the whole batch back; the caller decides
// whether to skip or abort.
func (s *Store) ApplyPriceBatch(ctx context.Context, chainID int64, items []PriceBatchItem, improveNames bool) (PriceBatchResult, error) {
	var res PriceBatchResult
	if len(items) == 0 {
		return res, nil
	}

	// Last record wins for duplicate (barcode, branch) pairs inside a batch,
	// so the batch cannot collide with itself on the unique constraints.
	deduped := make(map[pricePairKey]PriceBatchItem, len(items))
	order := make([]pricePairKey, 0, len(items))
	nameByBarcode := make(map[string]string)
	barcodes := make([]string, 0, len(items))

	for _, it := range items {
		k := pricePairKey{barcode: it.Barcode, branchID: it.BranchID}
		if _, seen := deduped[k]; !seen {
			order = append(order, k)
		}
		deduped[k] = it

		if _, seen := nameByBarcode[it.Barcode]; !seen {
			barcodes = append(barcodes, it.Barcode)
		}
		nameByBarcode[it.Barcode] = it.Name
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin price batch: %w", err)
	}
	defer tx.Rollback(ctx)

	productIDs, err := upsertProducts(ctx, tx, chainID, barcodes, nameByBarcode, improveNames, &res)
	if err != nil {
		return PriceBatchResult{}, err
	}

	if err := upsertPrices(ctx, tx, productIDs, deduped, order, &res); err != nil {
		return PriceBatchResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PriceBatchResult{}, fmt.Errorf("commit price batch: %w", err)
	}
	return res, nil
}

func upsertProducts(ctx context.Context, tx pgx.Tx, chainID int64, barcodes []string, names map[string]string, improveNames bool, res *PriceBatchResult) (map[string]int64, error) {
	ids := make(map[string]int64, len(barcodes))
	existingNames := make(map[string]string, len(barcodes))

	rows, err := tx.Query(ctx, `
		SELECT chain_product_id, barcode, name
		FROM chain_products
		WHERE chain_id = $1 AND barcode = ANY($2)
	`, chainID, barcodes)
	if err != nil {
		return nil, fmt.Errorf("load batch products: %w", err)
	}
	for rows.Next() {
		var id int64
		var barcode, name string
		if err := rows.Scan(&id, &barcode, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan batch product: %w", err)
		}
		ids[barcode] = id
		existingNames[barcode] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load batch products: %w", err)
	}

	for _, barcode := range barcodes {
		name := names[barcode]

		if id, ok := ids[barcode]; ok {
			if improveNames && utf8.RuneCountInString(name) > utf8.RuneCountInString(existingNames[barcode]) {
				if _, err := tx.Exec(ctx, `
					UPDATE chain_products SET name = $1 WHERE chain_product_id = $2
				`, name, id); err != nil {
					return nil, fmt.Errorf("update product name: %w", err)
				}
				res.ProductsUpdated++
			}
			continue
		}

		var id int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO chain_products (chain_id, barcode, name)
			VALUES ($1, $2, $3)
			RETURNING chain_product_id
		`, chainID, barcode, name).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert product %s: %w", barcode, err)
		}
		ids[barcode] = id
		res.ProductsCreated++
	}

	return ids, nil
}

func upsertPrices(ctx context.Context, tx pgx.Tx, productIDs map[string]int64, deduped map[pricePairKey]PriceBatchItem, order []pricePairKey, res *PriceBatchResult) error {
	type priceKey struct {
		productID int64
		branchID  int64
	}

	productArr := make([]int64, 0, len(order))
	branchArr := make([]int64, 0, len(order))
	for _, k := range order {
		productArr = append(productArr, productIDs[k.barcode])
		branchArr = append(branchArr, k.branchID)
	}

	existing := make(map[priceKey]int, len(order))
	rows, err := tx.Query(ctx, `
		SELECT bp.chain_product_id, bp.branch_id, bp.price_agorot
		FROM branch_prices bp
		JOIN unnest($1::bigint[], $2::bigint[]) AS u(product_id, branch_id)
			ON bp.chain_product_id = u.product_id AND bp.branch_id = u.branch_id
	`, productArr, branchArr)
	if err != nil {
		return fmt.Errorf("load batch prices: %w", err)
	}
	for rows.Next() {
		var k priceKey
		var agorot int
		if err := rows.Scan(&k.productID, &k.branchID, &agorot); err != nil {
			rows.Close()
			return fmt.Errorf("scan batch price: %w", err)
		}
		existing[k] = agorot
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load batch prices: %w", err)
	}

	for _, k := range order {
		it := deduped[k]
		pk := priceKey{productID: productIDs[k.barcode], branchID: k.branchID}

		old, ok := existing[pk]
		switch {
		case !ok:
			if _, err := tx.Exec(ctx, `
				INSERT INTO branch_prices (chain_product_id, branch_id, price_agorot, last_updated)
				VALUES ($1, $2, $3, now())
			`, pk.productID, pk.branchID, it.PriceAgorot); err != nil {
				return fmt.Errorf("insert price %s@%d: %w", k.barcode, k.branchID, err)
			}
			res.PricesCreated++

		case old != it.PriceAgorot:
			if _, err := tx.Exec(ctx, `
				UPDATE branch_prices
				SET price_agorot = $1, last_updated = now()
				WHERE chain_product_id = $2 AND branch_id = $3
			`, it.PriceAgorot, pk.productID, pk.branchID); err != nil {
				return fmt.Errorf("update price %s@%d: %w", k.barcode, k.branchID, err)
			}
			res.PricesUpdated++

		default:
			// Unchanged price: no write, last_updated stays put.
		}
	}

	return nil
}
