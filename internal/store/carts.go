package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zolsal/price-service/internal/types"
)

const savedCartColumns = `cart_id, user_id, cart_name, city, items, created_at, updated_at`

// UpsertSavedCart saves a named cart for a user. Saving under an existing
// name replaces the cart's city and items in place.
func (s *Store) UpsertSavedCart(ctx context.Context, userID int64, cartName, city string, items []types.CartItem) (*SavedCart, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode cart items: %w", err)
	}

	query := `
		INSERT INTO saved_carts (user_id, cart_name, city, items)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, cart_name) DO UPDATE SET
			city = EXCLUDED.city,
			items = EXCLUDED.items,
			updated_at = now()
		RETURNING ` + savedCartColumns

	return s.scanSavedCart(s.db.QueryRow(ctx, query, userID, cartName, city, payload))
}

// ListSavedCarts returns a user's carts, most recently updated first.
func (s *Store) ListSavedCarts(ctx context.Context, userID int64) ([]SavedCart, error) {
	query := `
		SELECT ` + savedCartColumns + `
		FROM saved_carts
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query saved carts: %w", err)
	}
	defer rows.Close()

	var out []SavedCart
	for rows.Next() {
		cart, err := s.scanSavedCart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cart)
	}
	return out, rows.Err()
}

// GetSavedCart fetches one cart scoped to its owner.
func (s *Store) GetSavedCart(ctx context.Context, userID, cartID int64) (*SavedCart, error) {
	query := `
		SELECT ` + savedCartColumns + `
		FROM saved_carts
		WHERE user_id = $1 AND cart_id = $2`

	cart, err := s.scanSavedCart(s.db.QueryRow(ctx, query, userID, cartID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cart %d: %w", cartID, ErrNotFound)
		}
		return nil, err
	}
	return cart, nil
}

// DeleteSavedCart removes one cart scoped to its owner.
func (s *Store) DeleteSavedCart(ctx context.Context, userID, cartID int64) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM saved_carts WHERE user_id = $1 AND cart_id = $2`, userID, cartID)
	if err != nil {
		return fmt.Errorf("delete cart %d: %w", cartID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cart %d: %w", cartID, ErrNotFound)
	}
	return nil
}

// scanSavedCart scans one cart row, decoding the items payload.
func (s *Store) scanSavedCart(row pgx.Row) (*SavedCart, error) {
	var cart SavedCart
	var payload []byte
	err := row.Scan(&cart.CartID, &cart.UserID, &cart.CartName, &cart.City, &payload, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan saved cart: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cart.Items); err != nil {
			return nil, fmt.Errorf("decode cart items: %w", err)
		}
	}
	return &cart, nil
}
