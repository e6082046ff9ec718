package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetChainByName resolves a chain row by its lowercase tag.
func (s *Store) GetChainByName(ctx context.Context, name string) (*Chain, error) {
	query := `
		SELECT chain_id, name, display_name, created_at
		FROM chains
		WHERE name = $1`

	var c Chain
	err := s.db.QueryRow(ctx, query, name).Scan(&c.ChainID, &c.Name, &c.DisplayName, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chain %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query chain %q: %w", name, err)
	}
	return &c, nil
}

// ListChains returns all chains in id order.
func (s *Store) ListChains(ctx context.Context) ([]Chain, error) {
	query := `
		SELECT chain_id, name, display_name, created_at
		FROM chains
		ORDER BY chain_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	var out []Chain
	for rows.Next() {
		var c Chain
		if err := rows.Scan(&c.ChainID, &c.Name, &c.DisplayName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
