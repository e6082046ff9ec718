package store

import (
	"context"
	"fmt"

	"github.com/zolsal/price-service/internal/chains"
)

// requiredTables lists the serving tables the startup probe checks, parents
// before children.
var requiredTables = []string{
	"chains",
	"branches",
	"chain_products",
	"branch_prices",
	"users",
	"saved_carts",
}

// sequenceNames are the named sequences used when the sequence PK strategy is
// active. The names are part of the schema contract.
var sequenceNames = []string{
	"user_id_seq",
	"chain_id_seq",
	"branch_id_seq",
	"chain_product_id_seq",
	"price_id_seq",
	"cart_id_seq",
}

// pkColumn renders the primary-key column for the active id strategy. Inserts
// never mention the column, so DML is identical in both modes.
func (s *Store) pkColumn(column, sequence string) string {
	if s.sequences {
		return fmt.Sprintf("%s BIGINT PRIMARY KEY DEFAULT nextval('%s')", column, sequence)
	}
	return fmt.Sprintf("%s BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", column)
}

func (s *Store) schemaStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chains (
			%s,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.pkColumn("chain_id", "chain_id_seq")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS branches (
			%s,
			chain_id BIGINT NOT NULL REFERENCES chains(chain_id) ON DELETE CASCADE,
			store_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			UNIQUE (chain_id, store_id)
		)`, s.pkColumn("branch_id", "branch_id_seq")),
		`CREATE INDEX IF NOT EXISTS idx_branches_chain_city ON branches (chain_id, city)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chain_products (
			%s,
			chain_id BIGINT NOT NULL REFERENCES chains(chain_id) ON DELETE CASCADE,
			barcode TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			UNIQUE (chain_id, barcode)
		)`, s.pkColumn("chain_product_id", "chain_product_id_seq")),
		`CREATE INDEX IF NOT EXISTS idx_chain_products_name ON chain_products (name)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS branch_prices (
			%s,
			chain_product_id BIGINT NOT NULL REFERENCES chain_products(chain_product_id) ON DELETE CASCADE,
			branch_id BIGINT NOT NULL REFERENCES branches(branch_id) ON DELETE CASCADE,
			price_agorot INTEGER NOT NULL CHECK (price_agorot > 0),
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (chain_product_id, branch_id)
		)`, s.pkColumn("price_id", "price_id_seq")),
		`CREATE INDEX IF NOT EXISTS idx_branch_prices_branch ON branch_prices (branch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_branch_prices_updated ON branch_prices (last_updated)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			%s,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.pkColumn("user_id", "user_id_seq")),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS saved_carts (
			%s,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			cart_name TEXT NOT NULL,
			city TEXT NOT NULL DEFAULT '',
			items JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, cart_name)
		)`, s.pkColumn("cart_id", "cart_id_seq")),

		`CREATE TABLE IF NOT EXISTS import_runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			chains TEXT[] NOT NULL DEFAULT '{}',
			counters JSONB NOT NULL DEFAULT '{}',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs (started_at)`,
	}
}

// EnsureSchema creates any missing sequences, tables, and indexes, then seeds
// the chain rows. Safe to call on every boot.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.sequences {
		for _, seq := range sequenceNames {
			if _, err := s.db.Exec(ctx, "CREATE SEQUENCE IF NOT EXISTS "+seq); err != nil {
				return fmt.Errorf("create sequence %s: %w", seq, err)
			}
		}
	}

	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return s.SeedChains(ctx)
}

// SeedChains inserts the supported chains, leaving existing rows alone.
func (s *Store) SeedChains(ctx context.Context) error {
	for _, slug := range chains.Slugs {
		cfg := chains.Configs[slug]
		_, err := s.db.Exec(ctx, `
			INSERT INTO chains (name, display_name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
		`, string(slug), cfg.DisplayName)
		if err != nil {
			return fmt.Errorf("seed chain %s: %w", slug, err)
		}
	}
	return nil
}

// MissingTables returns the required tables that do not exist yet.
func (s *Store) MissingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range requiredTables {
		var reg *string
		if err := s.db.QueryRow(ctx, "SELECT to_regclass($1)::text", table).Scan(&reg); err != nil {
			return nil, fmt.Errorf("probe table %s: %w", table, err)
		}
		if reg == nil {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// TableCounts returns the row count of every required table, for the startup
// summary.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(requiredTables))
	for _, table := range requiredTables {
		var n int64
		if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
