// Package migrations applies the marketplace schema. Statements are ordered
// and idempotent, so Apply is safe to run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS market_listings (
		id          BIGSERIAL PRIMARY KEY,
		asset_id    BIGINT       NOT NULL,
		seller      TEXT         NOT NULL,
		price       NUMERIC(78)  NOT NULL CHECK (price > 0),
		status      TEXT         NOT NULL DEFAULT 'active',
		buyer       TEXT         NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
		closed_at   TIMESTAMPTZ
	)`,

	// the one-active-listing-per-asset index
	`CREATE UNIQUE INDEX IF NOT EXISTS market_listings_active_asset
		ON market_listings (asset_id) WHERE status = 'active'`,

	`CREATE INDEX IF NOT EXISTS market_listings_seller
		ON market_listings (seller)`,

	`CREATE TABLE IF NOT EXISTS market_fee_config (
		id           SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		basis_points BIGINT      NOT NULL DEFAULT 0 CHECK (basis_points >= 0 AND basis_points <= 1000),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS market_treasury (
		id      SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		balance NUMERIC(78) NOT NULL DEFAULT 0 CHECK (balance >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS market_events (
		id         TEXT PRIMARY KEY,
		kind       TEXT        NOT NULL,
		listing_id BIGINT      NOT NULL DEFAULT 0,
		asset_id   BIGINT      NOT NULL DEFAULT 0,
		actor      TEXT        NOT NULL DEFAULT '',
		attrs      JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply executes all schema statements in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
