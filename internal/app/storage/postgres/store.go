// Package postgres implements the storage interfaces backed by PostgreSQL.
// Monetary amounts travel as NUMERIC(78) so any 256-bit value fits without
// loss; listing ids come from the table's BIGSERIAL sequence, and the partial
// unique index on active listings enforces one-active-listing-per-asset at
// the database level.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.FeeStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// NewFromSQL wraps an existing *sql.DB opened with the pq driver.
func NewFromSQL(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

const uniqueViolation = "23505"

func isActiveListingConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) CreateListing(ctx context.Context, lst market.Listing) (market.Listing, error) {
	lst.Status = market.StatusActive
	lst.CreatedAt = time.Now().UTC()
	lst.ClosedAt = time.Time{}
	lst.Buyer = ""

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO market_listings (asset_id, seller, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, lst.AssetID, string(lst.Seller), amountText(lst.Price), string(lst.Status), lst.CreatedAt)
	if err := row.Scan(&lst.ID); err != nil {
		if isActiveListingConflict(err) {
			return market.Listing{}, storage.ErrActiveListingExists
		}
		return market.Listing{}, err
	}
	return lst, nil
}

func (s *Store) UpdateListing(ctx context.Context, lst market.Listing) (market.Listing, error) {
	existing, err := s.GetListing(ctx, lst.ID)
	if err != nil {
		return market.Listing{}, err
	}
	lst.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE market_listings
		SET status = $2, buyer = $3, closed_at = $4
		WHERE id = $1
	`, lst.ID, string(lst.Status), string(lst.Buyer), toNullTime(lst.ClosedAt))
	if err != nil {
		if isActiveListingConflict(err) {
			return market.Listing{}, storage.ErrActiveListingExists
		}
		return market.Listing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return market.Listing{}, storage.ErrNotFound
	}
	return lst, nil
}

const listingColumns = `id, asset_id, seller, price, status, buyer, created_at, closed_at`

func (s *Store) GetListing(ctx context.Context, id uint64) (market.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM market_listings
		WHERE id = $1
	`, id)
	return scanListing(row)
}

func (s *Store) ActiveListingForAsset(ctx context.Context, assetID uint64) (market.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM market_listings
		WHERE asset_id = $1 AND status = $2
	`, assetID, string(market.StatusActive))
	return scanListing(row)
}

func (s *Store) ListListings(ctx context.Context) ([]market.Listing, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+`
		FROM market_listings
		ORDER BY id
	`)
}

func (s *Store) ListListingsBySeller(ctx context.Context, seller asset.Account) ([]market.Listing, error) {
	return s.queryListings(ctx, `
		SELECT `+listingColumns+`
		FROM market_listings
		WHERE seller = $1
		ORDER BY id
	`, string(seller))
}

func (s *Store) queryListings(ctx context.Context, query string, args ...any) ([]market.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []market.Listing
	for rows.Next() {
		lst, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lst)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (market.Listing, error) {
	var (
		lst      market.Listing
		seller   string
		price    string
		status   string
		buyer    string
		closedAt sql.NullTime
	)
	if err := row.Scan(&lst.ID, &lst.AssetID, &seller, &price, &status, &buyer, &lst.CreatedAt, &closedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.Listing{}, storage.ErrNotFound
		}
		return market.Listing{}, err
	}

	lst.Seller = asset.Account(seller)
	lst.Status = market.Status(status)
	lst.Buyer = asset.Account(buyer)
	if closedAt.Valid {
		lst.ClosedAt = closedAt.Time.UTC()
	}

	parsed, err := parseAmount(price)
	if err != nil {
		return market.Listing{}, fmt.Errorf("listing %d price: %w", lst.ID, err)
	}
	lst.Price = parsed
	return lst, nil
}

// --- FeeStore ---------------------------------------------------------------

func (s *Store) GetFeeConfig(ctx context.Context) (market.FeeConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT basis_points, updated_at
		FROM market_fee_config
		WHERE id = 1
	`)

	var cfg market.FeeConfig
	if err := row.Scan(&cfg.BasisPoints, &cfg.UpdatedAt); err != nil {
		// an unconfigured deployment runs at a zero fee rate
		if errors.Is(err, sql.ErrNoRows) {
			return market.FeeConfig{}, nil
		}
		return market.FeeConfig{}, err
	}
	return cfg, nil
}

func (s *Store) SetFeeConfig(ctx context.Context, cfg market.FeeConfig) (market.FeeConfig, error) {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_fee_config (id, basis_points, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET basis_points = $1, updated_at = $2
	`, cfg.BasisPoints, cfg.UpdatedAt)
	if err != nil {
		return market.FeeConfig{}, err
	}
	return cfg, nil
}

// --- TreasuryStore ----------------------------------------------------------

func (s *Store) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance FROM market_treasury WHERE id = 1
	`)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return parseAmount(raw)
}

func (s *Store) CreditTreasury(ctx context.Context, amount *big.Int) (*big.Int, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO market_treasury (id, balance)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET balance = market_treasury.balance + $1
		RETURNING balance
	`, amountText(amount))

	var raw string
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	return parseAmount(raw)
}

func (s *Store) DrainTreasury(ctx context.Context) (*big.Int, error) {
	// the CTE reads the pre-update snapshot, so it returns the drained amount
	row := s.db.QueryRowContext(ctx, `
		WITH previous AS (
			SELECT balance FROM market_treasury WHERE id = 1
		)
		UPDATE market_treasury
		SET balance = 0
		WHERE id = 1
		RETURNING (SELECT balance FROM previous)
	`)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return parseAmount(raw)
}

// --- EventStore -------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, rec events.Record) (events.Record, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var attrsJSON []byte
	if len(rec.Attrs) > 0 {
		raw, err := json.Marshal(rec.Attrs)
		if err != nil {
			return events.Record{}, err
		}
		attrsJSON = raw
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_events (id, kind, listing_id, asset_id, actor, attrs, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, string(rec.Kind), rec.ListingID, rec.AssetID, string(rec.Actor), attrsJSON, rec.Timestamp)
	if err != nil {
		return events.Record{}, err
	}
	return rec, nil
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]events.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, listing_id, asset_id, actor, attrs, occurred_at
		FROM market_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []events.Record
	for rows.Next() {
		var (
			rec      events.Record
			kind     string
			actor    string
			attrsRaw []byte
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.ListingID, &rec.AssetID, &actor, &attrsRaw, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Kind = events.Kind(kind)
		rec.Actor = asset.Account(actor)
		if len(attrsRaw) > 0 {
			if err := json.Unmarshal(attrsRaw, &rec.Attrs); err != nil {
				return nil, fmt.Errorf("decode attrs of event %s: %w", rec.ID, err)
			}
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func amountText(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric value %q", raw)
	}
	return amount, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
