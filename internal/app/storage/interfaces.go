// Package storage defines the persistence contracts of the marketplace core:
// the listing table with its one-active-listing-per-asset index, the fee
// configuration, the treasury balance, and the notification journal.
package storage

import (
	"context"
	"errors"
	"math/big"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
)

// Sentinel errors shared by all backends so callers can match with errors.Is
// regardless of the implementation behind the interface.
var (
	// ErrNotFound reports a lookup miss.
	ErrNotFound = errors.New("record not found")
	// ErrActiveListingExists reports a second active listing for an asset.
	ErrActiveListingExists = errors.New("asset already has an active listing")
)

// ListingStore persists listings. Implementations own the monotonic listing
// id allocation and enforce that at most one active listing exists per asset.
type ListingStore interface {
	// CreateListing allocates the next listing id, stamps CreatedAt, and
	// stores the listing. Fails with ErrActiveListingExists when the asset
	// already has an active listing.
	CreateListing(ctx context.Context, lst market.Listing) (market.Listing, error)

	// UpdateListing replaces a listing record by id. CreatedAt is preserved.
	UpdateListing(ctx context.Context, lst market.Listing) (market.Listing, error)

	// GetListing returns the listing or ErrNotFound.
	GetListing(ctx context.Context, id uint64) (market.Listing, error)

	// ActiveListingForAsset resolves the per-asset index. ErrNotFound when
	// the asset has no active listing.
	ActiveListingForAsset(ctx context.Context, assetID uint64) (market.Listing, error)

	// ListListings returns every listing, oldest first.
	ListListings(ctx context.Context) ([]market.Listing, error)

	// ListListingsBySeller returns a seller's listings, oldest first.
	ListListingsBySeller(ctx context.Context, seller asset.Account) ([]market.Listing, error)
}

// FeeStore persists the protocol fee configuration.
type FeeStore interface {
	GetFeeConfig(ctx context.Context) (market.FeeConfig, error)
	SetFeeConfig(ctx context.Context, cfg market.FeeConfig) (market.FeeConfig, error)
}

// TreasuryStore persists the accumulated protocol fee balance.
type TreasuryStore interface {
	// TreasuryBalance returns the current balance. Never nil.
	TreasuryBalance(ctx context.Context) (*big.Int, error)

	// CreditTreasury adds amount to the balance and returns the new balance.
	CreditTreasury(ctx context.Context, amount *big.Int) (*big.Int, error)

	// DrainTreasury zeroes the balance and returns the amount removed.
	DrainTreasury(ctx context.Context) (*big.Int, error)
}

// EventStore persists the notification journal consumed by external
// indexers. Append-only; records are never updated or deleted.
type EventStore interface {
	AppendEvent(ctx context.Context, rec events.Record) (events.Record, error)
	ListEvents(ctx context.Context, limit int) ([]events.Record, error)
}
