// Package market defines the listing records and fee configuration of the
// marketplace core.
package market

import (
	"math/big"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
)

// Status is the settlement state of a listing. A listing starts Active and
// moves to exactly one of Sold or Cancelled; both are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
)

// Listing is an offer to sell one asset at a fixed price. The asset sits in
// escrow for the listing's entire active life. Listings are never deleted;
// settled and cancelled records remain as history.
type Listing struct {
	ID        uint64
	AssetID   uint64
	Seller    asset.Account
	Price     *big.Int
	Status    Status
	Buyer     asset.Account
	CreatedAt time.Time
	ClosedAt  time.Time
}

// Active reports whether the listing can still be bought or cancelled.
func (l Listing) Active() bool { return l.Status == StatusActive }

// Clone returns a deep copy. Price is the only reference-typed field.
func (l Listing) Clone() Listing {
	if l.Price != nil {
		l.Price = new(big.Int).Set(l.Price)
	}
	return l
}

// MaxFeeBasisPoints is the hard cap on the protocol fee rate (10%).
const MaxFeeBasisPoints = 1000

// FeeConfig holds the current protocol fee rate in basis points. The rate is
// validated on every mutation; reads trust the stored value.
type FeeConfig struct {
	BasisPoints uint64
	UpdatedAt   time.Time
}

// Sale is the outcome of a successful settlement.
type Sale struct {
	ListingID    uint64
	AssetID      uint64
	Buyer        asset.Account
	Seller       asset.Account
	Price        *big.Int
	Fee          *big.Int
	SellerAmount *big.Int
	Refund       *big.Int
}
