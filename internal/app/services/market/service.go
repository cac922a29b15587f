// Package market implements the listing lifecycle and settlement state
// machine: creation into escrow, atomic buy and cancel, the fee split, and
// the treasury. Custody, authorization, and payment movement are injected
// capabilities; the service owns only the invariants.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/auth"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	domain "github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/metrics"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/payments"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/registry"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

// DefaultEscrowAccount holds listed assets when no other account is
// configured.
const DefaultEscrowAccount = asset.Account("escrow")

// Deps carries everything the service needs. Listings, Fees, Treasury,
// Registry, Auth, and Payments are required; Events defaults to a no-op sink
// and Escrow to DefaultEscrowAccount.
type Deps struct {
	Listings storage.ListingStore
	Fees     storage.FeeStore
	Treasury storage.TreasuryStore
	Registry registry.Registry
	Auth     auth.Authorizer
	Payments payments.Channel
	Events   events.Sink
	Escrow   asset.Account
}

// Service is the marketplace core. Every mutating operation runs to
// completion under one mutex: the ledger admits exactly one operation at a
// time, and each either fully commits or unwinds to its starting state.
type Service struct {
	listings storage.ListingStore
	fees     storage.FeeStore
	treasury storage.TreasuryStore
	registry registry.Registry
	auth     auth.Authorizer
	channel  payments.Channel
	sink     events.Sink
	escrow   asset.Account
	log      *logger.Logger

	mu sync.Mutex
	// owed holds overpayment refunds the channel failed to deliver, keyed
	// by listing id. Guarded by mu.
	owed map[uint64]owedRefund
}

// New constructs the marketplace service.
func New(deps Deps, log *logger.Logger) (*Service, error) {
	if deps.Listings == nil || deps.Fees == nil || deps.Treasury == nil {
		return nil, errors.New("market: listing, fee, and treasury stores are required")
	}
	if deps.Registry == nil {
		return nil, errors.New("market: asset registry is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("market: authorizer is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("market: payment channel is required")
	}
	if deps.Events == nil {
		deps.Events = events.NopSink{}
	}
	if deps.Escrow == "" {
		deps.Escrow = DefaultEscrowAccount
	}
	if log == nil {
		log = logger.NewDefault("market")
	}

	return &Service{
		listings: deps.Listings,
		fees:     deps.Fees,
		treasury: deps.Treasury,
		registry: deps.Registry,
		auth:     deps.Auth,
		channel:  deps.Payments,
		sink:     deps.Events,
		escrow:   deps.Escrow,
		log:      log,
		owed:     make(map[uint64]owedRefund),
	}, nil
}

// Escrow returns the custody account for listed assets.
func (s *Service) Escrow() asset.Account { return s.escrow }

// settlementKey marks contexts handed to outbound deliveries. A nested call
// arriving with the mark still attached is a reentrant callback from a
// recipient; it must fail before it can touch the lock, or it would
// deadlock. Callers on other goroutines carry unmarked contexts and simply
// queue on the mutex.
type settlementKey struct{}

func markSettlement(ctx context.Context) context.Context {
	return context.WithValue(ctx, settlementKey{}, true)
}

// begin rejects reentrant calls, then serializes the operation. The returned
// context is the one to pass to any collaborator that may run recipient
// code. Callers must defer s.mu.Unlock().
func (s *Service) begin(ctx context.Context) (context.Context, error) {
	if ctx.Value(settlementKey{}) != nil {
		return nil, ErrReentrant
	}
	s.mu.Lock()
	return markSettlement(ctx), nil
}

// List escrows an asset and records an active listing for it. The custody
// transfer and the listing insert commit as one unit: if either side fails,
// the other is undone before the error returns.
func (s *Service) List(ctx context.Context, seller asset.Account, assetID uint64, price *big.Int) (domain.Listing, error) {
	dctx, err := s.begin(ctx)
	if err != nil {
		return domain.Listing{}, err
	}
	defer s.mu.Unlock()

	if price == nil || price.Sign() <= 0 {
		return domain.Listing{}, ErrInvalidPrice
	}
	if seller == "" {
		return domain.Listing{}, ErrNotOwner
	}

	holder, ok := s.registry.HolderOf(ctx, assetID)
	if !ok || holder != seller {
		return domain.Listing{}, ErrNotOwner
	}

	if _, err := s.listings.ActiveListingForAsset(ctx, assetID); err == nil {
		return domain.Listing{}, ErrAlreadyListed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return domain.Listing{}, fmt.Errorf("check active listing: %w", err)
	}

	if err := s.registry.Transfer(dctx, assetID, seller, s.escrow); err != nil {
		if errors.Is(err, registry.ErrNotHolder) {
			return domain.Listing{}, ErrNotOwner
		}
		return domain.Listing{}, fmt.Errorf("escrow asset %d: %w", assetID, err)
	}

	lst, err := s.listings.CreateListing(ctx, domain.Listing{
		AssetID: assetID,
		Seller:  seller,
		Price:   new(big.Int).Set(price),
	})
	if err != nil {
		if rbErr := s.registry.Transfer(dctx, assetID, s.escrow, seller); rbErr != nil {
			s.log.WithError(rbErr).Errorf("failed to return asset %d to seller after aborted listing", assetID)
		}
		if errors.Is(err, storage.ErrActiveListingExists) {
			return domain.Listing{}, ErrAlreadyListed
		}
		return domain.Listing{}, fmt.Errorf("store listing: %w", err)
	}

	metrics.RecordListingCreated()
	s.sink.Append(events.Record{
		Kind:      events.KindListed,
		ListingID: lst.ID,
		AssetID:   lst.AssetID,
		Actor:     seller,
		Attrs:     map[string]string{"price": lst.Price.String()},
	})
	s.log.WithField("listing_id", lst.ID).
		WithField("asset_id", lst.AssetID).
		WithField("seller", string(seller)).
		Info("listing created")
	return lst, nil
}

// Listing returns the listing for an id. Unknown ids yield the zero record
// with no error; callers check Status and the id themselves. Only backend
// failures surface as errors.
func (s *Service) Listing(ctx context.Context, listingID uint64) (domain.Listing, error) {
	lst, err := s.listings.GetListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Listing{}, nil
	}
	if err != nil {
		return domain.Listing{}, err
	}
	return lst, nil
}

// Listings returns all listings, including settled and cancelled history.
func (s *Service) Listings(ctx context.Context) ([]domain.Listing, error) {
	return s.listings.ListListings(ctx)
}

// ActiveListings returns listings still open for purchase.
func (s *Service) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	all, err := s.listings.ListListings(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, lst := range all {
		if lst.Active() {
			active = append(active, lst)
		}
	}
	return active, nil
}

// ListingsBySeller returns a seller's listings, oldest first.
func (s *Service) ListingsBySeller(ctx context.Context, seller asset.Account) ([]domain.Listing, error) {
	return s.listings.ListListingsBySeller(ctx, seller)
}
