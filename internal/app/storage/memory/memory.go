// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
)

// Store holds all marketplace state behind one mutex. Values returned to
// callers are clones, so later mutations never leak through shared pointers.
type Store struct {
	mu            sync.RWMutex
	nextListingID uint64
	listings      map[uint64]market.Listing
	activeByAsset map[uint64]uint64
	feeConfig     market.FeeConfig
	treasury      *big.Int
	journal       []events.Record
}

var _ storage.ListingStore = (*Store)(nil)
var _ storage.FeeStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates an empty store with a zero fee rate and an empty treasury.
func New() *Store {
	return &Store{
		nextListingID: 1,
		listings:      make(map[uint64]market.Listing),
		activeByAsset: make(map[uint64]uint64),
		treasury:      new(big.Int),
	}
}

// ListingStore implementation ------------------------------------------------

func (s *Store) CreateListing(_ context.Context, lst market.Listing) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.activeByAsset[lst.AssetID]; ok {
		if existing := s.listings[id]; existing.Active() {
			return market.Listing{}, storage.ErrActiveListingExists
		}
		// stale index entry from a settled listing
		delete(s.activeByAsset, lst.AssetID)
	}

	lst.ID = s.nextListingID
	s.nextListingID++
	lst.CreatedAt = time.Now().UTC()
	lst.Status = market.StatusActive

	s.listings[lst.ID] = lst.Clone()
	s.activeByAsset[lst.AssetID] = lst.ID
	return lst.Clone(), nil
}

func (s *Store) UpdateListing(_ context.Context, lst market.Listing) (market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.listings[lst.ID]
	if !ok {
		return market.Listing{}, storage.ErrNotFound
	}

	lst.CreatedAt = original.CreatedAt
	s.listings[lst.ID] = lst.Clone()

	if lst.Active() {
		s.activeByAsset[lst.AssetID] = lst.ID
	} else if s.activeByAsset[lst.AssetID] == lst.ID {
		delete(s.activeByAsset, lst.AssetID)
	}
	return lst.Clone(), nil
}

func (s *Store) GetListing(_ context.Context, id uint64) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lst, ok := s.listings[id]
	if !ok {
		return market.Listing{}, storage.ErrNotFound
	}
	return lst.Clone(), nil
}

func (s *Store) ActiveListingForAsset(_ context.Context, assetID uint64) (market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeByAsset[assetID]
	if !ok {
		return market.Listing{}, storage.ErrNotFound
	}
	lst := s.listings[id]
	if !lst.Active() {
		return market.Listing{}, storage.ErrNotFound
	}
	return lst.Clone(), nil
}

func (s *Store) ListListings(_ context.Context) ([]market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Listing, 0, len(s.listings))
	for _, lst := range s.listings {
		result = append(result, lst.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListListingsBySeller(_ context.Context, seller asset.Account) ([]market.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []market.Listing
	for _, lst := range s.listings {
		if lst.Seller == seller {
			result = append(result, lst.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// FeeStore implementation ----------------------------------------------------

func (s *Store) GetFeeConfig(_ context.Context) (market.FeeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeConfig, nil
}

func (s *Store) SetFeeConfig(_ context.Context, cfg market.FeeConfig) (market.FeeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.UpdatedAt = time.Now().UTC()
	s.feeConfig = cfg
	return cfg, nil
}

// TreasuryStore implementation -----------------------------------------------

func (s *Store) TreasuryBalance(_ context.Context) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.treasury), nil
}

func (s *Store) CreditTreasury(_ context.Context, amount *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.treasury.Add(s.treasury, amount)
	return new(big.Int).Set(s.treasury), nil
}

func (s *Store) DrainTreasury(_ context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.treasury
	s.treasury = new(big.Int)
	return drained, nil
}

// EventStore implementation --------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, rec events.Record) (events.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.journal = append(s.journal, cloneRecord(rec))
	return rec, nil
}

func (s *Store) ListEvents(_ context.Context, limit int) ([]events.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.journal)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]events.Record, 0, n)
	for i := len(s.journal) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, cloneRecord(s.journal[i]))
	}
	return result, nil
}

func cloneRecord(rec events.Record) events.Record {
	if rec.Attrs != nil {
		attrs := make(map[string]string, len(rec.Attrs))
		for k, v := range rec.Attrs {
			attrs[k] = v
		}
		rec.Attrs = attrs
	}
	return rec
}
