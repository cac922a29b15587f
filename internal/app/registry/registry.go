// Package registry tracks asset existence and custody. The marketplace core
// consumes the narrow Registry interface; the in-process Ledger implements it
// for tests and single-node deployments, where issuance also lives.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
)

var (
	// ErrUnknownAsset reports an asset id the registry has never issued.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNotHolder reports a transfer whose from account is not the holder.
	ErrNotHolder = errors.New("account is not the holder of the asset")
)

// Registry is the custody contract the marketplace core depends on.
type Registry interface {
	// Transfer moves custody of an asset. Fails with ErrNotHolder when from
	// does not currently hold the asset.
	Transfer(ctx context.Context, assetID uint64, from, to asset.Account) error

	// HolderOf returns the current holder, or false for unknown assets.
	HolderOf(ctx context.Context, assetID uint64) (asset.Account, bool)
}

// Ledger is an in-process asset registry with issuance.
type Ledger struct {
	mu      sync.RWMutex
	nextID  uint64
	assets  map[uint64]asset.Asset
	holders map[uint64]asset.Account
}

var _ Registry = (*Ledger)(nil)

// NewLedger creates an empty registry.
func NewLedger() *Ledger {
	return &Ledger{
		nextID:  1,
		assets:  make(map[uint64]asset.Asset),
		holders: make(map[uint64]asset.Account),
	}
}

// Mint issues a new asset held by owner and returns its record. Asset ids
// are monotonic and never reused.
func (l *Ledger) Mint(_ context.Context, owner asset.Account, metadataURI string) (asset.Asset, error) {
	if owner == "" {
		return asset.Asset{}, errors.New("owner is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	a := asset.Asset{
		ID:          l.nextID,
		MetadataURI: metadataURI,
		CreatedAt:   time.Now().UTC(),
	}
	l.nextID++
	l.assets[a.ID] = a
	l.holders[a.ID] = owner
	return a, nil
}

func (l *Ledger) Transfer(_ context.Context, assetID uint64, from, to asset.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	holder, ok := l.holders[assetID]
	if !ok {
		return ErrUnknownAsset
	}
	if holder != from {
		return ErrNotHolder
	}
	l.holders[assetID] = to
	return nil
}

func (l *Ledger) HolderOf(_ context.Context, assetID uint64) (asset.Account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	holder, ok := l.holders[assetID]
	return holder, ok
}

// Get returns the asset record or ErrUnknownAsset.
func (l *Ledger) Get(_ context.Context, assetID uint64) (asset.Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[assetID]
	if !ok {
		return asset.Asset{}, ErrUnknownAsset
	}
	return a, nil
}
