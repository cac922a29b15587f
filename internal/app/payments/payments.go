// Package payments models the outbound payment channel. The core only ever
// pushes value out (seller proceeds, fee deposits, refunds); collection of
// the buyer's payment happens upstream of the core.
package payments

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
)

// ErrPaymentFailed reports a delivery the channel could not complete. The
// enclosing operation must abort; no partial payment is ever left behind.
var ErrPaymentFailed = errors.New("payment failed")

// Channel delivers funds to an account.
type Channel interface {
	Pay(ctx context.Context, to asset.Account, amount *big.Int) error
}

// Ledger is an in-process payment channel keeping per-account balances so
// tests and local runs can observe where money went.
type Ledger struct {
	mu       sync.RWMutex
	balances map[asset.Account]*big.Int
}

var _ Channel = (*Ledger)(nil)

// NewLedger creates an empty payment ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[asset.Account]*big.Int)}
}

func (l *Ledger) Pay(_ context.Context, to asset.Account, amount *big.Int) error {
	if to == "" {
		return ErrPaymentFailed
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrPaymentFailed
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[to]
	if !ok {
		bal = new(big.Int)
		l.balances[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// Balance returns the delivered total for an account.
func (l *Ledger) Balance(account asset.Account) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[account]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// ChannelFunc adapts a function to the Channel interface. Tests use it to
// inject failures and reentrant callbacks.
type ChannelFunc func(ctx context.Context, to asset.Account, amount *big.Int) error

func (f ChannelFunc) Pay(ctx context.Context, to asset.Account, amount *big.Int) error {
	return f(ctx, to, amount)
}
