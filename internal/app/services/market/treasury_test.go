package market

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/auth"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/payments"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/registry"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage/memory"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

// accrue runs a settlement so the treasury holds a fee.
func (f *fixture) accrue(t *testing.T, price int64, bps uint64) *big.Int {
	t.Helper()
	f.setFee(t, bps)
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), price)
	sale, err := f.svc.Buy(context.Background(), lst.ID, buyerAccount, big.NewInt(price))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	return sale.Fee
}

func TestWithdrawDrainsTreasuryToAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fee := f.accrue(t, 1000, 250)

	amount, err := f.svc.Withdraw(ctx, adminAccount)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(fee) != 0 {
		t.Errorf("withdrew %s, want %s", amount, fee)
	}
	if got := f.funds.Balance(adminAccount); got.Cmp(fee) != 0 {
		t.Errorf("admin received %s, want %s", got, fee)
	}

	if bal, err := f.svc.TreasuryBalance(ctx); err != nil || bal.Sign() != 0 {
		t.Errorf("treasury should be empty, holds %s (err %v)", bal, err)
	}
	if recs := f.stream.RecentByKind(events.KindTreasuryWithdrawn, 1); len(recs) != 1 {
		t.Error("expected a treasury_withdrawn notification")
	}
}

func TestWithdrawRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	f.accrue(t, 1000, 250)

	if _, err := f.svc.Withdraw(context.Background(), sellerAccount); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if bal, _ := f.svc.TreasuryBalance(context.Background()); bal.Sign() == 0 {
		t.Error("balance must be untouched by a rejected withdrawal")
	}
}

func TestWithdrawRejectsEmptyTreasury(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Withdraw(context.Background(), adminAccount); !errors.Is(err, ErrNothingToWithdraw) {
		t.Errorf("expected ErrNothingToWithdraw, got %v", err)
	}
}

func TestWithdrawRestoresBalanceWhenPayoutFails(t *testing.T) {
	store := memory.New()
	assets := registry.NewLedger()

	deliverable := true
	channel := payments.ChannelFunc(func(_ context.Context, to asset.Account, _ *big.Int) error {
		if to == adminAccount && !deliverable {
			return payments.ErrPaymentFailed
		}
		return nil
	})

	svc, err := New(Deps{
		Listings: store,
		Fees:     store,
		Treasury: store,
		Registry: assets,
		Auth:     auth.NewStaticAdmin(adminAccount),
		Payments: channel,
		Events:   events.NewLog(16),
	}, logger.NewDefault("market-test"))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.SetFee(ctx, adminAccount, 1000); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	a, _ := assets.Mint(ctx, sellerAccount, "")
	lst, err := svc.List(ctx, sellerAccount, a.ID, big.NewInt(500))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(500)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	deliverable = false
	if _, err := svc.Withdraw(ctx, adminAccount); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}

	bal, err := svc.TreasuryBalance(ctx)
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if bal.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("balance should be restored to 50, holds %s", bal)
	}

	// a later attempt through a working channel succeeds
	deliverable = true
	if _, err := svc.Withdraw(ctx, adminAccount); err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
}
