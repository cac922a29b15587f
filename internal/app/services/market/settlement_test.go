package market

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/auth"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	domain "github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/payments"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/registry"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage/memory"
	"github.com/Ayush4178/NFT-Marketplace/pkg/logger"
)

func (f *fixture) setFee(t *testing.T, bps uint64) {
	t.Helper()
	if _, err := f.svc.SetFee(context.Background(), adminAccount, bps); err != nil {
		t.Fatalf("set fee: %v", err)
	}
}

func TestBuySettlesAtExactPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setFee(t, 250)

	assetID := f.mint(t, sellerAccount)
	lst := f.list(t, sellerAccount, assetID, 1000)

	sale, err := f.svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(1000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if sale.Fee.Cmp(big.NewInt(25)) != 0 {
		t.Errorf("expected fee 25, got %s", sale.Fee)
	}
	if sale.SellerAmount.Cmp(big.NewInt(975)) != 0 {
		t.Errorf("expected seller amount 975, got %s", sale.SellerAmount)
	}
	if sale.Refund.Sign() != 0 {
		t.Errorf("expected no refund, got %s", sale.Refund)
	}

	if holder, _ := f.assets.HolderOf(ctx, assetID); holder != buyerAccount {
		t.Errorf("buyer should hold the asset, held by %s", holder)
	}
	if got := f.funds.Balance(sellerAccount); got.Cmp(big.NewInt(975)) != 0 {
		t.Errorf("seller received %s, want 975", got)
	}
	if bal, _ := f.store.TreasuryBalance(ctx); bal.Cmp(big.NewInt(25)) != 0 {
		t.Errorf("treasury holds %s, want 25", bal)
	}

	settled, _ := f.svc.Listing(ctx, lst.ID)
	if settled.Status != domain.StatusSold || settled.Buyer != buyerAccount {
		t.Errorf("listing should be sold to buyer, got %+v", settled)
	}
	if recs := f.stream.RecentByKind(events.KindSold, 1); len(recs) != 1 {
		t.Error("expected a sold notification")
	}
}

func TestBuyRefundsOverpayment(t *testing.T) {
	f := newFixture(t)
	f.setFee(t, 250)

	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	payment := big.NewInt(1500)
	sale, err := f.svc.Buy(context.Background(), lst.ID, buyerAccount, payment)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if sale.Refund.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("expected refund 500, got %s", sale.Refund)
	}
	if got := f.funds.Balance(buyerAccount); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("buyer refund delivered %s, want 500", got)
	}

	// conservation: fee + seller amount + refund == payment
	total := new(big.Int).Add(sale.Fee, sale.SellerAmount)
	total.Add(total, sale.Refund)
	if total.Cmp(payment) != 0 {
		t.Errorf("split %s does not conserve payment %s", total, payment)
	}
}

func TestBuyFeeFloorsInSellersFavour(t *testing.T) {
	f := newFixture(t)
	f.setFee(t, 333)

	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 101)

	sale, err := f.svc.Buy(context.Background(), lst.ID, buyerAccount, big.NewInt(101))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	// floor(101 * 333 / 10000) = floor(3.3633) = 3
	if sale.Fee.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("expected fee 3, got %s", sale.Fee)
	}
	if sale.SellerAmount.Cmp(big.NewInt(98)) != 0 {
		t.Errorf("expected seller amount 98, got %s", sale.SellerAmount)
	}
}

func TestBuyAtZeroFeeRate(t *testing.T) {
	f := newFixture(t)

	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	sale, err := f.svc.Buy(context.Background(), lst.ID, buyerAccount, big.NewInt(1000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if sale.Fee.Sign() != 0 {
		t.Errorf("expected zero fee, got %s", sale.Fee)
	}
	if sale.SellerAmount.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("expected full price to seller, got %s", sale.SellerAmount)
	}
}

func TestBuyRejectsInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	for _, payment := range []*big.Int{nil, big.NewInt(0), big.NewInt(999)} {
		if _, err := f.svc.Buy(context.Background(), lst.ID, buyerAccount, payment); !errors.Is(err, ErrInsufficientPayment) {
			t.Errorf("payment %v: expected ErrInsufficientPayment, got %v", payment, err)
		}
	}

	still, _ := f.svc.Listing(context.Background(), lst.ID)
	if !still.Active() {
		t.Error("listing must stay active after rejected payments")
	}
}

func TestBuyRejectsSelfPurchase(t *testing.T) {
	f := newFixture(t)
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	if _, err := f.svc.Buy(context.Background(), lst.ID, sellerAccount, big.NewInt(1000)); !errors.Is(err, ErrSelfPurchase) {
		t.Errorf("expected ErrSelfPurchase, got %v", err)
	}
}

func TestBuyRejectsUnknownAndSettledListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	if _, err := f.svc.Buy(ctx, 9999, buyerAccount, big.NewInt(1000)); !errors.Is(err, ErrListingInactive) {
		t.Errorf("unknown listing: expected ErrListingInactive, got %v", err)
	}

	if _, err := f.svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(1000)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := f.svc.Buy(ctx, lst.ID, asset.Account("carol"), big.NewInt(1000)); !errors.Is(err, ErrListingInactive) {
		t.Errorf("second buy: expected ErrListingInactive, got %v", err)
	}
}

func TestConcurrentBuyersExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	const buyers = 8
	results := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			buyer := asset.Account(string(rune('b' + n)))
			_, results[n] = f.svc.Buy(context.Background(), lst.ID, buyer, big.NewInt(1000))
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrListingInactive):
			lost++
		default:
			t.Errorf("unexpected racing-buy error: %v", err)
		}
	}
	if won != 1 || lost != buyers-1 {
		t.Errorf("expected exactly one winner, got %d winners and %d losers", won, lost)
	}
}

// A payment recipient that calls back into the service during delivery must
// be rejected, and the interrupted settlement must still complete.
func TestReentrantCallbackDuringPayoutFails(t *testing.T) {
	store := memory.New()
	assets := registry.NewLedger()
	stream := events.NewLog(64)

	var svc *Service
	var callbackErr error
	channel := payments.ChannelFunc(func(ctx context.Context, to asset.Account, amount *big.Int) error {
		if to == sellerAccount {
			_, callbackErr = svc.Buy(ctx, 1, asset.Account("mallory"), big.NewInt(5000))
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
		Events:   stream,
	}, logger.NewDefault("market-test"))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	ctx := context.Background()
	a, err := assets.Mint(ctx, sellerAccount, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	lst, err := svc.List(ctx, sellerAccount, a.ID, big.NewInt(1000))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if _, err := svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(1000)); err != nil {
		t.Fatalf("outer buy must succeed: %v", err)
	}
	if !errors.Is(callbackErr, ErrReentrant) {
		t.Errorf("nested buy: expected ErrReentrant, got %v", callbackErr)
	}

	settled, _ := svc.Listing(ctx, lst.ID)
	if settled.Status != domain.StatusSold || settled.Buyer != buyerAccount {
		t.Errorf("outer settlement should stand, got %+v", settled)
	}
}

func TestBuyUnwindsWhenPayoutFails(t *testing.T) {
	store := memory.New()
	assets := registry.NewLedger()

	failOnce := true
	channel := payments.ChannelFunc(func(_ context.Context, to asset.Account, _ *big.Int) error {
		if to == sellerAccount && failOnce {
			failOnce = false
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
	}, logger.NewDefault("market-test"))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.SetFee(ctx, adminAccount, 250); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	a, err := assets.Mint(ctx, sellerAccount, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	lst, err := svc.List(ctx, sellerAccount, a.ID, big.NewInt(1000))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if _, err := svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(1000)); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}

	// every effect unwound: listing active, custody in escrow, treasury empty
	restored, _ := svc.Listing(ctx, lst.ID)
	if !restored.Active() {
		t.Errorf("listing should be active again, got %s", restored.Status)
	}
	if holder, _ := assets.HolderOf(ctx, a.ID); holder != svc.Escrow() {
		t.Errorf("asset should be back in escrow, held by %s", holder)
	}
	if bal, _ := store.TreasuryBalance(ctx); bal.Sign() != 0 {
		t.Errorf("treasury should be empty, holds %s", bal)
	}

	// and the listing is still buyable through a working channel
	if _, err := svc.Buy(ctx, lst.ID, asset.Account("carol"), big.NewInt(1000)); err != nil {
		t.Fatalf("retry buy: %v", err)
	}
}

// A refund that fails after the seller was paid must not reopen the listing.
// Unwinding at that point would let a second buyer settle the same listing
// and pay the seller twice; the sale stands and the refund stays owed.
func TestBuyKeepsSaleWhenRefundFails(t *testing.T) {
	store := memory.New()
	assets := registry.NewLedger()
	funds := payments.NewLedger()
	stream := events.NewLog(64)

	refundDown := true
	channel := payments.ChannelFunc(func(ctx context.Context, to asset.Account, amount *big.Int) error {
		if to == buyerAccount && refundDown {
			return payments.ErrPaymentFailed
		}
		return funds.Pay(ctx, to, amount)
	})

	svc, err := New(Deps{
		Listings: store,
		Fees:     store,
		Treasury: store,
		Registry: assets,
		Auth:     auth.NewStaticAdmin(adminAccount),
		Payments: channel,
		Events:   stream,
	}, logger.NewDefault("market-test"))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.SetFee(ctx, adminAccount, 250); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	a, err := assets.Mint(ctx, sellerAccount, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	lst, err := svc.List(ctx, sellerAccount, a.ID, big.NewInt(1000))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	sale, err := svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(1500))
	if !errors.Is(err, ErrRefundOwed) {
		t.Fatalf("expected ErrRefundOwed, got %v", err)
	}
	if sale.Refund.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("sale refund = %s, want 500", sale.Refund)
	}

	// the sale stands: listing sold, custody with the buyer, fee accrued
	settled, _ := svc.Listing(ctx, lst.ID)
	if settled.Status != domain.StatusSold || settled.Buyer != buyerAccount {
		t.Errorf("listing should stay sold to buyer, got %+v", settled)
	}
	if holder, _ := assets.HolderOf(ctx, a.ID); holder != buyerAccount {
		t.Errorf("buyer should hold the asset, held by %s", holder)
	}
	if bal, _ := store.TreasuryBalance(ctx); bal.Cmp(big.NewInt(25)) != 0 {
		t.Errorf("treasury holds %s, want 25", bal)
	}

	// no second settlement, and the seller is paid exactly once
	if _, err := svc.Buy(ctx, lst.ID, asset.Account("carol"), big.NewInt(1000)); !errors.Is(err, ErrListingInactive) {
		t.Errorf("second buy: expected ErrListingInactive, got %v", err)
	}
	if got := funds.Balance(sellerAccount); got.Cmp(big.NewInt(975)) != 0 {
		t.Errorf("seller received %s, want exactly 975", got)
	}

	// the owed refund is recorded and announced
	if who, amount, ok := svc.OwedRefund(lst.ID); !ok || who != buyerAccount || amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("owed refund = (%s, %s, %v), want (bob, 500, true)", who, amount, ok)
	}
	if recs := stream.RecentByKind(events.KindRefundOwed, 1); len(recs) != 1 {
		t.Error("expected a refund-owed notification")
	}

	// once the channel recovers the buyer can claim the refund
	refundDown = false
	amount, err := svc.RetryRefund(ctx, lst.ID, buyerAccount)
	if err != nil {
		t.Fatalf("retry refund: %v", err)
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("delivered refund = %s, want 500", amount)
	}
	if got := funds.Balance(buyerAccount); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("buyer received %s, want 500", got)
	}
	if _, _, ok := svc.OwedRefund(lst.ID); ok {
		t.Error("owed refund should be cleared after delivery")
	}
	if _, err := svc.RetryRefund(ctx, lst.ID, buyerAccount); !errors.Is(err, ErrNoRefundOwed) {
		t.Errorf("second retry: expected ErrNoRefundOwed, got %v", err)
	}
}

func TestRetryRefundAuthorization(t *testing.T) {
	store := memory.New()
	assets := registry.NewLedger()
	funds := payments.NewLedger()

	refundDown := true
	channel := payments.ChannelFunc(func(ctx context.Context, to asset.Account, amount *big.Int) error {
		if to == buyerAccount && refundDown {
			return payments.ErrPaymentFailed
		}
		return funds.Pay(ctx, to, amount)
	})

	svc, err := New(Deps{
		Listings: store,
		Fees:     store,
		Treasury: store,
		Registry: assets,
		Auth:     auth.NewStaticAdmin(adminAccount),
		Payments: channel,
	}, logger.NewDefault("market-test"))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	ctx := context.Background()
	a, err := assets.Mint(ctx, sellerAccount, "")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	lst, err := svc.List(ctx, sellerAccount, a.ID, big.NewInt(1000))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := svc.Buy(ctx, lst.ID, buyerAccount, big.NewInt(1500)); !errors.Is(err, ErrRefundOwed) {
		t.Fatalf("expected ErrRefundOwed, got %v", err)
	}
	refundDown = false

	if _, err := svc.RetryRefund(ctx, lst.ID, asset.Account("carol")); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("stranger retry: expected ErrUnauthorized, got %v", err)
	}

	// the admin may push the owed refund; it still goes to the buyer
	if _, err := svc.RetryRefund(ctx, lst.ID, adminAccount); err != nil {
		t.Fatalf("admin retry: %v", err)
	}
	if got := funds.Balance(buyerAccount); got.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("buyer received %s, want 500", got)
	}
}

func TestBuyRejectsEmptyPayer(t *testing.T) {
	f := newFixture(t)
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	if _, err := f.svc.Buy(context.Background(), lst.ID, "", big.NewInt(1000)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty payer: expected ErrUnauthorized, got %v", err)
	}

	still, _ := f.svc.Listing(context.Background(), lst.ID)
	if !still.Active() {
		t.Error("listing must stay active after the rejected buy")
	}
}

func TestCancelBySeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assetID := f.mint(t, sellerAccount)
	lst := f.list(t, sellerAccount, assetID, 1000)

	cancelled, err := f.svc.Cancel(ctx, lst.ID, sellerAccount)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("expected status %s, got %s", domain.StatusCancelled, cancelled.Status)
	}
	if holder, _ := f.assets.HolderOf(ctx, assetID); holder != sellerAccount {
		t.Errorf("asset should return to seller, held by %s", holder)
	}
	if recs := f.stream.RecentByKind(events.KindCancelled, 1); len(recs) != 1 {
		t.Error("expected a cancelled notification")
	}
}

func TestCancelByAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assetID := f.mint(t, sellerAccount)
	lst := f.list(t, sellerAccount, assetID, 1000)

	if _, err := f.svc.Cancel(ctx, lst.ID, adminAccount); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	// the asset returns to the seller, not the admin
	if holder, _ := f.assets.HolderOf(ctx, assetID); holder != sellerAccount {
		t.Errorf("asset should return to seller, held by %s", holder)
	}
}

func TestCancelRejectsStrangersAndInactiveListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lst := f.list(t, sellerAccount, f.mint(t, sellerAccount), 1000)

	if _, err := f.svc.Cancel(ctx, lst.ID, buyerAccount); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("stranger cancel: expected ErrUnauthorized, got %v", err)
	}

	if _, err := f.svc.Cancel(ctx, lst.ID, sellerAccount); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, lst.ID, sellerAccount); !errors.Is(err, ErrListingInactive) {
		t.Errorf("second cancel: expected ErrListingInactive, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, 9999, sellerAccount); !errors.Is(err, ErrListingInactive) {
		t.Errorf("unknown listing: expected ErrListingInactive, got %v", err)
	}
}
