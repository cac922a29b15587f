package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	domain "github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/metrics"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/storage"
)

// unwinder collects compensations for the effects an operation has already
// committed. On abort they run newest-first so state returns to exactly what
// it was before the operation began.
type unwinder struct {
	steps []func()
}

func (u *unwinder) stage(step func()) { u.steps = append(u.steps, step) }

func (u *unwinder) run() {
	for i := len(u.steps) - 1; i >= 0; i-- {
		u.steps[i]()
	}
}

// Buy settles an active listing: the buyer takes custody, the seller is
// paid price minus fee, the fee accrues to the treasury, and any overpayment
// returns to the buyer.
//
// The listing is committed Sold before any outbound delivery. A recipient
// calling back into the service during delivery fails with ErrReentrant and,
// once the lock is free again, observes the listing already inactive.
//
// If the overpayment refund fails after the seller was paid, the sale still
// stands: Buy returns the completed Sale together with ErrRefundOwed, and
// the refund can be re-delivered with RetryRefund.
func (s *Service) Buy(ctx context.Context, listingID uint64, payer asset.Account, payment *big.Int) (domain.Sale, error) {
	dctx, err := s.begin(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	defer s.mu.Unlock()

	started := time.Now()

	lst, err := s.listings.GetListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Sale{}, ErrListingInactive
	}
	if err != nil {
		return domain.Sale{}, fmt.Errorf("load listing %d: %w", listingID, err)
	}
	if !lst.Active() {
		return domain.Sale{}, ErrListingInactive
	}
	if payment == nil || payment.Cmp(lst.Price) < 0 {
		return domain.Sale{}, ErrInsufficientPayment
	}
	if payer == "" {
		return domain.Sale{}, ErrUnauthorized
	}
	if payer == lst.Seller {
		return domain.Sale{}, ErrSelfPurchase
	}

	cfg, err := s.fees.GetFeeConfig(ctx)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("load fee config: %w", err)
	}
	fee, sellerAmount := splitPrice(lst.Price, cfg.BasisPoints)
	refund := new(big.Int).Sub(payment, lst.Price)

	var undo unwinder
	fail := func(err error) (domain.Sale, error) {
		undo.run()
		metrics.RecordSettlement("failed", time.Since(started))
		return domain.Sale{}, err
	}

	// Effects before interactions: the Sold state is durable before any
	// recipient-controlled code can run.
	active := lst
	lst.Status = domain.StatusSold
	lst.Buyer = payer
	lst.ClosedAt = time.Now().UTC()
	if _, err := s.listings.UpdateListing(ctx, lst); err != nil {
		return domain.Sale{}, fmt.Errorf("deactivate listing %d: %w", listingID, err)
	}
	undo.stage(func() {
		if _, err := s.listings.UpdateListing(ctx, active); err != nil {
			s.log.WithError(err).Errorf("failed to restore listing %d after aborted settlement", listingID)
		}
	})

	if _, err := s.treasury.CreditTreasury(ctx, fee); err != nil {
		return fail(fmt.Errorf("credit treasury: %w", err))
	}
	undo.stage(func() {
		if _, err := s.treasury.CreditTreasury(ctx, new(big.Int).Neg(fee)); err != nil {
			s.log.WithError(err).Error("failed to reverse treasury credit after aborted settlement")
		}
	})

	if err := s.registry.Transfer(dctx, lst.AssetID, s.escrow, payer); err != nil {
		return fail(fmt.Errorf("release custody of asset %d: %w", lst.AssetID, err))
	}
	undo.stage(func() {
		if err := s.registry.Transfer(dctx, lst.AssetID, payer, s.escrow); err != nil {
			s.log.WithError(err).Errorf("failed to return asset %d to escrow after aborted settlement", lst.AssetID)
		}
	})

	if err := s.channel.Pay(dctx, lst.Seller, sellerAmount); err != nil {
		return fail(fmt.Errorf("deliver seller proceeds: %w", paymentFailure(err)))
	}

	sale := domain.Sale{
		ListingID:    lst.ID,
		AssetID:      lst.AssetID,
		Buyer:        payer,
		Seller:       lst.Seller,
		Price:        new(big.Int).Set(lst.Price),
		Fee:          fee,
		SellerAmount: sellerAmount,
		Refund:       refund,
	}

	metrics.RecordSettlement("sold", time.Since(started))
	s.sink.Append(events.Record{
		Kind:      events.KindSold,
		ListingID: lst.ID,
		AssetID:   lst.AssetID,
		Actor:     payer,
		Attrs: map[string]string{
			"seller": string(lst.Seller),
			"price":  lst.Price.String(),
			"fee":    fee.String(),
		},
	})
	s.log.WithField("listing_id", lst.ID).
		WithField("asset_id", lst.AssetID).
		WithField("buyer", string(payer)).
		WithField("price", lst.Price.String()).
		Info("listing settled")

	// The seller payout is a push payment and cannot be recalled, so the
	// sale is final from here. A failed refund must not reopen the listing:
	// a second buyer could then settle it and the seller would be paid
	// twice for one asset. The refund stays owed to the buyer instead.
	if refund.Sign() > 0 {
		if err := s.channel.Pay(dctx, payer, refund); err != nil {
			s.owed[lst.ID] = owedRefund{payer: payer, amount: new(big.Int).Set(refund)}
			s.sink.Append(events.Record{
				Kind:      events.KindRefundOwed,
				ListingID: lst.ID,
				AssetID:   lst.AssetID,
				Actor:     payer,
				Attrs:     map[string]string{"amount": refund.String()},
			})
			s.log.WithError(err).
				WithField("listing_id", lst.ID).
				WithField("buyer", string(payer)).
				Errorf("overpayment refund of %s not delivered", refund)
			return sale, fmt.Errorf("refund overpayment: %w", errors.Join(ErrRefundOwed, paymentFailure(err)))
		}
	}

	return sale, nil
}

// owedRefund is an overpayment the channel failed to return during
// settlement. The sale stands; the amount remains claimable.
type owedRefund struct {
	payer  asset.Account
	amount *big.Int
}

// OwedRefund reports the undelivered overpayment for a listing, if any.
func (s *Service) OwedRefund(listingID uint64) (asset.Account, *big.Int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owed, ok := s.owed[listingID]
	if !ok {
		return "", nil, false
	}
	return owed.payer, new(big.Int).Set(owed.amount), true
}

// RetryRefund re-attempts delivery of an overpayment the channel failed to
// return during settlement. The owed buyer or the admin may trigger it.
func (s *Service) RetryRefund(ctx context.Context, listingID uint64, caller asset.Account) (*big.Int, error) {
	dctx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	owed, ok := s.owed[listingID]
	if !ok {
		return nil, ErrNoRefundOwed
	}
	if caller != owed.payer && !s.auth.IsAdmin(caller) {
		return nil, ErrUnauthorized
	}

	if err := s.channel.Pay(dctx, owed.payer, owed.amount); err != nil {
		return nil, fmt.Errorf("refund overpayment: %w", paymentFailure(err))
	}
	delete(s.owed, listingID)

	s.sink.Append(events.Record{
		Kind:      events.KindRefundDelivered,
		ListingID: listingID,
		Actor:     owed.payer,
		Attrs:     map[string]string{"amount": owed.amount.String()},
	})
	s.log.WithField("listing_id", listingID).
		WithField("buyer", string(owed.payer)).
		Info("owed refund delivered")
	return new(big.Int).Set(owed.amount), nil
}

// Cancel deactivates an active listing and returns the asset from escrow to
// the seller. Only the seller or the admin may cancel; no payment moves.
// The reentrancy guard covers Cancel too: the custody return hands control
// to a potentially recipient-controlled seller just like a payment does.
func (s *Service) Cancel(ctx context.Context, listingID uint64, caller asset.Account) (domain.Listing, error) {
	dctx, err := s.begin(ctx)
	if err != nil {
		return domain.Listing{}, err
	}
	defer s.mu.Unlock()

	started := time.Now()

	lst, err := s.listings.GetListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Listing{}, ErrListingInactive
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("load listing %d: %w", listingID, err)
	}
	if !lst.Active() {
		return domain.Listing{}, ErrListingInactive
	}
	if caller != lst.Seller && !s.auth.IsAdmin(caller) {
		return domain.Listing{}, ErrUnauthorized
	}

	active := lst
	lst.Status = domain.StatusCancelled
	lst.ClosedAt = time.Now().UTC()
	if _, err := s.listings.UpdateListing(ctx, lst); err != nil {
		return domain.Listing{}, fmt.Errorf("deactivate listing %d: %w", listingID, err)
	}

	if err := s.registry.Transfer(dctx, lst.AssetID, s.escrow, lst.Seller); err != nil {
		if _, rbErr := s.listings.UpdateListing(ctx, active); rbErr != nil {
			s.log.WithError(rbErr).Errorf("failed to restore listing %d after aborted cancel", listingID)
		}
		metrics.RecordSettlement("cancel_failed", time.Since(started))
		return domain.Listing{}, fmt.Errorf("return asset %d to seller: %w", lst.AssetID, err)
	}

	metrics.RecordSettlement("cancelled", time.Since(started))
	s.sink.Append(events.Record{
		Kind:      events.KindCancelled,
		ListingID: lst.ID,
		AssetID:   lst.AssetID,
		Actor:     caller,
	})
	s.log.WithField("listing_id", lst.ID).
		WithField("asset_id", lst.AssetID).
		WithField("caller", string(caller)).
		Info("listing cancelled")
	return lst, nil
}
