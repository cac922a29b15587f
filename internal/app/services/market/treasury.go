package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
)

// TreasuryBalance returns the withdrawable fee balance.
func (s *Service) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	return s.treasury.TreasuryBalance(ctx)
}

// Withdraw pays the entire treasury balance to the admin caller and zeroes
// it. The balance is drained before the payment goes out; a failed payment
// restores it.
func (s *Service) Withdraw(ctx context.Context, caller asset.Account) (*big.Int, error) {
	dctx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if !s.auth.IsAdmin(caller) {
		return nil, ErrUnauthorized
	}

	balance, err := s.treasury.TreasuryBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("load treasury balance: %w", err)
	}
	if balance.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}

	drained, err := s.treasury.DrainTreasury(ctx)
	if err != nil {
		return nil, fmt.Errorf("drain treasury: %w", err)
	}

	if err := s.channel.Pay(dctx, caller, drained); err != nil {
		if _, rbErr := s.treasury.CreditTreasury(ctx, drained); rbErr != nil {
			s.log.WithError(rbErr).Error("failed to restore treasury balance after aborted withdrawal")
		}
		return nil, fmt.Errorf("deliver treasury withdrawal: %w", paymentFailure(err))
	}

	s.sink.Append(events.Record{
		Kind:  events.KindTreasuryWithdrawn,
		Actor: caller,
		Attrs: map[string]string{"amount": drained.String()},
	})
	s.log.WithField("amount", drained.String()).Info("treasury withdrawn")
	return drained, nil
}
