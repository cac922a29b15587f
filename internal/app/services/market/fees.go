package market

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	domain "github.com/Ayush4178/NFT-Marketplace/internal/app/domain/market"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
)

var basisPointDenominator = big.NewInt(10000)

// splitPrice divides a price into the protocol fee and the seller amount.
// The fee floors, so rounding always favours the seller:
// fee = floor(price * bps / 10000), sellerAmount = price - fee.
func splitPrice(price *big.Int, bps uint64) (fee, sellerAmount *big.Int) {
	fee = new(big.Int).Mul(price, new(big.Int).SetUint64(bps))
	fee.Quo(fee, basisPointDenominator)
	sellerAmount = new(big.Int).Sub(price, fee)
	return fee, sellerAmount
}

// FeeConfig returns the current fee configuration.
func (s *Service) FeeConfig(ctx context.Context) (domain.FeeConfig, error) {
	return s.fees.GetFeeConfig(ctx)
}

// SetFee replaces the fee rate. Admin only; rates above
// domain.MaxFeeBasisPoints are rejected and the prior rate stays in force.
func (s *Service) SetFee(ctx context.Context, caller asset.Account, newBps uint64) (domain.FeeConfig, error) {
	if _, err := s.begin(ctx); err != nil {
		return domain.FeeConfig{}, err
	}
	defer s.mu.Unlock()

	if !s.auth.IsAdmin(caller) {
		return domain.FeeConfig{}, ErrUnauthorized
	}
	if newBps > domain.MaxFeeBasisPoints {
		return domain.FeeConfig{}, ErrFeeTooHigh
	}

	cfg, err := s.fees.SetFeeConfig(ctx, domain.FeeConfig{BasisPoints: newBps})
	if err != nil {
		return domain.FeeConfig{}, fmt.Errorf("store fee config: %w", err)
	}

	s.sink.Append(events.Record{
		Kind:  events.KindFeeUpdated,
		Actor: caller,
		Attrs: map[string]string{"basis_points": strconv.FormatUint(newBps, 10)},
	})
	s.log.WithField("basis_points", newBps).Info("fee rate updated")
	return cfg, nil
}

// Split computes the fee split for a price at the current rate.
func (s *Service) Split(ctx context.Context, price *big.Int) (fee, sellerAmount *big.Int, err error) {
	cfg, err := s.fees.GetFeeConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	fee, sellerAmount = splitPrice(price, cfg.BasisPoints)
	return fee, sellerAmount, nil
}
