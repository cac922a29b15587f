package market

import (
	"errors"

	"github.com/Ayush4178/NFT-Marketplace/internal/app/payments"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/registry"
)

// Every failure mode of the marketplace core is one of these kinds. Callers
// match with errors.Is; there is no generic catch-all, because a front-end
// must tell "already sold" apart from "not enough money".
var (
	ErrInvalidPrice        = errors.New("price must be greater than zero")
	ErrNotOwner            = errors.New("seller does not hold the asset")
	ErrAlreadyListed       = errors.New("asset already has an active listing")
	ErrListingInactive     = errors.New("listing is not active")
	ErrInsufficientPayment = errors.New("payment is below the listing price")
	ErrSelfPurchase        = errors.New("seller cannot buy their own listing")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrFeeTooHigh          = errors.New("fee exceeds the maximum basis points")
	ErrNothingToWithdraw   = errors.New("treasury balance is zero")
	ErrReentrant           = errors.New("reentrant settlement call rejected")
	ErrRefundOwed          = errors.New("sale settled but the overpayment refund is still owed")
	ErrNoRefundOwed        = errors.New("no refund is owed for the listing")

	// Collaborator failure kinds, re-exported so callers only need this
	// package to classify any marketplace error.
	ErrPaymentFailed = payments.ErrPaymentFailed
	ErrNotHolder     = registry.ErrNotHolder
)

// paymentFailure tags an error from the payment channel with the
// ErrPaymentFailed kind if the channel did not do so itself.
func paymentFailure(err error) error {
	if err == nil || errors.Is(err, ErrPaymentFailed) {
		return err
	}
	return errors.Join(ErrPaymentFailed, err)
}
