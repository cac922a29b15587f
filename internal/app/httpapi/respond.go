package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	marketsvc "github.com/Ayush4178/NFT-Marketplace/internal/app/services/market"
)

var (
	errBadAmount        = errors.New("amount must be a non-negative decimal string")
	errInternalRegistry = errors.New("issuance requires the in-process asset registry")
)

func decodeJSON(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps the marketplace error kinds onto HTTP statuses. The
// kind stays visible in the body so API clients can still distinguish, say,
// an already-sold listing from an underfunded buyer.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, marketsvc.ErrInvalidPrice),
		errors.Is(err, marketsvc.ErrInsufficientPayment),
		errors.Is(err, marketsvc.ErrSelfPurchase),
		errors.Is(err, marketsvc.ErrFeeTooHigh):
		status = http.StatusBadRequest
	case errors.Is(err, marketsvc.ErrNotOwner),
		errors.Is(err, marketsvc.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, marketsvc.ErrAlreadyListed),
		errors.Is(err, marketsvc.ErrListingInactive),
		errors.Is(err, marketsvc.ErrNothingToWithdraw),
		errors.Is(err, marketsvc.ErrNoRefundOwed),
		errors.Is(err, marketsvc.ErrReentrant):
		status = http.StatusConflict
	case errors.Is(err, marketsvc.ErrRefundOwed),
		errors.Is(err, marketsvc.ErrPaymentFailed),
		errors.Is(err, marketsvc.ErrNotHolder):
		status = http.StatusBadGateway
	}
	writeError(w, status, err)
}
