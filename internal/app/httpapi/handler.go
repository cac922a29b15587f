// Package httpapi exposes the marketplace core over a small REST surface:
// asset issuance, listing lifecycle, settlement, admin fee and treasury
// operations, and the notification stream.
package httpapi

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"

	app "github.com/Ayush4178/NFT-Marketplace/internal/app"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/domain/asset"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/events"
	"github.com/Ayush4178/NFT-Marketplace/internal/app/metrics"
)

// handler bundles HTTP endpoints for the marketplace service.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the marketplace REST API, instrumented
// with request metrics.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/assets", h.assets)
	mux.HandleFunc("/assets/", h.assetResource)
	mux.HandleFunc("/listings", h.listings)
	mux.HandleFunc("/listings/", h.listingResource)
	mux.HandleFunc("/admin/fee", h.adminFee)
	mux.HandleFunc("/admin/withdraw", h.adminWithdraw)
	mux.HandleFunc("/treasury", h.treasuryBalance)
	mux.HandleFunc("/events", h.events)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return metrics.InstrumentHandler(mux)
}

func (h *handler) assets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.app.Ledger == nil {
		writeError(w, http.StatusNotImplemented, errInternalRegistry)
		return
	}

	var payload struct {
		Owner       string `json:"owner"`
		MetadataURI string `json:"metadata_uri"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	minted, err := h.app.Ledger.Mint(r.Context(), asset.Account(payload.Owner), payload.MetadataURI)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.app.Notifications.Append(events.Record{
		Kind:    events.KindMinted,
		AssetID: minted.ID,
		Actor:   asset.Account(payload.Owner),
	})
	writeJSON(w, http.StatusCreated, minted)
}

func (h *handler) assetResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := parseID(strings.TrimPrefix(r.URL.Path, "/assets/"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	holder, found := h.app.Registry.HolderOf(r.Context(), id)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset_id": id, "holder": holder})
}

func (h *handler) listings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Seller  string `json:"seller"`
			AssetID uint64 `json:"asset_id"`
			Price   string `json:"price"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		price, ok := parseAmount(payload.Price)
		if !ok {
			writeError(w, http.StatusBadRequest, errBadAmount)
			return
		}

		lst, err := h.app.Market.List(r.Context(), asset.Account(payload.Seller), payload.AssetID, price)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lst)

	case http.MethodGet:
		if seller := r.URL.Query().Get("seller"); seller != "" {
			lsts, err := h.app.Market.ListingsBySeller(r.Context(), asset.Account(seller))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, lsts)
			return
		}
		if r.URL.Query().Get("active") == "true" {
			lsts, err := h.app.Market.ActiveListings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, lsts)
			return
		}
		lsts, err := h.app.Market.Listings(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, lsts)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) listingResource(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/listings"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, ok := parseID(parts[0])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		lst, err := h.app.Market.Listing(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if lst.ID == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, lst)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "buy":
		var payload struct {
			Payer   string `json:"payer"`
			Payment string `json:"payment"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		payment, ok := parseAmount(payload.Payment)
		if !ok {
			writeError(w, http.StatusBadRequest, errBadAmount)
			return
		}

		sale, err := h.app.Market.Buy(r.Context(), id, asset.Account(payload.Payer), payment)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)

	case "cancel":
		var payload struct {
			Caller string `json:"caller"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		lst, err := h.app.Market.Cancel(r.Context(), id, asset.Account(payload.Caller))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lst)

	case "refund":
		var payload struct {
			Caller string `json:"caller"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		amount, err := h.app.Market.RetryRefund(r.Context(), id, asset.Account(payload.Caller))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) adminFee(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.app.Market.FeeConfig(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPut:
		var payload struct {
			Caller      string `json:"caller"`
			BasisPoints uint64 `json:"basis_points"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cfg, err := h.app.Market.SetFee(r.Context(), asset.Account(payload.Caller), payload.BasisPoints)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, err := h.app.Market.Withdraw(r.Context(), asset.Account(payload.Caller))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (h *handler) treasuryBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balance, err := h.app.Market.TreasuryBalance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if r.URL.Query().Get("source") == "journal" {
		recs, err := h.app.Journal.ListEvents(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Notifications.Recent(limit))
}

func parseID(raw string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}
