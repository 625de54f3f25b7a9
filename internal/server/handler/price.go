package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// PriceService defines the methods the price handler requires from the
// service layer.
type PriceService interface {
	Quote(ctx context.Context, pair string) (domain.Quote, error)
}

// PriceHandler serves advisory market quotes.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger,
	}
}

// GetQuote returns the latest quote for an asset pair. The pair appears in
// the path with a dash instead of a slash, e.g. /api/prices/SOL-USDC.
// GET /api/prices/{pair}
func (h *PriceHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	pair := strings.ReplaceAll(pathParam(r, "pair"), "-", "/")
	if pair == "" {
		writeError(w, http.StatusBadRequest, "missing asset pair")
		return
	}

	q, err := h.prices.Quote(r.Context(), pair)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}
