package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PriceService defines the methods the price handler requires.
type PriceService interface {
	Update(ctx context.Context, prices map[string]float64, observedAt time.Time) error
}

// PriceHandler ingests mark prices pushed by external feeds.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logHandler(logger, "prices"),
	}
}

type updatePricesRequest struct {
	Prices     map[string]float64 `json:"prices"`
	ObservedAt *time.Time         `json:"observed_at,omitempty"`
}

// UpdatePrices stores a batch of mark prices in the cache.
// POST /api/prices
func (h *PriceHandler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req updatePricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Prices) == 0 {
		writeError(w, http.StatusBadRequest, "prices must not be empty")
		return
	}

	observedAt := time.Now().UTC()
	if req.ObservedAt != nil {
		observedAt = req.ObservedAt.UTC()
	}

	if err := h.prices.Update(r.Context(), req.Prices, observedAt); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: price update failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"updated":     len(req.Prices),
		"observed_at": observedAt,
	})
}
