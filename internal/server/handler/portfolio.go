package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// PortfolioService defines the methods the portfolio handler requires.
type PortfolioService interface {
	Summary(ctx context.Context) (domain.PortfolioSummary, []domain.PositionView, error)
	TakeSnapshot(ctx context.Context) (domain.PortfolioSnapshot, error)
	History(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioSnapshot, error)
}

// PortfolioHandler serves portfolio HTTP endpoints.
type PortfolioHandler struct {
	portfolio PortfolioService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and logger.
func NewPortfolioHandler(portfolio PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio: portfolio,
		logger:    logHandler(logger, "portfolio"),
	}
}

type portfolioResponse struct {
	Summary   domain.PortfolioSummary `json:"summary"`
	Positions []domain.PositionView   `json:"positions"`
}

// GetPortfolio returns the live portfolio valuation.
// GET /api/trade/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	summary, views, err := h.portfolio.Summary(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: portfolio summary failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to value portfolio")
		return
	}
	if views == nil {
		views = []domain.PositionView{}
	}
	writeJSON(w, http.StatusOK, portfolioResponse{Summary: summary, Positions: views})
}

type historyResponse struct {
	Snapshots []domain.PortfolioSnapshot `json:"snapshots"`
}

// GetHistory returns stored portfolio snapshots.
// GET /api/trade/history?limit=50&since=...&until=...
func (h *PortfolioHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.portfolio.History(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: portfolio history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []domain.PortfolioSnapshot{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Snapshots: snaps})
}

// TakeSnapshot freezes and stores the current portfolio valuation.
// POST /api/trade/snapshot
func (h *PortfolioHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.portfolio.TakeSnapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: take snapshot failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to take snapshot")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}
