package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coinpilot/coinpilot/internal/domain"
	"github.com/coinpilot/coinpilot/internal/executor"
	"github.com/coinpilot/coinpilot/internal/service"
)

// TradeService defines the methods the trade handler requires.
type TradeService interface {
	ExecuteRecent(ctx context.Context) (service.RunSummary, error)
	ExecuteSignal(ctx context.Context, signalID string) (executor.Execution, error)
	Trades(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves paper-trading HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logHandler(logger, "trades"),
	}
}

// executeRequest optionally targets a single stored signal. An empty body
// (or empty signal_id) drains all pending signals instead.
type executeRequest struct {
	SignalID string `json:"signal_id"`
}

type executionResponse struct {
	Executed bool          `json:"executed"`
	Skipped  string        `json:"skipped,omitempty"`
	Trade    *domain.Trade `json:"trade,omitempty"`
}

// Execute runs pending signals through the executor, or one specific signal
// when signal_id is given.
// POST /api/trade/execute
func (h *TradeHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if req.SignalID != "" {
		res, err := h.trades.ExecuteSignal(r.Context(), req.SignalID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				writeError(w, http.StatusNotFound, "signal not found")
			case errors.Is(err, domain.ErrLockHeld):
				writeError(w, http.StatusConflict, "token is busy, retry shortly")
			default:
				h.logger.ErrorContext(r.Context(), "handler: execute signal failed",
					slog.String("signal_id", req.SignalID),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusInternalServerError, "failed to execute signal")
			}
			return
		}
		writeJSON(w, http.StatusOK, executionResponse{
			Executed: res.Executed(),
			Skipped:  string(res.Skipped),
			Trade:    res.Trade,
		})
		return
	}

	summary, err := h.trades.ExecuteRecent(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: execute cycle failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to execute pending signals")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns the trade ledger with pagination.
// GET /api/trade/trades?limit=50&offset=0&since=...&until=...
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.Trades(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}
