package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// defaultSignalWindow bounds recent/top queries when the client does not
// pass a window parameter.
const defaultSignalWindow = 24 * time.Hour

// SignalService defines the methods the signal handler requires.
type SignalService interface {
	EvaluateBatch(ctx context.Context, inputs map[string]domain.SubScores) ([]domain.Signal, error)
	Recent(ctx context.Context, window time.Duration, opts domain.ListOpts) ([]domain.Signal, error)
	Top(ctx context.Context, window time.Duration, minScore float64, limit int) ([]domain.Signal, error)
}

// SignalHandler serves signal-related HTTP endpoints.
type SignalHandler struct {
	signals SignalService
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler with the given service and logger.
func NewSignalHandler(signals SignalService, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		logger:  logHandler(logger, "signals"),
	}
}

type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
}

// ListRecent returns signals from the lookback window, newest first.
// GET /api/signals/recent?window=24h&limit=50&offset=0
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, "window", defaultSignalWindow)

	signals, err := h.signals.Recent(r.Context(), window, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list recent signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}

// ListTop returns the strongest signals from the lookback window.
// GET /api/signals/top?window=24h&min_score=0.5&limit=20
func (h *SignalHandler) ListTop(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r, "window", defaultSignalWindow)

	minScore := 0.0
	if v := r.URL.Query().Get("min_score"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_score must be a number")
			return
		}
		minScore = parsed
	}

	limit := parseListOpts(r).Limit

	signals, err := h.signals.Top(r.Context(), window, minScore, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list top signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}

// computeRequest carries per-token sub-scores for one evaluation batch.
type computeRequest struct {
	Scores map[string]domain.SubScores `json:"scores"`
}

// Compute evaluates the submitted sub-scores into signals.
// POST /api/compute/signals
func (h *SignalHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Scores) == 0 {
		writeError(w, http.StatusBadRequest, "scores map is required")
		return
	}

	signals, err := h.signals.EvaluateBatch(r.Context(), req.Scores)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidWeightConfig) {
			writeError(w, http.StatusConflict, "weight configuration is invalid")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: compute signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute signals")
		return
	}

	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}
