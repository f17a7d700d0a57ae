package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// ConfigService defines the methods the admin handler requires.
type ConfigService interface {
	Get(ctx context.Context) (domain.WeightConfig, error)
	Update(ctx context.Context, cfg domain.WeightConfig) (domain.WeightConfig, error)
}

// AdminHandler serves configuration and audit endpoints.
type AdminHandler struct {
	config ConfigService
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given services and logger.
func NewAdminHandler(config ConfigService, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		config: config,
		audit:  audit,
		logger: logHandler(logger, "admin"),
	}
}

// GetConfig returns the active weight configuration.
// GET /api/admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.Get(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get config failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig replaces the active weight configuration.
// PUT /api/admin/config
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.WeightConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.config.Update(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidWeightConfig) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update config failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update config")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListAudit returns recent audit log entries.
// GET /api/admin/audit?limit=50
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries})
}
