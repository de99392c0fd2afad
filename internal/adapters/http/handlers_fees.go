package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/application"
	"github.com/peertrade/escrow-core/internal/domain"
)

func (h *Handler) quoteFee(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed amount")
		return
	}
	durationHours := parseIntDefault(r.URL.Query().Get("duration_hours"), 0)
	res, err := h.service.QuoteFee(r.Context(), amount, durationHours)
	if err != nil {
		writeMappedError(r.Context(), w, "quote_fee", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listFeeTiers(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != application.RoleAdmin && actor.Role != application.RoleService {
		writeMappedError(r.Context(), w, "list_fee_tiers", domain.ErrUnauthorized)
		return
	}
	tiers, err := h.service.ListFeeTiers(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "list_fee_tiers", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"tiers": tiers})
}

func (h *Handler) createFeeTier(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != application.RoleAdmin {
		writeMappedError(r.Context(), w, "create_fee_tier", domain.ErrUnauthorized)
		return
	}
	var req application.CreateFeeTierRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	tier, err := h.service.CreateFeeTier(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_fee_tier", err)
		return
	}
	writeSuccess(w, http.StatusCreated, tier)
}

func (h *Handler) deactivateFeeTier(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != application.RoleAdmin {
		writeMappedError(r.Context(), w, "deactivate_fee_tier", domain.ErrUnauthorized)
		return
	}
	tierID, err := uuid.Parse(chi.URLParam(r, "tier_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed tier id")
		return
	}
	if err := h.service.DeactivateFeeTier(r.Context(), tierID); err != nil {
		writeMappedError(r.Context(), w, "deactivate_fee_tier", err)
		return
	}
	writeMessage(w, http.StatusOK, "tier deactivated")
}
