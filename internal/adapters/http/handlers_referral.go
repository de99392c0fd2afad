package http

import (
	"net/http"

	"github.com/peertrade/escrow-core/internal/application"
)

func (h *Handler) registerReferral(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req application.RegisterReferralRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.RegisterReferral(r.Context(), actor, req)
	if err != nil {
		writeMappedError(r.Context(), w, "register_referral", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listReferrals(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	res, err := h.service.ListReferrals(r.Context(), actor, limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_referrals", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"referrals": res})
}
