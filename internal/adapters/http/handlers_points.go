package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/application"
	"github.com/peertrade/escrow-core/internal/domain"
)

func (h *Handler) getPoints(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	res, err := h.service.GetPoints(r.Context(), actor.SubjectID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_points", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) pointHistory(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	q := application.PointHistoryQuery{
		Limit:  parseIntDefault(r.URL.Query().Get("limit"), 20),
		Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
	}
	entries, err := h.service.ListPointHistory(r.Context(), actor.SubjectID, q)
	if err != nil {
		writeMappedError(r.Context(), w, "point_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) transferPoints(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req application.PointTransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.TransferPoints(r.Context(), actor, req)
	if err != nil {
		writeMappedError(r.Context(), w, "transfer_points", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// reconcilePoints is an admin audit endpoint comparing the denormalized
// balance to the ledger sum.
func (h *Handler) reconcilePoints(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != application.RoleAdmin && actor.Role != application.RoleService {
		writeMappedError(r.Context(), w, "reconcile_points", domain.ErrUnauthorized)
		return
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed customer id")
		return
	}
	res, err := h.service.ReconcilePoints(r.Context(), customerID)
	if err != nil {
		writeMappedError(r.Context(), w, "reconcile_points", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
