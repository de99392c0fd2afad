package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/application"
	"github.com/peertrade/escrow-core/internal/domain"
)

func (h *Handler) getOwnBalance(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	res, err := h.service.GetBalance(r.Context(), actor.SubjectID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_own_balance", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// getBalance exposes any customer's balance to back-office staff.
func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != application.RoleAdmin && actor.Role != application.RoleService {
		writeMappedError(r.Context(), w, "get_balance", domain.ErrUnauthorized)
		return
	}
	customerID, err := uuid.Parse(chi.URLParam(r, "customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed customer id")
		return
	}
	res, err := h.service.GetBalance(r.Context(), customerID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_balance", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// deposit is the funding collaborator's webhook. It requires the service
// role and an idempotency key; the collaborator retries until acknowledged.
func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != application.RoleService && actor.Role != application.RoleAdmin {
		writeMappedError(r.Context(), w, "deposit", domain.ErrUnauthorized)
		return
	}
	var req application.DepositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.Deposit(r.Context(), actor, req)
	if err != nil {
		writeMappedError(r.Context(), w, "deposit", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
