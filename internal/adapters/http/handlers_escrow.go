package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/application"
)

func (h *Handler) createEscrow(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req application.CreateEscrowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.CreateEscrow(r.Context(), actor, req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_escrow", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listEscrows(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	res, err := h.service.ListEscrows(r.Context(), actor, limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_escrows", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"transactions": res})
}

func (h *Handler) getEscrow(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	transactionID, err := uuid.Parse(chi.URLParam(r, "transaction_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed transaction id")
		return
	}
	res, err := h.service.GetEscrow(r.Context(), actor, transactionID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_escrow", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getEscrowByCode(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	res, err := h.service.GetEscrowByCode(r.Context(), actor, chi.URLParam(r, "code"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_escrow_by_code", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) confirmEscrow(w http.ResponseWriter, r *http.Request) {
	h.escrowTransition(w, r, "confirm_escrow", h.service.ConfirmEscrow)
}

func (h *Handler) markEscrowShipped(w http.ResponseWriter, r *http.Request) {
	h.escrowTransition(w, r, "mark_escrow_shipped", h.service.MarkEscrowShipped)
}

func (h *Handler) confirmEscrowReceipt(w http.ResponseWriter, r *http.Request) {
	h.escrowTransition(w, r, "confirm_escrow_receipt", h.service.ConfirmEscrowReceipt)
}

func (h *Handler) cancelEscrow(w http.ResponseWriter, r *http.Request) {
	h.escrowTransition(w, r, "cancel_escrow", h.service.CancelEscrow)
}

// escrowTransition is the shared shape of the four lifecycle endpoints: the
// caller names a transaction, the service enforces who may move it and from
// which status.
func (h *Handler) escrowTransition(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	fn func(ctx context.Context, actor application.Actor, transactionID uuid.UUID) (application.EscrowResponse, error),
) {
	actor := actorFromContext(r.Context())
	transactionID, err := uuid.Parse(chi.URLParam(r, "transaction_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed transaction id")
		return
	}
	res, err := fn(r.Context(), actor, transactionID)
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
