package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/application"
)

func (h *Handler) raiseDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req application.RaiseDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.RaiseDispute(r.Context(), actor, req)
	if err != nil {
		writeMappedError(r.Context(), w, "raise_dispute", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listDisputes(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	res, err := h.service.ListDisputes(r.Context(), actor, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_disputes", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"disputes": res})
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	disputeID, err := uuid.Parse(chi.URLParam(r, "dispute_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed dispute id")
		return
	}
	res, err := h.service.GetDispute(r.Context(), actor, disputeID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) assignDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	disputeID, err := uuid.Parse(chi.URLParam(r, "dispute_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed dispute id")
		return
	}
	res, err := h.service.AssignDispute(r.Context(), actor, disputeID)
	if err != nil {
		writeMappedError(r.Context(), w, "assign_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	disputeID, err := uuid.Parse(chi.URLParam(r, "dispute_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed dispute id")
		return
	}
	var req application.ResolveDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.ResolveDispute(r.Context(), actor, disputeID, req)
	if err != nil {
		writeMappedError(r.Context(), w, "resolve_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) cancelDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	disputeID, err := uuid.Parse(chi.URLParam(r, "dispute_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed dispute id")
		return
	}
	res, err := h.service.CancelDispute(r.Context(), actor, disputeID)
	if err != nil {
		writeMappedError(r.Context(), w, "cancel_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
