package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/application"
)

type registerProductRequest struct {
	ProductID uuid.UUID       `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

func (h *Handler) registerProduct(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req registerProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	product, err := h.service.RegisterProduct(r.Context(), actor, req.ProductID, req.Price)
	if err != nil {
		writeMappedError(r.Context(), w, "register_product", err)
		return
	}
	writeSuccess(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_product", err)
		return
	}
	writeSuccess(w, http.StatusOK, product)
}

func (h *Handler) createStoreTransaction(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req application.CreateStoreTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	res, err := h.service.CreateStoreTransaction(r.Context(), actor, req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_store_transaction", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listStoreTransactions(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	res, err := h.service.ListStoreTransactions(r.Context(), actor, limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_store_transactions", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"transactions": res})
}

func (h *Handler) getStoreTransaction(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	transactionID, err := uuid.Parse(chi.URLParam(r, "transaction_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed transaction id")
		return
	}
	res, err := h.service.GetStoreTransaction(r.Context(), actor, transactionID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_store_transaction", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getStoreTransactionByCode(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	res, err := h.service.GetStoreTransactionByCode(r.Context(), actor, chi.URLParam(r, "code"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_store_transaction_by_code", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) confirmStoreTransaction(w http.ResponseWriter, r *http.Request) {
	h.storeTransition(w, r, "confirm_store_transaction", h.service.ConfirmStoreTransaction)
}

func (h *Handler) completeStoreTransaction(w http.ResponseWriter, r *http.Request) {
	h.storeTransition(w, r, "complete_store_transaction", h.service.CompleteStoreTransaction)
}

func (h *Handler) cancelStoreTransaction(w http.ResponseWriter, r *http.Request) {
	h.storeTransition(w, r, "cancel_store_transaction", h.service.CancelStoreTransaction)
}

func (h *Handler) storeTransition(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	fn func(ctx context.Context, actor application.Actor, transactionID uuid.UUID) (application.StoreTransactionResponse, error),
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
