package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/peertrade/escrow-core/internal/application"
)

// Handler is the HTTP adapter entrypoint for escrow use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers HTTP routes and the middleware stack.
// Centralizing routes here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/escrow/v1", func(r chi.Router) {
		r.Use(actorMiddleware)

		r.Get("/balance", handler.getOwnBalance)
		r.Get("/balance/{customer_id}", handler.getBalance)
		r.Post("/balance/deposits", handler.deposit)

		r.Get("/points", handler.getPoints)
		r.Get("/points/history", handler.pointHistory)
		r.Post("/points/transfers", handler.transferPoints)
		r.Get("/points/{customer_id}/reconciliation", handler.reconcilePoints)

		r.Get("/fees/quote", handler.quoteFee)
		r.Get("/fees/tiers", handler.listFeeTiers)
		r.Post("/fees/tiers", handler.createFeeTier)
		r.Delete("/fees/tiers/{tier_id}", handler.deactivateFeeTier)

		r.Post("/transactions", handler.createEscrow)
		r.Get("/transactions", handler.listEscrows)
		r.Get("/transactions/code/{code}", handler.getEscrowByCode)
		r.Get("/transactions/{transaction_id}", handler.getEscrow)
		r.Post("/transactions/{transaction_id}/confirm", handler.confirmEscrow)
		r.Post("/transactions/{transaction_id}/ship", handler.markEscrowShipped)
		r.Post("/transactions/{transaction_id}/receive", handler.confirmEscrowReceipt)
		r.Post("/transactions/{transaction_id}/cancel", handler.cancelEscrow)

		r.Post("/store/products", handler.registerProduct)
		r.Get("/store/products/{product_id}", handler.getProduct)
		r.Post("/store/transactions", handler.createStoreTransaction)
		r.Get("/store/transactions", handler.listStoreTransactions)
		r.Get("/store/transactions/code/{code}", handler.getStoreTransactionByCode)
		r.Get("/store/transactions/{transaction_id}", handler.getStoreTransaction)
		r.Post("/store/transactions/{transaction_id}/confirm", handler.confirmStoreTransaction)
		r.Post("/store/transactions/{transaction_id}/complete", handler.completeStoreTransaction)
		r.Post("/store/transactions/{transaction_id}/cancel", handler.cancelStoreTransaction)

		r.Post("/disputes", handler.raiseDispute)
		r.Get("/disputes", handler.listDisputes)
		r.Get("/disputes/{dispute_id}", handler.getDispute)
		r.Post("/disputes/{dispute_id}/assign", handler.assignDispute)
		r.Post("/disputes/{dispute_id}/resolve", handler.resolveDispute)
		r.Post("/disputes/{dispute_id}/cancel", handler.cancelDispute)

		r.Post("/referrals", handler.registerReferral)
		r.Get("/referrals", handler.listReferrals)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}
