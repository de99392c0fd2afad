package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

// RegisterProduct records a sellable listing's price and availability. The
// catalog collaborator owns the listing content and calls this on publish.
func (s *Service) RegisterProduct(ctx context.Context, actor Actor, productID uuid.UUID, price decimal.Decimal) (domain.StoreProduct, error) {
	if actor.SubjectID == uuid.Nil {
		return domain.StoreProduct{}, domain.ErrUnauthorized
	}
	if productID == uuid.Nil {
		return domain.StoreProduct{}, fmt.Errorf("%w: product id is required", domain.ErrInvalidInput)
	}
	if !price.IsPositive() {
		return domain.StoreProduct{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidAmount)
	}
	now := s.nowFn()
	product := domain.StoreProduct{
		ProductID: productID,
		SellerID:  actor.SubjectID,
		Price:     price,
		Status:    domain.ProductStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.stores.CreateProduct(ctx, product); err != nil {
		return domain.StoreProduct{}, err
	}
	return product, nil
}

// GetProduct returns a listing's price and availability.
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (domain.StoreProduct, error) {
	return s.stores.GetProduct(ctx, productID)
}

// CreateStoreTransaction buys a listed product. The insert, the buyer's
// amount lock and the product reservation commit together; a product already
// reserved or sold fails with ErrProductUnavailable.
func (s *Service) CreateStoreTransaction(ctx context.Context, actor Actor, req CreateStoreTransactionRequest) (StoreTransactionResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return StoreTransactionResponse{}, domain.ErrUnauthorized
	}
	if req.ProductID == uuid.Nil {
		return StoreTransactionResponse{}, fmt.Errorf("%w: product id is required", domain.ErrInvalidInput)
	}

	cached, replay, err := s.replayIdempotent(ctx, actor.IdempotencyKey, req)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if replay {
		var resp StoreTransactionResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return resp, nil
		}
	}

	product, err := s.stores.GetProduct(ctx, req.ProductID)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if product.SellerID == actor.SubjectID {
		return StoreTransactionResponse{}, fmt.Errorf("%w: cannot buy own product", domain.ErrInvalidInput)
	}
	if product.Status != domain.ProductStatusAvailable {
		return StoreTransactionResponse{}, domain.ErrProductUnavailable
	}

	// Store purchases have no buyer-chosen duration; the schedule's base
	// rate applies.
	quote, err := s.quote(ctx, product.Price, 0)
	if err != nil {
		return StoreTransactionResponse{}, err
	}

	now := s.nowFn()
	tx := domain.StoreTransaction{
		TransactionID: uuid.New(),
		BuyerID:       actor.SubjectID,
		SellerID:      product.SellerID,
		ProductID:     product.ProductID,
		Amount:        product.Price,
		Fee:           quote.Fee,
		Status:        domain.StoreStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.retryConflict(ctx, func() error {
		tx.Code = domain.NewTransactionCode()
		event := newOutboxEvent(EventStoreCreated, tx.BuyerID.String(), map[string]any{
			"transaction_id": tx.TransactionID,
			"code":           tx.Code,
			"buyer_id":       tx.BuyerID,
			"seller_id":      tx.SellerID,
			"product_id":     tx.ProductID,
			"amount":         tx.Amount,
			"fee":            tx.Fee,
		}, now)
		return s.stores.CreateWithLockTx(ctx, tx, event)
	})
	if err != nil {
		return StoreTransactionResponse{}, err
	}

	resp := toStoreTransactionResponse(tx)
	s.completeIdempotent(ctx, actor.IdempotencyKey, 201, resp)
	return resp, nil
}

// ConfirmStoreTransaction is the seller committing to fulfil. It moves the
// transaction to processing and arms the auto-complete deadline.
func (s *Service) ConfirmStoreTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID) (StoreTransactionResponse, error) {
	tx, err := s.stores.GetByID(ctx, transactionID)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if actor.SubjectID != tx.SellerID {
		return StoreTransactionResponse{}, fmt.Errorf("%w: only the seller may confirm", domain.ErrUnauthorized)
	}
	if !tx.CanConfirm() {
		return StoreTransactionResponse{}, fmt.Errorf("%w: cannot confirm from %s", domain.ErrInvalidStateTransition, tx.Status)
	}

	now := s.nowFn()
	autoCompleteAt := now.Add(time.Duration(s.cfg.StoreAutoCompleteHours) * time.Hour)
	event := newOutboxEvent(EventStoreConfirmed, tx.BuyerID.String(), map[string]any{
		"transaction_id":   tx.TransactionID,
		"code":             tx.Code,
		"confirmed_at":     now,
		"auto_complete_at": autoCompleteAt,
	}, now)
	if err := s.stores.MarkConfirmed(ctx, transactionID, now, autoCompleteAt, event); err != nil {
		return StoreTransactionResponse{}, err
	}
	return s.storeByID(ctx, transactionID)
}

// CompleteStoreTransaction is the buyer settling ahead of the deadline.
func (s *Service) CompleteStoreTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID) (StoreTransactionResponse, error) {
	tx, err := s.stores.GetByID(ctx, transactionID)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if actor.SubjectID != tx.BuyerID {
		return StoreTransactionResponse{}, fmt.Errorf("%w: only the buyer may complete", domain.ErrUnauthorized)
	}
	if !tx.CanComplete() {
		return StoreTransactionResponse{}, fmt.Errorf("%w: cannot complete from %s", domain.ErrInvalidStateTransition, tx.Status)
	}
	if err := s.settleStore(ctx, tx, true); err != nil {
		return StoreTransactionResponse{}, err
	}
	return s.storeByID(ctx, transactionID)
}

// settleStore performs the single settlement of a processing transaction,
// shared by the buyer path and the auto-complete sweep. The seller receives
// amount minus fee; the product becomes sold.
func (s *Service) settleStore(ctx context.Context, tx domain.StoreTransaction, earlyComplete bool) error {
	now := s.nowFn()
	quote, err := s.quote(ctx, tx.Amount, 0)
	if err != nil {
		return err
	}
	reward := s.cappedReward(ctx, tx.BuyerID, quote.PointsReward)
	referral := s.referralAccrual(ctx, tx.BuyerID, reward)

	params := ports.SettleParams{
		TransactionID: tx.TransactionID,
		FromStatus:    string(domain.StoreStatusProcessing),
		BuyerID:       tx.BuyerID,
		SellerID:      tx.SellerID,
		UnlockAmount:  tx.Amount,
		BuyerCharge:   tx.Amount,
		SellerCredit:  tx.SellerProceeds(),
		PointsReward:  reward,
		PointsEntry:   domain.PointEntryTransactionReward,
		Description:   fmt.Sprintf("store purchase %s completed", tx.Code),
		Referral:      referral,
		BuyerReceived: earlyComplete,
		At:            now,
	}
	events := []ports.OutboxEvent{
		newOutboxEvent(EventStoreCompleted, tx.BuyerID.String(), map[string]any{
			"transaction_id": tx.TransactionID,
			"code":           tx.Code,
			"buyer_id":       tx.BuyerID,
			"seller_id":      tx.SellerID,
			"product_id":     tx.ProductID,
			"amount":         tx.Amount,
			"fee":            tx.Fee,
			"points_reward":  reward,
			"early_complete": earlyComplete,
			"completed_at":   now,
		}, now),
	}
	return s.stores.SettleTx(ctx, params, tx.ProductID, earlyComplete, events)
}

// CancelStoreTransaction releases the buyer's lock in full and returns the
// product to available. Either party may cancel before settlement.
func (s *Service) CancelStoreTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID) (StoreTransactionResponse, error) {
	tx, err := s.stores.GetByID(ctx, transactionID)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if actor.SubjectID != tx.BuyerID && actor.SubjectID != tx.SellerID {
		return StoreTransactionResponse{}, fmt.Errorf("%w: only a participant may cancel", domain.ErrUnauthorized)
	}
	if !tx.CanCancel() {
		return StoreTransactionResponse{}, fmt.Errorf("%w: cannot cancel from %s", domain.ErrInvalidStateTransition, tx.Status)
	}

	now := s.nowFn()
	event := newOutboxEvent(EventStoreCancelled, tx.BuyerID.String(), map[string]any{
		"transaction_id": tx.TransactionID,
		"code":           tx.Code,
		"product_id":     tx.ProductID,
		"cancelled_by":   actor.SubjectID,
		"cancelled_at":   now,
	}, now)
	if err := s.stores.CancelTx(ctx, transactionID, now, event); err != nil {
		return StoreTransactionResponse{}, err
	}
	return s.storeByID(ctx, transactionID)
}

// GetStoreTransaction returns one transaction, visible to its participants
// and admins.
func (s *Service) GetStoreTransaction(ctx context.Context, actor Actor, transactionID uuid.UUID) (StoreTransactionResponse, error) {
	tx, err := s.stores.GetByID(ctx, transactionID)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if err := requireParticipant(actor, tx.BuyerID, tx.SellerID); err != nil {
		return StoreTransactionResponse{}, err
	}
	return toStoreTransactionResponse(tx), nil
}

// GetStoreTransactionByCode resolves a transaction through its code.
func (s *Service) GetStoreTransactionByCode(ctx context.Context, actor Actor, code string) (StoreTransactionResponse, error) {
	if len(code) != domain.TransactionCodeLength {
		return StoreTransactionResponse{}, fmt.Errorf("%w: malformed transaction code", domain.ErrInvalidInput)
	}
	tx, err := s.stores.GetByCode(ctx, code)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	if err := requireParticipant(actor, tx.BuyerID, tx.SellerID); err != nil {
		return StoreTransactionResponse{}, err
	}
	return toStoreTransactionResponse(tx), nil
}

// ListStoreTransactions pages the caller's own transactions, newest first.
func (s *Service) ListStoreTransactions(ctx context.Context, actor Actor, limit, offset int) ([]StoreTransactionResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	limit, offset = normalizeLimit(limit, offset)
	txs, err := s.stores.ListByCustomer(ctx, actor.SubjectID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]StoreTransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toStoreTransactionResponse(tx))
	}
	return out, nil
}

func (s *Service) storeByID(ctx context.Context, transactionID uuid.UUID) (StoreTransactionResponse, error) {
	tx, err := s.stores.GetByID(ctx, transactionID)
	if err != nil {
		return StoreTransactionResponse{}, err
	}
	return toStoreTransactionResponse(tx), nil
}
