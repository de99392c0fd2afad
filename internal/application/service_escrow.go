package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

// CreateEscrow opens a peer-to-peer transaction and locks the buyer's
// amount plus fee in the same database transaction as the insert. The fee
// and points reward are quoted against the active schedule at creation.
func (s *Service) CreateEscrow(ctx context.Context, actor Actor, req CreateEscrowRequest) (EscrowResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return EscrowResponse{}, domain.ErrUnauthorized
	}
	if req.SellerID == uuid.Nil {
		return EscrowResponse{}, fmt.Errorf("%w: seller id is required", domain.ErrInvalidInput)
	}
	if req.SellerID == actor.SubjectID {
		return EscrowResponse{}, fmt.Errorf("%w: buyer and seller must differ", domain.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return EscrowResponse{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if req.DurationHours <= 0 {
		return EscrowResponse{}, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidInput)
	}
	if s.cfg.MaxDurationHours > 0 && req.DurationHours > s.cfg.MaxDurationHours {
		return EscrowResponse{}, fmt.Errorf("%w: duration exceeds %d hours", domain.ErrInvalidInput, s.cfg.MaxDurationHours)
	}

	cached, replay, err := s.replayIdempotent(ctx, actor.IdempotencyKey, req)
	if err != nil {
		return EscrowResponse{}, err
	}
	if replay {
		var resp EscrowResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return resp, nil
		}
	}

	quote, err := s.quote(ctx, req.Amount, req.DurationHours)
	if err != nil {
		return EscrowResponse{}, err
	}

	now := s.nowFn()
	tx := domain.EscrowTransaction{
		TransactionID: uuid.New(),
		BuyerID:       actor.SubjectID,
		SellerID:      req.SellerID,
		Amount:        req.Amount,
		Fee:           quote.Fee,
		DurationHours: req.DurationHours,
		Status:        domain.EscrowStatusPending,
		ExpiresAt:     now.Add(time.Duration(req.DurationHours) * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Code collisions surface as ErrConflict from the unique index; a fresh
	// code per attempt makes the retry meaningful.
	err = s.retryConflict(ctx, func() error {
		tx.Code = domain.NewTransactionCode()
		event := newOutboxEvent(EventEscrowCreated, tx.BuyerID.String(), map[string]any{
			"transaction_id": tx.TransactionID,
			"code":           tx.Code,
			"buyer_id":       tx.BuyerID,
			"seller_id":      tx.SellerID,
			"amount":         tx.Amount,
			"fee":            tx.Fee,
			"expires_at":     tx.ExpiresAt,
		}, now)
		return s.escrows.CreateWithLockTx(ctx, tx, event)
	})
	if err != nil {
		return EscrowResponse{}, err
	}

	resp := toEscrowResponse(tx)
	s.completeIdempotent(ctx, actor.IdempotencyKey, 201, resp)
	return resp, nil
}

// ConfirmEscrow records the seller's acceptance of a pending transaction.
func (s *Service) ConfirmEscrow(ctx context.Context, actor Actor, transactionID uuid.UUID) (EscrowResponse, error) {
	tx, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return EscrowResponse{}, err
	}
	if actor.SubjectID != tx.SellerID {
		return EscrowResponse{}, fmt.Errorf("%w: only the seller may confirm", domain.ErrUnauthorized)
	}
	if !tx.CanConfirm() {
		return EscrowResponse{}, fmt.Errorf("%w: cannot confirm from %s", domain.ErrInvalidStateTransition, tx.Status)
	}

	now := s.nowFn()
	event := newOutboxEvent(EventEscrowConfirmed, tx.BuyerID.String(), map[string]any{
		"transaction_id": tx.TransactionID,
		"code":           tx.Code,
		"confirmed_at":   now,
	}, now)
	if err := s.escrows.MarkConfirmed(ctx, transactionID, now, event); err != nil {
		return EscrowResponse{}, err
	}
	return s.escrowByID(ctx, transactionID)
}

// MarkEscrowShipped records the seller's shipment notice and arms the
// auto-complete deadline the receipt sweep settles against.
func (s *Service) MarkEscrowShipped(ctx context.Context, actor Actor, transactionID uuid.UUID) (EscrowResponse, error) {
	tx, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return EscrowResponse{}, err
	}
	if actor.SubjectID != tx.SellerID {
		return EscrowResponse{}, fmt.Errorf("%w: only the seller may mark shipped", domain.ErrUnauthorized)
	}
	if !tx.CanMarkShipped() {
		return EscrowResponse{}, fmt.Errorf("%w: cannot mark shipped from %s", domain.ErrInvalidStateTransition, tx.Status)
	}

	now := s.nowFn()
	autoCompleteAt := now.Add(time.Duration(s.cfg.EscrowAutoCompleteHours) * time.Hour)
	event := newOutboxEvent(EventEscrowShipped, tx.BuyerID.String(), map[string]any{
		"transaction_id":   tx.TransactionID,
		"code":             tx.Code,
		"shipped_at":       now,
		"auto_complete_at": autoCompleteAt,
	}, now)
	if err := s.escrows.MarkShipped(ctx, transactionID, now, autoCompleteAt, event); err != nil {
		return EscrowResponse{}, err
	}
	return s.escrowByID(ctx, transactionID)
}

// ConfirmEscrowReceipt is the buyer acknowledging delivery. It settles the
// transaction: the buyer's lock is released and charged, the seller is
// credited the amount, the platform keeps the fee, and the buyer's points
// reward plus any referral bonus commit in the same database transaction.
func (s *Service) ConfirmEscrowReceipt(ctx context.Context, actor Actor, transactionID uuid.UUID) (EscrowResponse, error) {
	tx, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return EscrowResponse{}, err
	}
	if actor.SubjectID != tx.BuyerID {
		return EscrowResponse{}, fmt.Errorf("%w: only the buyer may confirm receipt", domain.ErrUnauthorized)
	}
	if !tx.CanComplete() {
		return EscrowResponse{}, fmt.Errorf("%w: cannot complete from %s", domain.ErrInvalidStateTransition, tx.Status)
	}
	if err := s.settleEscrow(ctx, tx, true); err != nil {
		return EscrowResponse{}, err
	}
	return s.escrowByID(ctx, transactionID)
}

// settleEscrow performs the single settlement of a shipped transaction.
// Both the interactive path and the auto-complete sweep land here; the
// repository's status guard ensures at most one of them wins.
func (s *Service) settleEscrow(ctx context.Context, tx domain.EscrowTransaction, buyerReceived bool) error {
	now := s.nowFn()
	quote, err := s.quote(ctx, tx.Amount, tx.DurationHours)
	if err != nil {
		return err
	}
	reward := s.cappedReward(ctx, tx.BuyerID, quote.PointsReward)
	referral := s.referralAccrual(ctx, tx.BuyerID, reward)

	params := ports.SettleParams{
		TransactionID: tx.TransactionID,
		FromStatus:    string(domain.EscrowStatusSellerSent),
		BuyerID:       tx.BuyerID,
		SellerID:      tx.SellerID,
		UnlockAmount:  tx.LockedAmount(),
		BuyerCharge:   tx.LockedAmount(),
		SellerCredit:  tx.Amount,
		PointsReward:  reward,
		PointsEntry:   domain.PointEntryTransactionReward,
		Description:   fmt.Sprintf("escrow %s completed", tx.Code),
		Referral:      referral,
		BuyerReceived: buyerReceived,
		At:            now,
	}
	events := []ports.OutboxEvent{
		newOutboxEvent(EventEscrowCompleted, tx.BuyerID.String(), map[string]any{
			"transaction_id": tx.TransactionID,
			"code":           tx.Code,
			"buyer_id":       tx.BuyerID,
			"seller_id":      tx.SellerID,
			"amount":         tx.Amount,
			"fee":            tx.Fee,
			"points_reward":  reward,
			"buyer_received": buyerReceived,
			"completed_at":   now,
		}, now),
	}
	return s.escrows.SettleTx(ctx, params, events)
}

// referralAccrual looks up the buyer's referrer and computes the bonus due
// on this settlement. A missing or suspended referral yields nil.
func (s *Service) referralAccrual(ctx context.Context, buyerID uuid.UUID, reward int64) *ports.ReferralAccrual {
	referral, err := s.referrals.GetByReferred(ctx, buyerID)
	if err != nil {
		return nil
	}
	if referral.Status != domain.ReferralStatusActive {
		return nil
	}
	bonus := domain.ReferralBonus(reward, s.cfg.ReferralRewardPercent)
	bonus = s.cappedReward(ctx, referral.ReferrerID, bonus)
	return &ports.ReferralAccrual{
		ReferralID: referral.ReferralID,
		ReferrerID: referral.ReferrerID,
		ReferredID: referral.ReferredID,
		Points:     bonus,
	}
}

// CancelEscrow releases the buyer's full lock, fee included. Either party
// may cancel before shipment.
func (s *Service) CancelEscrow(ctx context.Context, actor Actor, transactionID uuid.UUID) (EscrowResponse, error) {
	tx, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return EscrowResponse{}, err
	}
	if actor.SubjectID != tx.BuyerID && actor.SubjectID != tx.SellerID {
		return EscrowResponse{}, fmt.Errorf("%w: only a participant may cancel", domain.ErrUnauthorized)
	}
	if !tx.CanCancel() {
		return EscrowResponse{}, fmt.Errorf("%w: cannot cancel from %s", domain.ErrInvalidStateTransition, tx.Status)
	}

	now := s.nowFn()
	event := newOutboxEvent(EventEscrowCancelled, tx.BuyerID.String(), map[string]any{
		"transaction_id": tx.TransactionID,
		"code":           tx.Code,
		"cancelled_by":   actor.SubjectID,
		"cancelled_at":   now,
	}, now)
	if err := s.escrows.CancelTx(ctx, transactionID, now, event); err != nil {
		return EscrowResponse{}, err
	}
	return s.escrowByID(ctx, transactionID)
}

// GetEscrow returns one transaction, visible to its participants and admins.
func (s *Service) GetEscrow(ctx context.Context, actor Actor, transactionID uuid.UUID) (EscrowResponse, error) {
	tx, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return EscrowResponse{}, err
	}
	if err := requireParticipant(actor, tx.BuyerID, tx.SellerID); err != nil {
		return EscrowResponse{}, err
	}
	return toEscrowResponse(tx), nil
}

// GetEscrowByCode resolves a transaction through its customer-facing code.
func (s *Service) GetEscrowByCode(ctx context.Context, actor Actor, code string) (EscrowResponse, error) {
	if len(code) != domain.TransactionCodeLength {
		return EscrowResponse{}, fmt.Errorf("%w: malformed transaction code", domain.ErrInvalidInput)
	}
	tx, err := s.escrows.GetByCode(ctx, code)
	if err != nil {
		return EscrowResponse{}, err
	}
	if err := requireParticipant(actor, tx.BuyerID, tx.SellerID); err != nil {
		return EscrowResponse{}, err
	}
	return toEscrowResponse(tx), nil
}

// ListEscrows pages the caller's own transactions, newest first.
func (s *Service) ListEscrows(ctx context.Context, actor Actor, limit, offset int) ([]EscrowResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	limit, offset = normalizeLimit(limit, offset)
	txs, err := s.escrows.ListByCustomer(ctx, actor.SubjectID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]EscrowResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toEscrowResponse(tx))
	}
	return out, nil
}

func (s *Service) escrowByID(ctx context.Context, transactionID uuid.UUID) (EscrowResponse, error) {
	tx, err := s.escrows.GetByID(ctx, transactionID)
	if err != nil {
		return EscrowResponse{}, err
	}
	return toEscrowResponse(tx), nil
}

// requireParticipant admits the two parties of a transaction plus admin and
// service callers.
func requireParticipant(actor Actor, parties ...uuid.UUID) error {
	if actor.Role == RoleAdmin || actor.Role == RoleService {
		return nil
	}
	for _, p := range parties {
		if actor.SubjectID != uuid.Nil && actor.SubjectID == p {
			return nil
		}
	}
	return fmt.Errorf("%w: not a transaction participant", domain.ErrUnauthorized)
}
