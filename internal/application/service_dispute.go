package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

// RaiseDispute freezes a transaction for human adjudication. The dispute
// insert and the transaction's flip to disputed commit together; a second
// active dispute on the same transaction fails with ErrDisputeOpen.
func (s *Service) RaiseDispute(ctx context.Context, actor Actor, req RaiseDisputeRequest) (DisputeResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return DisputeResponse{}, domain.ErrUnauthorized
	}
	if req.Reason == "" {
		return DisputeResponse{}, fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
	}

	now := s.nowFn()
	d := domain.Dispute{
		DisputeID: uuid.New(),
		CreatedBy: actor.SubjectID,
		Reason:    req.Reason,
		Evidence:  req.Evidence,
		Status:    domain.DisputeStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch req.TransactionType {
	case domain.TransactionTypeEscrow:
		tx, err := s.escrows.GetByCode(ctx, req.TransactionCode)
		if err != nil {
			return DisputeResponse{}, err
		}
		if actor.SubjectID != tx.BuyerID && actor.SubjectID != tx.SellerID {
			return DisputeResponse{}, fmt.Errorf("%w: only a participant may dispute", domain.ErrUnauthorized)
		}
		if !tx.CanDispute() {
			return DisputeResponse{}, fmt.Errorf("%w: cannot dispute from %s", domain.ErrInvalidStateTransition, tx.Status)
		}
		d.TransactionType = domain.TransactionTypeEscrow
		d.TransactionID = tx.TransactionID
		d.PriorStatus = string(tx.Status)
	case domain.TransactionTypeStore:
		tx, err := s.stores.GetByCode(ctx, req.TransactionCode)
		if err != nil {
			return DisputeResponse{}, err
		}
		if actor.SubjectID != tx.BuyerID && actor.SubjectID != tx.SellerID {
			return DisputeResponse{}, fmt.Errorf("%w: only a participant may dispute", domain.ErrUnauthorized)
		}
		if !tx.CanDispute() {
			return DisputeResponse{}, fmt.Errorf("%w: cannot dispute from %s", domain.ErrInvalidStateTransition, tx.Status)
		}
		d.TransactionType = domain.TransactionTypeStore
		d.TransactionID = tx.TransactionID
		d.PriorStatus = string(tx.Status)
	default:
		return DisputeResponse{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, req.TransactionType)
	}

	// Pre-check for a friendlier error; OpenTx still guards atomically against
	// a concurrent open.
	if _, err := s.disputes.GetActiveByTransaction(ctx, d.TransactionType, d.TransactionID); err == nil {
		return DisputeResponse{}, domain.ErrDisputeOpen
	} else if !errors.Is(err, domain.ErrNotFound) {
		return DisputeResponse{}, err
	}

	event := newOutboxEvent(EventDisputeOpened, d.TransactionID.String(), map[string]any{
		"dispute_id":       d.DisputeID,
		"transaction_type": d.TransactionType,
		"transaction_id":   d.TransactionID,
		"created_by":       d.CreatedBy,
		"reason":           d.Reason,
		"opened_at":        now,
	}, now)
	if err := s.disputes.OpenTx(ctx, d, event); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return DisputeResponse{}, domain.ErrDisputeOpen
		}
		return DisputeResponse{}, err
	}
	return toDisputeResponse(d), nil
}

// AssignDispute takes a pending dispute into processing under the calling
// adjudicator. Admin surface only.
func (s *Service) AssignDispute(ctx context.Context, actor Actor, disputeID uuid.UUID) (DisputeResponse, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleService {
		return DisputeResponse{}, fmt.Errorf("%w: adjudicator role required", domain.ErrUnauthorized)
	}
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, err
	}
	if !d.CanAssign() {
		return DisputeResponse{}, fmt.Errorf("%w: cannot assign from %s", domain.ErrInvalidStateTransition, d.Status)
	}

	now := s.nowFn()
	if err := s.disputes.Assign(ctx, disputeID, actor.SubjectID, now); err != nil {
		return DisputeResponse{}, err
	}
	_ = s.outbox.Enqueue(ctx, newOutboxEvent(EventDisputeAssigned, d.TransactionID.String(), map[string]any{
		"dispute_id":  d.DisputeID,
		"assigned_to": actor.SubjectID,
		"assigned_at": now,
	}, now))
	return s.disputeByID(ctx, disputeID)
}

// ResolveDispute commits the adjudicator's outcome and the resulting fund
// movement atomically. The transaction reaches its terminal state, monies
// move once, and the dispute closes, all in one database transaction.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, disputeID uuid.UUID, req ResolveDisputeRequest) (DisputeResponse, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleService {
		return DisputeResponse{}, fmt.Errorf("%w: adjudicator role required", domain.ErrUnauthorized)
	}
	if !domain.ValidDisputeOutcome(req.Outcome) {
		return DisputeResponse{}, fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidInput, req.Outcome)
	}
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, err
	}
	if !d.CanResolve() {
		return DisputeResponse{}, fmt.Errorf("%w: cannot resolve from %s", domain.ErrInvalidStateTransition, d.Status)
	}

	params, err := s.resolutionParams(ctx, d, req)
	if err != nil {
		return DisputeResponse{}, err
	}

	now := params.At
	events := []ports.OutboxEvent{
		newOutboxEvent(EventDisputeResolved, d.TransactionID.String(), map[string]any{
			"dispute_id":       d.DisputeID,
			"transaction_type": d.TransactionType,
			"transaction_id":   d.TransactionID,
			"outcome":          req.Outcome,
			"refund_amount":    req.RefundAmount,
			"resolved_by":      actor.SubjectID,
			"resolved_at":      now,
		}, now),
	}
	if err := s.disputes.ResolveTx(ctx, params, events); err != nil {
		return DisputeResponse{}, err
	}
	return s.disputeByID(ctx, disputeID)
}

// resolutionParams maps an outcome onto the fund movement for the disputed
// transaction. The buyer's lock is always released in full; what the buyer
// is then charged and the seller credited depends on the outcome:
//
//	refund_buyer    nothing charged, fee returned, transaction cancelled
//	pay_seller      normal settlement with points reward
//	partial_refund  buyer keeps the refund, platform keeps the fee
func (s *Service) resolutionParams(ctx context.Context, d domain.Dispute, req ResolveDisputeRequest) (ports.DisputeResolveParams, error) {
	now := s.nowFn()
	params := ports.DisputeResolveParams{
		DisputeID:       d.DisputeID,
		Outcome:         req.Outcome,
		Notes:           req.Notes,
		RefundAmount:    req.RefundAmount,
		TransactionType: d.TransactionType,
		TransactionID:   d.TransactionID,
		At:              now,
	}

	switch d.TransactionType {
	case domain.TransactionTypeEscrow:
		tx, err := s.escrows.GetByID(ctx, d.TransactionID)
		if err != nil {
			return ports.DisputeResolveParams{}, err
		}
		if tx.Status != domain.EscrowStatusDisputed {
			return ports.DisputeResolveParams{}, fmt.Errorf("%w: transaction left disputed state", domain.ErrInvalidStateTransition)
		}
		params.BuyerID = tx.BuyerID
		params.SellerID = tx.SellerID
		params.UnlockAmount = tx.LockedAmount()

		switch req.Outcome {
		case domain.DisputeOutcomeRefundBuyer:
			params.FinalStatus = string(domain.EscrowStatusCancelled)
		case domain.DisputeOutcomePaySeller:
			params.FinalStatus = string(domain.EscrowStatusCompleted)
			params.BuyerCharge = tx.LockedAmount()
			params.SellerCredit = tx.Amount
			quote, err := s.quote(ctx, tx.Amount, tx.DurationHours)
			if err != nil {
				return ports.DisputeResolveParams{}, err
			}
			params.PointsReward = s.cappedReward(ctx, tx.BuyerID, quote.PointsReward)
			params.Referral = s.referralAccrual(ctx, tx.BuyerID, params.PointsReward)
		case domain.DisputeOutcomePartialRefund:
			refund, err := validRefund(req.RefundAmount, tx.Amount)
			if err != nil {
				return ports.DisputeResolveParams{}, err
			}
			params.FinalStatus = string(domain.EscrowStatusCompleted)
			params.BuyerCharge = tx.LockedAmount().Sub(refund)
			params.SellerCredit = tx.Amount.Sub(refund)
		}
	case domain.TransactionTypeStore:
		tx, err := s.stores.GetByID(ctx, d.TransactionID)
		if err != nil {
			return ports.DisputeResolveParams{}, err
		}
		if tx.Status != domain.StoreStatusDisputed {
			return ports.DisputeResolveParams{}, fmt.Errorf("%w: transaction left disputed state", domain.ErrInvalidStateTransition)
		}
		params.BuyerID = tx.BuyerID
		params.SellerID = tx.SellerID
		params.UnlockAmount = tx.Amount
		productID := tx.ProductID
		params.ProductID = &productID

		switch req.Outcome {
		case domain.DisputeOutcomeRefundBuyer:
			params.FinalStatus = string(domain.StoreStatusCancelled)
		case domain.DisputeOutcomePaySeller:
			params.FinalStatus = string(domain.StoreStatusCompleted)
			params.BuyerCharge = tx.Amount
			params.SellerCredit = tx.SellerProceeds()
			quote, err := s.quote(ctx, tx.Amount, 0)
			if err != nil {
				return ports.DisputeResolveParams{}, err
			}
			params.PointsReward = s.cappedReward(ctx, tx.BuyerID, quote.PointsReward)
			params.Referral = s.referralAccrual(ctx, tx.BuyerID, params.PointsReward)
		case domain.DisputeOutcomePartialRefund:
			refund, err := validRefund(req.RefundAmount, tx.SellerProceeds())
			if err != nil {
				return ports.DisputeResolveParams{}, err
			}
			params.FinalStatus = string(domain.StoreStatusCompleted)
			params.BuyerCharge = tx.Amount.Sub(refund)
			params.SellerCredit = tx.SellerProceeds().Sub(refund)
		}
	default:
		return ports.DisputeResolveParams{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, d.TransactionType)
	}
	return params, nil
}

func validRefund(refund *decimal.Decimal, max decimal.Decimal) (decimal.Decimal, error) {
	if refund == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: refund amount is required for a partial refund", domain.ErrInvalidInput)
	}
	if !refund.IsPositive() || refund.GreaterThan(max) {
		return decimal.Decimal{}, fmt.Errorf("%w: refund must be within (0, %s]", domain.ErrInvalidAmount, max)
	}
	return *refund, nil
}

// CancelDispute withdraws a pending dispute and restores the transaction to
// the state the dispute interrupted. Only the creator may cancel, and only
// before an adjudicator picks it up.
func (s *Service) CancelDispute(ctx context.Context, actor Actor, disputeID uuid.UUID) (DisputeResponse, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, err
	}
	if actor.SubjectID != d.CreatedBy {
		return DisputeResponse{}, fmt.Errorf("%w: only the dispute creator may cancel", domain.ErrUnauthorized)
	}
	if !d.CanCancel() {
		return DisputeResponse{}, fmt.Errorf("%w: cannot cancel from %s", domain.ErrInvalidStateTransition, d.Status)
	}

	now := s.nowFn()
	event := newOutboxEvent(EventDisputeCancelled, d.TransactionID.String(), map[string]any{
		"dispute_id":     d.DisputeID,
		"transaction_id": d.TransactionID,
		"cancelled_at":   now,
	}, now)
	if err := s.disputes.CancelTx(ctx, disputeID, now, event); err != nil {
		return DisputeResponse{}, err
	}
	return s.disputeByID(ctx, disputeID)
}

// GetDispute returns one dispute, visible to its creator and admins.
func (s *Service) GetDispute(ctx context.Context, actor Actor, disputeID uuid.UUID) (DisputeResponse, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, err
	}
	if err := requireParticipant(actor, d.CreatedBy); err != nil {
		return DisputeResponse{}, err
	}
	return toDisputeResponse(d), nil
}

// ListDisputes pages disputes in a given state for the admin queue.
func (s *Service) ListDisputes(ctx context.Context, actor Actor, status string, limit, offset int) ([]DisputeResponse, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleService {
		return nil, fmt.Errorf("%w: adjudicator role required", domain.ErrUnauthorized)
	}
	parsed, err := domain.ParseDisputeStatus(status)
	if err != nil {
		return nil, err
	}
	limit, offset = normalizeLimit(limit, offset)
	disputes, err := s.disputes.ListByStatus(ctx, parsed, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]DisputeResponse, 0, len(disputes))
	for _, d := range disputes {
		out = append(out, toDisputeResponse(d))
	}
	return out, nil
}

func (s *Service) disputeByID(ctx context.Context, disputeID uuid.UUID) (DisputeResponse, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return DisputeResponse{}, err
	}
	return toDisputeResponse(d), nil
}
