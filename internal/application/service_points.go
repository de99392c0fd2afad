package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

// GetPoints returns the customer's point balance, zero-valued when the
// customer has never earned.
func (s *Service) GetPoints(ctx context.Context, customerID uuid.UUID) (PointsResponse, error) {
	if customerID == uuid.Nil {
		return PointsResponse{}, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	balance, err := s.points.GetBalance(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return PointsResponse{CustomerID: customerID}, nil
		}
		return PointsResponse{}, err
	}
	return toPointsResponse(balance), nil
}

// ListPointHistory pages through the customer's immutable ledger entries,
// newest first.
func (s *Service) ListPointHistory(ctx context.Context, customerID uuid.UUID, q PointHistoryQuery) ([]domain.PointLedgerEntry, error) {
	if customerID == uuid.Nil {
		return nil, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	limit, offset := normalizeLimit(q.Limit, q.Offset)
	return s.points.ListEntries(ctx, customerID, limit, offset)
}

// TransferPoints moves points between customers atomically: the sender's
// spend entry and the receiver's earn entry commit together or not at all.
func (s *Service) TransferPoints(ctx context.Context, actor Actor, req PointTransferRequest) (PointsResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return PointsResponse{}, domain.ErrUnauthorized
	}
	if req.Amount <= 0 {
		return PointsResponse{}, fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidAmount)
	}
	if req.ToCustomerID == uuid.Nil || req.ToCustomerID == actor.SubjectID {
		return PointsResponse{}, fmt.Errorf("%w: invalid transfer recipient", domain.ErrInvalidInput)
	}
	if err := s.checkPointCeiling(ctx, req.ToCustomerID, req.Amount); err != nil {
		return PointsResponse{}, err
	}

	now := s.nowFn()
	from := actor.SubjectID
	to := req.ToCustomerID
	err := s.retryConflict(ctx, func() error {
		return s.points.Transfer(ctx,
			ports.PointMutation{
				CustomerID:        from,
				EntryType:         domain.PointEntryTransferOut,
				Amount:            req.Amount,
				Description:       req.Description,
				RelatedCustomerID: &to,
				At:                now,
			},
			ports.PointMutation{
				CustomerID:        to,
				EntryType:         domain.PointEntryTransferIn,
				Amount:            req.Amount,
				Description:       req.Description,
				RelatedCustomerID: &from,
				At:                now,
			})
	})
	if err != nil {
		return PointsResponse{}, err
	}

	_ = s.outbox.Enqueue(ctx, newOutboxEvent(EventPointsTransferred, from.String(), map[string]any{
		"from_customer_id": from,
		"to_customer_id":   to,
		"amount":           req.Amount,
		"transferred_at":   now,
	}, now))

	balance, err := s.points.GetBalance(ctx, from)
	if err != nil {
		return PointsResponse{}, err
	}
	return toPointsResponse(balance), nil
}

// ReconcilePoints recomputes the ledger sum and compares it against the
// denormalized balance. Exposed on the internal surface for auditing.
func (s *Service) ReconcilePoints(ctx context.Context, customerID uuid.UUID) (PointReconciliation, error) {
	if customerID == uuid.Nil {
		return PointReconciliation{}, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	balance, err := s.points.GetBalance(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return PointReconciliation{CustomerID: customerID, Consistent: true}, nil
		}
		return PointReconciliation{}, err
	}
	sum, err := s.points.SumEntries(ctx, customerID)
	if err != nil {
		return PointReconciliation{}, err
	}
	return PointReconciliation{
		CustomerID: customerID,
		Available:  balance.Available,
		LedgerSum:  sum,
		Consistent: balance.Available == sum,
	}, nil
}

// checkPointCeiling enforces the configured global cap before any earn.
// The ledger itself does not cap; this is the caller-side guard.
func (s *Service) checkPointCeiling(ctx context.Context, customerID uuid.UUID, increment int64) error {
	if s.cfg.MaxTotalPoints <= 0 {
		return nil
	}
	balance, err := s.points.GetBalance(ctx, customerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if balance.Available+increment > s.cfg.MaxTotalPoints {
		return domain.ErrPointCeilingReached
	}
	return nil
}

// cappedReward trims a settlement reward so it never breaches the ceiling.
// Settlement must not fail over points, so excess is forfeited instead.
func (s *Service) cappedReward(ctx context.Context, customerID uuid.UUID, reward int64) int64 {
	if reward <= 0 || s.cfg.MaxTotalPoints <= 0 {
		return reward
	}
	balance, err := s.points.GetBalance(ctx, customerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return reward
	}
	room := s.cfg.MaxTotalPoints - balance.Available
	if room <= 0 {
		return 0
	}
	if reward > room {
		return room
	}
	return reward
}
