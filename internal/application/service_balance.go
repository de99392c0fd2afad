package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/domain"
)

// GetBalance returns the customer's monetary balance, zero-valued when no
// financial activity has created the row yet.
func (s *Service) GetBalance(ctx context.Context, customerID uuid.UUID) (BalanceResponse, error) {
	if customerID == uuid.Nil {
		return BalanceResponse{}, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	balance, err := s.balances.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return BalanceResponse{CustomerID: customerID}, nil
		}
		return BalanceResponse{}, err
	}
	return toBalanceResponse(balance), nil
}

// Deposit credits funds reported by the funding collaborator. The webhook
// retries on its side, so the idempotency key is mandatory here.
func (s *Service) Deposit(ctx context.Context, actor Actor, req DepositRequest) (BalanceResponse, error) {
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return BalanceResponse{}, fmt.Errorf("%w: idempotency key is required", domain.ErrInvalidInput)
	}
	if req.CustomerID == uuid.Nil {
		return BalanceResponse{}, fmt.Errorf("%w: customer id is required", domain.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return BalanceResponse{}, fmt.Errorf("%w: deposit amount must be positive", domain.ErrInvalidAmount)
	}

	cached, replay, err := s.replayIdempotent(ctx, actor.IdempotencyKey, req)
	if err != nil {
		return BalanceResponse{}, err
	}
	if replay {
		var resp BalanceResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return resp, nil
		}
	}

	now := s.nowFn()
	balance, err := s.balances.Credit(ctx, req.CustomerID, req.Amount, now)
	if err != nil {
		return BalanceResponse{}, err
	}

	_ = s.outbox.Enqueue(ctx, newOutboxEvent(EventBalanceCredited, req.CustomerID.String(), map[string]any{
		"customer_id": req.CustomerID,
		"amount":      req.Amount,
		"reference":   req.Reference,
		"credited_at": now,
	}, now))

	resp := toBalanceResponse(balance)
	s.completeIdempotent(ctx, actor.IdempotencyKey, 200, resp)
	return resp, nil
}
