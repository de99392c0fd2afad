package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/domain"
)

// QuoteFee prices a prospective transaction against the active schedule.
func (s *Service) QuoteFee(ctx context.Context, amount decimal.Decimal, durationHours int) (FeeQuoteResponse, error) {
	if !amount.IsPositive() {
		return FeeQuoteResponse{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if durationHours < 0 {
		return FeeQuoteResponse{}, fmt.Errorf("%w: duration must not be negative", domain.ErrInvalidInput)
	}
	tiers, err := s.feeTiers.ListActive(ctx)
	if err != nil {
		return FeeQuoteResponse{}, err
	}
	quote := domain.QuoteFee(tiers, amount, durationHours)
	return FeeQuoteResponse{
		Amount:        amount,
		DurationHours: durationHours,
		Fee:           quote.Fee,
		PointsReward:  quote.PointsReward,
	}, nil
}

func (s *Service) ListFeeTiers(ctx context.Context) ([]domain.FeeTier, error) {
	return s.feeTiers.List(ctx)
}

// CreateFeeTier adds a schedule row after checking it does not overlap an
// active tier. Overlap checks run on the current snapshot; the admin surface
// is low-contention so no row lock is taken here.
func (s *Service) CreateFeeTier(ctx context.Context, req CreateFeeTierRequest) (domain.FeeTier, error) {
	if req.MinAmount.IsNegative() {
		return domain.FeeTier{}, fmt.Errorf("%w: min amount must not be negative", domain.ErrInvalidAmount)
	}
	if req.MaxAmount != nil && req.MaxAmount.LessThan(req.MinAmount) {
		return domain.FeeTier{}, fmt.Errorf("%w: max amount below min amount", domain.ErrInvalidInput)
	}
	if req.FixedFee.IsNegative() || req.PercentageFee.IsNegative() || req.ExtraDurationFeePercentage.IsNegative() {
		return domain.FeeTier{}, fmt.Errorf("%w: fees must not be negative", domain.ErrInvalidAmount)
	}
	if req.PointsReward < 0 {
		return domain.FeeTier{}, fmt.Errorf("%w: points reward must not be negative", domain.ErrInvalidAmount)
	}

	active, err := s.feeTiers.ListActive(ctx)
	if err != nil {
		return domain.FeeTier{}, err
	}
	for _, existing := range active {
		if tiersOverlap(existing, req.MinAmount, req.MaxAmount) {
			return domain.FeeTier{}, fmt.Errorf("%w: tier overlaps an active tier", domain.ErrConflict)
		}
	}

	tier := domain.FeeTier{
		TierID:                     uuid.New(),
		MinAmount:                  req.MinAmount,
		MaxAmount:                  req.MaxAmount,
		FixedFee:                   req.FixedFee,
		PercentageFee:              req.PercentageFee,
		ExtraDurationFeePercentage: req.ExtraDurationFeePercentage,
		PointsReward:               req.PointsReward,
		Active:                     true,
		CreatedAt:                  s.nowFn(),
	}
	if err := s.feeTiers.Create(ctx, tier); err != nil {
		return domain.FeeTier{}, err
	}
	return tier, nil
}

func (s *Service) DeactivateFeeTier(ctx context.Context, tierID uuid.UUID) error {
	if tierID == uuid.Nil {
		return fmt.Errorf("%w: tier id is required", domain.ErrInvalidInput)
	}
	return s.feeTiers.Deactivate(ctx, tierID, s.nowFn())
}

// quote resolves the fee and reward for one transaction at creation time.
func (s *Service) quote(ctx context.Context, amount decimal.Decimal, durationHours int) (domain.FeeQuote, error) {
	tiers, err := s.feeTiers.ListActive(ctx)
	if err != nil {
		return domain.FeeQuote{}, err
	}
	return domain.QuoteFee(tiers, amount, durationHours), nil
}

func tiersOverlap(existing domain.FeeTier, minAmount decimal.Decimal, maxAmount *decimal.Decimal) bool {
	// Ranges [a.min, a.max] and [b.min, b.max] overlap unless one ends
	// before the other begins; a nil max is unbounded.
	if existing.MaxAmount != nil && existing.MaxAmount.LessThan(minAmount) {
		return false
	}
	if maxAmount != nil && maxAmount.LessThan(existing.MinAmount) {
		return false
	}
	return true
}
