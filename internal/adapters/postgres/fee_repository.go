package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peertrade/escrow-core/internal/domain"
)

type feeTierRepository struct {
	db *gorm.DB
}

func (r *feeTierRepository) ListActive(ctx context.Context) ([]domain.FeeTier, error) {
	var rows []feeTierModel
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("min_amount ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainFeeTiers(rows), nil
}

func (r *feeTierRepository) List(ctx context.Context) ([]domain.FeeTier, error) {
	var rows []feeTierModel
	err := r.db.WithContext(ctx).
		Order("min_amount ASC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainFeeTiers(rows), nil
}

func (r *feeTierRepository) Create(ctx context.Context, tier domain.FeeTier) error {
	rec := feeTierModel{
		TierID:                     tier.TierID,
		MinAmount:                  tier.MinAmount,
		MaxAmount:                  tier.MaxAmount,
		FixedFee:                   tier.FixedFee,
		PercentageFee:              tier.PercentageFee,
		ExtraDurationFeePercentage: tier.ExtraDurationFeePercentage,
		PointsReward:               tier.PointsReward,
		Active:                     tier.Active,
		CreatedAt:                  tier.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *feeTierRepository) Deactivate(ctx context.Context, tierID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&feeTierModel{}).
		Where("tier_id = ?", tierID).
		Where("active = ?", true).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toDomainFeeTiers(rows []feeTierModel) []domain.FeeTier {
	out := make([]domain.FeeTier, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainFeeTier(row))
	}
	return out
}
