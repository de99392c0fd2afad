package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peertrade/escrow-core/internal/domain"
)

type referralRepository struct {
	db *gorm.DB
}

func (r *referralRepository) Create(ctx context.Context, ref domain.Referral) error {
	rec := referralModel{
		ReferralID: ref.ReferralID,
		ReferrerID: ref.ReferrerID,
		ReferredID: ref.ReferredID,
		Status:     ref.Status,
		CreatedAt:  ref.CreatedAt,
		UpdatedAt:  ref.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *referralRepository) GetByReferred(ctx context.Context, referredID uuid.UUID) (domain.Referral, error) {
	var rec referralModel
	if err := r.db.WithContext(ctx).Where("referred_id = ?", referredID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Referral{}, domain.ErrNotFound
		}
		return domain.Referral{}, err
	}
	return toDomainReferral(rec), nil
}

func (r *referralRepository) ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]domain.Referral, error) {
	var rows []referralModel
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Referral, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainReferral(row))
	}
	return out, nil
}
