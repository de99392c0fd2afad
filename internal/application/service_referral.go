package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/peertrade/escrow-core/internal/domain"
)

// RegisterReferral links a newly signed-up customer to the referrer whose
// code they used. The pair is unique; registering it twice is a conflict,
// and a customer already referred by someone else cannot be claimed again.
func (s *Service) RegisterReferral(ctx context.Context, actor Actor, req RegisterReferralRequest) (ReferralResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return ReferralResponse{}, domain.ErrUnauthorized
	}
	if req.ReferredID == uuid.Nil {
		return ReferralResponse{}, fmt.Errorf("%w: referred customer id is required", domain.ErrInvalidInput)
	}
	if req.ReferredID == actor.SubjectID {
		return ReferralResponse{}, fmt.Errorf("%w: cannot refer yourself", domain.ErrInvalidInput)
	}

	now := s.nowFn()
	r := domain.Referral{
		ReferralID: uuid.New(),
		ReferrerID: actor.SubjectID,
		ReferredID: req.ReferredID,
		Status:     domain.ReferralStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.referrals.Create(ctx, r); err != nil {
		return ReferralResponse{}, err
	}

	_ = s.outbox.Enqueue(ctx, newOutboxEvent(EventReferralRegistered, r.ReferrerID.String(), map[string]any{
		"referral_id":   r.ReferralID,
		"referrer_id":   r.ReferrerID,
		"referred_id":   r.ReferredID,
		"registered_at": now,
	}, now))
	return toReferralResponse(r), nil
}

// ListReferrals pages the caller's referred customers with their accrued
// totals, newest first.
func (s *Service) ListReferrals(ctx context.Context, actor Actor, limit, offset int) ([]ReferralResponse, error) {
	if actor.SubjectID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	limit, offset = normalizeLimit(limit, offset)
	referrals, err := s.referrals.ListByReferrer(ctx, actor.SubjectID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ReferralResponse, 0, len(referrals))
	for _, r := range referrals {
		out = append(out, toReferralResponse(r))
	}
	return out, nil
}
