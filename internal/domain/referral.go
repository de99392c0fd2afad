package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReferralStatusActive    = "active"
	ReferralStatusSuspended = "suspended"
)

// Referral tracks points a referrer earned through one referred customer's
// settled transactions. Unique per (referrer, referred) pair.
type Referral struct {
	ReferralID                 uuid.UUID
	ReferrerID                 uuid.UUID
	ReferredID                 uuid.UUID
	TotalPointsEarned          int64
	SuccessfulTransactionCount int
	FirstTransactionAt         *time.Time
	Status                     string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// ReferralBonus computes the referrer's share of a buyer's points reward,
// floored to whole points. A zero result means no ledger entry is written.
func ReferralBonus(pointsReward int64, rewardPercent int) int64 {
	if pointsReward <= 0 || rewardPercent <= 0 {
		return 0
	}
	return pointsReward * int64(rewardPercent) / 100
}
