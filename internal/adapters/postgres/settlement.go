package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

func forUpdate() clause.Expression {
	return clause.Locking{Strength: "UPDATE"}
}

// applySettlementFunds moves money and points for one settlement inside the
// caller's transaction: release the buyer's lock, charge the buyer, credit
// the seller, write the buyer's reward entry and the referrer's bonus. The
// transaction row's guarded status flip happens in the caller, before this.
func applySettlementFunds(tx *gorm.DB, p ports.SettleParams) error {
	if err := lockBalancePair(tx, p.BuyerID, p.SellerID, p.At); err != nil {
		return err
	}
	if p.UnlockAmount.IsPositive() {
		if _, _, err := unlockFunds(tx, p.BuyerID, p.UnlockAmount, p.At); err != nil {
			return err
		}
	}
	if p.BuyerCharge.IsPositive() {
		if _, err := deductFunds(tx, p.BuyerID, p.BuyerCharge, p.At); err != nil {
			return err
		}
	}
	if p.SellerCredit.IsPositive() {
		if _, err := creditFunds(tx, p.SellerID, p.SellerCredit, p.At); err != nil {
			return err
		}
	}

	if p.PointsReward > 0 {
		transactionID := p.TransactionID
		if _, err := earnPoints(tx, ports.PointMutation{
			CustomerID:           p.BuyerID,
			EntryType:            p.PointsEntry,
			Amount:               p.PointsReward,
			Description:          p.Description,
			RelatedTransactionID: &transactionID,
			At:                   p.At,
		}); err != nil {
			return err
		}
	}
	if p.Referral != nil {
		if err := accrueReferral(tx, *p.Referral, p.TransactionID, p.Description, p.At); err != nil {
			return err
		}
	}
	return nil
}

// accrueReferral credits the referrer's bonus and bumps the referral row's
// lifetime counters. A zero bonus still counts the settled transaction.
func accrueReferral(tx *gorm.DB, a ports.ReferralAccrual, transactionID uuid.UUID, description string, at time.Time) error {
	if a.Points > 0 {
		referredID := a.ReferredID
		if _, err := earnPoints(tx, ports.PointMutation{
			CustomerID:           a.ReferrerID,
			EntryType:            domain.PointEntryReferralBonus,
			Amount:               a.Points,
			Description:          description,
			RelatedTransactionID: &transactionID,
			RelatedCustomerID:    &referredID,
			At:                   at,
		}); err != nil {
			return err
		}
	}

	res := tx.Model(&referralModel{}).
		Where("referral_id = ?", a.ReferralID).
		Updates(map[string]any{
			"total_points_earned":          gorm.Expr("total_points_earned + ?", a.Points),
			"successful_transaction_count": gorm.Expr("successful_transaction_count + 1"),
			"first_transaction_at":         gorm.Expr("COALESCE(first_transaction_at, ?)", at),
			"updated_at":                   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("referral %s missing during settlement", a.ReferralID)
	}
	return nil
}

// enqueueOutbox writes the settlement's events inside the same transaction.
func enqueueOutbox(tx *gorm.DB, events []ports.OutboxEvent) error {
	for _, event := range events {
		rec := outboxModel{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      string(event.Payload),
			CreatedAt:    event.OccurredAt,
			FirstSeenAt:  event.OccurredAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
	}
	return nil
}
