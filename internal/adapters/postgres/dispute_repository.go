package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

type disputeRepository struct {
	db *gorm.DB
}

func (r *disputeRepository) OpenTx(ctx context.Context, d domain.Dispute, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := disputeModel{
			DisputeID:       d.DisputeID,
			TransactionType: d.TransactionType,
			TransactionID:   d.TransactionID,
			CreatedBy:       d.CreatedBy,
			Reason:          d.Reason,
			Evidence:        d.Evidence,
			Status:          string(d.Status),
			PriorStatus:     d.PriorStatus,
			CreatedAt:       d.CreatedAt,
			UpdatedAt:       d.UpdatedAt,
		}
		// The partial unique index on active disputes rejects a second open
		// dispute for the same transaction.
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		disputeID := d.DisputeID
		switch d.TransactionType {
		case domain.TransactionTypeEscrow:
			return guardedEscrowUpdate(tx, d.TransactionID, domain.EscrowStatus(d.PriorStatus), map[string]any{
				"status":     string(domain.EscrowStatusDisputed),
				"dispute_id": disputeID,
				"updated_at": d.CreatedAt,
			})
		case domain.TransactionTypeStore:
			return guardedStoreUpdate(tx, d.TransactionID, domain.StoreStatus(d.PriorStatus), map[string]any{
				"status":     string(domain.StoreStatusDisputed),
				"dispute_id": disputeID,
				"updated_at": d.CreatedAt,
			})
		default:
			return fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, d.TransactionType)
		}
	})
}

func (r *disputeRepository) GetByID(ctx context.Context, disputeID uuid.UUID) (domain.Dispute, error) {
	var rec disputeModel
	if err := r.db.WithContext(ctx).Where("dispute_id = ?", disputeID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, err
	}
	return toDomainDispute(rec), nil
}

func (r *disputeRepository) GetActiveByTransaction(ctx context.Context, transactionType string, transactionID uuid.UUID) (domain.Dispute, error) {
	var rec disputeModel
	err := r.db.WithContext(ctx).
		Where("transaction_type = ? AND transaction_id = ?", transactionType, transactionID).
		Where("status IN ?", []string{string(domain.DisputeStatusPending), string(domain.DisputeStatusProcessing)}).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Dispute{}, domain.ErrNotFound
		}
		return domain.Dispute{}, err
	}
	return toDomainDispute(rec), nil
}

func (r *disputeRepository) ListByStatus(ctx context.Context, status domain.DisputeStatus, limit, offset int) ([]domain.Dispute, error) {
	var rows []disputeModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Dispute, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainDispute(row))
	}
	return out, nil
}

func (r *disputeRepository) Assign(ctx context.Context, disputeID, adjudicator uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&disputeModel{}).
		Where("dispute_id = ?", disputeID).
		Where("status = ?", string(domain.DisputeStatusPending)).
		Updates(map[string]any{
			"status":      string(domain.DisputeStatusProcessing),
			"assigned_to": adjudicator,
			"updated_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

func (r *disputeRepository) CancelTx(ctx context.Context, disputeID uuid.UUID, at time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec disputeModel
		err := tx.Clauses(forUpdate()).Where("dispute_id = ?", disputeID).Take(&rec).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		if domain.DisputeStatus(rec.Status) != domain.DisputeStatusPending {
			return domain.ErrInvalidStateTransition
		}

		if err := tx.Model(&disputeModel{}).
			Where("dispute_id = ?", disputeID).
			Updates(map[string]any{
				"status":     string(domain.DisputeStatusCancelled),
				"updated_at": at,
			}).Error; err != nil {
			return err
		}

		// Restore the transaction to the state the dispute interrupted.
		switch rec.TransactionType {
		case domain.TransactionTypeEscrow:
			if err := guardedEscrowUpdate(tx, rec.TransactionID, domain.EscrowStatusDisputed, map[string]any{
				"status":     rec.PriorStatus,
				"dispute_id": nil,
				"updated_at": at,
			}); err != nil {
				return err
			}
		case domain.TransactionTypeStore:
			if err := guardedStoreUpdate(tx, rec.TransactionID, domain.StoreStatusDisputed, map[string]any{
				"status":     rec.PriorStatus,
				"dispute_id": nil,
				"updated_at": at,
			}); err != nil {
				return err
			}
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *disputeRepository) ResolveTx(ctx context.Context, params ports.DisputeResolveParams, events []ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&disputeModel{}).
			Where("dispute_id = ?", params.DisputeID).
			Where("status = ?", string(domain.DisputeStatusProcessing)).
			Updates(map[string]any{
				"status":           string(domain.DisputeStatusResolved),
				"outcome":          params.Outcome,
				"resolution_notes": params.Notes,
				"refund_amount":    params.RefundAmount,
				"resolved_at":      params.At,
				"updated_at":       params.At,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInvalidStateTransition
		}

		completed := false
		updates := map[string]any{
			"status":     params.FinalStatus,
			"updated_at": params.At,
		}
		switch params.TransactionType {
		case domain.TransactionTypeEscrow:
			completed = params.FinalStatus == string(domain.EscrowStatusCompleted)
			if completed {
				updates["completed_at"] = params.At
			} else {
				updates["cancelled_at"] = params.At
			}
			if err := guardedEscrowUpdate(tx, params.TransactionID, domain.EscrowStatusDisputed, updates); err != nil {
				return err
			}
		case domain.TransactionTypeStore:
			completed = params.FinalStatus == string(domain.StoreStatusCompleted)
			if completed {
				updates["completed_at"] = params.At
			} else {
				updates["cancelled_at"] = params.At
			}
			if err := guardedStoreUpdate(tx, params.TransactionID, domain.StoreStatusDisputed, updates); err != nil {
				return err
			}
			if params.ProductID != nil {
				productStatus := domain.ProductStatusSold
				if !completed {
					productStatus = domain.ProductStatusAvailable
				}
				if err := setProductStatus(tx, *params.ProductID, productStatus, params.At); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, params.TransactionType)
		}

		settle := ports.SettleParams{
			TransactionID: params.TransactionID,
			BuyerID:       params.BuyerID,
			SellerID:      params.SellerID,
			UnlockAmount:  params.UnlockAmount,
			BuyerCharge:   params.BuyerCharge,
			SellerCredit:  params.SellerCredit,
			PointsReward:  params.PointsReward,
			PointsEntry:   domain.PointEntryTransactionReward,
			Description:   fmt.Sprintf("dispute %s resolved as %s", params.DisputeID, params.Outcome),
			Referral:      params.Referral,
			At:            params.At,
		}
		if err := applySettlementFunds(tx, settle); err != nil {
			return err
		}
		return enqueueOutbox(tx, events)
	})
}
