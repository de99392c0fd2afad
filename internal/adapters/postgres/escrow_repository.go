package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

type escrowRepository struct {
	db *gorm.DB
}

func (r *escrowRepository) CreateWithLockTx(ctx context.Context, t domain.EscrowTransaction, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockFunds(tx, t.BuyerID, t.LockedAmount(), t.CreatedAt); err != nil {
			return err
		}

		rec := escrowModel{
			TransactionID: t.TransactionID,
			Code:          t.Code,
			BuyerID:       t.BuyerID,
			SellerID:      t.SellerID,
			Amount:        t.Amount,
			Fee:           t.Fee,
			DurationHours: t.DurationHours,
			Status:        string(t.Status),
			ExpiresAt:     t.ExpiresAt,
			CreatedAt:     t.CreatedAt,
			UpdatedAt:     t.UpdatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *escrowRepository) GetByID(ctx context.Context, transactionID uuid.UUID) (domain.EscrowTransaction, error) {
	var rec escrowModel
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EscrowTransaction{}, domain.ErrNotFound
		}
		return domain.EscrowTransaction{}, err
	}
	return toDomainEscrow(rec), nil
}

func (r *escrowRepository) GetByCode(ctx context.Context, code string) (domain.EscrowTransaction, error) {
	var rec escrowModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EscrowTransaction{}, domain.ErrNotFound
		}
		return domain.EscrowTransaction{}, err
	}
	return toDomainEscrow(rec), nil
}

func (r *escrowRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]domain.EscrowTransaction, error) {
	var rows []escrowModel
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", customerID, customerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.EscrowTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainEscrow(row))
	}
	return out, nil
}

func (r *escrowRepository) MarkConfirmed(ctx context.Context, transactionID uuid.UUID, at time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardedEscrowUpdate(tx, transactionID, domain.EscrowStatusPending, map[string]any{
			"status":       string(domain.EscrowStatusConfirmed),
			"confirmed_at": at,
			"updated_at":   at,
		}); err != nil {
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *escrowRepository) MarkShipped(ctx context.Context, transactionID uuid.UUID, at, autoCompleteAt time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardedEscrowUpdate(tx, transactionID, domain.EscrowStatusConfirmed, map[string]any{
			"status":           string(domain.EscrowStatusSellerSent),
			"seller_sent_at":   at,
			"auto_complete_at": autoCompleteAt,
			"updated_at":       at,
		}); err != nil {
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *escrowRepository) SettleTx(ctx context.Context, params ports.SettleParams, events []ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":       string(domain.EscrowStatusCompleted),
			"completed_at": params.At,
			"updated_at":   params.At,
		}
		if params.BuyerReceived {
			updates["buyer_received_at"] = params.At
		}
		if err := guardedEscrowUpdate(tx, params.TransactionID, domain.EscrowStatus(params.FromStatus), updates); err != nil {
			return err
		}
		if err := applySettlementFunds(tx, params); err != nil {
			return err
		}
		return enqueueOutbox(tx, events)
	})
}

func (r *escrowRepository) CancelTx(ctx context.Context, transactionID uuid.UUID, at time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := takeEscrowForUpdate(tx, transactionID)
		if err != nil {
			return err
		}
		current := domain.EscrowStatus(rec.Status)
		if current != domain.EscrowStatusPending && current != domain.EscrowStatusConfirmed {
			return domain.ErrInvalidStateTransition
		}
		if err := guardedEscrowUpdate(tx, transactionID, current, map[string]any{
			"status":       string(domain.EscrowStatusCancelled),
			"cancelled_at": at,
			"updated_at":   at,
		}); err != nil {
			return err
		}
		if _, _, err := unlockFunds(tx, rec.BuyerID, rec.Amount.Add(rec.Fee), at); err != nil {
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *escrowRepository) ExpireTx(ctx context.Context, transactionID uuid.UUID, at time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := takeEscrowForUpdate(tx, transactionID)
		if err != nil {
			return err
		}
		if err := guardedEscrowUpdate(tx, transactionID, domain.EscrowStatusPending, map[string]any{
			"status":     string(domain.EscrowStatusExpired),
			"updated_at": at,
		}); err != nil {
			return err
		}
		if _, _, err := unlockFunds(tx, rec.BuyerID, rec.Amount.Add(rec.Fee), at); err != nil {
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *escrowRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error) {
	var rows []escrowModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.EscrowStatusPending)).
		Where("expires_at < ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.EscrowTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainEscrow(row))
	}
	return out, nil
}

func (r *escrowRepository) ListAutoCompletable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error) {
	var rows []escrowModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.EscrowStatusSellerSent)).
		Where("auto_complete_at IS NOT NULL AND auto_complete_at < ?", now).
		Order("auto_complete_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.EscrowTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainEscrow(row))
	}
	return out, nil
}

// guardedEscrowUpdate flips the row only when it still holds the expected
// status. Zero rows affected means another path won; callers surface that as
// ErrInvalidStateTransition and no other write in the transaction lands.
func guardedEscrowUpdate(tx *gorm.DB, transactionID uuid.UUID, from domain.EscrowStatus, updates map[string]any) error {
	res := tx.Model(&escrowModel{}).
		Where("transaction_id = ?", transactionID).
		Where("status = ?", string(from)).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

func takeEscrowForUpdate(tx *gorm.DB, transactionID uuid.UUID) (escrowModel, error) {
	var rec escrowModel
	err := tx.Clauses(forUpdate()).
		Where("transaction_id = ?", transactionID).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return escrowModel{}, domain.ErrNotFound
		}
		return escrowModel{}, err
	}
	return rec, nil
}
