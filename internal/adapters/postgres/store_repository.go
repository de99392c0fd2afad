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

type storeRepository struct {
	db *gorm.DB
}

func (r *storeRepository) CreateProduct(ctx context.Context, product domain.StoreProduct) error {
	rec := productModel{
		ProductID: product.ProductID,
		SellerID:  product.SellerID,
		Price:     product.Price,
		Status:    product.Status,
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *storeRepository) GetProduct(ctx context.Context, productID uuid.UUID) (domain.StoreProduct, error) {
	var rec productModel
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StoreProduct{}, domain.ErrNotFound
		}
		return domain.StoreProduct{}, err
	}
	return toDomainProduct(rec), nil
}

func (r *storeRepository) CreateWithLockTx(ctx context.Context, t domain.StoreTransaction, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The guarded reservation is the availability check; a concurrent
		// buyer loses here before any funds move.
		res := tx.Model(&productModel{}).
			Where("product_id = ?", t.ProductID).
			Where("status = ?", domain.ProductStatusAvailable).
			Updates(map[string]any{
				"status":     domain.ProductStatusReserved,
				"updated_at": t.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrProductUnavailable
		}

		if _, err := lockFunds(tx, t.BuyerID, t.Amount, t.CreatedAt); err != nil {
			return err
		}

		rec := storeModel{
			TransactionID: t.TransactionID,
			Code:          t.Code,
			BuyerID:       t.BuyerID,
			SellerID:      t.SellerID,
			ProductID:     t.ProductID,
			Amount:        t.Amount,
			Fee:           t.Fee,
			Status:        string(t.Status),
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

func (r *storeRepository) GetByID(ctx context.Context, transactionID uuid.UUID) (domain.StoreTransaction, error) {
	var rec storeModel
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StoreTransaction{}, domain.ErrNotFound
		}
		return domain.StoreTransaction{}, err
	}
	return toDomainStore(rec), nil
}

func (r *storeRepository) GetByCode(ctx context.Context, code string) (domain.StoreTransaction, error) {
	var rec storeModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StoreTransaction{}, domain.ErrNotFound
		}
		return domain.StoreTransaction{}, err
	}
	return toDomainStore(rec), nil
}

func (r *storeRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]domain.StoreTransaction, error) {
	var rows []storeModel
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", customerID, customerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoreTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainStore(row))
	}
	return out, nil
}

func (r *storeRepository) MarkConfirmed(ctx context.Context, transactionID uuid.UUID, at, autoCompleteAt time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := guardedStoreUpdate(tx, transactionID, domain.StoreStatusPending, map[string]any{
			"status":           string(domain.StoreStatusProcessing),
			"confirmed_at":     at,
			"auto_complete_at": autoCompleteAt,
			"updated_at":       at,
		}); err != nil {
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *storeRepository) SettleTx(ctx context.Context, params ports.SettleParams, productID uuid.UUID, earlyComplete bool, events []ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":       string(domain.StoreStatusCompleted),
			"completed_at": params.At,
			"updated_at":   params.At,
		}
		if earlyComplete {
			updates["buyer_early_complete"] = true
		}
		if err := guardedStoreUpdate(tx, params.TransactionID, domain.StoreStatus(params.FromStatus), updates); err != nil {
			return err
		}
		if err := setProductStatus(tx, productID, domain.ProductStatusSold, params.At); err != nil {
			return err
		}
		if err := applySettlementFunds(tx, params); err != nil {
			return err
		}
		return enqueueOutbox(tx, events)
	})
}

func (r *storeRepository) CancelTx(ctx context.Context, transactionID uuid.UUID, at time.Time, event ports.OutboxEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := takeStoreForUpdate(tx, transactionID)
		if err != nil {
			return err
		}
		current := domain.StoreStatus(rec.Status)
		if current != domain.StoreStatusPending && current != domain.StoreStatusProcessing {
			return domain.ErrInvalidStateTransition
		}
		if err := guardedStoreUpdate(tx, transactionID, current, map[string]any{
			"status":       string(domain.StoreStatusCancelled),
			"cancelled_at": at,
			"updated_at":   at,
		}); err != nil {
			return err
		}
		if _, _, err := unlockFunds(tx, rec.BuyerID, rec.Amount, at); err != nil {
			return err
		}
		if err := setProductStatus(tx, rec.ProductID, domain.ProductStatusAvailable, at); err != nil {
			return err
		}
		return enqueueOutbox(tx, []ports.OutboxEvent{event})
	})
}

func (r *storeRepository) ListAutoCompletable(ctx context.Context, now time.Time, limit int) ([]domain.StoreTransaction, error) {
	var rows []storeModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StoreStatusProcessing)).
		Where("auto_complete_at IS NOT NULL AND auto_complete_at < ?", now).
		Order("auto_complete_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoreTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainStore(row))
	}
	return out, nil
}

func guardedStoreUpdate(tx *gorm.DB, transactionID uuid.UUID, from domain.StoreStatus, updates map[string]any) error {
	res := tx.Model(&storeModel{}).
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

func setProductStatus(tx *gorm.DB, productID uuid.UUID, status string, at time.Time) error {
	return tx.Model(&productModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": at,
		}).Error
}

func takeStoreForUpdate(tx *gorm.DB, transactionID uuid.UUID) (storeModel, error) {
	var rec storeModel
	err := tx.Clauses(forUpdate()).
		Where("transaction_id = ?", transactionID).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storeModel{}, domain.ErrNotFound
		}
		return storeModel{}, err
	}
	return rec, nil
}
