package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

type pointsRepository struct {
	db *gorm.DB
}

func (r *pointsRepository) GetBalance(ctx context.Context, customerID uuid.UUID) (domain.PointBalance, error) {
	var rec pointBalanceModel
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.PointBalance{}, domain.ErrNotFound
		}
		return domain.PointBalance{}, err
	}
	return toDomainPointBalance(rec), nil
}

func (r *pointsRepository) Earn(ctx context.Context, m ports.PointMutation) (domain.PointBalance, error) {
	var result domain.PointBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := earnPoints(tx, m)
		if err != nil {
			return err
		}
		result = toDomainPointBalance(rec)
		return nil
	})
	if err != nil {
		return domain.PointBalance{}, err
	}
	return result, nil
}

func (r *pointsRepository) Spend(ctx context.Context, m ports.PointMutation) (domain.PointBalance, error) {
	var result domain.PointBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := spendPoints(tx, m)
		if err != nil {
			return err
		}
		result = toDomainPointBalance(rec)
		return nil
	})
	if err != nil {
		return domain.PointBalance{}, err
	}
	return result, nil
}

func (r *pointsRepository) Transfer(ctx context.Context, out, in ports.PointMutation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock both rows in ascending id order before mutating either.
		first, second := out.CustomerID, in.CustomerID
		firstAt := out.At
		if bytes.Compare(in.CustomerID[:], out.CustomerID[:]) < 0 {
			first, second = in.CustomerID, out.CustomerID
			firstAt = in.At
		}
		if _, err := lockPointRow(tx, first, firstAt); err != nil {
			return err
		}
		if _, err := lockPointRow(tx, second, firstAt); err != nil {
			return err
		}
		if _, err := spendPoints(tx, out); err != nil {
			return err
		}
		_, err := earnPoints(tx, in)
		return err
	})
}

func (r *pointsRepository) ListEntries(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]domain.PointLedgerEntry, error) {
	var rows []pointEntryModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.PointLedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainPointEntry(row))
	}
	return out, nil
}

func (r *pointsRepository) SumEntries(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).
		Model(&pointEntryModel{}).
		Select("SUM(amount)").
		Where("customer_id = ?", customerID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// lockPointRow takes the customer's point row FOR UPDATE, creating a zero
// row on first use.
func lockPointRow(tx *gorm.DB, customerID uuid.UUID, at time.Time) (pointBalanceModel, error) {
	var rec pointBalanceModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).
		Take(&rec).Error
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pointBalanceModel{}, err
	}

	rec = pointBalanceModel{
		CustomerID: customerID,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := tx.Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("customer_id = ?", customerID).
				Take(&rec).Error
		}
		if err != nil {
			return pointBalanceModel{}, err
		}
	}
	return rec, nil
}

func savePointRow(tx *gorm.DB, rec pointBalanceModel, at time.Time) error {
	return tx.Model(&pointBalanceModel{}).
		Where("customer_id = ?", rec.CustomerID).
		Updates(map[string]any{
			"available":    rec.Available,
			"total_earned": rec.TotalEarned,
			"total_spent":  rec.TotalSpent,
			"updated_at":   at,
		}).Error
}

// earnPoints appends a positive ledger entry and bumps the balance. The
// amount must already be validated by the caller.
func earnPoints(tx *gorm.DB, m ports.PointMutation) (pointBalanceModel, error) {
	if m.Amount <= 0 {
		return pointBalanceModel{}, fmt.Errorf("%w: earn amount must be positive", domain.ErrInvalidAmount)
	}
	rec, err := lockPointRow(tx, m.CustomerID, m.At)
	if err != nil {
		return pointBalanceModel{}, err
	}
	rec.Available += m.Amount
	rec.TotalEarned += m.Amount
	if err := savePointRow(tx, rec, m.At); err != nil {
		return pointBalanceModel{}, err
	}
	if err := appendPointEntry(tx, m, m.Amount, rec.Available); err != nil {
		return pointBalanceModel{}, err
	}
	rec.UpdatedAt = m.At
	return rec, nil
}

// spendPoints appends a negative ledger entry and decrements the balance,
// failing with ErrInsufficientPoints when the customer lacks cover.
func spendPoints(tx *gorm.DB, m ports.PointMutation) (pointBalanceModel, error) {
	if m.Amount <= 0 {
		return pointBalanceModel{}, fmt.Errorf("%w: spend amount must be positive", domain.ErrInvalidAmount)
	}
	rec, err := lockPointRow(tx, m.CustomerID, m.At)
	if err != nil {
		return pointBalanceModel{}, err
	}
	if rec.Available < m.Amount {
		return pointBalanceModel{}, fmt.Errorf("%w: available %d, need %d",
			domain.ErrInsufficientPoints, rec.Available, m.Amount)
	}
	rec.Available -= m.Amount
	rec.TotalSpent += m.Amount
	if err := savePointRow(tx, rec, m.At); err != nil {
		return pointBalanceModel{}, err
	}
	if err := appendPointEntry(tx, m, -m.Amount, rec.Available); err != nil {
		return pointBalanceModel{}, err
	}
	rec.UpdatedAt = m.At
	return rec, nil
}

func appendPointEntry(tx *gorm.DB, m ports.PointMutation, signedAmount, balanceAfter int64) error {
	entry := pointEntryModel{
		EntryID:              uuid.New(),
		CustomerID:           m.CustomerID,
		EntryType:            m.EntryType,
		Amount:               signedAmount,
		BalanceAfter:         balanceAfter,
		RelatedTransactionID: m.RelatedTransactionID,
		RelatedCustomerID:    m.RelatedCustomerID,
		Description:          m.Description,
		CreatedAt:            m.At,
	}
	return tx.Create(&entry).Error
}
