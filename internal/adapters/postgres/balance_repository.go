package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/peertrade/escrow-core/internal/domain"
)

type balanceRepository struct {
	db *gorm.DB
}

func (r *balanceRepository) Get(ctx context.Context, customerID uuid.UUID) (domain.AccountBalance, error) {
	var rec balanceModel
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AccountBalance{}, domain.ErrNotFound
		}
		return domain.AccountBalance{}, err
	}
	return toDomainBalance(rec), nil
}

func (r *balanceRepository) Credit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error) {
	var result domain.AccountBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := creditFunds(tx, customerID, amount, at)
		if err != nil {
			return err
		}
		result = toDomainBalance(rec)
		return nil
	})
	if err != nil {
		return domain.AccountBalance{}, err
	}
	return result, nil
}

func (r *balanceRepository) Lock(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error) {
	var result domain.AccountBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := lockFunds(tx, customerID, amount, at)
		if err != nil {
			return err
		}
		result = toDomainBalance(rec)
		return nil
	})
	if err != nil {
		return domain.AccountBalance{}, err
	}
	return result, nil
}

func (r *balanceRepository) Unlock(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, bool, error) {
	var (
		result  domain.AccountBalance
		clamped bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, c, err := unlockFunds(tx, customerID, amount, at)
		if err != nil {
			return err
		}
		result, clamped = toDomainBalance(rec), c
		return nil
	})
	if err != nil {
		return domain.AccountBalance{}, false, err
	}
	return result, clamped, nil
}

func (r *balanceRepository) Deduct(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error) {
	var result domain.AccountBalance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := deductFunds(tx, customerID, amount, at)
		if err != nil {
			return err
		}
		result = toDomainBalance(rec)
		return nil
	})
	if err != nil {
		return domain.AccountBalance{}, err
	}
	return result, nil
}

// lockBalanceRow takes the customer's row FOR UPDATE, creating a zero row on
// first use so every customer lazily gets a ledger entry.
func lockBalanceRow(tx *gorm.DB, customerID uuid.UUID, at time.Time) (balanceModel, error) {
	var rec balanceModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).
		Take(&rec).Error
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return balanceModel{}, err
	}

	rec = balanceModel{
		CustomerID: customerID,
		Total:      decimal.Zero,
		Locked:     decimal.Zero,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := tx.Create(&rec).Error; err != nil {
		// Lost the insert race; the row exists now, lock it.
		if isUniqueViolation(err) {
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("customer_id = ?", customerID).
				Take(&rec).Error
		}
		if err != nil {
			return balanceModel{}, err
		}
	}
	return rec, nil
}

func saveBalanceRow(tx *gorm.DB, rec balanceModel, at time.Time) error {
	if !toDomainBalance(rec).CheckInvariant() {
		return fmt.Errorf("balance invariant violated for %s: total=%s locked=%s",
			rec.CustomerID, rec.Total, rec.Locked)
	}
	return tx.Model(&balanceModel{}).
		Where("customer_id = ?", rec.CustomerID).
		Updates(map[string]any{
			"total":      rec.Total,
			"locked":     rec.Locked,
			"updated_at": at,
		}).Error
}

func creditFunds(tx *gorm.DB, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (balanceModel, error) {
	rec, err := lockBalanceRow(tx, customerID, at)
	if err != nil {
		return balanceModel{}, err
	}
	rec.Total = rec.Total.Add(amount)
	if err := saveBalanceRow(tx, rec, at); err != nil {
		return balanceModel{}, err
	}
	rec.UpdatedAt = at
	return rec, nil
}

func lockFunds(tx *gorm.DB, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (balanceModel, error) {
	rec, err := lockBalanceRow(tx, customerID, at)
	if err != nil {
		return balanceModel{}, err
	}
	available := rec.Total.Sub(rec.Locked)
	if available.LessThan(amount) {
		return balanceModel{}, fmt.Errorf("%w: available %s, need %s",
			domain.ErrInsufficientFunds, available, amount)
	}
	rec.Locked = rec.Locked.Add(amount)
	if err := saveBalanceRow(tx, rec, at); err != nil {
		return balanceModel{}, err
	}
	rec.UpdatedAt = at
	return rec, nil
}

func unlockFunds(tx *gorm.DB, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (balanceModel, bool, error) {
	rec, err := lockBalanceRow(tx, customerID, at)
	if err != nil {
		return balanceModel{}, false, err
	}
	clamped := false
	rec.Locked = rec.Locked.Sub(amount)
	if rec.Locked.IsNegative() {
		rec.Locked = decimal.Zero
		clamped = true
	}
	if err := saveBalanceRow(tx, rec, at); err != nil {
		return balanceModel{}, false, err
	}
	rec.UpdatedAt = at
	return rec, clamped, nil
}

func deductFunds(tx *gorm.DB, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (balanceModel, error) {
	rec, err := lockBalanceRow(tx, customerID, at)
	if err != nil {
		return balanceModel{}, err
	}
	if rec.Total.LessThan(amount) {
		return balanceModel{}, fmt.Errorf("%w: total %s, need %s",
			domain.ErrInsufficientFunds, rec.Total, amount)
	}
	rec.Total = rec.Total.Sub(amount)
	if err := saveBalanceRow(tx, rec, at); err != nil {
		return balanceModel{}, err
	}
	rec.UpdatedAt = at
	return rec, nil
}

// lockBalancePair locks two customers' rows in ascending id order so
// concurrent settlements touching the same pair cannot deadlock.
func lockBalancePair(tx *gorm.DB, a, b uuid.UUID, at time.Time) error {
	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}
	if _, err := lockBalanceRow(tx, first, at); err != nil {
		return err
	}
	if first == second {
		return nil
	}
	_, err := lockBalanceRow(tx, second, at)
	return err
}
