package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountBalance is the monetary ledger row for one customer.
// Total is everything the customer owns; Locked is the slice reserved against
// in-flight transactions. Available is always derived, never stored.
type AccountBalance struct {
	CustomerID uuid.UUID
	Total      decimal.Decimal
	Locked     decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Available returns the spendable portion of the balance.
func (b AccountBalance) Available() decimal.Decimal {
	return b.Total.Sub(b.Locked)
}

// CheckInvariant verifies 0 <= locked <= total after a mutation.
// Repositories call it before committing; a violation aborts the transaction.
func (b AccountBalance) CheckInvariant() bool {
	if b.Locked.IsNegative() || b.Total.IsNegative() {
		return false
	}
	return b.Locked.LessThanOrEqual(b.Total)
}
