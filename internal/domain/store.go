package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreStatus is the closed set of store transaction states.
type StoreStatus string

const (
	StoreStatusPending    StoreStatus = "pending"
	StoreStatusProcessing StoreStatus = "processing"
	StoreStatusCompleted  StoreStatus = "completed"
	StoreStatusCancelled  StoreStatus = "cancelled"
	StoreStatusDisputed   StoreStatus = "disputed"
)

// ParseStoreStatus validates a persisted status string against the known set.
func ParseStoreStatus(raw string) (StoreStatus, error) {
	switch s := StoreStatus(raw); s {
	case StoreStatusPending, StoreStatusProcessing, StoreStatusCompleted,
		StoreStatusCancelled, StoreStatusDisputed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown store status %q", ErrInvalidInput, raw)
	}
}

const (
	ProductStatusAvailable = "available"
	ProductStatusReserved  = "reserved"
	ProductStatusSold      = "sold"
)

// StoreProduct carries only the availability state this core owns.
// Listing content (title, media, search) belongs to the catalog collaborator.
type StoreProduct struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Price     decimal.Decimal
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoreTransaction is a product-backed purchase. The referenced product moves
// between available/reserved/sold in lockstep with the transaction status.
type StoreTransaction struct {
	TransactionID      uuid.UUID
	Code               string
	BuyerID            uuid.UUID
	SellerID           uuid.UUID
	ProductID          uuid.UUID
	Amount             decimal.Decimal
	Fee                decimal.Decimal
	Status             StoreStatus
	ConfirmedAt        *time.Time
	AutoCompleteAt     *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	BuyerEarlyComplete bool
	DisputeID          *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t StoreTransaction) CanConfirm() bool { return t.Status == StoreStatusPending }

func (t StoreTransaction) CanComplete() bool { return t.Status == StoreStatusProcessing }

func (t StoreTransaction) CanCancel() bool {
	return t.Status == StoreStatusPending || t.Status == StoreStatusProcessing
}

func (t StoreTransaction) CanDispute() bool { return t.Status == StoreStatusProcessing }

// SellerProceeds is what the seller receives on settlement: amount minus fee.
func (t StoreTransaction) SellerProceeds() decimal.Decimal {
	return t.Amount.Sub(t.Fee)
}
