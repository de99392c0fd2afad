package domain

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus is the closed set of escrow lifecycle states. It is persisted
// as an opaque string so new states do not require a schema migration.
type EscrowStatus string

const (
	EscrowStatusPending    EscrowStatus = "pending"
	EscrowStatusConfirmed  EscrowStatus = "confirmed"
	EscrowStatusSellerSent EscrowStatus = "seller_sent"
	EscrowStatusCompleted  EscrowStatus = "completed"
	EscrowStatusCancelled  EscrowStatus = "cancelled"
	EscrowStatusDisputed   EscrowStatus = "disputed"
	EscrowStatusExpired    EscrowStatus = "expired"
)

// ParseEscrowStatus validates a persisted status string against the known set.
func ParseEscrowStatus(raw string) (EscrowStatus, error) {
	switch s := EscrowStatus(raw); s {
	case EscrowStatusPending, EscrowStatusConfirmed, EscrowStatusSellerSent,
		EscrowStatusCompleted, EscrowStatusCancelled, EscrowStatusDisputed, EscrowStatusExpired:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown escrow status %q", ErrInvalidInput, raw)
	}
}

// Terminal reports whether no further transition can leave the state.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowStatusCompleted, EscrowStatusCancelled, EscrowStatusExpired:
		return true
	}
	return false
}

// EscrowTransaction is a peer-to-peer trade with platform-held custody.
// Amount and Fee are immutable once set; only the status and its timestamps
// change after creation, besides the dispute linkage.
type EscrowTransaction struct {
	TransactionID   uuid.UUID
	Code            string
	BuyerID         uuid.UUID
	SellerID        uuid.UUID
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	DurationHours   int
	Status          EscrowStatus
	ConfirmedAt     *time.Time
	SellerSentAt    *time.Time
	BuyerReceivedAt *time.Time
	ExpiresAt       time.Time
	AutoCompleteAt  *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	DisputeID       *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LockedAmount is the buyer funds held for this transaction: amount plus fee.
func (t EscrowTransaction) LockedAmount() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

// CanConfirm guards the seller's acceptance of a pending transaction.
func (t EscrowTransaction) CanConfirm() bool { return t.Status == EscrowStatusPending }

// CanMarkShipped guards the seller's shipment notice.
func (t EscrowTransaction) CanMarkShipped() bool { return t.Status == EscrowStatusConfirmed }

// CanComplete guards settlement. Buyer receipt is an event on seller_sent,
// not a distinct state, so both the interactive and the sweep path settle
// from here.
func (t EscrowTransaction) CanComplete() bool { return t.Status == EscrowStatusSellerSent }

// CanCancel guards cancellation by either party before shipment.
func (t EscrowTransaction) CanCancel() bool {
	return t.Status == EscrowStatusPending || t.Status == EscrowStatusConfirmed
}

// CanDispute guards dispute creation after the seller has committed.
func (t EscrowTransaction) CanDispute() bool {
	return t.Status == EscrowStatusConfirmed || t.Status == EscrowStatusSellerSent
}

// CanExpire guards the time-based expiry of a never-confirmed transaction.
func (t EscrowTransaction) CanExpire(now time.Time) bool {
	return t.Status == EscrowStatusPending && now.After(t.ExpiresAt)
}

// codeAlphabet omits 0/O/1/I to keep transaction codes unambiguous when read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// TransactionCodeLength is the fixed width of customer-visible transaction codes.
const TransactionCodeLength = 8

// NewTransactionCode returns a random customer-facing code. Uniqueness is
// enforced by the repository; callers retry on collision.
func NewTransactionCode() string {
	raw := make([]byte, TransactionCodeLength)
	_, _ = rand.Read(raw)
	for i, b := range raw {
		raw[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(raw)
}
