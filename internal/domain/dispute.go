package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DisputeStatus is the closed set of dispute workflow states.
type DisputeStatus string

const (
	DisputeStatusPending    DisputeStatus = "pending"
	DisputeStatusProcessing DisputeStatus = "processing"
	DisputeStatusResolved   DisputeStatus = "resolved"
	DisputeStatusCancelled  DisputeStatus = "cancelled"
)

// ParseDisputeStatus validates a persisted status string against the known set.
func ParseDisputeStatus(raw string) (DisputeStatus, error) {
	switch s := DisputeStatus(raw); s {
	case DisputeStatusPending, DisputeStatusProcessing, DisputeStatusResolved, DisputeStatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown dispute status %q", ErrInvalidInput, raw)
	}
}

// Terminal reports whether the dispute no longer blocks its transaction.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeStatusResolved || s == DisputeStatusCancelled
}

const (
	TransactionTypeEscrow = "escrow"
	TransactionTypeStore  = "store"
)

// Dispute resolution outcomes. Each maps to a settlement on the underlying
// transaction that commits in the same database transaction as the dispute
// state change.
const (
	DisputeOutcomeRefundBuyer   = "refund_buyer"
	DisputeOutcomePaySeller     = "pay_seller"
	DisputeOutcomePartialRefund = "partial_refund"
)

// ValidDisputeOutcome reports whether the adjudicator's outcome is known.
func ValidDisputeOutcome(outcome string) bool {
	switch outcome {
	case DisputeOutcomeRefundBuyer, DisputeOutcomePaySeller, DisputeOutcomePartialRefund:
		return true
	}
	return false
}

// Dispute is a human-adjudicated hold on a transaction. At most one
// non-terminal dispute may reference a transaction at a time.
// PriorStatus records the transaction state the dispute interrupted so a
// cancelled dispute can restore it.
type Dispute struct {
	DisputeID       uuid.UUID
	TransactionType string
	TransactionID   uuid.UUID
	CreatedBy       uuid.UUID
	Reason          string
	Evidence        string
	Status          DisputeStatus
	PriorStatus     string
	AssignedTo      *uuid.UUID
	Outcome         string
	ResolutionNotes string
	RefundAmount    *decimal.Decimal
	ResolvedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (d Dispute) CanAssign() bool { return d.Status == DisputeStatusPending }

func (d Dispute) CanResolve() bool { return d.Status == DisputeStatusProcessing }

func (d Dispute) CanCancel() bool { return d.Status == DisputeStatusPending }
