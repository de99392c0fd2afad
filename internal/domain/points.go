package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	PointEntryTransactionReward = "transaction_reward"
	PointEntryReferralBonus     = "referral_bonus"
	PointEntrySpend             = "spend"
	PointEntryTransferIn        = "transfer_in"
	PointEntryTransferOut       = "transfer_out"
	PointEntryAdjustment        = "adjustment"
)

// PointBalance is the denormalized point state for one customer.
// Available must always equal the sum of the customer's ledger entries;
// TotalEarned and TotalSpent are lifetime monotonic counters.
type PointBalance struct {
	CustomerID  uuid.UUID
	Available   int64
	TotalEarned int64
	TotalSpent  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PointLedgerEntry is one immutable point mutation. Amount is signed
// (negative for spends) and BalanceAfter snapshots the running balance so
// the history reconciles without replaying from zero.
type PointLedgerEntry struct {
	EntryID              uuid.UUID
	CustomerID           uuid.UUID
	EntryType            string
	Amount               int64
	BalanceAfter         int64
	RelatedTransactionID *uuid.UUID
	RelatedCustomerID    *uuid.UUID
	Description          string
	CreatedAt            time.Time
}
