package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/domain"
)

// Actor identifies the caller of a use case. SubjectID is the authenticated
// customer resolved by the identity collaborator upstream; IdempotencyKey is
// forwarded from the network boundary on mutating calls.
type Actor struct {
	SubjectID      uuid.UUID
	Role           string
	RequestID      string
	IdempotencyKey string
}

// Roles resolved by the identity collaborator. Customer is the default;
// admin covers back-office staff, service covers trusted internal callers
// on the gRPC surface.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleService  = "service"
)

type DepositRequest struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
}

type BalanceResponse struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	Locked     decimal.Decimal `json:"locked"`
	Available  decimal.Decimal `json:"available"`
}

type PointsResponse struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	Available   int64     `json:"available"`
	TotalEarned int64     `json:"total_earned"`
	TotalSpent  int64     `json:"total_spent"`
}

type PointHistoryQuery struct {
	Limit  int
	Offset int
}

type PointTransferRequest struct {
	ToCustomerID uuid.UUID `json:"to_customer_id"`
	Amount       int64     `json:"amount"`
	Description  string    `json:"description"`
}

type PointReconciliation struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Available  int64     `json:"available"`
	LedgerSum  int64     `json:"ledger_sum"`
	Consistent bool      `json:"consistent"`
}

type FeeQuoteResponse struct {
	Amount        decimal.Decimal `json:"amount"`
	DurationHours int             `json:"duration_hours"`
	Fee           decimal.Decimal `json:"fee"`
	PointsReward  int64           `json:"points_reward"`
}

type CreateFeeTierRequest struct {
	MinAmount                  decimal.Decimal  `json:"min_amount"`
	MaxAmount                  *decimal.Decimal `json:"max_amount"`
	FixedFee                   decimal.Decimal  `json:"fixed_fee"`
	PercentageFee              decimal.Decimal  `json:"percentage_fee"`
	ExtraDurationFeePercentage decimal.Decimal  `json:"extra_duration_fee_percentage"`
	PointsReward               int64            `json:"points_reward"`
}

type CreateEscrowRequest struct {
	SellerID      uuid.UUID       `json:"seller_id"`
	Amount        decimal.Decimal `json:"amount"`
	DurationHours int             `json:"duration_hours"`
}

type EscrowResponse struct {
	TransactionID  uuid.UUID       `json:"transaction_id"`
	Code           string          `json:"code"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	SellerID       uuid.UUID       `json:"seller_id"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	DurationHours  int             `json:"duration_hours"`
	Status         string          `json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	SellerSentAt   *time.Time      `json:"seller_sent_at,omitempty"`
	AutoCompleteAt *time.Time      `json:"auto_complete_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	DisputeID      *uuid.UUID      `json:"dispute_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CreateStoreTransactionRequest struct {
	ProductID uuid.UUID `json:"product_id"`
}

type StoreTransactionResponse struct {
	TransactionID      uuid.UUID       `json:"transaction_id"`
	Code               string          `json:"code"`
	BuyerID            uuid.UUID       `json:"buyer_id"`
	SellerID           uuid.UUID       `json:"seller_id"`
	ProductID          uuid.UUID       `json:"product_id"`
	Amount             decimal.Decimal `json:"amount"`
	Fee                decimal.Decimal `json:"fee"`
	Status             string          `json:"status"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	AutoCompleteAt     *time.Time      `json:"auto_complete_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	BuyerEarlyComplete bool            `json:"buyer_early_complete"`
	DisputeID          *uuid.UUID      `json:"dispute_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

type RaiseDisputeRequest struct {
	TransactionType string `json:"transaction_type"`
	TransactionCode string `json:"transaction_code"`
	Reason          string `json:"reason"`
	Evidence        string `json:"evidence"`
}

type ResolveDisputeRequest struct {
	Outcome      string           `json:"outcome"`
	Notes        string           `json:"notes"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
}

type DisputeResponse struct {
	DisputeID       uuid.UUID        `json:"dispute_id"`
	TransactionType string           `json:"transaction_type"`
	TransactionID   uuid.UUID        `json:"transaction_id"`
	CreatedBy       uuid.UUID        `json:"created_by"`
	Reason          string           `json:"reason"`
	Status          string           `json:"status"`
	AssignedTo      *uuid.UUID       `json:"assigned_to,omitempty"`
	Outcome         string           `json:"outcome,omitempty"`
	ResolutionNotes string           `json:"resolution_notes,omitempty"`
	RefundAmount    *decimal.Decimal `json:"refund_amount,omitempty"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type RegisterReferralRequest struct {
	ReferredID uuid.UUID `json:"referred_id"`
}

type ReferralResponse struct {
	ReferralID                 uuid.UUID  `json:"referral_id"`
	ReferrerID                 uuid.UUID  `json:"referrer_id"`
	ReferredID                 uuid.UUID  `json:"referred_id"`
	TotalPointsEarned          int64      `json:"total_points_earned"`
	SuccessfulTransactionCount int        `json:"successful_transaction_count"`
	FirstTransactionAt         *time.Time `json:"first_transaction_at,omitempty"`
	Status                     string     `json:"status"`
}

type SweepReport struct {
	Scanned int `json:"scanned"`
	Settled int `json:"settled"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func toBalanceResponse(b domain.AccountBalance) BalanceResponse {
	return BalanceResponse{
		CustomerID: b.CustomerID,
		Total:      b.Total,
		Locked:     b.Locked,
		Available:  b.Available(),
	}
}

func toPointsResponse(p domain.PointBalance) PointsResponse {
	return PointsResponse{
		CustomerID:  p.CustomerID,
		Available:   p.Available,
		TotalEarned: p.TotalEarned,
		TotalSpent:  p.TotalSpent,
	}
}

func toEscrowResponse(t domain.EscrowTransaction) EscrowResponse {
	return EscrowResponse{
		TransactionID:  t.TransactionID,
		Code:           t.Code,
		BuyerID:        t.BuyerID,
		SellerID:       t.SellerID,
		Amount:         t.Amount,
		Fee:            t.Fee,
		DurationHours:  t.DurationHours,
		Status:         string(t.Status),
		ExpiresAt:      t.ExpiresAt,
		ConfirmedAt:    t.ConfirmedAt,
		SellerSentAt:   t.SellerSentAt,
		AutoCompleteAt: t.AutoCompleteAt,
		CompletedAt:    t.CompletedAt,
		CancelledAt:    t.CancelledAt,
		DisputeID:      t.DisputeID,
		CreatedAt:      t.CreatedAt,
	}
}

func toStoreTransactionResponse(t domain.StoreTransaction) StoreTransactionResponse {
	return StoreTransactionResponse{
		TransactionID:      t.TransactionID,
		Code:               t.Code,
		BuyerID:            t.BuyerID,
		SellerID:           t.SellerID,
		ProductID:          t.ProductID,
		Amount:             t.Amount,
		Fee:                t.Fee,
		Status:             string(t.Status),
		ConfirmedAt:        t.ConfirmedAt,
		AutoCompleteAt:     t.AutoCompleteAt,
		CompletedAt:        t.CompletedAt,
		CancelledAt:        t.CancelledAt,
		BuyerEarlyComplete: t.BuyerEarlyComplete,
		DisputeID:          t.DisputeID,
		CreatedAt:          t.CreatedAt,
	}
}

func toDisputeResponse(d domain.Dispute) DisputeResponse {
	return DisputeResponse{
		DisputeID:       d.DisputeID,
		TransactionType: d.TransactionType,
		TransactionID:   d.TransactionID,
		CreatedBy:       d.CreatedBy,
		Reason:          d.Reason,
		Status:          string(d.Status),
		AssignedTo:      d.AssignedTo,
		Outcome:         d.Outcome,
		ResolutionNotes: d.ResolutionNotes,
		RefundAmount:    d.RefundAmount,
		ResolvedAt:      d.ResolvedAt,
		CreatedAt:       d.CreatedAt,
	}
}

func toReferralResponse(r domain.Referral) ReferralResponse {
	return ReferralResponse{
		ReferralID:                 r.ReferralID,
		ReferrerID:                 r.ReferrerID,
		ReferredID:                 r.ReferredID,
		TotalPointsEarned:          r.TotalPointsEarned,
		SuccessfulTransactionCount: r.SuccessfulTransactionCount,
		FirstTransactionAt:         r.FirstTransactionAt,
		Status:                     r.Status,
	}
}
