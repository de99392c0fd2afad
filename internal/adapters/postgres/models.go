package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type balanceModel struct {
	CustomerID uuid.UUID       `gorm:"column:customer_id;type:uuid;primaryKey"`
	Total      decimal.Decimal `gorm:"column:total;type:numeric(20,2)"`
	Locked     decimal.Decimal `gorm:"column:locked;type:numeric(20,2)"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (balanceModel) TableName() string { return "account_balances" }

type pointBalanceModel struct {
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;primaryKey"`
	Available   int64     `gorm:"column:available"`
	TotalEarned int64     `gorm:"column:total_earned"`
	TotalSpent  int64     `gorm:"column:total_spent"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (pointBalanceModel) TableName() string { return "point_balances" }

type pointEntryModel struct {
	EntryID              uuid.UUID  `gorm:"column:entry_id;type:uuid;primaryKey"`
	CustomerID           uuid.UUID  `gorm:"column:customer_id;type:uuid"`
	EntryType            string     `gorm:"column:entry_type"`
	Amount               int64      `gorm:"column:amount"`
	BalanceAfter         int64      `gorm:"column:balance_after"`
	RelatedTransactionID *uuid.UUID `gorm:"column:related_transaction_id;type:uuid"`
	RelatedCustomerID    *uuid.UUID `gorm:"column:related_customer_id;type:uuid"`
	Description          string     `gorm:"column:description"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
}

func (pointEntryModel) TableName() string { return "point_ledger_entries" }

type feeTierModel struct {
	TierID                     uuid.UUID        `gorm:"column:tier_id;type:uuid;primaryKey"`
	MinAmount                  decimal.Decimal  `gorm:"column:min_amount;type:numeric(20,2)"`
	MaxAmount                  *decimal.Decimal `gorm:"column:max_amount;type:numeric(20,2)"`
	FixedFee                   decimal.Decimal  `gorm:"column:fixed_fee;type:numeric(20,2)"`
	PercentageFee              decimal.Decimal  `gorm:"column:percentage_fee;type:numeric(8,4)"`
	ExtraDurationFeePercentage decimal.Decimal  `gorm:"column:extra_duration_fee_percentage;type:numeric(8,4)"`
	PointsReward               int64            `gorm:"column:points_reward"`
	Active                     bool             `gorm:"column:active"`
	CreatedAt                  time.Time        `gorm:"column:created_at"`
	DeactivatedAt              *time.Time       `gorm:"column:deactivated_at"`
}

func (feeTierModel) TableName() string { return "fee_tiers" }

type escrowModel struct {
	TransactionID   uuid.UUID       `gorm:"column:transaction_id;type:uuid;primaryKey"`
	Code            string          `gorm:"column:code"`
	BuyerID         uuid.UUID       `gorm:"column:buyer_id;type:uuid"`
	SellerID        uuid.UUID       `gorm:"column:seller_id;type:uuid"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(20,2)"`
	Fee             decimal.Decimal `gorm:"column:fee;type:numeric(20,2)"`
	DurationHours   int             `gorm:"column:duration_hours"`
	Status          string          `gorm:"column:status"`
	ConfirmedAt     *time.Time      `gorm:"column:confirmed_at"`
	SellerSentAt    *time.Time      `gorm:"column:seller_sent_at"`
	BuyerReceivedAt *time.Time      `gorm:"column:buyer_received_at"`
	ExpiresAt       time.Time       `gorm:"column:expires_at"`
	AutoCompleteAt  *time.Time      `gorm:"column:auto_complete_at"`
	CompletedAt     *time.Time      `gorm:"column:completed_at"`
	CancelledAt     *time.Time      `gorm:"column:cancelled_at"`
	DisputeID       *uuid.UUID      `gorm:"column:dispute_id;type:uuid"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (escrowModel) TableName() string { return "escrow_transactions" }

type productModel struct {
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	SellerID  uuid.UUID       `gorm:"column:seller_id;type:uuid"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(20,2)"`
	Status    string          `gorm:"column:status"`
	CreatedAt time.Time       `gorm:"column:created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (productModel) TableName() string { return "store_products" }

type storeModel struct {
	TransactionID      uuid.UUID       `gorm:"column:transaction_id;type:uuid;primaryKey"`
	Code               string          `gorm:"column:code"`
	BuyerID            uuid.UUID       `gorm:"column:buyer_id;type:uuid"`
	SellerID           uuid.UUID       `gorm:"column:seller_id;type:uuid"`
	ProductID          uuid.UUID       `gorm:"column:product_id;type:uuid"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(20,2)"`
	Fee                decimal.Decimal `gorm:"column:fee;type:numeric(20,2)"`
	Status             string          `gorm:"column:status"`
	ConfirmedAt        *time.Time      `gorm:"column:confirmed_at"`
	AutoCompleteAt     *time.Time      `gorm:"column:auto_complete_at"`
	CompletedAt        *time.Time      `gorm:"column:completed_at"`
	CancelledAt        *time.Time      `gorm:"column:cancelled_at"`
	BuyerEarlyComplete bool            `gorm:"column:buyer_early_complete"`
	DisputeID          *uuid.UUID      `gorm:"column:dispute_id;type:uuid"`
	CreatedAt          time.Time       `gorm:"column:created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at"`
}

func (storeModel) TableName() string { return "store_transactions" }

type disputeModel struct {
	DisputeID       uuid.UUID        `gorm:"column:dispute_id;type:uuid;primaryKey"`
	TransactionType string           `gorm:"column:transaction_type"`
	TransactionID   uuid.UUID        `gorm:"column:transaction_id;type:uuid"`
	CreatedBy       uuid.UUID        `gorm:"column:created_by;type:uuid"`
	Reason          string           `gorm:"column:reason"`
	Evidence        string           `gorm:"column:evidence"`
	Status          string           `gorm:"column:status"`
	PriorStatus     string           `gorm:"column:prior_status"`
	AssignedTo      *uuid.UUID       `gorm:"column:assigned_to;type:uuid"`
	Outcome         string           `gorm:"column:outcome"`
	ResolutionNotes string           `gorm:"column:resolution_notes"`
	RefundAmount    *decimal.Decimal `gorm:"column:refund_amount;type:numeric(20,2)"`
	ResolvedAt      *time.Time       `gorm:"column:resolved_at"`
	CreatedAt       time.Time        `gorm:"column:created_at"`
	UpdatedAt       time.Time        `gorm:"column:updated_at"`
}

func (disputeModel) TableName() string { return "disputes" }

type referralModel struct {
	ReferralID                 uuid.UUID  `gorm:"column:referral_id;type:uuid;primaryKey"`
	ReferrerID                 uuid.UUID  `gorm:"column:referrer_id;type:uuid"`
	ReferredID                 uuid.UUID  `gorm:"column:referred_id;type:uuid"`
	TotalPointsEarned          int64      `gorm:"column:total_points_earned"`
	SuccessfulTransactionCount int        `gorm:"column:successful_transaction_count"`
	FirstTransactionAt         *time.Time `gorm:"column:first_transaction_at"`
	Status                     string     `gorm:"column:status"`
	CreatedAt                  time.Time  `gorm:"column:created_at"`
	UpdatedAt                  time.Time  `gorm:"column:updated_at"`
}

func (referralModel) TableName() string { return "referrals" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "escrow_outbox" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:jsonb"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "escrow_idempotency" }
