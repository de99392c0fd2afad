package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/domain"
)

// BalanceRepository owns the monetary ledger. Every mutating method executes
// as an atomic read-modify-write against the row locked for update, creating
// the balance lazily on first use. Callers never see partial state.
type BalanceRepository interface {
	Get(ctx context.Context, customerID uuid.UUID) (domain.AccountBalance, error)
	// Credit adds unconditionally; amount must be positive.
	Credit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error)
	// Lock reserves available funds, failing with ErrInsufficientFunds.
	Lock(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error)
	// Unlock releases a reservation, clamping at zero. The clamped flag lets
	// the caller log the anomaly without failing the release.
	Unlock(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, bool, error)
	// Deduct removes owned funds, failing with ErrInsufficientFunds. It does
	// not touch the locked amount; escrow release paths unlock alongside.
	Deduct(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error)
}

// PointMutation captures one point ledger movement before storage.
type PointMutation struct {
	CustomerID           uuid.UUID
	EntryType            string
	Amount               int64
	Description          string
	RelatedTransactionID *uuid.UUID
	RelatedCustomerID    *uuid.UUID
	At                   time.Time
}

// PointsRepository appends ledger entries and mutates the denormalized
// balance in one database transaction; an entry without its balance
// mutation, or vice versa, must be impossible.
type PointsRepository interface {
	GetBalance(ctx context.Context, customerID uuid.UUID) (domain.PointBalance, error)
	Earn(ctx context.Context, m PointMutation) (domain.PointBalance, error)
	Spend(ctx context.Context, m PointMutation) (domain.PointBalance, error)
	// Transfer spends from one customer and earns to another atomically,
	// locking both rows in ascending customer id order.
	Transfer(ctx context.Context, out, in PointMutation) error
	ListEntries(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]domain.PointLedgerEntry, error)
	// SumEntries recomputes the balance from the ledger for reconciliation.
	SumEntries(ctx context.Context, customerID uuid.UUID) (int64, error)
}

// FeeTierRepository stores the tiered fee schedule.
type FeeTierRepository interface {
	ListActive(ctx context.Context) ([]domain.FeeTier, error)
	List(ctx context.Context) ([]domain.FeeTier, error)
	Create(ctx context.Context, tier domain.FeeTier) error
	Deactivate(ctx context.Context, tierID uuid.UUID, at time.Time) error
}

// ReferralAccrual is the referral-side effect folded into a settlement.
// Zero Points still bumps the success counter.
type ReferralAccrual struct {
	ReferralID uuid.UUID
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	Points     int64
}

// SettleParams drives the atomic settlement of a transaction: guarded status
// flip, buyer unlock+deduct, seller credit, points reward and referral
// accrual all commit or roll back together. Balance rows are locked in
// ascending customer id order to avoid deadlock.
type SettleParams struct {
	TransactionID uuid.UUID
	// FromStatus guards the flip; a row no longer in it loses the race and
	// the whole settlement no-ops with ErrInvalidStateTransition.
	FromStatus    string
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	UnlockAmount  decimal.Decimal
	BuyerCharge   decimal.Decimal
	SellerCredit  decimal.Decimal
	PointsReward  int64
	PointsEntry   string
	Description   string
	Referral      *ReferralAccrual
	BuyerReceived bool
	At            time.Time
}

// EscrowRepository persists peer-to-peer escrow transactions. Multi-row
// methods carry the outbox events that must commit with them.
type EscrowRepository interface {
	// CreateWithLockTx inserts the transaction and locks the buyer's
	// amount+fee in one transaction. ErrConflict on a code collision.
	CreateWithLockTx(ctx context.Context, tx domain.EscrowTransaction, event OutboxEvent) error
	GetByID(ctx context.Context, transactionID uuid.UUID) (domain.EscrowTransaction, error)
	GetByCode(ctx context.Context, code string) (domain.EscrowTransaction, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]domain.EscrowTransaction, error)
	// MarkConfirmed flips pending->confirmed under guard.
	MarkConfirmed(ctx context.Context, transactionID uuid.UUID, at time.Time, event OutboxEvent) error
	// MarkShipped flips confirmed->seller_sent under guard and arms the
	// auto-complete deadline.
	MarkShipped(ctx context.Context, transactionID uuid.UUID, at, autoCompleteAt time.Time, event OutboxEvent) error
	SettleTx(ctx context.Context, params SettleParams, events []OutboxEvent) error
	// CancelTx flips pending|confirmed->cancelled and releases the buyer's
	// full lock with no fee retained.
	CancelTx(ctx context.Context, transactionID uuid.UUID, at time.Time, event OutboxEvent) error
	// ExpireTx flips pending->expired and releases the buyer's lock.
	ExpireTx(ctx context.Context, transactionID uuid.UUID, at time.Time, event OutboxEvent) error
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error)
	ListAutoCompletable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error)
}

// StoreRepository persists product-backed transactions and the availability
// state of their products.
type StoreRepository interface {
	CreateProduct(ctx context.Context, product domain.StoreProduct) error
	GetProduct(ctx context.Context, productID uuid.UUID) (domain.StoreProduct, error)
	// CreateWithLockTx inserts the transaction, locks the buyer's amount and
	// reserves the product, all guarded on the product being available.
	CreateWithLockTx(ctx context.Context, tx domain.StoreTransaction, event OutboxEvent) error
	GetByID(ctx context.Context, transactionID uuid.UUID) (domain.StoreTransaction, error)
	GetByCode(ctx context.Context, code string) (domain.StoreTransaction, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]domain.StoreTransaction, error)
	MarkConfirmed(ctx context.Context, transactionID uuid.UUID, at, autoCompleteAt time.Time, event OutboxEvent) error
	// SettleTx additionally marks the product sold; earlyComplete records a
	// buyer-initiated completion ahead of the deadline.
	SettleTx(ctx context.Context, params SettleParams, productID uuid.UUID, earlyComplete bool, events []OutboxEvent) error
	// CancelTx releases the buyer's lock and returns the product to available.
	CancelTx(ctx context.Context, transactionID uuid.UUID, at time.Time, event OutboxEvent) error
	ListAutoCompletable(ctx context.Context, now time.Time, limit int) ([]domain.StoreTransaction, error)
}

// DisputeResolveParams commits an adjudicated outcome and the resulting fund
// movement in one database transaction.
type DisputeResolveParams struct {
	DisputeID       uuid.UUID
	Outcome         string
	Notes           string
	RefundAmount    *decimal.Decimal
	TransactionType string
	TransactionID   uuid.UUID
	// FinalStatus is the transaction's terminal state: cancelled for
	// refund_buyer, completed otherwise.
	FinalStatus  string
	BuyerID      uuid.UUID
	SellerID     uuid.UUID
	UnlockAmount decimal.Decimal
	BuyerCharge  decimal.Decimal
	SellerCredit decimal.Decimal
	PointsReward int64
	Referral     *ReferralAccrual
	ProductID    *uuid.UUID
	At           time.Time
}

// DisputeRepository owns the adjudication workflow.
type DisputeRepository interface {
	// OpenTx inserts the dispute and flips the transaction to disputed under
	// guard; ErrConflict when an active dispute already references it.
	OpenTx(ctx context.Context, d domain.Dispute, event OutboxEvent) error
	GetByID(ctx context.Context, disputeID uuid.UUID) (domain.Dispute, error)
	GetActiveByTransaction(ctx context.Context, transactionType string, transactionID uuid.UUID) (domain.Dispute, error)
	ListByStatus(ctx context.Context, status domain.DisputeStatus, limit, offset int) ([]domain.Dispute, error)
	// Assign flips pending->processing under guard.
	Assign(ctx context.Context, disputeID, adjudicator uuid.UUID, at time.Time) error
	// CancelTx flips pending->cancelled and restores the transaction's
	// pre-dispute status.
	CancelTx(ctx context.Context, disputeID uuid.UUID, at time.Time, event OutboxEvent) error
	ResolveTx(ctx context.Context, params DisputeResolveParams, events []OutboxEvent) error
}

// ReferralRepository stores referrer/referred pairs.
type ReferralRepository interface {
	// Create fails with ErrConflict on a duplicate (referrer, referred) pair.
	Create(ctx context.Context, r domain.Referral) error
	GetByReferred(ctx context.Context, referredID uuid.UUID) (domain.Referral, error)
	ListByReferrer(ctx context.Context, referrerID uuid.UUID, limit, offset int) ([]domain.Referral, error)
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for domain events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// IdempotencyRecord tracks a previously accepted mutating request.
// Storing response metadata lets handlers return stable replay responses.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdempotencyRepository enforces idempotent mutation semantics for
// network-boundary callers such as the funding collaborator's webhook.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}
