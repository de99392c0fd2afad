package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/application"
	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

func customer(id uuid.UUID) application.Actor {
	return application.Actor{SubjectID: id, Role: application.RoleCustomer}
}

func admin() application.Actor {
	return application.Actor{SubjectID: uuid.New(), Role: application.RoleAdmin}
}

func mustDeposit(t *testing.T, f *fixture, customerID uuid.UUID, amount int64) {
	t.Helper()
	actor := application.Actor{
		SubjectID:      customerID,
		Role:           application.RoleService,
		IdempotencyKey: uuid.NewString(),
	}
	_, err := f.service.Deposit(context.Background(), actor, application.DepositRequest{
		CustomerID: customerID,
		Amount:     decimal.NewFromInt(amount),
		Reference:  "test deposit",
	})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
}

func mustBalance(t *testing.T, f *fixture, customerID uuid.UUID) application.BalanceResponse {
	t.Helper()
	res, err := f.service.GetBalance(context.Background(), customerID)
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	return res
}

func TestQuoteFeeReferenceSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	res, err := f.service.QuoteFee(ctx, decimal.NewFromInt(99999), 1)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if !res.Fee.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected fee 4000, got %s", res.Fee)
	}
	if res.PointsReward != 40 {
		t.Fatalf("expected 40 points, got %d", res.PointsReward)
	}

	res, err = f.service.QuoteFee(ctx, decimal.NewFromInt(100000), 30)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if !res.Fee.Equal(decimal.NewFromInt(7200)) {
		t.Fatalf("expected fee 7200 with duration surcharge, got %s", res.Fee)
	}
	if res.PointsReward != 60 {
		t.Fatalf("expected 60 points, got %d", res.PointsReward)
	}
}

func TestQuoteFeeRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.QuoteFee(ctx, decimal.Zero, 1); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.service.QuoteFee(ctx, decimal.NewFromInt(100), -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative duration, got %v", err)
	}
}

func TestCreateFeeTierRejectsOverlap(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	_, err := f.service.CreateFeeTier(ctx, application.CreateFeeTierRequest{
		MinAmount: decimal.NewFromInt(50000),
		FixedFee:  decimal.NewFromInt(100),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for overlapping tier, got %v", err)
	}
}

func TestDepositIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	customerID := uuid.New()
	actor := application.Actor{
		SubjectID:      customerID,
		Role:           application.RoleService,
		IdempotencyKey: "dep-1",
	}
	req := application.DepositRequest{
		CustomerID: customerID,
		Amount:     decimal.NewFromInt(5000),
		Reference:  "psp-123",
	}

	first, err := f.service.Deposit(ctx, actor, req)
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	second, err := f.service.Deposit(ctx, actor, req)
	if err != nil {
		t.Fatalf("replayed deposit failed: %v", err)
	}
	if !second.Total.Equal(first.Total) {
		t.Fatalf("replay changed total: %s vs %s", second.Total, first.Total)
	}
	balance := mustBalance(t, f, customerID)
	if !balance.Total.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected single credit of 5000, got %s", balance.Total)
	}

	req.Amount = decimal.NewFromInt(9000)
	if _, err := f.service.Deposit(ctx, actor, req); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict on changed payload, got %v", err)
	}
}

func TestEscrowLifecycleSettlesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 200000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if !created.Fee.Equal(decimal.NewFromInt(7200)) {
		t.Fatalf("expected fee 7200, got %s", created.Fee)
	}
	if len(created.Code) != domain.TransactionCodeLength {
		t.Fatalf("expected %d-char code, got %q", domain.TransactionCodeLength, created.Code)
	}

	balance := mustBalance(t, f, buyerID)
	if !balance.Locked.Equal(decimal.NewFromInt(107200)) {
		t.Fatalf("expected amount+fee locked, got %s", balance.Locked)
	}
	if !balance.Available.Equal(decimal.NewFromInt(92800)) {
		t.Fatalf("expected available 92800, got %s", balance.Available)
	}

	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}
	settled, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID)
	if err != nil {
		t.Fatalf("confirm receipt failed: %v", err)
	}
	if settled.Status != string(domain.EscrowStatusCompleted) {
		t.Fatalf("expected completed, got %s", settled.Status)
	}

	buyerBalance := mustBalance(t, f, buyerID)
	if !buyerBalance.Total.Equal(decimal.NewFromInt(92800)) || !buyerBalance.Locked.IsZero() {
		t.Fatalf("expected buyer charged amount+fee, got total=%s locked=%s", buyerBalance.Total, buyerBalance.Locked)
	}
	sellerBalance := mustBalance(t, f, sellerID)
	if !sellerBalance.Total.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected seller credited amount, got %s", sellerBalance.Total)
	}

	points, err := f.service.GetPoints(ctx, buyerID)
	if err != nil {
		t.Fatalf("get points failed: %v", err)
	}
	if points.Available != 60 {
		t.Fatalf("expected 60 reward points, got %d", points.Available)
	}

	// A second settlement attempt must lose the status guard.
	if _, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid state on double settle, got %v", err)
	}
}

func TestEscrowCreateRejectsBadRequests(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()

	if _, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      buyerID,
		Amount:        decimal.NewFromInt(100),
		DurationHours: 1,
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected rejection of self-trade, got %v", err)
	}
	if _, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      uuid.New(),
		Amount:        decimal.NewFromInt(100),
		DurationHours: 100000,
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected rejection of excessive duration, got %v", err)
	}
	if _, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      uuid.New(),
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 1,
	}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestEscrowCancelReleasesFullLock(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 50000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(10000),
		DurationHours: 2,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}

	cancelled, err := f.service.CancelEscrow(ctx, customer(sellerID), created.TransactionID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != string(domain.EscrowStatusCancelled) {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	balance := mustBalance(t, f, buyerID)
	if !balance.Total.Equal(decimal.NewFromInt(50000)) || !balance.Locked.IsZero() {
		t.Fatalf("expected full release with fee, got total=%s locked=%s", balance.Total, balance.Locked)
	}
}

func TestEscrowTransitionAuthorization(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 50000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(10000),
		DurationHours: 2,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}

	if _, err := f.service.ConfirmEscrow(ctx, customer(buyerID), created.TransactionID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected buyer blocked from confirming, got %v", err)
	}
	if _, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected receipt blocked before shipment, got %v", err)
	}
	if _, err := f.service.GetEscrow(ctx, customer(uuid.New()), created.TransactionID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected stranger blocked from reading, got %v", err)
	}
	if _, err := f.service.GetEscrow(ctx, admin(), created.TransactionID); err != nil {
		t.Fatalf("expected admin read allowed, got %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	productID := uuid.New()
	mustDeposit(t, f, buyerID, 80000)

	if _, err := f.service.RegisterProduct(ctx, customer(sellerID), productID, decimal.NewFromInt(50000)); err != nil {
		t.Fatalf("register product failed: %v", err)
	}
	if _, err := f.service.CreateStoreTransaction(ctx, customer(sellerID), application.CreateStoreTransactionRequest{
		ProductID: productID,
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected seller blocked from buying own product, got %v", err)
	}

	created, err := f.service.CreateStoreTransaction(ctx, customer(buyerID), application.CreateStoreTransactionRequest{
		ProductID: productID,
	})
	if err != nil {
		t.Fatalf("create store transaction failed: %v", err)
	}
	if !created.Fee.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected base-rate fee 4000, got %s", created.Fee)
	}
	balance := mustBalance(t, f, buyerID)
	if !balance.Locked.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected product price locked, got %s", balance.Locked)
	}

	// The product is reserved; a second buyer cannot take it.
	otherBuyer := uuid.New()
	mustDeposit(t, f, otherBuyer, 80000)
	if _, err := f.service.CreateStoreTransaction(ctx, customer(otherBuyer), application.CreateStoreTransactionRequest{
		ProductID: productID,
	}); !errors.Is(err, domain.ErrProductUnavailable) {
		t.Fatalf("expected product unavailable, got %v", err)
	}

	if _, err := f.service.ConfirmStoreTransaction(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	settled, err := f.service.CompleteStoreTransaction(ctx, customer(buyerID), created.TransactionID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if settled.Status != string(domain.StoreStatusCompleted) {
		t.Fatalf("expected completed, got %s", settled.Status)
	}

	buyerBalance := mustBalance(t, f, buyerID)
	if !buyerBalance.Total.Equal(decimal.NewFromInt(30000)) || !buyerBalance.Locked.IsZero() {
		t.Fatalf("expected buyer charged the price, got total=%s locked=%s", buyerBalance.Total, buyerBalance.Locked)
	}
	sellerBalance := mustBalance(t, f, sellerID)
	if !sellerBalance.Total.Equal(decimal.NewFromInt(46000)) {
		t.Fatalf("expected seller credited price minus fee, got %s", sellerBalance.Total)
	}

	product, err := f.service.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Status != domain.ProductStatusSold {
		t.Fatalf("expected product sold, got %s", product.Status)
	}
}

func TestStoreCancelRestoresProduct(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	productID := uuid.New()
	mustDeposit(t, f, buyerID, 80000)

	if _, err := f.service.RegisterProduct(ctx, customer(sellerID), productID, decimal.NewFromInt(50000)); err != nil {
		t.Fatalf("register product failed: %v", err)
	}
	created, err := f.service.CreateStoreTransaction(ctx, customer(buyerID), application.CreateStoreTransactionRequest{
		ProductID: productID,
	})
	if err != nil {
		t.Fatalf("create store transaction failed: %v", err)
	}
	if _, err := f.service.CancelStoreTransaction(ctx, customer(buyerID), created.TransactionID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	balance := mustBalance(t, f, buyerID)
	if !balance.Total.Equal(decimal.NewFromInt(80000)) || !balance.Locked.IsZero() {
		t.Fatalf("expected full release, got total=%s locked=%s", balance.Total, balance.Locked)
	}
	product, err := f.service.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Status != domain.ProductStatusAvailable {
		t.Fatalf("expected product back to available, got %s", product.Status)
	}
}

func TestPointTransferAndReconciliation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()
	now := time.Now().UTC()

	if _, err := f.points.Earn(ctx, ports.PointMutation{
		CustomerID: fromID,
		EntryType:  domain.PointEntryAdjustment,
		Amount:     500,
		At:         now,
	}); err != nil {
		t.Fatalf("seed points failed: %v", err)
	}

	res, err := f.service.TransferPoints(ctx, customer(fromID), application.PointTransferRequest{
		ToCustomerID: toID,
		Amount:       200,
		Description:  "gift",
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.Available != 300 {
		t.Fatalf("expected sender at 300, got %d", res.Available)
	}
	recipient, err := f.service.GetPoints(ctx, toID)
	if err != nil {
		t.Fatalf("get points failed: %v", err)
	}
	if recipient.Available != 200 {
		t.Fatalf("expected recipient at 200, got %d", recipient.Available)
	}

	for _, id := range []uuid.UUID{fromID, toID} {
		rec, err := f.service.ReconcilePoints(ctx, id)
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if !rec.Consistent {
			t.Fatalf("ledger out of sync for %s: available=%d sum=%d", id, rec.Available, rec.LedgerSum)
		}
	}

	if _, err := f.service.TransferPoints(ctx, customer(fromID), application.PointTransferRequest{
		ToCustomerID: toID,
		Amount:       5000,
	}); !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	if _, err := f.service.TransferPoints(ctx, customer(fromID), application.PointTransferRequest{
		ToCustomerID: fromID,
		Amount:       10,
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected self-transfer rejected, got %v", err)
	}
}

func TestPointCeilingBlocksTransfer(t *testing.T) {
	t.Parallel()

	cfg := defaultTestConfig()
	cfg.MaxTotalPoints = 250
	f := newFixtureWithConfig(cfg)
	ctx := context.Background()
	fromID := uuid.New()
	toID := uuid.New()
	now := time.Now().UTC()

	for id, amount := range map[uuid.UUID]int64{fromID: 240, toID: 100} {
		if _, err := f.points.Earn(ctx, ports.PointMutation{
			CustomerID: id,
			EntryType:  domain.PointEntryAdjustment,
			Amount:     amount,
			At:         now,
		}); err != nil {
			t.Fatalf("seed points failed: %v", err)
		}
	}

	if _, err := f.service.TransferPoints(ctx, customer(fromID), application.PointTransferRequest{
		ToCustomerID: toID,
		Amount:       200,
	}); !errors.Is(err, domain.ErrPointCeilingReached) {
		t.Fatalf("expected ceiling rejection, got %v", err)
	}
}

func TestSettlementRewardCappedAtCeiling(t *testing.T) {
	t.Parallel()

	cfg := defaultTestConfig()
	cfg.MaxTotalPoints = 50
	f := newFixtureWithConfig(cfg)
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 200000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID); err != nil {
		t.Fatalf("confirm receipt failed: %v", err)
	}

	points, err := f.service.GetPoints(ctx, buyerID)
	if err != nil {
		t.Fatalf("get points failed: %v", err)
	}
	// The tier grants 60 but only 50 fit under the ceiling; the rest is
	// forfeited rather than failing the settlement.
	if points.Available != 50 {
		t.Fatalf("expected reward capped at 50, got %d", points.Available)
	}
}

func TestReferralBonusAccruesOnSettlement(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	referrerID := uuid.New()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 200000)

	if _, err := f.service.RegisterReferral(ctx, customer(referrerID), application.RegisterReferralRequest{
		ReferredID: buyerID,
	}); err != nil {
		t.Fatalf("register referral failed: %v", err)
	}
	if _, err := f.service.RegisterReferral(ctx, customer(uuid.New()), application.RegisterReferralRequest{
		ReferredID: buyerID,
	}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected second referrer rejected, got %v", err)
	}

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID); err != nil {
		t.Fatalf("confirm receipt failed: %v", err)
	}

	// 10% of the 60-point reward, floored.
	referrerPoints, err := f.service.GetPoints(ctx, referrerID)
	if err != nil {
		t.Fatalf("get points failed: %v", err)
	}
	if referrerPoints.Available != 6 {
		t.Fatalf("expected referrer bonus 6, got %d", referrerPoints.Available)
	}

	referrals, err := f.service.ListReferrals(ctx, customer(referrerID), 10, 0)
	if err != nil {
		t.Fatalf("list referrals failed: %v", err)
	}
	if len(referrals) != 1 {
		t.Fatalf("expected one referral, got %d", len(referrals))
	}
	r := referrals[0]
	if r.TotalPointsEarned != 6 || r.SuccessfulTransactionCount != 1 || r.FirstTransactionAt == nil {
		t.Fatalf("expected accrued referral counters, got %+v", r)
	}
}

func TestDisputeRefundBuyer(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	adjudicator := admin()
	mustDeposit(t, f, buyerID, 200000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}

	dispute, err := f.service.RaiseDispute(ctx, customer(buyerID), application.RaiseDisputeRequest{
		TransactionType: domain.TransactionTypeEscrow,
		TransactionCode: created.Code,
		Reason:          "item never arrived",
	})
	if err != nil {
		t.Fatalf("raise dispute failed: %v", err)
	}

	// The frozen transaction rejects settlement and a second dispute.
	if _, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected settlement blocked while disputed, got %v", err)
	}
	if _, err := f.service.RaiseDispute(ctx, customer(sellerID), application.RaiseDisputeRequest{
		TransactionType: domain.TransactionTypeEscrow,
		TransactionCode: created.Code,
		Reason:          "duplicate",
	}); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected second dispute blocked, got %v", err)
	}

	if _, err := f.service.AssignDispute(ctx, customer(buyerID), dispute.DisputeID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected customer blocked from assigning, got %v", err)
	}
	if _, err := f.service.AssignDispute(ctx, adjudicator, dispute.DisputeID); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	resolved, err := f.service.ResolveDispute(ctx, adjudicator, dispute.DisputeID, application.ResolveDisputeRequest{
		Outcome: domain.DisputeOutcomeRefundBuyer,
		Notes:   "seller could not prove shipment",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.Status != string(domain.DisputeStatusResolved) {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}

	balance := mustBalance(t, f, buyerID)
	if !balance.Total.Equal(decimal.NewFromInt(200000)) || !balance.Locked.IsZero() {
		t.Fatalf("expected full refund with fee, got total=%s locked=%s", balance.Total, balance.Locked)
	}
	if !mustBalance(t, f, sellerID).Total.IsZero() {
		t.Fatalf("expected seller unpaid on refund")
	}
	tx, err := f.service.GetEscrow(ctx, admin(), created.TransactionID)
	if err != nil {
		t.Fatalf("get escrow failed: %v", err)
	}
	if tx.Status != string(domain.EscrowStatusCancelled) {
		t.Fatalf("expected cancelled, got %s", tx.Status)
	}
}

func TestDisputePartialRefund(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	adjudicator := admin()
	mustDeposit(t, f, buyerID, 200000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}
	dispute, err := f.service.RaiseDispute(ctx, customer(buyerID), application.RaiseDisputeRequest{
		TransactionType: domain.TransactionTypeEscrow,
		TransactionCode: created.Code,
		Reason:          "item damaged",
	})
	if err != nil {
		t.Fatalf("raise dispute failed: %v", err)
	}
	if _, err := f.service.AssignDispute(ctx, adjudicator, dispute.DisputeID); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	tooMuch := decimal.NewFromInt(150000)
	if _, err := f.service.ResolveDispute(ctx, adjudicator, dispute.DisputeID, application.ResolveDisputeRequest{
		Outcome:      domain.DisputeOutcomePartialRefund,
		RefundAmount: &tooMuch,
	}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected refund above amount rejected, got %v", err)
	}

	refund := decimal.NewFromInt(30000)
	if _, err := f.service.ResolveDispute(ctx, adjudicator, dispute.DisputeID, application.ResolveDisputeRequest{
		Outcome:      domain.DisputeOutcomePartialRefund,
		Notes:        "split the damage",
		RefundAmount: &refund,
	}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// Lock was 107200; the buyer keeps the 30000 refund and pays the rest.
	buyerBalance := mustBalance(t, f, buyerID)
	if !buyerBalance.Total.Equal(decimal.NewFromInt(122800)) || !buyerBalance.Locked.IsZero() {
		t.Fatalf("expected buyer at 122800, got total=%s locked=%s", buyerBalance.Total, buyerBalance.Locked)
	}
	sellerBalance := mustBalance(t, f, sellerID)
	if !sellerBalance.Total.Equal(decimal.NewFromInt(70000)) {
		t.Fatalf("expected seller at 70000, got %s", sellerBalance.Total)
	}
	// No points reward on a partial refund.
	points, err := f.service.GetPoints(ctx, buyerID)
	if err != nil {
		t.Fatalf("get points failed: %v", err)
	}
	if points.Available != 0 {
		t.Fatalf("expected no reward, got %d", points.Available)
	}
}

func TestDisputeCancelRestoresPriorStatus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 200000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}
	dispute, err := f.service.RaiseDispute(ctx, customer(buyerID), application.RaiseDisputeRequest{
		TransactionType: domain.TransactionTypeEscrow,
		TransactionCode: created.Code,
		Reason:          "late delivery",
	})
	if err != nil {
		t.Fatalf("raise dispute failed: %v", err)
	}

	if _, err := f.service.CancelDispute(ctx, customer(sellerID), dispute.DisputeID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected non-creator blocked, got %v", err)
	}
	if _, err := f.service.CancelDispute(ctx, customer(buyerID), dispute.DisputeID); err != nil {
		t.Fatalf("cancel dispute failed: %v", err)
	}

	tx, err := f.service.GetEscrow(ctx, customer(buyerID), created.TransactionID)
	if err != nil {
		t.Fatalf("get escrow failed: %v", err)
	}
	if tx.Status != string(domain.EscrowStatusSellerSent) {
		t.Fatalf("expected seller_sent restored, got %s", tx.Status)
	}

	// The restored transaction settles normally.
	if _, err := f.service.ConfirmEscrowReceipt(ctx, customer(buyerID), created.TransactionID); err != nil {
		t.Fatalf("settle after cancelled dispute failed: %v", err)
	}
}

func TestSweepExpiredEscrows(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	mustDeposit(t, f, buyerID, 50000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      uuid.New(),
		Amount:        decimal.NewFromInt(10000),
		DurationHours: 2,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}

	f.escrows.mu.Lock()
	tx := f.escrows.rows[created.TransactionID]
	tx.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	f.escrows.rows[created.TransactionID] = tx
	f.escrows.mu.Unlock()

	report, err := f.service.SweepExpiredEscrows(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.Settled != 1 || report.Failed != 0 {
		t.Fatalf("expected one expiry, got %+v", report)
	}

	balance := mustBalance(t, f, buyerID)
	if !balance.Total.Equal(decimal.NewFromInt(50000)) || !balance.Locked.IsZero() {
		t.Fatalf("expected lock released, got total=%s locked=%s", balance.Total, balance.Locked)
	}
	got, err := f.service.GetEscrow(ctx, customer(buyerID), created.TransactionID)
	if err != nil {
		t.Fatalf("get escrow failed: %v", err)
	}
	if got.Status != string(domain.EscrowStatusExpired) {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

func TestSweepEscrowAutoComplete(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	buyerID := uuid.New()
	sellerID := uuid.New()
	mustDeposit(t, f, buyerID, 200000)

	created, err := f.service.CreateEscrow(ctx, customer(buyerID), application.CreateEscrowRequest{
		SellerID:      sellerID,
		Amount:        decimal.NewFromInt(100000),
		DurationHours: 30,
	})
	if err != nil {
		t.Fatalf("create escrow failed: %v", err)
	}
	if _, err := f.service.ConfirmEscrow(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.service.MarkEscrowShipped(ctx, customer(sellerID), created.TransactionID); err != nil {
		t.Fatalf("mark shipped failed: %v", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	f.escrows.mu.Lock()
	tx := f.escrows.rows[created.TransactionID]
	tx.AutoCompleteAt = &past
	f.escrows.rows[created.TransactionID] = tx
	f.escrows.mu.Unlock()

	report, err := f.service.SweepEscrowAutoComplete(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.Settled != 1 {
		t.Fatalf("expected one settlement, got %+v", report)
	}

	got, err := f.service.GetEscrow(ctx, customer(buyerID), created.TransactionID)
	if err != nil {
		t.Fatalf("get escrow failed: %v", err)
	}
	if got.Status != string(domain.EscrowStatusCompleted) {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	// The sweep settles without a buyer receipt.
	f.escrows.mu.Lock()
	receivedAt := f.escrows.rows[created.TransactionID].BuyerReceivedAt
	f.escrows.mu.Unlock()
	if receivedAt != nil {
		t.Fatalf("expected no buyer receipt timestamp on auto-complete")
	}
	if !mustBalance(t, f, sellerID).Total.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected seller credited by sweep")
	}
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.locks.mu.Lock()
	f.locks.held["sweep:escrow:expire"] = true
	f.locks.mu.Unlock()

	report, err := f.service.SweepExpiredEscrows(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.Scanned != 0 || report.Settled != 0 {
		t.Fatalf("expected skipped cycle, got %+v", report)
	}
}
