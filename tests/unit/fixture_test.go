package unit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peertrade/escrow-core/internal/application"
	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

type fixture struct {
	service   *application.Service
	balances  *fakeBalances
	points    *fakePoints
	feeTiers  *fakeFeeTiers
	escrows   *fakeEscrows
	stores    *fakeStores
	disputes  *fakeDisputes
	referrals *fakeReferrals
	outbox    *fakeOutbox
	locks     *fakeSweepLocks
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func defaultTestConfig() application.Config {
	return application.Config{
		MaxTotalPoints:          1_000_000,
		ReferralRewardPercent:   10,
		EscrowAutoCompleteHours: 72,
		StoreAutoCompleteHours:  72,
		MaxDurationHours:        720,
		ConflictRetries:         3,
		IdempotencyTTL:          7 * 24 * time.Hour,
		SweepBatchSize:          100,
	}
}

// referenceTiers mirrors the seeded production schedule: flat fees with a 20%
// duration surcharge and flat point rewards per amount band.
func referenceTiers() []domain.FeeTier {
	maxLow := decimal.RequireFromString("99999.99")
	maxMid := decimal.RequireFromString("499999.99")
	surcharge := decimal.NewFromInt(20)
	return []domain.FeeTier{
		{
			TierID:                     uuid.New(),
			MinAmount:                  decimal.Zero,
			MaxAmount:                  &maxLow,
			FixedFee:                   decimal.NewFromInt(4000),
			ExtraDurationFeePercentage: surcharge,
			PointsReward:               40,
			Active:                     true,
		},
		{
			TierID:                     uuid.New(),
			MinAmount:                  decimal.NewFromInt(100000),
			MaxAmount:                  &maxMid,
			FixedFee:                   decimal.NewFromInt(6000),
			ExtraDurationFeePercentage: surcharge,
			PointsReward:               60,
			Active:                     true,
		},
		{
			TierID:                     uuid.New(),
			MinAmount:                  decimal.NewFromInt(500000),
			FixedFee:                   decimal.NewFromInt(10000),
			ExtraDurationFeePercentage: surcharge,
			PointsReward:               100,
			Active:                     true,
		},
	}
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	balances := &fakeBalances{rows: map[uuid.UUID]domain.AccountBalance{}}
	points := &fakePoints{rows: map[uuid.UUID]domain.PointBalance{}}
	referrals := &fakeReferrals{byReferred: map[uuid.UUID]domain.Referral{}}
	feeTiers := &fakeFeeTiers{tiers: referenceTiers()}
	outbox := &fakeOutbox{}
	escrows := &fakeEscrows{
		rows:      map[uuid.UUID]domain.EscrowTransaction{},
		byCode:    map[string]uuid.UUID{},
		balances:  balances,
		points:    points,
		referrals: referrals,
	}
	stores := &fakeStores{
		products:  map[uuid.UUID]domain.StoreProduct{},
		rows:      map[uuid.UUID]domain.StoreTransaction{},
		byCode:    map[string]uuid.UUID{},
		balances:  balances,
		points:    points,
		referrals: referrals,
	}
	disputes := &fakeDisputes{
		rows:      map[uuid.UUID]domain.Dispute{},
		escrows:   escrows,
		stores:    stores,
		balances:  balances,
		points:    points,
		referrals: referrals,
	}
	locks := &fakeSweepLocks{held: map[string]bool{}}

	svc := application.NewService(application.Dependencies{
		Config:      cfg,
		Balances:    balances,
		Points:      points,
		FeeTiers:    feeTiers,
		Escrows:     escrows,
		Stores:      stores,
		Disputes:    disputes,
		Referrals:   referrals,
		Outbox:      outbox,
		Idempotency: &fakeIdempotency{records: map[string]ports.IdempotencyRecord{}},
		SweepLocks:  locks,
	})

	return &fixture{
		service:   svc,
		balances:  balances,
		points:    points,
		feeTiers:  feeTiers,
		escrows:   escrows,
		stores:    stores,
		disputes:  disputes,
		referrals: referrals,
		outbox:    outbox,
		locks:     locks,
	}
}

type fakeBalances struct {
	mu   sync.Mutex
	rows map[uuid.UUID]domain.AccountBalance
}

func (f *fakeBalances) row(customerID uuid.UUID, at time.Time) domain.AccountBalance {
	b, ok := f.rows[customerID]
	if !ok {
		b = domain.AccountBalance{
			CustomerID: customerID,
			Total:      decimal.Zero,
			Locked:     decimal.Zero,
			CreatedAt:  at,
		}
	}
	return b
}

func (f *fakeBalances) Get(_ context.Context, customerID uuid.UUID) (domain.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[customerID]
	if !ok {
		return domain.AccountBalance{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBalances) Credit(_ context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.row(customerID, at)
	b.Total = b.Total.Add(amount)
	b.UpdatedAt = at
	f.rows[customerID] = b
	return b, nil
}

func (f *fakeBalances) Lock(_ context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.row(customerID, at)
	if b.Available().LessThan(amount) {
		return domain.AccountBalance{}, domain.ErrInsufficientFunds
	}
	b.Locked = b.Locked.Add(amount)
	b.UpdatedAt = at
	f.rows[customerID] = b
	return b, nil
}

func (f *fakeBalances) Unlock(_ context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.row(customerID, at)
	clamped := false
	if b.Locked.LessThan(amount) {
		amount = b.Locked
		clamped = true
	}
	b.Locked = b.Locked.Sub(amount)
	b.UpdatedAt = at
	f.rows[customerID] = b
	return b, clamped, nil
}

func (f *fakeBalances) Deduct(_ context.Context, customerID uuid.UUID, amount decimal.Decimal, at time.Time) (domain.AccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.row(customerID, at)
	if b.Total.LessThan(amount) {
		return domain.AccountBalance{}, domain.ErrInsufficientFunds
	}
	b.Total = b.Total.Sub(amount)
	b.UpdatedAt = at
	if !b.CheckInvariant() {
		return domain.AccountBalance{}, domain.ErrInsufficientFunds
	}
	f.rows[customerID] = b
	return b, nil
}

type fakePoints struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]domain.PointBalance
	entries []domain.PointLedgerEntry
}

func (f *fakePoints) GetBalance(_ context.Context, customerID uuid.UUID) (domain.PointBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[customerID]
	if !ok {
		return domain.PointBalance{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakePoints) Earn(_ context.Context, m ports.PointMutation) (domain.PointBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.earn(m), nil
}

func (f *fakePoints) earn(m ports.PointMutation) domain.PointBalance {
	b := f.rows[m.CustomerID]
	b.CustomerID = m.CustomerID
	b.Available += m.Amount
	b.TotalEarned += m.Amount
	b.UpdatedAt = m.At
	f.rows[m.CustomerID] = b
	f.append(m, m.Amount, b.Available)
	return b
}

func (f *fakePoints) Spend(_ context.Context, m ports.PointMutation) (domain.PointBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spend(m)
}

func (f *fakePoints) spend(m ports.PointMutation) (domain.PointBalance, error) {
	b := f.rows[m.CustomerID]
	if b.Available < m.Amount {
		return domain.PointBalance{}, domain.ErrInsufficientPoints
	}
	b.Available -= m.Amount
	b.TotalSpent += m.Amount
	b.UpdatedAt = m.At
	f.rows[m.CustomerID] = b
	f.append(m, -m.Amount, b.Available)
	return b, nil
}

func (f *fakePoints) Transfer(_ context.Context, out, in ports.PointMutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.spend(out); err != nil {
		return err
	}
	f.earn(in)
	return nil
}

func (f *fakePoints) append(m ports.PointMutation, signedAmount, balanceAfter int64) {
	f.entries = append(f.entries, domain.PointLedgerEntry{
		EntryID:              uuid.New(),
		CustomerID:           m.CustomerID,
		EntryType:            m.EntryType,
		Amount:               signedAmount,
		BalanceAfter:         balanceAfter,
		RelatedTransactionID: m.RelatedTransactionID,
		RelatedCustomerID:    m.RelatedCustomerID,
		Description:          m.Description,
		CreatedAt:            m.At,
	})
}

func (f *fakePoints) ListEntries(_ context.Context, customerID uuid.UUID, limit, offset int) ([]domain.PointLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PointLedgerEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].CustomerID == customerID {
			out = append(out, f.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePoints) SumEntries(_ context.Context, customerID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.CustomerID == customerID {
			sum += e.Amount
		}
	}
	return sum, nil
}

type fakeFeeTiers struct {
	mu    sync.Mutex
	tiers []domain.FeeTier
}

func (f *fakeFeeTiers) ListActive(_ context.Context) ([]domain.FeeTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FeeTier
	for _, t := range f.tiers {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeFeeTiers) List(_ context.Context) ([]domain.FeeTier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FeeTier(nil), f.tiers...), nil
}

func (f *fakeFeeTiers) Create(_ context.Context, tier domain.FeeTier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiers = append(f.tiers, tier)
	return nil
}

func (f *fakeFeeTiers) Deactivate(_ context.Context, tierID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tiers {
		if f.tiers[i].TierID == tierID && f.tiers[i].Active {
			f.tiers[i].Active = false
			f.tiers[i].DeactivatedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

// settlement is the fund movement every settling fake shares: release the
// buyer's reservation, charge what the platform and seller keep, credit the
// seller, award points and accrue the referral.
type settlement struct {
	transactionID uuid.UUID
	buyerID       uuid.UUID
	sellerID      uuid.UUID
	unlock        decimal.Decimal
	buyerCharge   decimal.Decimal
	sellerCredit  decimal.Decimal
	points        int64
	entryType     string
	description   string
	referral      *ports.ReferralAccrual
	at            time.Time
}

func applySettlement(balances *fakeBalances, points *fakePoints, referrals *fakeReferrals, s settlement) error {
	ctx := context.Background()
	if _, _, err := balances.Unlock(ctx, s.buyerID, s.unlock, s.at); err != nil {
		return err
	}
	if s.buyerCharge.IsPositive() {
		if _, err := balances.Deduct(ctx, s.buyerID, s.buyerCharge, s.at); err != nil {
			return err
		}
	}
	if s.sellerCredit.IsPositive() {
		if _, err := balances.Credit(ctx, s.sellerID, s.sellerCredit, s.at); err != nil {
			return err
		}
	}
	if s.points > 0 {
		txID := s.transactionID
		if _, err := points.Earn(ctx, ports.PointMutation{
			CustomerID:           s.buyerID,
			EntryType:            s.entryType,
			Amount:               s.points,
			Description:          s.description,
			RelatedTransactionID: &txID,
			At:                   s.at,
		}); err != nil {
			return err
		}
	}
	if s.referral != nil {
		if s.referral.Points > 0 {
			txID := s.transactionID
			referred := s.referral.ReferredID
			if _, err := points.Earn(ctx, ports.PointMutation{
				CustomerID:           s.referral.ReferrerID,
				EntryType:            domain.PointEntryReferralBonus,
				Amount:               s.referral.Points,
				Description:          s.description,
				RelatedTransactionID: &txID,
				RelatedCustomerID:    &referred,
				At:                   s.at,
			}); err != nil {
				return err
			}
		}
		referrals.accrue(*s.referral, s.at)
	}
	return nil
}

type fakeEscrows struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]domain.EscrowTransaction
	byCode    map[string]uuid.UUID
	balances  *fakeBalances
	points    *fakePoints
	referrals *fakeReferrals
}

func (f *fakeEscrows) CreateWithLockTx(ctx context.Context, tx domain.EscrowTransaction, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byCode[tx.Code]; exists {
		return domain.ErrConflict
	}
	if _, err := f.balances.Lock(ctx, tx.BuyerID, tx.LockedAmount(), tx.CreatedAt); err != nil {
		return err
	}
	f.rows[tx.TransactionID] = tx
	f.byCode[tx.Code] = tx.TransactionID
	return nil
}

func (f *fakeEscrows) GetByID(_ context.Context, transactionID uuid.UUID) (domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok {
		return domain.EscrowTransaction{}, domain.ErrNotFound
	}
	return tx, nil
}

func (f *fakeEscrows) GetByCode(_ context.Context, code string) (domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byCode[code]
	if !ok {
		return domain.EscrowTransaction{}, domain.ErrNotFound
	}
	return f.rows[id], nil
}

func (f *fakeEscrows) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EscrowTransaction
	for _, tx := range f.rows {
		if tx.BuyerID == customerID || tx.SellerID == customerID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeEscrows) MarkConfirmed(_ context.Context, transactionID uuid.UUID, at time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.EscrowStatusPending {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.EscrowStatusConfirmed
	tx.ConfirmedAt = &at
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeEscrows) MarkShipped(_ context.Context, transactionID uuid.UUID, at, autoCompleteAt time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.EscrowStatusConfirmed {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.EscrowStatusSellerSent
	tx.SellerSentAt = &at
	tx.AutoCompleteAt = &autoCompleteAt
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeEscrows) SettleTx(_ context.Context, params ports.SettleParams, _ []ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[params.TransactionID]
	if !ok || string(tx.Status) != params.FromStatus {
		return domain.ErrInvalidStateTransition
	}
	if err := applySettlement(f.balances, f.points, f.referrals, settlement{
		transactionID: params.TransactionID,
		buyerID:       params.BuyerID,
		sellerID:      params.SellerID,
		unlock:        params.UnlockAmount,
		buyerCharge:   params.BuyerCharge,
		sellerCredit:  params.SellerCredit,
		points:        params.PointsReward,
		entryType:     params.PointsEntry,
		description:   params.Description,
		referral:      params.Referral,
		at:            params.At,
	}); err != nil {
		return err
	}
	tx.Status = domain.EscrowStatusCompleted
	tx.CompletedAt = &params.At
	if params.BuyerReceived {
		tx.BuyerReceivedAt = &params.At
	}
	tx.UpdatedAt = params.At
	f.rows[params.TransactionID] = tx
	return nil
}

func (f *fakeEscrows) CancelTx(ctx context.Context, transactionID uuid.UUID, at time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || !tx.CanCancel() {
		return domain.ErrInvalidStateTransition
	}
	if _, _, err := f.balances.Unlock(ctx, tx.BuyerID, tx.LockedAmount(), at); err != nil {
		return err
	}
	tx.Status = domain.EscrowStatusCancelled
	tx.CancelledAt = &at
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeEscrows) ExpireTx(ctx context.Context, transactionID uuid.UUID, at time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.EscrowStatusPending {
		return domain.ErrInvalidStateTransition
	}
	if _, _, err := f.balances.Unlock(ctx, tx.BuyerID, tx.LockedAmount(), at); err != nil {
		return err
	}
	tx.Status = domain.EscrowStatusExpired
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeEscrows) ListExpirable(_ context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EscrowTransaction
	for _, tx := range f.rows {
		if tx.Status == domain.EscrowStatusPending && now.After(tx.ExpiresAt) {
			out = append(out, tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEscrows) ListAutoCompletable(_ context.Context, now time.Time, limit int) ([]domain.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EscrowTransaction
	for _, tx := range f.rows {
		if tx.Status == domain.EscrowStatusSellerSent && tx.AutoCompleteAt != nil && now.After(*tx.AutoCompleteAt) {
			out = append(out, tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// markDisputed and restore are how the dispute fake mutates escrow state,
// mirroring the repository transaction that spans both tables.
func (f *fakeEscrows) markDisputed(transactionID, disputeID uuid.UUID, prior string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || string(tx.Status) != prior {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.EscrowStatusDisputed
	tx.DisputeID = &disputeID
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeEscrows) restore(transactionID uuid.UUID, prior string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.EscrowStatusDisputed {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.EscrowStatus(prior)
	tx.DisputeID = nil
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeEscrows) finalize(transactionID uuid.UUID, final string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.EscrowStatusDisputed {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.EscrowStatus(final)
	switch tx.Status {
	case domain.EscrowStatusCompleted:
		tx.CompletedAt = &at
	case domain.EscrowStatusCancelled:
		tx.CancelledAt = &at
	}
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

type fakeStores struct {
	mu        sync.Mutex
	products  map[uuid.UUID]domain.StoreProduct
	rows      map[uuid.UUID]domain.StoreTransaction
	byCode    map[string]uuid.UUID
	balances  *fakeBalances
	points    *fakePoints
	referrals *fakeReferrals
}

func (f *fakeStores) CreateProduct(_ context.Context, product domain.StoreProduct) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.products[product.ProductID]; exists {
		return domain.ErrConflict
	}
	f.products[product.ProductID] = product
	return nil
}

func (f *fakeStores) GetProduct(_ context.Context, productID uuid.UUID) (domain.StoreProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return domain.StoreProduct{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeStores) CreateWithLockTx(ctx context.Context, tx domain.StoreTransaction, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byCode[tx.Code]; exists {
		return domain.ErrConflict
	}
	p, ok := f.products[tx.ProductID]
	if !ok || p.Status != domain.ProductStatusAvailable {
		return domain.ErrProductUnavailable
	}
	if _, err := f.balances.Lock(ctx, tx.BuyerID, tx.Amount, tx.CreatedAt); err != nil {
		return err
	}
	p.Status = domain.ProductStatusReserved
	p.UpdatedAt = tx.CreatedAt
	f.products[tx.ProductID] = p
	f.rows[tx.TransactionID] = tx
	f.byCode[tx.Code] = tx.TransactionID
	return nil
}

func (f *fakeStores) GetByID(_ context.Context, transactionID uuid.UUID) (domain.StoreTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok {
		return domain.StoreTransaction{}, domain.ErrNotFound
	}
	return tx, nil
}

func (f *fakeStores) GetByCode(_ context.Context, code string) (domain.StoreTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byCode[code]
	if !ok {
		return domain.StoreTransaction{}, domain.ErrNotFound
	}
	return f.rows[id], nil
}

func (f *fakeStores) ListByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]domain.StoreTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StoreTransaction
	for _, tx := range f.rows {
		if tx.BuyerID == customerID || tx.SellerID == customerID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStores) MarkConfirmed(_ context.Context, transactionID uuid.UUID, at, autoCompleteAt time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.StoreStatusPending {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.StoreStatusProcessing
	tx.ConfirmedAt = &at
	tx.AutoCompleteAt = &autoCompleteAt
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeStores) SettleTx(_ context.Context, params ports.SettleParams, productID uuid.UUID, earlyComplete bool, _ []ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[params.TransactionID]
	if !ok || string(tx.Status) != params.FromStatus {
		return domain.ErrInvalidStateTransition
	}
	if err := applySettlement(f.balances, f.points, f.referrals, settlement{
		transactionID: params.TransactionID,
		buyerID:       params.BuyerID,
		sellerID:      params.SellerID,
		unlock:        params.UnlockAmount,
		buyerCharge:   params.BuyerCharge,
		sellerCredit:  params.SellerCredit,
		points:        params.PointsReward,
		entryType:     params.PointsEntry,
		description:   params.Description,
		referral:      params.Referral,
		at:            params.At,
	}); err != nil {
		return err
	}
	tx.Status = domain.StoreStatusCompleted
	tx.CompletedAt = &params.At
	tx.BuyerEarlyComplete = earlyComplete
	tx.UpdatedAt = params.At
	f.rows[params.TransactionID] = tx
	f.setProductStatus(productID, domain.ProductStatusSold, params.At)
	return nil
}

func (f *fakeStores) CancelTx(ctx context.Context, transactionID uuid.UUID, at time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || !tx.CanCancel() {
		return domain.ErrInvalidStateTransition
	}
	if _, _, err := f.balances.Unlock(ctx, tx.BuyerID, tx.Amount, at); err != nil {
		return err
	}
	tx.Status = domain.StoreStatusCancelled
	tx.CancelledAt = &at
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	f.setProductStatus(tx.ProductID, domain.ProductStatusAvailable, at)
	return nil
}

func (f *fakeStores) ListAutoCompletable(_ context.Context, now time.Time, limit int) ([]domain.StoreTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StoreTransaction
	for _, tx := range f.rows {
		if tx.Status == domain.StoreStatusProcessing && tx.AutoCompleteAt != nil && now.After(*tx.AutoCompleteAt) {
			out = append(out, tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStores) setProductStatus(productID uuid.UUID, status string, at time.Time) {
	p, ok := f.products[productID]
	if !ok {
		return
	}
	p.Status = status
	p.UpdatedAt = at
	f.products[productID] = p
}

func (f *fakeStores) markDisputed(transactionID, disputeID uuid.UUID, prior string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || string(tx.Status) != prior {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.StoreStatusDisputed
	tx.DisputeID = &disputeID
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeStores) restore(transactionID uuid.UUID, prior string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.StoreStatusDisputed {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.StoreStatus(prior)
	tx.DisputeID = nil
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

func (f *fakeStores) finalize(transactionID uuid.UUID, final string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[transactionID]
	if !ok || tx.Status != domain.StoreStatusDisputed {
		return domain.ErrInvalidStateTransition
	}
	tx.Status = domain.StoreStatus(final)
	switch tx.Status {
	case domain.StoreStatusCompleted:
		tx.CompletedAt = &at
	case domain.StoreStatusCancelled:
		tx.CancelledAt = &at
	}
	tx.UpdatedAt = at
	f.rows[transactionID] = tx
	return nil
}

type fakeDisputes struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]domain.Dispute
	escrows   *fakeEscrows
	stores    *fakeStores
	balances  *fakeBalances
	points    *fakePoints
	referrals *fakeReferrals
}

func (f *fakeDisputes) OpenTx(_ context.Context, d domain.Dispute, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.TransactionType == d.TransactionType &&
			existing.TransactionID == d.TransactionID &&
			!existing.Status.Terminal() {
			return domain.ErrConflict
		}
	}
	var err error
	switch d.TransactionType {
	case domain.TransactionTypeEscrow:
		err = f.escrows.markDisputed(d.TransactionID, d.DisputeID, d.PriorStatus, d.CreatedAt)
	case domain.TransactionTypeStore:
		err = f.stores.markDisputed(d.TransactionID, d.DisputeID, d.PriorStatus, d.CreatedAt)
	default:
		err = domain.ErrInvalidInput
	}
	if err != nil {
		return err
	}
	f.rows[d.DisputeID] = d
	return nil
}

func (f *fakeDisputes) GetByID(_ context.Context, disputeID uuid.UUID) (domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[disputeID]
	if !ok {
		return domain.Dispute{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDisputes) GetActiveByTransaction(_ context.Context, transactionType string, transactionID uuid.UUID) (domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.rows {
		if d.TransactionType == transactionType && d.TransactionID == transactionID && !d.Status.Terminal() {
			return d, nil
		}
	}
	return domain.Dispute{}, domain.ErrNotFound
}

func (f *fakeDisputes) ListByStatus(_ context.Context, status domain.DisputeStatus, limit, offset int) ([]domain.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Dispute
	for _, d := range f.rows {
		if d.Status == status {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDisputes) Assign(_ context.Context, disputeID, adjudicator uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[disputeID]
	if !ok || d.Status != domain.DisputeStatusPending {
		return domain.ErrInvalidStateTransition
	}
	d.Status = domain.DisputeStatusProcessing
	d.AssignedTo = &adjudicator
	d.UpdatedAt = at
	f.rows[disputeID] = d
	return nil
}

func (f *fakeDisputes) CancelTx(_ context.Context, disputeID uuid.UUID, at time.Time, _ ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[disputeID]
	if !ok || d.Status != domain.DisputeStatusPending {
		return domain.ErrInvalidStateTransition
	}
	var err error
	switch d.TransactionType {
	case domain.TransactionTypeEscrow:
		err = f.escrows.restore(d.TransactionID, d.PriorStatus, at)
	case domain.TransactionTypeStore:
		err = f.stores.restore(d.TransactionID, d.PriorStatus, at)
	}
	if err != nil {
		return err
	}
	d.Status = domain.DisputeStatusCancelled
	d.UpdatedAt = at
	f.rows[disputeID] = d
	return nil
}

func (f *fakeDisputes) ResolveTx(_ context.Context, params ports.DisputeResolveParams, _ []ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[params.DisputeID]
	if !ok || d.Status != domain.DisputeStatusProcessing {
		return domain.ErrInvalidStateTransition
	}

	var err error
	switch params.TransactionType {
	case domain.TransactionTypeEscrow:
		err = f.escrows.finalize(params.TransactionID, params.FinalStatus, params.At)
	case domain.TransactionTypeStore:
		err = f.stores.finalize(params.TransactionID, params.FinalStatus, params.At)
	}
	if err != nil {
		return err
	}

	if err := applySettlement(f.balances, f.points, f.referrals, settlement{
		transactionID: params.TransactionID,
		buyerID:       params.BuyerID,
		sellerID:      params.SellerID,
		unlock:        params.UnlockAmount,
		buyerCharge:   params.BuyerCharge,
		sellerCredit:  params.SellerCredit,
		points:        params.PointsReward,
		entryType:     domain.PointEntryTransactionReward,
		description:   "dispute resolved",
		referral:      params.Referral,
		at:            params.At,
	}); err != nil {
		return err
	}

	if params.ProductID != nil {
		status := domain.ProductStatusSold
		if params.FinalStatus == string(domain.StoreStatusCancelled) {
			status = domain.ProductStatusAvailable
		}
		f.stores.mu.Lock()
		f.stores.setProductStatus(*params.ProductID, status, params.At)
		f.stores.mu.Unlock()
	}

	d.Status = domain.DisputeStatusResolved
	d.Outcome = params.Outcome
	d.ResolutionNotes = params.Notes
	d.RefundAmount = params.RefundAmount
	d.ResolvedAt = &params.At
	d.UpdatedAt = params.At
	f.rows[params.DisputeID] = d
	return nil
}

type fakeReferrals struct {
	mu         sync.Mutex
	byReferred map[uuid.UUID]domain.Referral
}

func (f *fakeReferrals) Create(_ context.Context, r domain.Referral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byReferred[r.ReferredID]; exists {
		return domain.ErrConflict
	}
	f.byReferred[r.ReferredID] = r
	return nil
}

func (f *fakeReferrals) GetByReferred(_ context.Context, referredID uuid.UUID) (domain.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byReferred[referredID]
	if !ok {
		return domain.Referral{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeReferrals) ListByReferrer(_ context.Context, referrerID uuid.UUID, limit, offset int) ([]domain.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Referral
	for _, r := range f.byReferred {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReferrals) accrue(a ports.ReferralAccrual, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byReferred[a.ReferredID]
	if !ok {
		return
	}
	r.TotalPointsEarned += a.Points
	r.SuccessfulTransactionCount++
	if r.FirstTransactionAt == nil {
		r.FirstTransactionAt = &at
	}
	r.UpdatedAt = at
	f.byReferred[a.ReferredID] = r
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.records[key]; exists {
		return domain.ErrConflict
	}
	f.records[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      "PENDING",
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = "COMPLETED"
	rec.ResponseCode = responseCode
	rec.ResponseBody = responseBody
	rec.UpdatedAt = at
	f.records[key] = rec
	return nil
}

type fakeSweepLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeSweepLocks) Acquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[name] {
		return false, nil
	}
	f.held[name] = true
	return true, nil
}

func (f *fakeSweepLocks) Release(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, name)
	return nil
}
