package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/peertrade/escrow-core/internal/domain"
	"github.com/peertrade/escrow-core/internal/ports"
)

// Config carries every tunable the use cases need. It is injected whole at
// construction so no component reaches for implicit global configuration.
type Config struct {
	// MaxTotalPoints caps a customer's available points; enforced here
	// before Earn, the ledger itself does not cap.
	MaxTotalPoints          int64
	ReferralRewardPercent   int
	EscrowAutoCompleteHours int
	StoreAutoCompleteHours  int
	MaxDurationHours        int
	// ConflictRetries bounds internal retries of lost optimistic races
	// before ErrConflict surfaces to the caller.
	ConflictRetries int
	IdempotencyTTL  time.Duration
	SweepBatchSize  int
}

type Service struct {
	cfg         Config
	balances    ports.BalanceRepository
	points      ports.PointsRepository
	feeTiers    ports.FeeTierRepository
	escrows     ports.EscrowRepository
	stores      ports.StoreRepository
	disputes    ports.DisputeRepository
	referrals   ports.ReferralRepository
	outbox      ports.OutboxRepository
	idempotency ports.IdempotencyRepository
	sweepLocks  ports.SweepLock
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Balances    ports.BalanceRepository
	Points      ports.PointsRepository
	FeeTiers    ports.FeeTierRepository
	Escrows     ports.EscrowRepository
	Stores      ports.StoreRepository
	Disputes    ports.DisputeRepository
	Referrals   ports.ReferralRepository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
	SweepLocks  ports.SweepLock
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	if cfg.EscrowAutoCompleteHours <= 0 {
		cfg.EscrowAutoCompleteHours = 72
	}
	if cfg.StoreAutoCompleteHours <= 0 {
		cfg.StoreAutoCompleteHours = 72
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &Service{
		cfg:         cfg,
		balances:    deps.Balances,
		points:      deps.Points,
		feeTiers:    deps.FeeTiers,
		escrows:     deps.Escrows,
		stores:      deps.Stores,
		disputes:    deps.Disputes,
		referrals:   deps.Referrals,
		outbox:      deps.Outbox,
		idempotency: deps.Idempotency,
		sweepLocks:  deps.SweepLocks,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// retryConflict re-runs an operation that lost an optimistic race. Anything
// other than ErrConflict returns immediately.
func (s *Service) retryConflict(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = op()
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	return err
}

// replayIdempotent returns the stored response when the key was already
// completed with the same request, and reserves it otherwise. A key reused
// with a different payload fails with ErrIdempotencyConflict.
func (s *Service) replayIdempotent(ctx context.Context, key string, req any) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	requestHash := hashRequest(req)
	existing, err := s.idempotency.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrExternalDependency, err)
	}
	if existing != nil {
		if existing.RequestHash != requestHash {
			return nil, false, domain.ErrIdempotencyConflict
		}
		if existing.Status == "COMPLETED" {
			return existing.ResponseBody, true, nil
		}
		return nil, false, domain.ErrIdempotencyConflict
	}
	if err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, false, domain.ErrIdempotencyConflict
		}
		return nil, false, err
	}
	return nil, false, nil
}

func (s *Service) completeIdempotent(ctx context.Context, key string, responseCode int, response any) {
	if key == "" {
		return
	}
	body, _ := json.Marshal(response)
	_ = s.idempotency.Complete(ctx, key, responseCode, body, s.nowFn())
}

func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func normalizeLimit(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
