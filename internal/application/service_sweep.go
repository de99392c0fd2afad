package application

import (
	"context"
	"errors"
	"time"

	"github.com/peertrade/escrow-core/internal/domain"
)

// Sweep lock names. One worker instance holds each at a time; a second
// instance finding the lock taken skips the cycle entirely.
const (
	sweepLockEscrowExpire       = "sweep:escrow:expire"
	sweepLockEscrowAutoComplete = "sweep:escrow:auto_complete"
	sweepLockStoreAutoComplete  = "sweep:store:auto_complete"
)

const sweepLockTTL = 5 * time.Minute

// SweepExpiredEscrows expires pending transactions whose deadline passed
// without a seller confirmation, releasing each buyer's lock. Rows that
// changed state since the scan lose the guard and count as skipped.
func (s *Service) SweepExpiredEscrows(ctx context.Context) (SweepReport, error) {
	return s.underSweepLock(ctx, sweepLockEscrowExpire, func(ctx context.Context) (SweepReport, error) {
		var report SweepReport
		now := s.nowFn()
		batch, err := s.escrows.ListExpirable(ctx, now, s.cfg.SweepBatchSize)
		if err != nil {
			return report, err
		}
		report.Scanned = len(batch)
		for _, tx := range batch {
			event := newOutboxEvent(EventEscrowExpired, tx.BuyerID.String(), map[string]any{
				"transaction_id": tx.TransactionID,
				"code":           tx.Code,
				"expired_at":     now,
			}, now)
			switch err := s.escrows.ExpireTx(ctx, tx.TransactionID, now, event); {
			case err == nil:
				report.Settled++
			case errors.Is(err, domain.ErrInvalidStateTransition):
				report.Skipped++
			default:
				report.Failed++
			}
		}
		return report, nil
	})
}

// SweepEscrowAutoComplete settles shipped transactions whose buyer never
// confirmed receipt before the deadline. The settlement path is the same
// one the interactive confirmation uses, so a buyer confirming concurrently
// simply wins or loses the status guard.
func (s *Service) SweepEscrowAutoComplete(ctx context.Context) (SweepReport, error) {
	return s.underSweepLock(ctx, sweepLockEscrowAutoComplete, func(ctx context.Context) (SweepReport, error) {
		var report SweepReport
		batch, err := s.escrows.ListAutoCompletable(ctx, s.nowFn(), s.cfg.SweepBatchSize)
		if err != nil {
			return report, err
		}
		report.Scanned = len(batch)
		for _, tx := range batch {
			switch err := s.settleEscrow(ctx, tx, false); {
			case err == nil:
				report.Settled++
			case errors.Is(err, domain.ErrInvalidStateTransition):
				report.Skipped++
			default:
				report.Failed++
			}
		}
		return report, nil
	})
}

// SweepStoreAutoComplete settles processing store transactions past their
// deadline.
func (s *Service) SweepStoreAutoComplete(ctx context.Context) (SweepReport, error) {
	return s.underSweepLock(ctx, sweepLockStoreAutoComplete, func(ctx context.Context) (SweepReport, error) {
		var report SweepReport
		batch, err := s.stores.ListAutoCompletable(ctx, s.nowFn(), s.cfg.SweepBatchSize)
		if err != nil {
			return report, err
		}
		report.Scanned = len(batch)
		for _, tx := range batch {
			switch err := s.settleStore(ctx, tx, false); {
			case err == nil:
				report.Settled++
			case errors.Is(err, domain.ErrInvalidStateTransition):
				report.Skipped++
			default:
				report.Failed++
			}
		}
		return report, nil
	})
}

// underSweepLock runs one sweep cycle holding the named distributed lock.
// An unacquired lock is not an error; another instance owns the cycle.
func (s *Service) underSweepLock(ctx context.Context, name string, fn func(context.Context) (SweepReport, error)) (SweepReport, error) {
	acquired, err := s.sweepLocks.Acquire(ctx, name, sweepLockTTL)
	if err != nil {
		return SweepReport{}, err
	}
	if !acquired {
		return SweepReport{}, nil
	}
	defer func() { _ = s.sweepLocks.Release(ctx, name) }()
	return fn(ctx)
}
