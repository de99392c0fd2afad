package postgres

import (
	"gorm.io/gorm"

	"github.com/peertrade/escrow-core/internal/ports"
)

type Repositories struct {
	Balances    ports.BalanceRepository
	Points      ports.PointsRepository
	FeeTiers    ports.FeeTierRepository
	Escrows     ports.EscrowRepository
	Stores      ports.StoreRepository
	Disputes    ports.DisputeRepository
	Referrals   ports.ReferralRepository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Balances:    &balanceRepository{db: db},
		Points:      &pointsRepository{db: db},
		FeeTiers:    &feeTierRepository{db: db},
		Escrows:     &escrowRepository{db: db},
		Stores:      &storeRepository{db: db},
		Disputes:    &disputeRepository{db: db},
		Referrals:   &referralRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}
