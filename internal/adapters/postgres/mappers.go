package postgres

import (
	"errors"

	"github.com/peertrade/escrow-core/internal/domain"
	"gorm.io/gorm"
)

func toDomainBalance(row balanceModel) domain.AccountBalance {
	return domain.AccountBalance{
		CustomerID: row.CustomerID,
		Total:      row.Total,
		Locked:     row.Locked,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func toDomainPointBalance(row pointBalanceModel) domain.PointBalance {
	return domain.PointBalance{
		CustomerID:  row.CustomerID,
		Available:   row.Available,
		TotalEarned: row.TotalEarned,
		TotalSpent:  row.TotalSpent,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func toDomainPointEntry(row pointEntryModel) domain.PointLedgerEntry {
	return domain.PointLedgerEntry{
		EntryID:              row.EntryID,
		CustomerID:           row.CustomerID,
		EntryType:            row.EntryType,
		Amount:               row.Amount,
		BalanceAfter:         row.BalanceAfter,
		RelatedTransactionID: row.RelatedTransactionID,
		RelatedCustomerID:    row.RelatedCustomerID,
		Description:          row.Description,
		CreatedAt:            row.CreatedAt,
	}
}

func toDomainFeeTier(row feeTierModel) domain.FeeTier {
	return domain.FeeTier{
		TierID:                     row.TierID,
		MinAmount:                  row.MinAmount,
		MaxAmount:                  row.MaxAmount,
		FixedFee:                   row.FixedFee,
		PercentageFee:              row.PercentageFee,
		ExtraDurationFeePercentage: row.ExtraDurationFeePercentage,
		PointsReward:               row.PointsReward,
		Active:                     row.Active,
		CreatedAt:                  row.CreatedAt,
		DeactivatedAt:              row.DeactivatedAt,
	}
}

func toDomainEscrow(row escrowModel) domain.EscrowTransaction {
	return domain.EscrowTransaction{
		TransactionID:   row.TransactionID,
		Code:            row.Code,
		BuyerID:         row.BuyerID,
		SellerID:        row.SellerID,
		Amount:          row.Amount,
		Fee:             row.Fee,
		DurationHours:   row.DurationHours,
		Status:          domain.EscrowStatus(row.Status),
		ConfirmedAt:     row.ConfirmedAt,
		SellerSentAt:    row.SellerSentAt,
		BuyerReceivedAt: row.BuyerReceivedAt,
		ExpiresAt:       row.ExpiresAt,
		AutoCompleteAt:  row.AutoCompleteAt,
		CompletedAt:     row.CompletedAt,
		CancelledAt:     row.CancelledAt,
		DisputeID:       row.DisputeID,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toDomainProduct(row productModel) domain.StoreProduct {
	return domain.StoreProduct{
		ProductID: row.ProductID,
		SellerID:  row.SellerID,
		Price:     row.Price,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toDomainStore(row storeModel) domain.StoreTransaction {
	return domain.StoreTransaction{
		TransactionID:      row.TransactionID,
		Code:               row.Code,
		BuyerID:            row.BuyerID,
		SellerID:           row.SellerID,
		ProductID:          row.ProductID,
		Amount:             row.Amount,
		Fee:                row.Fee,
		Status:             domain.StoreStatus(row.Status),
		ConfirmedAt:        row.ConfirmedAt,
		AutoCompleteAt:     row.AutoCompleteAt,
		CompletedAt:        row.CompletedAt,
		CancelledAt:        row.CancelledAt,
		BuyerEarlyComplete: row.BuyerEarlyComplete,
		DisputeID:          row.DisputeID,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainDispute(row disputeModel) domain.Dispute {
	return domain.Dispute{
		DisputeID:       row.DisputeID,
		TransactionType: row.TransactionType,
		TransactionID:   row.TransactionID,
		CreatedBy:       row.CreatedBy,
		Reason:          row.Reason,
		Evidence:        row.Evidence,
		Status:          domain.DisputeStatus(row.Status),
		PriorStatus:     row.PriorStatus,
		AssignedTo:      row.AssignedTo,
		Outcome:         row.Outcome,
		ResolutionNotes: row.ResolutionNotes,
		RefundAmount:    row.RefundAmount,
		ResolvedAt:      row.ResolvedAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toDomainReferral(row referralModel) domain.Referral {
	return domain.Referral{
		ReferralID:                 row.ReferralID,
		ReferrerID:                 row.ReferrerID,
		ReferredID:                 row.ReferredID,
		TotalPointsEarned:          row.TotalPointsEarned,
		SuccessfulTransactionCount: row.SuccessfulTransactionCount,
		FirstTransactionAt:         row.FirstTransactionAt,
		Status:                     row.Status,
		CreatedAt:                  row.CreatedAt,
		UpdatedAt:                  row.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
