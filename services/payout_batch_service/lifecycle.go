package payout_batch_service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/joy095/payouts/logger"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/joy095/payouts/models/vendor_models"
	"github.com/shopspring/decimal"
)

// CreateBatch re-aggregates the ledger for the period and persists a PENDING
// batch with one payout per eligible vendor. The commissions behind every
// payout are claimed in the same transaction; if any of them was claimed
// concurrently nothing is persisted.
func (s *Service) CreateBatch(ctx context.Context, actor models.Actor, in PeriodInput) (*BatchSummary, error) {
	threshold, err := s.validatePeriod(in)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var summary *BatchSummary
	err = s.store.WithTx(ctx, func(repo models.Repository) error {
		records, err := repo.ListClearedCommissions(ctx, actor.TenantID, in.PeriodStart, in.PeriodEnd)
		if err != nil {
			return fmt.Errorf("failed to read cleared commissions: %w", err)
		}

		preview := s.aggregate(in, threshold, records)
		eligible := preview.Eligible()
		if len(eligible) == 0 {
			return models.ErrNoEligibleVendors
		}

		number, err := s.numbers.NextBatchNumber(ctx, actor.TenantID, now)
		if err != nil {
			return fmt.Errorf("failed to allocate batch number: %w", err)
		}

		batch := &models.PayoutBatch{
			ID:              newID(),
			TenantID:        actor.TenantID,
			BatchNumber:     number,
			PeriodType:      in.PeriodType,
			PeriodStart:     in.PeriodStart,
			PeriodEnd:       in.PeriodEnd,
			Status:          models.BatchPending,
			VendorCount:     len(eligible),
			PayoutCount:     len(eligible),
			TotalGross:      preview.TotalGross,
			TotalDeductions: preview.TotalDeductions,
			TotalNet:        preview.TotalNet,
			MinThreshold:    threshold,
			Currency:        s.opts.Currency,
			IsDemo:          s.opts.DemoMode,
			CreatedBy:       actor.ID,
			CreatedByName:   actor.Name,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.InsertBatch(ctx, batch); err != nil {
			return err
		}

		payouts := make([]models.VendorPayout, 0, len(eligible))
		for _, v := range eligible {
			bank, err := s.bankSnapshot(ctx, actor.TenantID, v.VendorID)
			if err != nil {
				return err
			}

			payout := &models.VendorPayout{
				ID:              newID(),
				TenantID:        actor.TenantID,
				BatchID:         batch.ID,
				PayoutNumber:    s.numbers.NextPayoutNumber(),
				VendorID:        v.VendorID,
				Bank:            bank,
				GrossAmount:     v.GrossAmount,
				Deductions:      v.Deductions,
				NetAmount:       v.NetAmount,
				CommissionCount: v.CommissionCount,
				Status:          models.PayoutPending,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := repo.InsertPayout(ctx, payout); err != nil {
				return err
			}

			claimed, err := repo.ClaimCommissions(ctx, actor.TenantID, payout.ID, v.CommissionIDs)
			if err != nil {
				return err
			}
			if claimed != int64(len(v.CommissionIDs)) {
				return fmt.Errorf("%w: vendor %s expected %d records, claimed %d",
					models.ErrClaimConflict, v.VendorID, len(v.CommissionIDs), claimed)
			}
			payouts = append(payouts, *payout)
		}

		details := fmt.Sprintf("Batch %s created for %s period %s to %s: %d vendors, %d commissions, total net %s (%d vendors below threshold %s)",
			batch.BatchNumber, batch.PeriodType, batch.PeriodStart.Format("2006-01-02"), batch.PeriodEnd.Format("2006-01-02"),
			batch.VendorCount, preview.CommissionCount, s.money(batch.TotalNet), preview.ExcludedVendorCount, s.money(threshold))
		entry := newAuditEntry(batch, nil, models.ActionBatchCreated, nil, statusPtr(models.BatchPending), details, actor, now)
		if err := repo.InsertAuditLog(ctx, entry); err != nil {
			return err
		}

		summary = newBatchSummary(batch, payouts)
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrClaimConflict) {
			logger.WarnLogger.Warnf("Payout batch creation for tenant %s aborted: %v", actor.TenantID, err)
		} else if !errors.Is(err, models.ErrValidation) {
			logger.ErrorLogger.Errorf("Failed to create payout batch for tenant %s: %v", actor.TenantID, err)
		}
		return nil, err
	}

	logger.InfoLogger.Infof("Payout batch %s (%s) created by %s: %d vendors, total net %s",
		summary.Batch.BatchNumber, summary.Batch.ID, actor.ID, summary.Batch.VendorCount, s.money(summary.Batch.TotalNet))
	return summary, nil
}

// bankSnapshot reads the vendor directory once. A vendor without a
// registered account gets an empty unverified snapshot, which live
// settlement refuses.
func (s *Service) bankSnapshot(ctx context.Context, tenantID, vendorID uuid.UUID) (models.BankSnapshot, error) {
	account, err := s.directory.GetBankAccount(ctx, tenantID, vendorID)
	if err != nil {
		if errors.Is(err, vendor_models.ErrVendorNotFound) {
			logger.WarnLogger.Warnf("No bank account registered for vendor %s in tenant %s", vendorID, tenantID)
			return models.BankSnapshot{}, nil
		}
		return models.BankSnapshot{}, fmt.Errorf("failed to read bank account of vendor %s: %w", vendorID, err)
	}
	return account.Snapshot(), nil
}

// ApproveBatch moves a PENDING batch to APPROVED.
func (s *Service) ApproveBatch(ctx context.Context, actor models.Actor, batchID uuid.UUID) (*BatchSummary, error) {
	now := s.clock()
	var summary *BatchSummary
	err := s.store.WithTx(ctx, func(repo models.Repository) error {
		batch, err := repo.GetBatch(ctx, actor.TenantID, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchPending {
			return fmt.Errorf("%w: batch %s is %s, only PENDING batches can be approved",
				models.ErrInvalidStateTransition, batch.BatchNumber, batch.Status)
		}

		change := models.BatchChange{To: models.BatchApproved, Actor: actor, At: now}
		if err := casBatch(ctx, repo, batch, change); err != nil {
			return err
		}

		details := fmt.Sprintf("Batch %s approved by %s: %d vendors, total net %s",
			batch.BatchNumber, actor.Name, batch.VendorCount, s.money(batch.TotalNet))
		entry := newAuditEntry(batch, nil, models.ActionBatchApproved,
			statusPtr(models.BatchPending), statusPtr(models.BatchApproved), details, actor, now)
		if err := repo.InsertAuditLog(ctx, entry); err != nil {
			return err
		}

		summary, err = s.loadSummary(ctx, repo, actor.TenantID, batchID)
		return err
	})
	if err != nil {
		logLifecycleError("approve", batchID, err)
		return nil, err
	}

	logger.InfoLogger.Infof("Payout batch %s (%s) approved by %s", summary.Batch.BatchNumber, batchID, actor.ID)
	return summary, nil
}

// CancelBatch releases every commission claimed by a PENDING or APPROVED
// batch back to the ledger and cancels its payouts. The released net must
// equal the batch total or the cancellation is rolled back.
func (s *Service) CancelBatch(ctx context.Context, actor models.Actor, batchID uuid.UUID, reason string) (*BatchSummary, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a cancellation reason is required", models.ErrValidation)
	}

	now := s.clock()
	var summary *BatchSummary
	err := s.store.WithTx(ctx, func(repo models.Repository) error {
		batch, err := repo.GetBatch(ctx, actor.TenantID, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchPending && batch.Status != models.BatchApproved {
			return fmt.Errorf("%w: batch %s is %s, only PENDING or APPROVED batches can be cancelled",
				models.ErrInvalidStateTransition, batch.BatchNumber, batch.Status)
		}
		from := batch.Status

		change := models.BatchChange{To: models.BatchCancelled, Actor: actor, At: now, FailureReason: &reason}
		if err := casBatch(ctx, repo, batch, change); err != nil {
			return err
		}

		payouts, err := repo.ListPayoutsByBatch(ctx, actor.TenantID, batchID)
		if err != nil {
			return err
		}

		released := decimal.Zero
		releasedCount := 0
		payoutReason := "batch cancelled: " + reason
		for _, p := range payouts {
			if p.Status != models.PayoutPending {
				continue
			}

			res, err := repo.ReleaseCommissions(ctx, actor.TenantID, p.ID)
			if err != nil {
				return err
			}
			if !res.NetAmount.Equal(p.NetAmount) || res.Count != p.CommissionCount {
				return fmt.Errorf("%w: payout %s holds %s over %d records, released %s over %d",
					models.ErrConservationViolation, p.PayoutNumber, p.NetAmount, p.CommissionCount, res.NetAmount, res.Count)
			}
			released = released.Add(res.NetAmount)
			releasedCount += res.Count

			ok, err := repo.UpdatePayoutStatus(ctx, actor.TenantID, p.ID, models.PayoutPending, models.PayoutChange{
				To:            models.PayoutCancelled,
				At:            now,
				FailureReason: &payoutReason,
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: payout %s changed concurrently", models.ErrInvalidStateTransition, p.PayoutNumber)
			}

			payoutID := p.ID
			details := fmt.Sprintf("Payout %s to vendor %s cancelled, %d commissions (%s) released",
				p.PayoutNumber, p.VendorID, res.Count, s.money(res.NetAmount))
			entry := newAuditEntry(batch, &payoutID, models.ActionPayoutCancelled,
				statusPtr(models.PayoutPending), statusPtr(models.PayoutCancelled), details, actor, now)
			if err := repo.InsertAuditLog(ctx, entry); err != nil {
				return err
			}
		}

		if !released.Equal(batch.TotalNet) {
			return fmt.Errorf("%w: batch %s total net %s, released %s",
				models.ErrConservationViolation, batch.BatchNumber, batch.TotalNet, released)
		}

		details := fmt.Sprintf("Batch %s cancelled by %s: %s. %d commissions (%s) returned to the ledger",
			batch.BatchNumber, actor.Name, reason, releasedCount, s.money(released))
		entry := newAuditEntry(batch, nil, models.ActionBatchCancelled,
			statusPtr(from), statusPtr(models.BatchCancelled), details, actor, now)
		if err := repo.InsertAuditLog(ctx, entry); err != nil {
			return err
		}

		summary, err = s.loadSummary(ctx, repo, actor.TenantID, batchID)
		return err
	})
	if err != nil {
		logLifecycleError("cancel", batchID, err)
		return nil, err
	}

	logger.InfoLogger.Infof("Payout batch %s (%s) cancelled by %s: %s", summary.Batch.BatchNumber, batchID, actor.ID, reason)
	return summary, nil
}

// casBatch applies change only if the batch still has the status it was read
// with.
func casBatch(ctx context.Context, repo models.Repository, batch *models.PayoutBatch, change models.BatchChange) error {
	ok, err := repo.UpdateBatchStatus(ctx, batch.TenantID, batch.ID, batch.Status, change)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: batch %s changed concurrently", models.ErrInvalidStateTransition, batch.BatchNumber)
	}
	batch.Apply(change)
	return nil
}

func logLifecycleError(op string, batchID uuid.UUID, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrValidation):
		logger.InfoLogger.Infof("Rejected %s of payout batch %s: %v", op, batchID, err)
	case errors.Is(err, models.ErrInvalidStateTransition):
		logger.WarnLogger.Warnf("Rejected %s of payout batch %s: %v", op, batchID, err)
	default:
		logger.ErrorLogger.Errorf("Failed to %s payout batch %s: %v", op, batchID, err)
	}
}
