package payout_batch_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/payouts/clients"
	"github.com/joy095/payouts/logger"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// settlementOutcome is the result of one settlement attempt. err is nil on
// success.
type settlementOutcome struct {
	reference string
	err       error
}

// ProcessBatch settles every PENDING payout of an APPROVED batch. Payouts are
// settled concurrently and each outcome is committed on its own, so a failing
// vendor never rolls back another vendor's payment. A batch with some
// failures still ends COMPLETED with a failure summary; it ends FAILED only
// when nothing succeeded.
func (s *Service) ProcessBatch(ctx context.Context, actor models.Actor, batchID uuid.UUID) (*BatchSummary, error) {
	now := s.clock()
	var batch *models.PayoutBatch
	err := s.store.WithTx(ctx, func(repo models.Repository) error {
		b, err := repo.GetBatch(ctx, actor.TenantID, batchID)
		if err != nil {
			return err
		}
		if b.Status != models.BatchApproved {
			return fmt.Errorf("%w: batch %s is %s, only APPROVED batches can be processed",
				models.ErrInvalidStateTransition, b.BatchNumber, b.Status)
		}

		change := models.BatchChange{To: models.BatchProcessing, Actor: actor, At: now}
		if err := casBatch(ctx, repo, b, change); err != nil {
			return err
		}

		mode := "live"
		if b.IsDemo {
			mode = "demo"
		}
		details := fmt.Sprintf("Batch %s processing started by %s in %s mode: %d payouts, total net %s",
			b.BatchNumber, actor.Name, mode, b.PayoutCount, s.money(b.TotalNet))
		entry := newAuditEntry(b, nil, models.ActionBatchProcessing,
			statusPtr(models.BatchApproved), statusPtr(models.BatchProcessing), details, actor, now)
		if err := repo.InsertAuditLog(ctx, entry); err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		logLifecycleError("process", batchID, err)
		return nil, err
	}

	logger.InfoLogger.Infof("Processing payout batch %s (%s)", batch.BatchNumber, batchID)

	// Once PROCESSING the batch must reach a final status even if the caller
	// goes away.
	workCtx := context.WithoutCancel(ctx)

	payouts, err := s.store.ListPayoutsByBatch(workCtx, actor.TenantID, batchID)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to list payouts of batch %s: %v", batch.BatchNumber, err)
		return nil, fmt.Errorf("failed to list payouts of batch %s: %w", batch.BatchNumber, err)
	}

	var pending []models.VendorPayout
	for _, p := range payouts {
		if p.Status == models.PayoutPending {
			pending = append(pending, p)
		}
	}

	outcomes := make([]settlementOutcome, len(pending))
	settler := s.settlerFor(batch)

	var g errgroup.Group
	g.SetLimit(s.opts.SettlementConcurrency)
	for i, p := range pending {
		g.Go(func() error {
			outcomes[i] = s.settle(workCtx, settler, batch, &p)
			return s.recordOutcome(workCtx, actor, batch, &p, outcomes[i])
		})
	}
	if err := g.Wait(); err != nil {
		logger.ErrorLogger.Errorf("Payout batch %s left PROCESSING, failed to record a settlement outcome: %v; "+
			"reconcile with the provider and finalize it", batch.BatchNumber, err)
		return nil, fmt.Errorf("failed to record settlement outcome for batch %s: %w", batch.BatchNumber, err)
	}

	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.err == nil {
			succeeded++
		} else {
			failed++
		}
	}

	summary, err := s.finalizeBatch(workCtx, actor, batch, succeeded, failed)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to finalize payout batch %s: %v", batch.BatchNumber, err)
		return nil, err
	}

	logger.InfoLogger.Infof("Payout batch %s (%s) finished %s: %d succeeded, %d failed",
		summary.Batch.BatchNumber, batchID, summary.Batch.Status, succeeded, failed)

	s.notify(workCtx, summary, succeeded, failed)
	return summary, nil
}

func (s *Service) settlerFor(batch *models.PayoutBatch) clients.SettlementClientWrapper {
	if batch.IsDemo {
		return s.demo
	}
	return s.settlement
}

// settle performs one settlement attempt bounded by the settlement timeout.
func (s *Service) settle(ctx context.Context, settler clients.SettlementClientWrapper, batch *models.PayoutBatch, p *models.VendorPayout) settlementOutcome {
	if settler == nil {
		return settlementOutcome{err: fmt.Errorf("%w: no settlement provider configured", models.ErrSettlementFailure)}
	}
	if !batch.IsDemo && !p.Bank.Verified {
		return settlementOutcome{err: fmt.Errorf("%w: bank account not verified", models.ErrSettlementFailure)}
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.SettlementTimeout)
	defer cancel()

	res, err := settler.Settle(sctx, clients.SettlementRequest{
		PayoutID:     p.ID,
		PayoutNumber: p.PayoutNumber,
		VendorID:     p.VendorID,
		Amount:       p.NetAmount,
		Currency:     batch.Currency,
		Bank:         p.Bank,
		Attempt:      p.Attempts + 1,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
			return settlementOutcome{err: fmt.Errorf("%w after %s", models.ErrSettlementTimeout, s.opts.SettlementTimeout)}
		}
		return settlementOutcome{err: fmt.Errorf("%w: %v", models.ErrSettlementFailure, err)}
	}
	if res == nil || res.Reference == "" {
		return settlementOutcome{err: fmt.Errorf("%w: provider returned no payment reference", models.ErrSettlementFailure)}
	}
	return settlementOutcome{reference: res.Reference}
}

// recordOutcome commits one payout's settlement result with its audit entry.
func (s *Service) recordOutcome(ctx context.Context, actor models.Actor, batch *models.PayoutBatch, p *models.VendorPayout, outcome settlementOutcome) error {
	now := s.clock()
	return s.store.WithTx(ctx, func(repo models.Repository) error {
		payoutID := p.ID
		if outcome.err == nil {
			if err := s.completePayout(ctx, repo, p, models.PayoutPending, outcome.reference, now); err != nil {
				return err
			}
			details := fmt.Sprintf("Payout %s of %s to vendor %s settled, reference %s",
				p.PayoutNumber, s.money(p.NetAmount), p.VendorID, outcome.reference)
			return repo.InsertAuditLog(ctx, newAuditEntry(batch, &payoutID, models.ActionPayoutCompleted,
				statusPtr(models.PayoutPending), statusPtr(models.PayoutCompleted), details, actor, now))
		}

		reason := outcome.err.Error()
		logger.WarnLogger.Warnf("Payout %s of batch %s failed: %s", p.PayoutNumber, batch.BatchNumber, reason)
		if err := s.failPayout(ctx, repo, p, models.PayoutPending, reason, now); err != nil {
			return err
		}
		details := fmt.Sprintf("Payout %s of %s to vendor %s failed: %s",
			p.PayoutNumber, s.money(p.NetAmount), p.VendorID, reason)
		return repo.InsertAuditLog(ctx, newAuditEntry(batch, &payoutID, models.ActionPayoutFailed,
			statusPtr(models.PayoutPending), statusPtr(models.PayoutFailed), details, actor, now))
	})
}

func (s *Service) completePayout(ctx context.Context, repo models.Repository, p *models.VendorPayout, from models.PayoutStatus, reference string, now time.Time) error {
	ok, err := repo.UpdatePayoutStatus(ctx, p.TenantID, p.ID, from, models.PayoutChange{
		To:               models.PayoutCompleted,
		At:               now,
		PaymentReference: &reference,
		CountAttempt:     true,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payout %s is no longer %s", models.ErrInvalidStateTransition, p.PayoutNumber, from)
	}

	if err := checkBoundCommissions(ctx, repo, p); err != nil {
		return err
	}

	paid, err := repo.MarkCommissionsPaid(ctx, p.TenantID, p.ID, now)
	if err != nil {
		return err
	}
	if paid != int64(p.CommissionCount) {
		return fmt.Errorf("%w: payout %s binds %d records, %d marked paid",
			models.ErrConservationViolation, p.PayoutNumber, p.CommissionCount, paid)
	}
	return nil
}

// checkBoundCommissions verifies the records bound to a payout still add up
// to the amount that was settled.
func checkBoundCommissions(ctx context.Context, repo models.Repository, p *models.VendorPayout) error {
	records, err := repo.ListCommissionsByPayout(ctx, p.TenantID, p.ID)
	if err != nil {
		return err
	}
	net := decimal.Zero
	for _, rec := range records {
		net = net.Add(rec.NetAmount)
	}
	if len(records) != p.CommissionCount || !net.Equal(p.NetAmount) {
		return fmt.Errorf("%w: payout %s settled %s over %d records, ledger holds %s over %d",
			models.ErrConservationViolation, p.PayoutNumber, p.NetAmount, p.CommissionCount, net, len(records))
	}
	return nil
}

func (s *Service) failPayout(ctx context.Context, repo models.Repository, p *models.VendorPayout, from models.PayoutStatus, reason string, now time.Time) error {
	ok, err := repo.UpdatePayoutStatus(ctx, p.TenantID, p.ID, from, models.PayoutChange{
		To:            models.PayoutFailed,
		At:            now,
		FailureReason: &reason,
		CountAttempt:  true,
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payout %s is no longer %s", models.ErrInvalidStateTransition, p.PayoutNumber, from)
	}
	return nil
}

// finalStatus maps settlement counts to the batch's terminal status. Mixed
// outcomes are COMPLETED; the failure reason carries the count.
func finalStatus(succeeded, failed int) (models.BatchStatus, *string) {
	total := succeeded + failed
	switch {
	case failed == 0:
		return models.BatchCompleted, nil
	case succeeded == 0:
		return models.BatchFailed, models.StringPtr(fmt.Sprintf("all %d vendor payouts failed", total))
	default:
		return models.BatchCompleted, models.StringPtr(fmt.Sprintf("%d of %d vendor payouts failed", failed, total))
	}
}

func (s *Service) finalizeBatch(ctx context.Context, actor models.Actor, batch *models.PayoutBatch, succeeded, failed int) (*BatchSummary, error) {
	status, reason := finalStatus(succeeded, failed)
	action := models.ActionBatchCompleted
	if status == models.BatchFailed {
		action = models.ActionBatchFailed
	}

	now := s.clock()
	var summary *BatchSummary
	err := s.store.WithTx(ctx, func(repo models.Repository) error {
		change := models.BatchChange{To: status, Actor: actor, At: now, FailureReason: reason}
		if err := casBatch(ctx, repo, batch, change); err != nil {
			return err
		}

		details := fmt.Sprintf("Batch %s finished %s: %d of %d payouts settled", batch.BatchNumber, status, succeeded, succeeded+failed)
		if reason != nil {
			details += ", " + *reason
		}
		entry := newAuditEntry(batch, nil, action,
			statusPtr(models.BatchProcessing), statusPtr(status), details, actor, now)
		if err := repo.InsertAuditLog(ctx, entry); err != nil {
			return err
		}

		var err error
		summary, err = s.loadSummary(ctx, repo, batch.TenantID, batch.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

const unrecordedOutcomeReason = "settlement outcome not recorded, reconcile with the provider before retrying"

// FinalizeBatch closes a batch left PROCESSING because a settlement outcome
// could not be recorded. Payouts still PENDING are failed without counting an
// attempt, so a retry resends the lost attempt's idempotency key and the
// provider deduplicates a transfer that did go through.
func (s *Service) FinalizeBatch(ctx context.Context, actor models.Actor, batchID uuid.UUID) (*BatchSummary, error) {
	now := s.clock()
	var (
		summary           *BatchSummary
		succeeded, failed int
	)
	err := s.store.WithTx(ctx, func(repo models.Repository) error {
		batch, err := repo.GetBatch(ctx, actor.TenantID, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchProcessing {
			return fmt.Errorf("%w: batch %s is %s, only PROCESSING batches can be finalized",
				models.ErrInvalidStateTransition, batch.BatchNumber, batch.Status)
		}
		if started := batch.ProcessingStartedAt; started != nil && now.Sub(*started) < s.opts.StaleProcessingAfter {
			return fmt.Errorf("%w: batch %s started processing at %s and may still be settling",
				models.ErrInvalidStateTransition, batch.BatchNumber, started.Format(time.RFC3339))
		}

		payouts, err := repo.ListPayoutsByBatch(ctx, actor.TenantID, batchID)
		if err != nil {
			return err
		}
		for i := range payouts {
			p := &payouts[i]
			switch p.Status {
			case models.PayoutCompleted:
				succeeded++
			case models.PayoutFailed:
				failed++
			case models.PayoutPending:
				ok, err := repo.UpdatePayoutStatus(ctx, p.TenantID, p.ID, models.PayoutPending, models.PayoutChange{
					To:            models.PayoutFailed,
					At:            now,
					FailureReason: models.StringPtr(unrecordedOutcomeReason),
				})
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: payout %s is no longer PENDING", models.ErrInvalidStateTransition, p.PayoutNumber)
				}
				id := p.ID
				details := fmt.Sprintf("Payout %s of %s marked failed by %s: %s",
					p.PayoutNumber, s.money(p.NetAmount), actor.Name, unrecordedOutcomeReason)
				entry := newAuditEntry(batch, &id, models.ActionPayoutFailed,
					statusPtr(models.PayoutPending), statusPtr(models.PayoutFailed), details, actor, now)
				if err := repo.InsertAuditLog(ctx, entry); err != nil {
					return err
				}
				failed++
			}
		}

		status, reason := finalStatus(succeeded, failed)
		action := models.ActionBatchCompleted
		if status == models.BatchFailed {
			action = models.ActionBatchFailed
		}
		if err := casBatch(ctx, repo, batch, models.BatchChange{To: status, Actor: actor, At: now, FailureReason: reason}); err != nil {
			return err
		}
		details := fmt.Sprintf("Batch %s finalized %s by %s after processing stalled: %d of %d payouts settled",
			batch.BatchNumber, status, actor.Name, succeeded, succeeded+failed)
		entry := newAuditEntry(batch, nil, action,
			statusPtr(models.BatchProcessing), statusPtr(status), details, actor, now)
		if err := repo.InsertAuditLog(ctx, entry); err != nil {
			return err
		}

		summary, err = s.loadSummary(ctx, repo, batch.TenantID, batch.ID)
		return err
	})
	if err != nil {
		logLifecycleError("finalize", batchID, err)
		return nil, err
	}

	logger.WarnLogger.Warnf("Payout batch %s finalized %s by %s: %d succeeded, %d failed",
		summary.Batch.BatchNumber, summary.Batch.Status, actor.Name, succeeded, failed)
	s.notify(context.WithoutCancel(ctx), summary, succeeded, failed)
	return summary, nil
}

func (s *Service) notify(ctx context.Context, summary *BatchSummary, succeeded, failed int) {
	if s.notifier == nil {
		return
	}
	report := models.BatchReport{
		Batch:     summary.Batch,
		Payouts:   summary.Payouts,
		Succeeded: succeeded,
		Failed:    failed,
	}
	if err := s.notifier.NotifyBatchProcessed(ctx, report); err != nil {
		logger.ErrorLogger.Errorf("Failed to send report for payout batch %s: %v", summary.Batch.BatchNumber, err)
	}
}

// RetryPayout makes one more settlement attempt for a FAILED payout of a
// finished batch. Batch status and totals are left untouched.
func (s *Service) RetryPayout(ctx context.Context, actor models.Actor, payoutID uuid.UUID) (*models.VendorPayout, error) {
	payout, err := s.store.GetPayout(ctx, actor.TenantID, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutFailed {
		return nil, fmt.Errorf("%w: payout %s is %s, only FAILED payouts can be retried",
			models.ErrInvalidStateTransition, payout.PayoutNumber, payout.Status)
	}

	batch, err := s.store.GetBatch(ctx, actor.TenantID, payout.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchCompleted && batch.Status != models.BatchFailed {
		return nil, fmt.Errorf("%w: batch %s is %s, payouts can only be retried once it has finished",
			models.ErrInvalidStateTransition, batch.BatchNumber, batch.Status)
	}

	workCtx := context.WithoutCancel(ctx)
	outcome := s.settle(workCtx, s.settlerFor(batch), batch, payout)

	now := s.clock()
	var updated *models.VendorPayout
	err = s.store.WithTx(workCtx, func(repo models.Repository) error {
		to := models.PayoutCompleted
		var details string
		if outcome.err == nil {
			if err := s.completePayout(workCtx, repo, payout, models.PayoutFailed, outcome.reference, now); err != nil {
				return err
			}
			details = fmt.Sprintf("Payout %s of %s retried by %s and settled, reference %s",
				payout.PayoutNumber, s.money(payout.NetAmount), actor.Name, outcome.reference)
		} else {
			to = models.PayoutFailed
			reason := outcome.err.Error()
			if err := s.failPayout(workCtx, repo, payout, models.PayoutFailed, reason, now); err != nil {
				return err
			}
			details = fmt.Sprintf("Payout %s of %s retried by %s and failed again: %s",
				payout.PayoutNumber, s.money(payout.NetAmount), actor.Name, reason)
		}

		id := payout.ID
		entry := newAuditEntry(batch, &id, models.ActionPayoutRetried,
			statusPtr(models.PayoutFailed), statusPtr(to), details, actor, now)
		if err := repo.InsertAuditLog(workCtx, entry); err != nil {
			return err
		}

		var err error
		updated, err = repo.GetPayout(workCtx, actor.TenantID, payoutID)
		return err
	})
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to record retry of payout %s: %v", payout.PayoutNumber, err)
		return nil, err
	}

	if outcome.err != nil {
		logger.WarnLogger.Warnf("Retry of payout %s failed: %v", payout.PayoutNumber, outcome.err)
	} else {
		logger.InfoLogger.Infof("Retry of payout %s settled, reference %s", payout.PayoutNumber, outcome.reference)
	}
	return updated, nil
}
