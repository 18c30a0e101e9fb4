package payout_batch_service

import (
	"context"

	"github.com/google/uuid"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
)

type BatchPage struct {
	Batches []models.PayoutBatch `json:"batches"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
	Limit   int                  `json:"limit"`
}

// VendorPayoutSummary is the vendor-facing view of a vendor's payouts.
// Pending counts payouts whose batch has not started processing; Processing
// counts payouts whose batch is being settled.
type VendorPayoutSummary struct {
	VendorID        uuid.UUID             `json:"vendor_id"`
	Currency        string                `json:"currency"`
	PendingCount    int                   `json:"pending_count"`
	ProcessingCount int                   `json:"processing_count"`
	CompletedCount  int                   `json:"completed_count"`
	FailedCount     int                   `json:"failed_count"`
	TotalPaid       decimal.Decimal       `json:"total_paid"`
	TotalPending    decimal.Decimal       `json:"total_pending"`
	Payouts         []models.VendorPayout `json:"payouts"`
}

func (s *Service) GetBatch(ctx context.Context, actor models.Actor, batchID uuid.UUID) (*BatchSummary, error) {
	return s.loadSummary(ctx, s.store, actor.TenantID, batchID)
}

func (s *Service) GetBatchPayouts(ctx context.Context, actor models.Actor, batchID uuid.UUID) ([]models.VendorPayout, error) {
	if _, err := s.store.GetBatch(ctx, actor.TenantID, batchID); err != nil {
		return nil, err
	}
	return s.store.ListPayoutsByBatch(ctx, actor.TenantID, batchID)
}

// GetBatchLogs returns the batch's audit trail, newest first.
func (s *Service) GetBatchLogs(ctx context.Context, actor models.Actor, batchID uuid.UUID) ([]models.AuditLogEntry, error) {
	if _, err := s.store.GetBatch(ctx, actor.TenantID, batchID); err != nil {
		return nil, err
	}
	return s.store.ListAuditLogsByBatch(ctx, actor.TenantID, batchID)
}

func (s *Service) ListBatches(ctx context.Context, actor models.Actor, filter models.BatchFilter) (*BatchPage, error) {
	filter.Normalize()
	batches, total, err := s.store.ListBatches(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, err
	}
	return &BatchPage{Batches: batches, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *Service) GetVendorPayouts(ctx context.Context, actor models.Actor, vendorID uuid.UUID) (*VendorPayoutSummary, error) {
	payouts, err := s.store.ListPayoutsByVendor(ctx, actor.TenantID, vendorID)
	if err != nil {
		return nil, err
	}

	summary := &VendorPayoutSummary{
		VendorID:     vendorID,
		Currency:     s.opts.Currency,
		TotalPaid:    decimal.Zero,
		TotalPending: decimal.Zero,
		Payouts:      payouts,
	}

	batchStatus := map[uuid.UUID]models.BatchStatus{}
	for _, p := range payouts {
		switch p.Status {
		case models.PayoutCompleted:
			summary.CompletedCount++
			summary.TotalPaid = summary.TotalPaid.Add(p.NetAmount)
		case models.PayoutFailed:
			summary.FailedCount++
		case models.PayoutPending:
			status, ok := batchStatus[p.BatchID]
			if !ok {
				batch, err := s.store.GetBatch(ctx, actor.TenantID, p.BatchID)
				if err != nil {
					return nil, err
				}
				status = batch.Status
				batchStatus[p.BatchID] = status
			}
			if status == models.BatchProcessing {
				summary.ProcessingCount++
			} else {
				summary.PendingCount++
			}
			summary.TotalPending = summary.TotalPending.Add(p.NetAmount)
		case models.PayoutCancelled:
		}
	}
	return summary, nil
}
