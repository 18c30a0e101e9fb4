// Package payout_batch_service aggregates cleared commissions into payout
// batches and drives them through approval, settlement and cancellation.
package payout_batch_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/payouts/clients"
	"github.com/joy095/payouts/models/payout_batch_models"
	"github.com/joy095/payouts/models/vendor_models"
	"github.com/shopspring/decimal"
)

// VendorDirectory supplies vendor settlement details at payout creation.
type VendorDirectory interface {
	GetBankAccount(ctx context.Context, tenantID, vendorID uuid.UUID) (*vendor_models.VendorBankAccount, error)
}

// Notifier is told about every batch whose processing has finished.
type Notifier interface {
	NotifyBatchProcessed(ctx context.Context, report payout_batch_models.BatchReport) error
}

type Options struct {
	MinThreshold          decimal.Decimal
	Currency              string
	DemoMode              bool
	SettlementTimeout     time.Duration
	SettlementConcurrency int
	// StaleProcessingAfter is how long a batch must have been PROCESSING
	// before FinalizeBatch may close it.
	StaleProcessingAfter time.Duration
}

type Dependencies struct {
	Store     payout_batch_models.Store
	Directory VendorDirectory
	Numbers   NumberGenerator
	// Settlement handles live batches. Demo batches always use the demo client.
	Settlement clients.SettlementClientWrapper
	Notifier   Notifier
	Options    Options
	Now        func() time.Time
}

type Service struct {
	store      payout_batch_models.Store
	directory  VendorDirectory
	numbers    NumberGenerator
	settlement clients.SettlementClientWrapper
	demo       clients.SettlementClientWrapper
	notifier   Notifier
	opts       Options
	now        func() time.Time
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("payout service: store is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("payout service: vendor directory is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("payout service: number generator is required")
	}

	opts := deps.Options
	if !opts.MinThreshold.IsPositive() {
		return nil, fmt.Errorf("payout service: minimum threshold must be positive, got %s", opts.MinThreshold)
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = 30 * time.Second
	}
	if opts.StaleProcessingAfter <= 0 {
		opts.StaleProcessingAfter = 15 * time.Minute
	}
	if opts.SettlementConcurrency < 1 {
		opts.SettlementConcurrency = 1
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:      deps.Store,
		directory:  deps.Directory,
		numbers:    deps.Numbers,
		settlement: deps.Settlement,
		demo:       clients.NewDemoSettlementClient(),
		notifier:   deps.Notifier,
		opts:       opts,
		now:        now,
	}, nil
}

// clock returns the current time at the precision Postgres stores.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func statusPtr[T ~string](status T) *string {
	v := string(status)
	return &v
}

func newAuditEntry(batch *payout_batch_models.PayoutBatch, payoutID *uuid.UUID, action payout_batch_models.AuditAction,
	from, to *string, details string, actor payout_batch_models.Actor, at time.Time) *payout_batch_models.AuditLogEntry {
	return &payout_batch_models.AuditLogEntry{
		ID:         newID(),
		TenantID:   batch.TenantID,
		BatchID:    batch.ID,
		PayoutID:   payoutID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Details:    details,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		CreatedAt:  at,
	}
}

func (s *Service) money(amount decimal.Decimal) string {
	return amount.StringFixed(2) + " " + s.opts.Currency
}

// BatchSummary is a batch together with its vendor payouts and the payout
// status counts callers need to detect partial failure.
type BatchSummary struct {
	Batch          payout_batch_models.PayoutBatch    `json:"batch"`
	Payouts        []payout_batch_models.VendorPayout `json:"payouts"`
	PendingCount   int                                `json:"pending_count"`
	CompletedCount int                                `json:"completed_count"`
	FailedCount    int                                `json:"failed_count"`
	CancelledCount int                                `json:"cancelled_count"`
}

func newBatchSummary(batch *payout_batch_models.PayoutBatch, payouts []payout_batch_models.VendorPayout) *BatchSummary {
	summary := &BatchSummary{Batch: *batch, Payouts: payouts}
	if summary.Payouts == nil {
		summary.Payouts = []payout_batch_models.VendorPayout{}
	}
	for _, p := range payouts {
		switch p.Status {
		case payout_batch_models.PayoutPending:
			summary.PendingCount++
		case payout_batch_models.PayoutCompleted:
			summary.CompletedCount++
		case payout_batch_models.PayoutFailed:
			summary.FailedCount++
		case payout_batch_models.PayoutCancelled:
			summary.CancelledCount++
		}
	}
	return summary
}

func (s *Service) loadSummary(ctx context.Context, repo payout_batch_models.Repository, tenantID, batchID uuid.UUID) (*BatchSummary, error) {
	batch, err := repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	payouts, err := repo.ListPayoutsByBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	return newBatchSummary(batch, payouts), nil
}
