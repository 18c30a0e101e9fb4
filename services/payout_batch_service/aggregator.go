package payout_batch_service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/payouts/logger"
	"github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
)

// PeriodInput selects the commissions a batch is built from. A nil
// MinThreshold means the configured default.
type PeriodInput struct {
	PeriodType   payout_batch_models.PeriodType
	PeriodStart  time.Time
	PeriodEnd    time.Time
	MinThreshold *decimal.Decimal
}

// VendorAggregate is one vendor's share of a period.
type VendorAggregate struct {
	VendorID        uuid.UUID       `json:"vendor_id"`
	CommissionCount int             `json:"commission_count"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	Deductions      decimal.Decimal `json:"deductions"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	SaleReferences  []string        `json:"sale_references"`
	CommissionIDs   []uuid.UUID     `json:"commission_ids"`
	BelowThreshold  bool            `json:"below_threshold"`
}

type BatchPreview struct {
	PeriodType          payout_batch_models.PeriodType `json:"period_type"`
	PeriodStart         time.Time                      `json:"period_start"`
	PeriodEnd           time.Time                      `json:"period_end"`
	MinThreshold        decimal.Decimal                `json:"min_threshold"`
	Currency            string                         `json:"currency"`
	Vendors             []VendorAggregate              `json:"vendors"`
	EligibleVendorCount int                            `json:"eligible_vendor_count"`
	ExcludedVendorCount int                            `json:"excluded_vendor_count"`
	CommissionCount     int                            `json:"commission_count"`
	TotalGross          decimal.Decimal                `json:"total_gross"`
	TotalDeductions     decimal.Decimal                `json:"total_deductions"`
	TotalNet            decimal.Decimal                `json:"total_net"`
}

// Eligible returns the vendors at or above the threshold.
func (p *BatchPreview) Eligible() []VendorAggregate {
	var out []VendorAggregate
	for _, v := range p.Vendors {
		if !v.BelowThreshold {
			out = append(out, v)
		}
	}
	return out
}

func (s *Service) validatePeriod(in PeriodInput) (decimal.Decimal, error) {
	if !in.PeriodType.Valid() {
		return decimal.Decimal{}, fmt.Errorf("%w: unknown period type %q", payout_batch_models.ErrValidation, in.PeriodType)
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: period start and end are required", payout_batch_models.ErrValidation)
	}
	if in.PeriodStart.After(in.PeriodEnd) {
		return decimal.Decimal{}, fmt.Errorf("%w: period start %s is after period end %s",
			payout_batch_models.ErrValidation, in.PeriodStart.Format(time.RFC3339), in.PeriodEnd.Format(time.RFC3339))
	}

	threshold := s.opts.MinThreshold
	if in.MinThreshold != nil {
		threshold = *in.MinThreshold
	}
	if !threshold.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: minimum threshold must be positive, got %s", payout_batch_models.ErrValidation, threshold)
	}
	return threshold, nil
}

// aggregate groups records by vendor. Vendors come out ordered by id so the
// same ledger state always yields the same preview.
func (s *Service) aggregate(in PeriodInput, threshold decimal.Decimal, records []payout_batch_models.CommissionRecord) *BatchPreview {
	byVendor := map[uuid.UUID]*VendorAggregate{}
	for _, rec := range records {
		v, ok := byVendor[rec.VendorID]
		if !ok {
			v = &VendorAggregate{
				VendorID:       rec.VendorID,
				GrossAmount:    decimal.Zero,
				Deductions:     decimal.Zero,
				NetAmount:      decimal.Zero,
				SaleReferences: []string{},
				CommissionIDs:  []uuid.UUID{},
			}
			byVendor[rec.VendorID] = v
		}
		v.CommissionCount++
		v.GrossAmount = v.GrossAmount.Add(rec.SaleAmount)
		v.Deductions = v.Deductions.Add(rec.CommissionAmount)
		v.NetAmount = v.NetAmount.Add(rec.NetAmount)
		v.SaleReferences = append(v.SaleReferences, rec.SaleReference)
		v.CommissionIDs = append(v.CommissionIDs, rec.ID)
	}

	preview := &BatchPreview{
		PeriodType:      in.PeriodType,
		PeriodStart:     in.PeriodStart,
		PeriodEnd:       in.PeriodEnd,
		MinThreshold:    threshold,
		Currency:        s.opts.Currency,
		Vendors:         make([]VendorAggregate, 0, len(byVendor)),
		TotalGross:      decimal.Zero,
		TotalDeductions: decimal.Zero,
		TotalNet:        decimal.Zero,
	}
	for _, v := range byVendor {
		v.BelowThreshold = v.NetAmount.LessThan(threshold)
		preview.Vendors = append(preview.Vendors, *v)
	}
	sort.Slice(preview.Vendors, func(i, j int) bool {
		return bytes.Compare(preview.Vendors[i].VendorID[:], preview.Vendors[j].VendorID[:]) < 0
	})

	for _, v := range preview.Vendors {
		if v.BelowThreshold {
			preview.ExcludedVendorCount++
			continue
		}
		preview.EligibleVendorCount++
		preview.CommissionCount += v.CommissionCount
		preview.TotalGross = preview.TotalGross.Add(v.GrossAmount)
		preview.TotalDeductions = preview.TotalDeductions.Add(v.Deductions)
		preview.TotalNet = preview.TotalNet.Add(v.NetAmount)
	}
	return preview
}

// PreviewBatch reports what CreateBatch would include for the period without
// writing or reserving anything.
func (s *Service) PreviewBatch(ctx context.Context, actor payout_batch_models.Actor, in PeriodInput) (*BatchPreview, error) {
	threshold, err := s.validatePeriod(in)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListClearedCommissions(ctx, actor.TenantID, in.PeriodStart, in.PeriodEnd)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to read cleared commissions for tenant %s: %v", actor.TenantID, err)
		return nil, fmt.Errorf("failed to read cleared commissions: %w", err)
	}

	preview := s.aggregate(in, threshold, records)
	logger.InfoLogger.Infof("Previewed %s payout batch for tenant %s: %d eligible, %d excluded, total net %s",
		in.PeriodType, actor.TenantID, preview.EligibleVendorCount, preview.ExcludedVendorCount, s.money(preview.TotalNet))
	return preview, nil
}
