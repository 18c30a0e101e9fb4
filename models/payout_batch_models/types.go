package payout_batch_models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated operator behind a lifecycle call.
type Actor struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     string    `json:"role,omitempty"`
}

// CommissionRecord is one cleared commission line owned by the upstream
// ledger. PayoutID is nil exactly when Status is CLEARED.
type CommissionRecord struct {
	ID               uuid.UUID        `json:"id"`
	TenantID         uuid.UUID        `json:"tenant_id"`
	VendorID         uuid.UUID        `json:"vendor_id"`
	SaleReference    string           `json:"sale_reference"`
	SaleAmount       decimal.Decimal  `json:"sale_amount"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	NetAmount        decimal.Decimal  `json:"net_amount"`
	Status           CommissionStatus `json:"status"`
	PayoutID         *uuid.UUID       `json:"payout_id,omitempty"`
	ClearedAt        time.Time        `json:"cleared_at"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
}

// BankSnapshot is the vendor's settlement destination copied from the
// vendor directory when the payout is created.
type BankSnapshot struct {
	BankName        string `json:"bank_name"`
	AccountNumber   string `json:"account_number"`
	AccountName     string `json:"account_name"`
	IFSC            string `json:"ifsc"`
	LinkedAccountID string `json:"linked_account_id,omitempty"`
	Verified        bool   `json:"verified"`
}

type VendorPayout struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	BatchID          uuid.UUID       `json:"batch_id"`
	PayoutNumber     string          `json:"payout_number"`
	VendorID         uuid.UUID       `json:"vendor_id"`
	Bank             BankSnapshot    `json:"bank"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	Deductions       decimal.Decimal `json:"deductions"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	CommissionCount  int             `json:"commission_count"`
	Status           PayoutStatus    `json:"status"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	FailureReason    *string         `json:"failure_reason,omitempty"`
	Attempts         int             `json:"attempts"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PayoutBatch totals describe the batch as planned at creation and are never
// recomputed from settlement outcomes.
type PayoutBatch struct {
	ID                  uuid.UUID       `json:"id"`
	TenantID            uuid.UUID       `json:"tenant_id"`
	BatchNumber         string          `json:"batch_number"`
	PeriodType          PeriodType      `json:"period_type"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	Status              BatchStatus     `json:"status"`
	VendorCount         int             `json:"vendor_count"`
	PayoutCount         int             `json:"payout_count"`
	TotalGross          decimal.Decimal `json:"total_gross"`
	TotalDeductions     decimal.Decimal `json:"total_deductions"`
	TotalNet            decimal.Decimal `json:"total_net"`
	MinThreshold        decimal.Decimal `json:"min_threshold"`
	Currency            string          `json:"currency"`
	IsDemo              bool            `json:"is_demo"`
	FailureReason       *string         `json:"failure_reason,omitempty"`
	CreatedBy           uuid.UUID       `json:"created_by"`
	CreatedByName       string          `json:"created_by_name"`
	CreatedAt           time.Time       `json:"created_at"`
	ApprovedBy          *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovedByName      *string         `json:"approved_by_name,omitempty"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	ProcessedBy         *uuid.UUID      `json:"processed_by,omitempty"`
	ProcessedByName     *string         `json:"processed_by_name,omitempty"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	CancelledBy         *uuid.UUID      `json:"cancelled_by,omitempty"`
	CancelledByName     *string         `json:"cancelled_by_name,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type AuditLogEntry struct {
	ID         uuid.UUID   `json:"id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	BatchID    uuid.UUID   `json:"batch_id"`
	PayoutID   *uuid.UUID  `json:"payout_id,omitempty"`
	Action     AuditAction `json:"action"`
	FromStatus *string     `json:"from_status,omitempty"`
	ToStatus   *string     `json:"to_status,omitempty"`
	Details    string      `json:"details"`
	ActorID    uuid.UUID   `json:"actor_id"`
	ActorName  string      `json:"actor_name"`
	CreatedAt  time.Time   `json:"created_at"`
}

// BatchChange describes a compare-and-swap status update on a batch. The
// actor and timestamp land in the columns that belong to the target status.
type BatchChange struct {
	To            BatchStatus
	Actor         Actor
	At            time.Time
	FailureReason *string
}

// Apply writes the change onto b. Stores use it so every backend stamps the
// same fields for a given transition.
func (b *PayoutBatch) Apply(change BatchChange) {
	actorID := change.Actor.ID
	actorName := change.Actor.Name
	at := change.At

	b.Status = change.To
	b.UpdatedAt = at
	switch change.To {
	case BatchApproved:
		b.ApprovedBy, b.ApprovedByName, b.ApprovedAt = &actorID, &actorName, &at
	case BatchProcessing:
		b.ProcessedBy, b.ProcessedByName, b.ProcessingStartedAt = &actorID, &actorName, &at
	case BatchCompleted, BatchFailed:
		b.CompletedAt = &at
		b.FailureReason = change.FailureReason
	case BatchCancelled:
		b.CancelledBy, b.CancelledByName, b.CancelledAt = &actorID, &actorName, &at
		b.FailureReason = change.FailureReason
	case BatchPending:
	}
}

// PayoutChange describes a compare-and-swap status update on a vendor payout.
type PayoutChange struct {
	To               PayoutStatus
	At               time.Time
	PaymentReference *string
	FailureReason    *string
	CountAttempt     bool
}

func (p *VendorPayout) Apply(change PayoutChange) {
	at := change.At

	p.Status = change.To
	p.UpdatedAt = at
	p.ProcessedAt = &at
	if change.PaymentReference != nil {
		p.PaymentReference = change.PaymentReference
	}
	p.FailureReason = change.FailureReason
	if change.CountAttempt {
		p.Attempts++
	}
}

// BatchFilter narrows ListBatches. Zero values mean "any".
type BatchFilter struct {
	Status      BatchStatus
	PeriodType  PeriodType
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	Limit       int
}

func (f *BatchFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

func (f BatchFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

func StringPtr(s string) *string {
	return &s
}

// BatchReport is the settled state of a batch handed to notifiers once
// processing finishes.
type BatchReport struct {
	Batch     PayoutBatch
	Payouts   []VendorPayout
	Succeeded int
	Failed    int
}
