package payout_batch_models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the persistence surface of the engine: the commission
// ledger's query/claim operations plus batch, payout and audit storage.
// Every method is tenant scoped.
type Repository interface {
	ListClearedCommissions(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]CommissionRecord, error)
	// ClaimCommissions binds still-unclaimed CLEARED records to payoutID and
	// returns how many rows were actually claimed.
	ClaimCommissions(ctx context.Context, tenantID, payoutID uuid.UUID, commissionIDs []uuid.UUID) (int64, error)
	ReleaseCommissions(ctx context.Context, tenantID, payoutID uuid.UUID) (ReleaseResult, error)
	MarkCommissionsPaid(ctx context.Context, tenantID, payoutID uuid.UUID, paidAt time.Time) (int64, error)
	ListCommissionsByPayout(ctx context.Context, tenantID, payoutID uuid.UUID) ([]CommissionRecord, error)

	InsertBatch(ctx context.Context, batch *PayoutBatch) error
	GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*PayoutBatch, error)
	// UpdateBatchStatus applies change only while the stored status equals
	// from. It reports false when another writer got there first.
	UpdateBatchStatus(ctx context.Context, tenantID, batchID uuid.UUID, from BatchStatus, change BatchChange) (bool, error)
	ListBatches(ctx context.Context, tenantID uuid.UUID, filter BatchFilter) ([]PayoutBatch, int, error)

	InsertPayout(ctx context.Context, payout *VendorPayout) error
	GetPayout(ctx context.Context, tenantID, payoutID uuid.UUID) (*VendorPayout, error)
	ListPayoutsByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]VendorPayout, error)
	ListPayoutsByVendor(ctx context.Context, tenantID, vendorID uuid.UUID) ([]VendorPayout, error)
	UpdatePayoutStatus(ctx context.Context, tenantID, payoutID uuid.UUID, from PayoutStatus, change PayoutChange) (bool, error)

	InsertAuditLog(ctx context.Context, entry *AuditLogEntry) error
	// ListAuditLogsByBatch returns entries newest first.
	ListAuditLogsByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]AuditLogEntry, error)
}

type ReleaseResult struct {
	Count     int
	NetAmount decimal.Decimal
}

// Store is a Repository that can run a unit of work atomically. If fn returns
// an error nothing it wrote is persisted.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(repo Repository) error) error
}
