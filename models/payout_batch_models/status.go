package payout_batch_models

import "fmt"

type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchApproved   BatchStatus = "APPROVED"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPending, BatchApproved, BatchProcessing, BatchCompleted, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchCancelled:
		return true
	case BatchPending, BatchApproved, BatchProcessing:
		return false
	}
	return false
}

// CanTransition reports whether a batch may move from s to next.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchPending:
		return next == BatchApproved || next == BatchCancelled
	case BatchApproved:
		return next == BatchProcessing || next == BatchCancelled
	case BatchProcessing:
		return next == BatchCompleted || next == BatchFailed
	case BatchCompleted, BatchFailed, BatchCancelled:
		return false
	}
	return false
}

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutCompleted PayoutStatus = "COMPLETED"
	PayoutFailed    PayoutStatus = "FAILED"
	PayoutCancelled PayoutStatus = "CANCELLED"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutCompleted, PayoutFailed, PayoutCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a vendor payout may move from s to next.
// FAILED -> COMPLETED and FAILED -> FAILED are only used by an explicit retry.
func (s PayoutStatus) CanTransition(next PayoutStatus) bool {
	switch s {
	case PayoutPending:
		return next == PayoutCompleted || next == PayoutFailed || next == PayoutCancelled
	case PayoutFailed:
		return next == PayoutCompleted || next == PayoutFailed
	case PayoutCompleted, PayoutCancelled:
		return false
	}
	return false
}

type CommissionStatus string

const (
	CommissionCleared    CommissionStatus = "CLEARED"
	CommissionProcessing CommissionStatus = "PROCESSING"
	CommissionPaid       CommissionStatus = "PAID"
)

func (s CommissionStatus) Valid() bool {
	switch s {
	case CommissionCleared, CommissionProcessing, CommissionPaid:
		return true
	}
	return false
}

type PeriodType string

const (
	PeriodDaily   PeriodType = "DAILY"
	PeriodWeekly  PeriodType = "WEEKLY"
	PeriodMonthly PeriodType = "MONTHLY"
	PeriodCustom  PeriodType = "CUSTOM"
)

func (p PeriodType) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodCustom:
		return true
	}
	return false
}

type AuditAction string

const (
	ActionBatchCreated    AuditAction = "BATCH_CREATED"
	ActionBatchApproved   AuditAction = "BATCH_APPROVED"
	ActionBatchProcessing AuditAction = "BATCH_PROCESSING"
	ActionBatchCompleted  AuditAction = "BATCH_COMPLETED"
	ActionBatchFailed     AuditAction = "BATCH_FAILED"
	ActionBatchCancelled  AuditAction = "BATCH_CANCELLED"
	ActionPayoutCompleted AuditAction = "PAYOUT_COMPLETED"
	ActionPayoutFailed    AuditAction = "PAYOUT_FAILED"
	ActionPayoutCancelled AuditAction = "PAYOUT_CANCELLED"
	ActionPayoutRetried   AuditAction = "PAYOUT_RETRIED"
)

func ParseBatchStatus(raw string) (BatchStatus, error) {
	s := BatchStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown batch status %q", ErrValidation, raw)
	}
	return s, nil
}

func ParsePeriodType(raw string) (PeriodType, error) {
	p := PeriodType(raw)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown period type %q", ErrValidation, raw)
	}
	return p, nil
}
