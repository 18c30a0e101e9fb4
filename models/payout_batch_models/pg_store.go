package payout_batch_models

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/payouts/logger"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PgStore is the Postgres-backed Store. A PgStore created by WithTx carries
// the transaction and has no pool.
type PgStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

// EnsureSchema creates the payout tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply payout schema: %w", err)
	}
	logger.InfoLogger.Info("Payout schema is up to date")
	return nil
}

func (s *PgStore) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(&PgStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- Commission ledger ---

const commissionColumns = `id, tenant_id, vendor_id, sale_reference, sale_amount, commission_amount,
	net_amount, status, payout_id, cleared_at, paid_at`

func scanCommission(row rowScanner) (CommissionRecord, error) {
	var rec CommissionRecord
	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.VendorID,
		&rec.SaleReference,
		&rec.SaleAmount,
		&rec.CommissionAmount,
		&rec.NetAmount,
		&rec.Status,
		&rec.PayoutID,
		&rec.ClearedAt,
		&rec.PaidAt,
	)
	return rec, err
}

func (s *PgStore) queryCommissions(ctx context.Context, query string, args ...any) ([]CommissionRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission records: %w", err)
	}
	defer rows.Close()

	var records []CommissionRecord
	for rows.Next() {
		rec, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commission record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PgStore) ListClearedCommissions(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]CommissionRecord, error) {
	query := `
		SELECT ` + commissionColumns + `
		FROM commission_records
		WHERE tenant_id = $1
		  AND status = 'CLEARED'
		  AND payout_id IS NULL
		  AND cleared_at >= $2
		  AND cleared_at <= $3
		ORDER BY vendor_id, cleared_at, id`
	return s.queryCommissions(ctx, query, tenantID, start, end)
}

func (s *PgStore) ClaimCommissions(ctx context.Context, tenantID, payoutID uuid.UUID, commissionIDs []uuid.UUID) (int64, error) {
	if len(commissionIDs) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE commission_records
		SET payout_id = $2, status = 'PROCESSING', updated_at = NOW()
		WHERE tenant_id = $1
		  AND id = ANY($3)
		  AND status = 'CLEARED'
		  AND payout_id IS NULL`,
		tenantID, payoutID, commissionIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to claim commission records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ReleaseCommissions(ctx context.Context, tenantID, payoutID uuid.UUID) (ReleaseResult, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE commission_records
		SET payout_id = NULL, status = 'CLEARED', updated_at = NOW()
		WHERE tenant_id = $1 AND payout_id = $2 AND status = 'PROCESSING'
		RETURNING net_amount`,
		tenantID, payoutID,
	)
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("failed to release commission records: %w", err)
	}
	defer rows.Close()

	result := ReleaseResult{NetAmount: decimal.Zero}
	for rows.Next() {
		var net decimal.Decimal
		if err := rows.Scan(&net); err != nil {
			return ReleaseResult{}, fmt.Errorf("failed to scan released amount: %w", err)
		}
		result.Count++
		result.NetAmount = result.NetAmount.Add(net)
	}
	return result, rows.Err()
}

func (s *PgStore) MarkCommissionsPaid(ctx context.Context, tenantID, payoutID uuid.UUID, paidAt time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE commission_records
		SET status = 'PAID', paid_at = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND payout_id = $2 AND status = 'PROCESSING'`,
		tenantID, payoutID, paidAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark commission records paid: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ListCommissionsByPayout(ctx context.Context, tenantID, payoutID uuid.UUID) ([]CommissionRecord, error) {
	query := `
		SELECT ` + commissionColumns + `
		FROM commission_records
		WHERE tenant_id = $1 AND payout_id = $2
		ORDER BY cleared_at, id`
	return s.queryCommissions(ctx, query, tenantID, payoutID)
}

// --- Batches ---

const batchColumns = `id, tenant_id, batch_number, period_type, period_start, period_end, status,
	vendor_count, payout_count, total_gross, total_deductions, total_net, min_threshold, currency,
	is_demo, failure_reason, created_by, created_by_name, created_at, approved_by, approved_by_name,
	approved_at, processed_by, processed_by_name, processing_started_at, completed_at, cancelled_by,
	cancelled_by_name, cancelled_at, updated_at`

func scanBatch(row rowScanner) (*PayoutBatch, error) {
	b := &PayoutBatch{}
	err := row.Scan(
		&b.ID,
		&b.TenantID,
		&b.BatchNumber,
		&b.PeriodType,
		&b.PeriodStart,
		&b.PeriodEnd,
		&b.Status,
		&b.VendorCount,
		&b.PayoutCount,
		&b.TotalGross,
		&b.TotalDeductions,
		&b.TotalNet,
		&b.MinThreshold,
		&b.Currency,
		&b.IsDemo,
		&b.FailureReason,
		&b.CreatedBy,
		&b.CreatedByName,
		&b.CreatedAt,
		&b.ApprovedBy,
		&b.ApprovedByName,
		&b.ApprovedAt,
		&b.ProcessedBy,
		&b.ProcessedByName,
		&b.ProcessingStartedAt,
		&b.CompletedAt,
		&b.CancelledBy,
		&b.CancelledByName,
		&b.CancelledAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PgStore) InsertBatch(ctx context.Context, b *PayoutBatch) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payout_batches (
			id, tenant_id, batch_number, period_type, period_start, period_end, status,
			vendor_count, payout_count, total_gross, total_deductions, total_net, min_threshold,
			currency, is_demo, created_by, created_by_name, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`,
		b.ID, b.TenantID, b.BatchNumber, b.PeriodType, b.PeriodStart, b.PeriodEnd, b.Status,
		b.VendorCount, b.PayoutCount, b.TotalGross, b.TotalDeductions, b.TotalNet, b.MinThreshold,
		b.Currency, b.IsDemo, b.CreatedBy, b.CreatedByName, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payout batch %s: %w", b.BatchNumber, err)
	}
	return nil
}

func (s *PgStore) GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*PayoutBatch, error) {
	row := s.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM payout_batches WHERE tenant_id = $1 AND id = $2`, tenantID, batchID)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: payout batch %s", ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("failed to fetch payout batch %s: %w", batchID, err)
	}
	return b, nil
}

func (s *PgStore) UpdateBatchStatus(ctx context.Context, tenantID, batchID uuid.UUID, from BatchStatus, change BatchChange) (bool, error) {
	if !from.CanTransition(change.To) {
		return false, fmt.Errorf("%w: batch cannot move from %s to %s", ErrInvalidStateTransition, from, change.To)
	}

	args := []any{tenantID, batchID, from, change.To, change.At}
	var set string
	switch change.To {
	case BatchApproved:
		set = "approved_by = $6, approved_by_name = $7, approved_at = $5"
		args = append(args, change.Actor.ID, change.Actor.Name)
	case BatchProcessing:
		set = "processed_by = $6, processed_by_name = $7, processing_started_at = $5"
		args = append(args, change.Actor.ID, change.Actor.Name)
	case BatchCompleted, BatchFailed:
		set = "completed_at = $5, failure_reason = $6"
		args = append(args, change.FailureReason)
	case BatchCancelled:
		set = "cancelled_by = $6, cancelled_by_name = $7, cancelled_at = $5, failure_reason = $8"
		args = append(args, change.Actor.ID, change.Actor.Name, change.FailureReason)
	case BatchPending:
		return false, fmt.Errorf("%w: batch cannot return to %s", ErrInvalidStateTransition, change.To)
	}

	query := fmt.Sprintf(`
		UPDATE payout_batches
		SET status = $4, updated_at = $5, %s
		WHERE tenant_id = $1 AND id = $2 AND status = $3`, set)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update payout batch %s status: %w", batchID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) ListBatches(ctx context.Context, tenantID uuid.UUID, filter BatchFilter) ([]PayoutBatch, int, error) {
	filter.Normalize()

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PeriodType != "" {
		args = append(args, filter.PeriodType)
		conditions = append(conditions, fmt.Sprintf("period_type = $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM payout_batches WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payout batches: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM payout_batches WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		batchColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payout batches: %w", err)
	}
	defer rows.Close()

	batches := []PayoutBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payout batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, total, rows.Err()
}

// --- Vendor payouts ---

const payoutColumns = `id, tenant_id, batch_id, payout_number, vendor_id, bank_name, account_number,
	account_name, ifsc, linked_account_id, bank_verified, gross_amount, deductions, net_amount,
	commission_count, status, payment_reference, failure_reason, attempts, processed_at, created_at,
	updated_at`

func scanPayout(row rowScanner) (*VendorPayout, error) {
	p := &VendorPayout{}
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.BatchID,
		&p.PayoutNumber,
		&p.VendorID,
		&p.Bank.BankName,
		&p.Bank.AccountNumber,
		&p.Bank.AccountName,
		&p.Bank.IFSC,
		&p.Bank.LinkedAccountID,
		&p.Bank.Verified,
		&p.GrossAmount,
		&p.Deductions,
		&p.NetAmount,
		&p.CommissionCount,
		&p.Status,
		&p.PaymentReference,
		&p.FailureReason,
		&p.Attempts,
		&p.ProcessedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PgStore) InsertPayout(ctx context.Context, p *VendorPayout) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vendor_payouts (
			id, tenant_id, batch_id, payout_number, vendor_id, bank_name, account_number,
			account_name, ifsc, linked_account_id, bank_verified, gross_amount, deductions,
			net_amount, commission_count, status, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`,
		p.ID, p.TenantID, p.BatchID, p.PayoutNumber, p.VendorID, p.Bank.BankName, p.Bank.AccountNumber,
		p.Bank.AccountName, p.Bank.IFSC, p.Bank.LinkedAccountID, p.Bank.Verified, p.GrossAmount, p.Deductions,
		p.NetAmount, p.CommissionCount, p.Status, p.Attempts, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vendor payout %s: %w", p.PayoutNumber, err)
	}
	return nil
}

func (s *PgStore) GetPayout(ctx context.Context, tenantID, payoutID uuid.UUID) (*VendorPayout, error) {
	row := s.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM vendor_payouts WHERE tenant_id = $1 AND id = $2`, tenantID, payoutID)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: vendor payout %s", ErrNotFound, payoutID)
		}
		return nil, fmt.Errorf("failed to fetch vendor payout %s: %w", payoutID, err)
	}
	return p, nil
}

func (s *PgStore) queryPayouts(ctx context.Context, query string, args ...any) ([]VendorPayout, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor payouts: %w", err)
	}
	defer rows.Close()

	payouts := []VendorPayout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor payout: %w", err)
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

func (s *PgStore) ListPayoutsByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]VendorPayout, error) {
	return s.queryPayouts(ctx,
		`SELECT `+payoutColumns+` FROM vendor_payouts WHERE tenant_id = $1 AND batch_id = $2 ORDER BY payout_number`,
		tenantID, batchID)
}

func (s *PgStore) ListPayoutsByVendor(ctx context.Context, tenantID, vendorID uuid.UUID) ([]VendorPayout, error) {
	return s.queryPayouts(ctx,
		`SELECT `+payoutColumns+` FROM vendor_payouts WHERE tenant_id = $1 AND vendor_id = $2 ORDER BY created_at DESC`,
		tenantID, vendorID)
}

func (s *PgStore) UpdatePayoutStatus(ctx context.Context, tenantID, payoutID uuid.UUID, from PayoutStatus, change PayoutChange) (bool, error) {
	if !from.CanTransition(change.To) {
		return false, fmt.Errorf("%w: payout cannot move from %s to %s", ErrInvalidStateTransition, from, change.To)
	}

	attempt := 0
	if change.CountAttempt {
		attempt = 1
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE vendor_payouts
		SET status = $4,
		    updated_at = $5,
		    processed_at = $5,
		    payment_reference = COALESCE($6, payment_reference),
		    failure_reason = $7,
		    attempts = attempts + $8
		WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, payoutID, from, change.To, change.At, change.PaymentReference, change.FailureReason, attempt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update vendor payout %s status: %w", payoutID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Audit log ---

func (s *PgStore) InsertAuditLog(ctx context.Context, e *AuditLogEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payout_audit_logs (
			id, tenant_id, batch_id, payout_id, action, from_status, to_status, details,
			actor_id, actor_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.TenantID, e.BatchID, e.PayoutID, e.Action, e.FromStatus, e.ToStatus, e.Details,
		e.ActorID, e.ActorName, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log %s: %w", e.Action, err)
	}
	return nil
}

func (s *PgStore) ListAuditLogsByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]AuditLogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, batch_id, payout_id, action, from_status, to_status, details,
		       actor_id, actor_name, created_at
		FROM payout_audit_logs
		WHERE tenant_id = $1 AND batch_id = $2
		ORDER BY created_at DESC, id DESC`,
		tenantID, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	entries := []AuditLogEntry{}
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.BatchID, &e.PayoutID, &e.Action, &e.FromStatus, &e.ToStatus,
			&e.Details, &e.ActorID, &e.ActorName, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ Store = (*PgStore)(nil)
