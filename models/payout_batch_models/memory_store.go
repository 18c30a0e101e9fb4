package payout_batch_models

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memoryAudit struct {
	seq   int
	entry AuditLogEntry
}

type memoryState struct {
	commissions map[uuid.UUID]CommissionRecord
	batches     map[uuid.UUID]PayoutBatch
	payouts     map[uuid.UUID]VendorPayout
	audit       []memoryAudit
	seq         int
}

func newMemoryState() *memoryState {
	return &memoryState{
		commissions: map[uuid.UUID]CommissionRecord{},
		batches:     map[uuid.UUID]PayoutBatch{},
		payouts:     map[uuid.UUID]VendorPayout{},
	}
}

func (st *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range st.commissions {
		c.commissions[k] = v
	}
	for k, v := range st.batches {
		c.batches[k] = v
	}
	for k, v := range st.payouts {
		c.payouts[k] = v
	}
	c.audit = append([]memoryAudit(nil), st.audit...)
	c.seq = st.seq
	return c
}

// MemoryStore keeps everything in process memory. Transactions run against a
// copy of the state that replaces the live state only when fn succeeds.
// Used by tests and by PAYOUT_STORE=memory.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(&memoryRepo{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) repo() *memoryRepo {
	return &memoryRepo{state: s.state}
}

// AddCommission seeds the ledger with a commission record.
func (s *MemoryStore) AddCommission(rec CommissionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Status == "" {
		rec.Status = CommissionCleared
	}
	s.state.commissions[rec.ID] = rec
}

func (s *MemoryStore) Commission(id uuid.UUID) (CommissionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.commissions[id]
	return rec, ok
}

// Commissions returns every ledger record of a tenant ordered by id.
func (s *MemoryStore) Commissions(tenantID uuid.UUID) []CommissionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CommissionRecord
	for _, rec := range s.state.commissions {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out
}

func (s *MemoryStore) ListClearedCommissions(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]CommissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListClearedCommissions(ctx, tenantID, start, end)
}

func (s *MemoryStore) ClaimCommissions(ctx context.Context, tenantID, payoutID uuid.UUID, commissionIDs []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ClaimCommissions(ctx, tenantID, payoutID, commissionIDs)
}

func (s *MemoryStore) ReleaseCommissions(ctx context.Context, tenantID, payoutID uuid.UUID) (ReleaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ReleaseCommissions(ctx, tenantID, payoutID)
}

func (s *MemoryStore) MarkCommissionsPaid(ctx context.Context, tenantID, payoutID uuid.UUID, paidAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().MarkCommissionsPaid(ctx, tenantID, payoutID, paidAt)
}

func (s *MemoryStore) ListCommissionsByPayout(ctx context.Context, tenantID, payoutID uuid.UUID) ([]CommissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListCommissionsByPayout(ctx, tenantID, payoutID)
}

func (s *MemoryStore) InsertBatch(ctx context.Context, batch *PayoutBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().InsertBatch(ctx, batch)
}

func (s *MemoryStore) GetBatch(ctx context.Context, tenantID, batchID uuid.UUID) (*PayoutBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().GetBatch(ctx, tenantID, batchID)
}

func (s *MemoryStore) UpdateBatchStatus(ctx context.Context, tenantID, batchID uuid.UUID, from BatchStatus, change BatchChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().UpdateBatchStatus(ctx, tenantID, batchID, from, change)
}

func (s *MemoryStore) ListBatches(ctx context.Context, tenantID uuid.UUID, filter BatchFilter) ([]PayoutBatch, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListBatches(ctx, tenantID, filter)
}

func (s *MemoryStore) InsertPayout(ctx context.Context, payout *VendorPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().InsertPayout(ctx, payout)
}

func (s *MemoryStore) GetPayout(ctx context.Context, tenantID, payoutID uuid.UUID) (*VendorPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().GetPayout(ctx, tenantID, payoutID)
}

func (s *MemoryStore) ListPayoutsByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]VendorPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListPayoutsByBatch(ctx, tenantID, batchID)
}

func (s *MemoryStore) ListPayoutsByVendor(ctx context.Context, tenantID, vendorID uuid.UUID) ([]VendorPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListPayoutsByVendor(ctx, tenantID, vendorID)
}

func (s *MemoryStore) UpdatePayoutStatus(ctx context.Context, tenantID, payoutID uuid.UUID, from PayoutStatus, change PayoutChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().UpdatePayoutStatus(ctx, tenantID, payoutID, from, change)
}

func (s *MemoryStore) InsertAuditLog(ctx context.Context, entry *AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().InsertAuditLog(ctx, entry)
}

func (s *MemoryStore) ListAuditLogsByBatch(ctx context.Context, tenantID, batchID uuid.UUID) ([]AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListAuditLogsByBatch(ctx, tenantID, batchID)
}

// memoryRepo works on a state it does not lock; MemoryStore holds the lock.
type memoryRepo struct {
	state *memoryState
}

func (r *memoryRepo) ListClearedCommissions(_ context.Context, tenantID uuid.UUID, start, end time.Time) ([]CommissionRecord, error) {
	var out []CommissionRecord
	for _, rec := range r.state.commissions {
		if rec.TenantID != tenantID || rec.Status != CommissionCleared || rec.PayoutID != nil {
			continue
		}
		if rec.ClearedAt.Before(start) || rec.ClearedAt.After(end) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].VendorID[:], out[j].VendorID[:]); c != 0 {
			return c < 0
		}
		if !out[i].ClearedAt.Equal(out[j].ClearedAt) {
			return out[i].ClearedAt.Before(out[j].ClearedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r *memoryRepo) ClaimCommissions(_ context.Context, tenantID, payoutID uuid.UUID, commissionIDs []uuid.UUID) (int64, error) {
	var claimed int64
	for _, id := range commissionIDs {
		rec, ok := r.state.commissions[id]
		if !ok || rec.TenantID != tenantID || rec.Status != CommissionCleared || rec.PayoutID != nil {
			continue
		}
		pid := payoutID
		rec.PayoutID = &pid
		rec.Status = CommissionProcessing
		r.state.commissions[id] = rec
		claimed++
	}
	return claimed, nil
}

func (r *memoryRepo) ReleaseCommissions(_ context.Context, tenantID, payoutID uuid.UUID) (ReleaseResult, error) {
	result := ReleaseResult{NetAmount: decimal.Zero}
	for id, rec := range r.state.commissions {
		if rec.TenantID != tenantID || rec.Status != CommissionProcessing || rec.PayoutID == nil || *rec.PayoutID != payoutID {
			continue
		}
		rec.PayoutID = nil
		rec.Status = CommissionCleared
		r.state.commissions[id] = rec
		result.Count++
		result.NetAmount = result.NetAmount.Add(rec.NetAmount)
	}
	return result, nil
}

func (r *memoryRepo) MarkCommissionsPaid(_ context.Context, tenantID, payoutID uuid.UUID, paidAt time.Time) (int64, error) {
	var paid int64
	for id, rec := range r.state.commissions {
		if rec.TenantID != tenantID || rec.Status != CommissionProcessing || rec.PayoutID == nil || *rec.PayoutID != payoutID {
			continue
		}
		at := paidAt
		rec.Status = CommissionPaid
		rec.PaidAt = &at
		r.state.commissions[id] = rec
		paid++
	}
	return paid, nil
}

func (r *memoryRepo) ListCommissionsByPayout(_ context.Context, tenantID, payoutID uuid.UUID) ([]CommissionRecord, error) {
	var out []CommissionRecord
	for _, rec := range r.state.commissions {
		if rec.TenantID == tenantID && rec.PayoutID != nil && *rec.PayoutID == payoutID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClearedAt.Equal(out[j].ClearedAt) {
			return out[i].ClearedAt.Before(out[j].ClearedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r *memoryRepo) InsertBatch(_ context.Context, batch *PayoutBatch) error {
	if _, exists := r.state.batches[batch.ID]; exists {
		return fmt.Errorf("payout batch %s already exists", batch.ID)
	}
	for _, b := range r.state.batches {
		if b.TenantID == batch.TenantID && b.BatchNumber == batch.BatchNumber {
			return fmt.Errorf("batch number %s already in use", batch.BatchNumber)
		}
	}
	r.state.batches[batch.ID] = *batch
	return nil
}

func (r *memoryRepo) GetBatch(_ context.Context, tenantID, batchID uuid.UUID) (*PayoutBatch, error) {
	b, ok := r.state.batches[batchID]
	if !ok || b.TenantID != tenantID {
		return nil, fmt.Errorf("%w: payout batch %s", ErrNotFound, batchID)
	}
	return &b, nil
}

func (r *memoryRepo) UpdateBatchStatus(_ context.Context, tenantID, batchID uuid.UUID, from BatchStatus, change BatchChange) (bool, error) {
	if !from.CanTransition(change.To) {
		return false, fmt.Errorf("%w: batch cannot move from %s to %s", ErrInvalidStateTransition, from, change.To)
	}
	b, ok := r.state.batches[batchID]
	if !ok || b.TenantID != tenantID || b.Status != from {
		return false, nil
	}
	b.Apply(change)
	r.state.batches[batchID] = b
	return true, nil
}

func (r *memoryRepo) ListBatches(_ context.Context, tenantID uuid.UUID, filter BatchFilter) ([]PayoutBatch, int, error) {
	filter.Normalize()

	var matched []PayoutBatch
	for _, b := range r.state.batches {
		if b.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.PeriodType != "" && b.PeriodType != filter.PeriodType {
			continue
		}
		if filter.CreatedFrom != nil && b.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && b.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return bytes.Compare(matched[i].ID[:], matched[j].ID[:]) > 0
	})

	total := len(matched)
	page := []PayoutBatch{}
	if offset := filter.Offset(); offset < total {
		end := offset + filter.Limit
		if end > total {
			end = total
		}
		page = append(page, matched[offset:end]...)
	}
	return page, total, nil
}

func (r *memoryRepo) InsertPayout(_ context.Context, payout *VendorPayout) error {
	if _, ok := r.state.batches[payout.BatchID]; !ok {
		return fmt.Errorf("vendor payout %s references unknown batch %s", payout.PayoutNumber, payout.BatchID)
	}
	if _, exists := r.state.payouts[payout.ID]; exists {
		return fmt.Errorf("vendor payout %s already exists", payout.ID)
	}
	r.state.payouts[payout.ID] = *payout
	return nil
}

func (r *memoryRepo) GetPayout(_ context.Context, tenantID, payoutID uuid.UUID) (*VendorPayout, error) {
	p, ok := r.state.payouts[payoutID]
	if !ok || p.TenantID != tenantID {
		return nil, fmt.Errorf("%w: vendor payout %s", ErrNotFound, payoutID)
	}
	return &p, nil
}

func (r *memoryRepo) ListPayoutsByBatch(_ context.Context, tenantID, batchID uuid.UUID) ([]VendorPayout, error) {
	out := []VendorPayout{}
	for _, p := range r.state.payouts {
		if p.TenantID == tenantID && p.BatchID == batchID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayoutNumber < out[j].PayoutNumber })
	return out, nil
}

func (r *memoryRepo) ListPayoutsByVendor(_ context.Context, tenantID, vendorID uuid.UUID) ([]VendorPayout, error) {
	out := []VendorPayout{}
	for _, p := range r.state.payouts {
		if p.TenantID == tenantID && p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) UpdatePayoutStatus(_ context.Context, tenantID, payoutID uuid.UUID, from PayoutStatus, change PayoutChange) (bool, error) {
	if !from.CanTransition(change.To) {
		return false, fmt.Errorf("%w: payout cannot move from %s to %s", ErrInvalidStateTransition, from, change.To)
	}
	p, ok := r.state.payouts[payoutID]
	if !ok || p.TenantID != tenantID || p.Status != from {
		return false, nil
	}
	p.Apply(change)
	r.state.payouts[payoutID] = p
	return true, nil
}

func (r *memoryRepo) InsertAuditLog(_ context.Context, entry *AuditLogEntry) error {
	if _, ok := r.state.batches[entry.BatchID]; !ok {
		return fmt.Errorf("audit log %s references unknown batch %s", entry.Action, entry.BatchID)
	}
	r.state.seq++
	r.state.audit = append(r.state.audit, memoryAudit{seq: r.state.seq, entry: *entry})
	return nil
}

func (r *memoryRepo) ListAuditLogsByBatch(_ context.Context, tenantID, batchID uuid.UUID) ([]AuditLogEntry, error) {
	var matched []memoryAudit
	for _, a := range r.state.audit {
		if a.entry.TenantID == tenantID && a.entry.BatchID == batchID {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].entry.CreatedAt.Equal(matched[j].entry.CreatedAt) {
			return matched[i].entry.CreatedAt.After(matched[j].entry.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	out := make([]AuditLogEntry, 0, len(matched))
	for _, a := range matched {
		out = append(out, a.entry)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
