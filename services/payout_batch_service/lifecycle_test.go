package payout_batch_service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBatchConcreteScenario(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	w := f.addVendor(true)
	vRecords := []models.CommissionRecord{
		f.addCommission(v, "2000"),
		f.addCommission(v, "1500"),
		f.addCommission(v, "3000"),
	}
	wRecord := f.addCommission(w, "1000")

	summary := f.createBatch()

	batch := summary.Batch
	assert.Equal(t, models.BatchPending, batch.Status)
	assert.True(t, strings.HasPrefix(batch.BatchNumber, "PB-20260401-"))
	assert.Equal(t, 1, batch.VendorCount)
	assert.Equal(t, 1, batch.PayoutCount)
	assertAmount(t, "6500", batch.TotalNet)
	assert.Equal(t, f.actor.ID, batch.CreatedBy)
	assert.True(t, batch.IsDemo)

	require.Len(t, summary.Payouts, 1)
	payout := summary.Payouts[0]
	assert.Equal(t, v, payout.VendorID)
	assert.Equal(t, models.PayoutPending, payout.Status)
	assertAmount(t, "6500", payout.NetAmount)
	assert.Equal(t, 3, payout.CommissionCount)
	assert.Equal(t, "HDFC Bank", payout.Bank.BankName)
	assert.True(t, strings.HasPrefix(payout.PayoutNumber, "VP-"))

	claimedNet := decimal.Zero
	for _, rec := range vRecords {
		got := f.commission(rec.ID)
		assert.Equal(t, models.CommissionProcessing, got.Status)
		require.NotNil(t, got.PayoutID)
		assert.Equal(t, payout.ID, *got.PayoutID)
		claimedNet = claimedNet.Add(got.NetAmount)
	}
	assert.True(t, claimedNet.Equal(batch.TotalNet))

	untouched := f.commission(wRecord.ID)
	assert.Equal(t, models.CommissionCleared, untouched.Status)
	assert.Nil(t, untouched.PayoutID)

	logs := f.logs(batch.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionBatchCreated, logs[0].Action)
	assert.Contains(t, logs[0].Details, "1 vendors")
	assert.Contains(t, logs[0].Details, "6500.00 INR")
	assert.Equal(t, f.actor.Name, logs[0].ActorName)
}

func TestCreateBatchThresholdBoundaryIsInclusive(t *testing.T) {
	f := newFixture(t)
	below := f.addVendor(true)
	exact := f.addVendor(true)
	belowRec := f.addCommission(below, "4999")
	f.addCommission(exact, "5000")

	summary := f.createBatch()

	require.Len(t, summary.Payouts, 1)
	assert.Equal(t, exact, summary.Payouts[0].VendorID)
	assert.Equal(t, models.CommissionCleared, f.commission(belowRec.ID).Status)
	assert.Nil(t, f.commission(belowRec.ID).PayoutID)
}

func TestCreateBatchRejectsPeriodWithoutEligibleVendors(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	f.addCommission(v, "1000")

	_, err := f.svc.CreateBatch(context.Background(), f.actor, f.period())
	assert.ErrorIs(t, err, models.ErrNoEligibleVendors)
	assert.ErrorIs(t, err, models.ErrValidation)

	page, err := f.svc.ListBatches(context.Background(), f.actor, models.BatchFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestCreateBatchSnapshotsMissingBankAccountAsUnverified(t *testing.T) {
	f := newFixture(t)
	unknown := uuid.New()
	f.addCommission(unknown, "8000")

	summary := f.createBatch()
	require.Len(t, summary.Payouts, 1)
	assert.Equal(t, models.BankSnapshot{}, summary.Payouts[0].Bank)
}

// conflictStore simulates another batch claiming the first record of every
// claim just before this one does.
type conflictStore struct {
	*models.MemoryStore
}

func (s conflictStore) WithTx(ctx context.Context, fn func(repo models.Repository) error) error {
	return s.MemoryStore.WithTx(ctx, func(repo models.Repository) error {
		return fn(conflictRepo{repo})
	})
}

type conflictRepo struct {
	models.Repository
}

func (r conflictRepo) ClaimCommissions(ctx context.Context, tenantID, payoutID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if _, err := r.Repository.ClaimCommissions(ctx, tenantID, uuid.New(), ids[:1]); err != nil {
		return 0, err
	}
	return r.Repository.ClaimCommissions(ctx, tenantID, payoutID, ids)
}

func TestCreateBatchClaimConflictPersistsNothing(t *testing.T) {
	base := newFixture(t)
	f := newFixture(t, withStore(conflictStore{base.store}))
	f.store = base.store

	v := f.addVendor(true)
	a := f.addCommission(v, "3000")
	b := f.addCommission(v, "3000")

	_, err := f.svc.CreateBatch(context.Background(), f.actor, f.period())
	require.ErrorIs(t, err, models.ErrClaimConflict)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		rec := f.commission(id)
		assert.Equal(t, models.CommissionCleared, rec.Status)
		assert.Nil(t, rec.PayoutID)
	}
	page, err := f.svc.ListBatches(context.Background(), f.actor, models.BatchFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestConcurrentCreateBatchClaimsEachRecordOnce(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	rec := f.addCommission(v, "9000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.CreateBatch(context.Background(), f.actor, f.period())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrNoEligibleVendors) || errors.Is(err, models.ErrClaimConflict), err.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, models.CommissionProcessing, f.commission(rec.ID).Status)
}

func TestApproveBatch(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	f.addCommission(v, "6000")
	created := f.createBatch()

	approved, err := f.svc.ApproveBatch(context.Background(), f.actor, created.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchApproved, approved.Batch.Status)
	require.NotNil(t, approved.Batch.ApprovedBy)
	assert.Equal(t, f.actor.ID, *approved.Batch.ApprovedBy)
	require.NotNil(t, approved.Batch.ApprovedAt)
	assert.True(t, fixedNow.Equal(*approved.Batch.ApprovedAt))

	_, err = f.svc.ApproveBatch(context.Background(), f.actor, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)

	logs := f.logs(created.Batch.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionBatchApproved, logs[0].Action)
	assert.Equal(t, "PENDING", *logs[0].FromStatus)
	assert.Equal(t, "APPROVED", *logs[0].ToStatus)
}

func TestStateGuardsWriteNoLog(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	f.addCommission(v, "6000")
	created := f.createBatch()
	ctx := context.Background()

	_, err := f.svc.ProcessBatch(ctx, f.actor, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
	assert.Len(t, f.logs(created.Batch.ID), 1)

	_, err = f.svc.CancelBatch(ctx, f.actor, created.Batch.ID, "duplicate run")
	require.NoError(t, err)
	before := len(f.logs(created.Batch.ID))

	_, err = f.svc.ApproveBatch(ctx, f.actor, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
	assert.Len(t, f.logs(created.Batch.ID), before)
}

func TestCancelBatchReleasesEveryClaimedCommission(t *testing.T) {
	for _, approveFirst := range []bool{false, true} {
		name := "pending"
		if approveFirst {
			name = "approved"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			v := f.addVendor(true)
			w := f.addVendor(true)
			records := []models.CommissionRecord{
				f.addCommission(v, "2500"),
				f.addCommission(v, "2500"),
				f.addCommission(w, "7000"),
			}

			var batchID uuid.UUID
			if approveFirst {
				batchID = f.createApprovedBatch().Batch.ID
			} else {
				batchID = f.createBatch().Batch.ID
			}

			summary, err := f.svc.CancelBatch(context.Background(), f.actor, batchID, "  wrong period selected ")
			require.NoError(t, err)

			assert.Equal(t, models.BatchCancelled, summary.Batch.Status)
			require.NotNil(t, summary.Batch.FailureReason)
			assert.Equal(t, "wrong period selected", *summary.Batch.FailureReason)
			require.NotNil(t, summary.Batch.CancelledBy)
			assert.Equal(t, 2, summary.CancelledCount)
			assertAmount(t, "12000", summary.Batch.TotalNet)

			for _, p := range summary.Payouts {
				assert.Equal(t, models.PayoutCancelled, p.Status)
			}
			for _, rec := range records {
				got := f.commission(rec.ID)
				assert.Equal(t, models.CommissionCleared, got.Status)
				assert.Nil(t, got.PayoutID)
			}

			logs := f.logs(batchID)
			assert.Equal(t, models.ActionBatchCancelled, logs[0].Action)
			assert.Equal(t, 2, countActions(logs, models.ActionPayoutCancelled))
			assert.Equal(t, 1, countActions(logs, models.ActionBatchCancelled))

			preview, err := f.svc.PreviewBatch(context.Background(), f.actor, f.period())
			require.NoError(t, err)
			assertAmount(t, "12000", preview.TotalNet)
		})
	}
}

func TestCancelBatchRequiresReason(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	f.addCommission(v, "6000")
	created := f.createBatch()

	_, err := f.svc.CancelBatch(context.Background(), f.actor, created.Batch.ID, "   ")
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := f.svc.GetBatch(context.Background(), f.actor, created.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPending, got.Batch.Status)
}

func TestCancelBatchRefusedOnceProcessed(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	f.addCommission(v, "6000")
	approved := f.createApprovedBatch()

	_, err := f.svc.ProcessBatch(context.Background(), f.actor, approved.Batch.ID)
	require.NoError(t, err)

	_, err = f.svc.CancelBatch(context.Background(), f.actor, approved.Batch.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidStateTransition)
}

func TestLifecycleIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	v := f.addVendor(true)
	f.addCommission(v, "6000")
	created := f.createBatch()

	intruder := models.Actor{ID: uuid.New(), Name: "Other Tenant", TenantID: uuid.New()}
	ctx := context.Background()

	_, err := f.svc.GetBatch(ctx, intruder, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.ApproveBatch(ctx, intruder, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.CancelBatch(ctx, intruder, created.Batch.ID, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.GetBatchLogs(ctx, intruder, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.GetBatchPayouts(ctx, intruder, created.Batch.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	preview, err := f.svc.PreviewBatch(ctx, intruder, f.period())
	require.NoError(t, err)
	assert.Empty(t, preview.Vendors)
}
