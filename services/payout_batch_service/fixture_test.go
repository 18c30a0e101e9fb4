package payout_batch_service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/payouts/clients"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/joy095/payouts/models/vendor_models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	clearedAt   = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	fixedNow    = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	t         *testing.T
	store     *models.MemoryStore
	directory *vendor_models.StaticDirectory
	svc       *Service
	tenant    uuid.UUID
	actor     models.Actor
	saleSeq   int
	now       time.Time
}

type fixtureOption func(*Dependencies)

func withLiveSettlement(settler clients.SettlementClientWrapper) fixtureOption {
	return func(d *Dependencies) {
		d.Options.DemoMode = false
		d.Settlement = settler
	}
}

func withSettlementTimeout(timeout time.Duration) fixtureOption {
	return func(d *Dependencies) { d.Options.SettlementTimeout = timeout }
}

func withNotifier(n Notifier) fixtureOption {
	return func(d *Dependencies) { d.Notifier = n }
}

func withStore(store models.Store) fixtureOption {
	return func(d *Dependencies) { d.Store = store }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{t: t, now: fixedNow}
	store := models.NewMemoryStore()
	directory := vendor_models.NewStaticDirectory()
	numbers, err := NewNumbering(nil, 1)
	require.NoError(t, err)

	deps := Dependencies{
		Store:     store,
		Directory: directory,
		Numbers:   numbers,
		Options: Options{
			MinThreshold:          decimal.NewFromInt(5000),
			Currency:              "INR",
			DemoMode:              true,
			SettlementTimeout:     time.Second,
			SettlementConcurrency: 4,
		},
		Now: func() time.Time { return f.now },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	svc, err := NewService(deps)
	require.NoError(t, err)

	f.store = store
	f.directory = directory
	f.svc = svc
	f.tenant = uuid.New()
	f.actor = models.Actor{ID: uuid.New(), Name: "Priya Menon", TenantID: f.tenant, Role: "finance_admin"}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) addVendor(verified bool) uuid.UUID {
	f.t.Helper()
	id := uuid.New()
	require.NoError(f.t, f.directory.UpsertBankAccount(context.Background(), &vendor_models.VendorBankAccount{
		VendorID:        id,
		TenantID:        f.tenant,
		BankName:        "HDFC Bank",
		AccountNumber:   "50100012345678",
		AccountName:     "Vendor " + id.String()[:8],
		IFSC:            "HDFC0000123",
		LinkedAccountID: "acc_" + id.String()[:8],
		IsVerified:      verified,
	}))
	return id
}

// addCommission seeds a CLEARED record with a 10% platform commission on top
// of the vendor's net.
func (f *fixture) addCommission(vendorID uuid.UUID, net string) models.CommissionRecord {
	f.saleSeq++
	amount := decimal.RequireFromString(net)
	commission := amount.Mul(decimal.RequireFromString("0.1"))
	rec := models.CommissionRecord{
		ID:               uuid.New(),
		TenantID:         f.tenant,
		VendorID:         vendorID,
		SaleReference:    fmt.Sprintf("ORD-%04d", f.saleSeq),
		SaleAmount:       amount.Add(commission),
		CommissionAmount: commission,
		NetAmount:        amount,
		Status:           models.CommissionCleared,
		ClearedAt:        clearedAt,
	}
	f.store.AddCommission(rec)
	return rec
}

func (f *fixture) period() PeriodInput {
	return PeriodInput{PeriodType: models.PeriodMonthly, PeriodStart: periodStart, PeriodEnd: periodEnd}
}

func (f *fixture) createBatch() *BatchSummary {
	f.t.Helper()
	summary, err := f.svc.CreateBatch(context.Background(), f.actor, f.period())
	require.NoError(f.t, err)
	return summary
}

func (f *fixture) createApprovedBatch() *BatchSummary {
	f.t.Helper()
	created := f.createBatch()
	approved, err := f.svc.ApproveBatch(context.Background(), f.actor, created.Batch.ID)
	require.NoError(f.t, err)
	return approved
}

func (f *fixture) logs(batchID uuid.UUID) []models.AuditLogEntry {
	f.t.Helper()
	logs, err := f.svc.GetBatchLogs(context.Background(), f.actor, batchID)
	require.NoError(f.t, err)
	return logs
}

func (f *fixture) commission(id uuid.UUID) models.CommissionRecord {
	f.t.Helper()
	rec, ok := f.store.Commission(id)
	require.True(f.t, ok)
	return rec
}

func payoutFor(t *testing.T, payouts []models.VendorPayout, vendorID uuid.UUID) models.VendorPayout {
	t.Helper()
	for _, p := range payouts {
		if p.VendorID == vendorID {
			return p
		}
	}
	require.FailNow(t, "no payout for vendor", vendorID.String())
	return models.VendorPayout{}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func countActions(logs []models.AuditLogEntry, action models.AuditAction) int {
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}
