package payout_batch_controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/joy095/payouts/models/vendor_models"
	"github.com/joy095/payouts/services/payout_batch_service"
	"github.com/joy095/payouts/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t         *testing.T
	router    *gin.Engine
	store     *models.MemoryStore
	directory *vendor_models.StaticDirectory
	tenant    uuid.UUID
	userID    uuid.UUID
}

// mockAuth stands in for the JWT middleware.
func mockAuth(userID, tenantID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Test-Anonymous") != "" {
			c.Next()
			return
		}
		c.Set(utils.ContextUserID, userID.String())
		c.Set(utils.ContextUserName, "Priya Menon")
		c.Set(utils.ContextTenantID, tenantID.String())
		c.Set(utils.ContextRole, "finance_admin")
		c.Next()
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := models.NewMemoryStore()
	directory := vendor_models.NewStaticDirectory()
	numbers, err := payout_batch_service.NewNumbering(nil, 1)
	require.NoError(t, err)
	svc, err := payout_batch_service.NewService(payout_batch_service.Dependencies{
		Store:     store,
		Directory: directory,
		Numbers:   numbers,
		Options: payout_batch_service.Options{
			MinThreshold: decimal.NewFromInt(5000),
			Currency:     "INR",
			DemoMode:     true,
		},
	})
	require.NoError(t, err)

	h := &harness{t: t, store: store, directory: directory, tenant: uuid.New(), userID: uuid.New()}
	ctrl := NewPayoutBatchController(svc, directory)

	r := gin.New()
	api := r.Group("/", mockAuth(h.userID, h.tenant))
	api.POST("/payout-batches/preview", ctrl.PreviewBatch)
	api.POST("/payout-batches", ctrl.CreateBatch)
	api.GET("/payout-batches", ctrl.ListBatches)
	api.GET("/payout-batches/:batch_id", ctrl.GetBatch)
	api.GET("/payout-batches/:batch_id/payouts", ctrl.GetBatchPayouts)
	api.GET("/payout-batches/:batch_id/logs", ctrl.GetBatchLogs)
	api.POST("/payout-batches/:batch_id/approve", ctrl.ApproveBatch)
	api.POST("/payout-batches/:batch_id/cancel", ctrl.CancelBatch)
	api.POST("/payout-batches/:batch_id/process", ctrl.ProcessBatch)
	api.POST("/payout-batches/:batch_id/finalize", ctrl.FinalizeBatch)
	api.POST("/vendor-payouts/:payout_id/retry", ctrl.RetryPayout)
	api.GET("/vendors/:vendor_id/payouts", ctrl.GetVendorPayouts)
	api.GET("/vendors/:vendor_id/bank-account", ctrl.GetBankAccount)
	api.PUT("/vendors/:vendor_id/bank-account", ctrl.UpsertBankAccount)
	h.router = r
	return h
}

func (h *harness) do(method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (h *harness) seedVendor(net string) uuid.UUID {
	h.t.Helper()
	vendorID := uuid.New()
	w, _ := h.do(http.MethodPut, "/vendors/"+vendorID.String()+"/bank-account", gin.H{
		"bank_name":      "HDFC Bank",
		"account_number": "50100012345678",
		"account_name":   "Anand Textiles",
		"ifsc":           "hdfc0000123",
		"is_verified":    true,
	})
	require.Equal(h.t, http.StatusOK, w.Code)

	h.seedCommission(vendorID, net, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
	return vendorID
}

func (h *harness) seedCommission(vendorID uuid.UUID, net string, clearedAt time.Time) {
	amount := decimal.RequireFromString(net)
	h.store.AddCommission(models.CommissionRecord{
		ID:               uuid.New(),
		TenantID:         h.tenant,
		VendorID:         vendorID,
		SaleReference:    "ORD-" + uuid.NewString()[:8],
		SaleAmount:       amount,
		CommissionAmount: decimal.Zero,
		NetAmount:        amount,
		ClearedAt:        clearedAt,
	})
}

var marchPeriod = gin.H{"period_type": "monthly", "period_start": "2026-03-01", "period_end": "2026-03-31T23:59:59Z"}

func batchField(body map[string]any, key string) any {
	batch, _ := body["batch"].(map[string]any)
	return batch[key]
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	vendorID := h.seedVendor("7500")
	h.seedVendor("1200")

	w, body := h.do(http.MethodPost, "/payout-batches/preview", marchPeriod)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, body["eligible_vendor_count"])
	assert.EqualValues(t, 1, body["excluded_vendor_count"])

	w, body = h.do(http.MethodPost, "/payout-batches", marchPeriod)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "PENDING", batchField(body, "status"))
	assert.Equal(t, "7500", batchField(body, "total_net"))
	batchID := batchField(body, "id").(string)

	w, _ = h.do(http.MethodPost, "/payout-batches/"+batchID+"/process", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = h.do(http.MethodPost, "/payout-batches/"+batchID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "APPROVED", batchField(body, "status"))
	assert.Equal(t, "Priya Menon", batchField(body, "approved_by_name"))

	w, body = h.do(http.MethodPost, "/payout-batches/"+batchID+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", batchField(body, "status"))
	assert.EqualValues(t, 1, body["completed_count"])

	w, _ = h.do(http.MethodPost, "/payout-batches/"+batchID+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = h.do(http.MethodGet, "/payout-batches/"+batchID+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["logs"], 5)

	w, body = h.do(http.MethodGet, "/payout-batches/"+batchID+"/payouts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["payouts"], 1)

	w, body = h.do(http.MethodGet, "/vendors/"+vendorID.String()+"/payouts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["completed_count"])
	assert.Equal(t, "7500", body["total_paid"])

	w, body = h.do(http.MethodGet, "/payout-batches?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestCreateBatchWithoutEligibleVendors(t *testing.T) {
	h := newHarness(t)
	h.seedVendor("4999.99")

	w, body := h.do(http.MethodPost, "/payout-batches", marchPeriod)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "minimum payout threshold")
}

func TestCancelBatchOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.seedVendor("6000")

	_, body := h.do(http.MethodPost, "/payout-batches", marchPeriod)
	batchID := batchField(body, "id").(string)

	w, _ := h.do(http.MethodPost, "/payout-batches/"+batchID+"/cancel", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = h.do(http.MethodPost, "/payout-batches/"+batchID+"/cancel", gin.H{"reason": "duplicate period"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", batchField(body, "status"))
	assert.EqualValues(t, 1, body["cancelled_count"])

	for _, rec := range h.store.Commissions(h.tenant) {
		assert.Equal(t, models.CommissionCleared, rec.Status)
		assert.Nil(t, rec.PayoutID)
	}
}

func TestRequestErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown batch", http.MethodGet, "/payout-batches/" + uuid.NewString(), nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/payout-batches/not-a-uuid", nil, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/payout-batches?status=DONE", nil, http.StatusBadRequest},
		{"bad page", http.MethodGet, "/payout-batches?page=two", nil, http.StatusBadRequest},
		{"missing period", http.MethodPost, "/payout-batches", gin.H{"period_type": "MONTHLY"}, http.StatusBadRequest},
		{"bad date", http.MethodPost, "/payout-batches/preview", gin.H{"period_type": "MONTHLY", "period_start": "03/01/2026", "period_end": "2026-03-31"}, http.StatusBadRequest},
		{"reversed period", http.MethodPost, "/payout-batches/preview", gin.H{"period_type": "MONTHLY", "period_start": "2026-03-31", "period_end": "2026-03-01"}, http.StatusBadRequest},
		{"finalize unknown batch", http.MethodPost, "/payout-batches/" + uuid.NewString() + "/finalize", nil, http.StatusNotFound},
		{"unknown payout", http.MethodPost, "/vendor-payouts/" + uuid.NewString() + "/retry", nil, http.StatusNotFound},
		{"unknown bank account", http.MethodGet, "/vendors/" + uuid.NewString() + "/bank-account", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := h.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	h := newHarness(t)
	w, _ := h.do(http.MethodGet, "/payout-batches", nil, "X-Test-Anonymous", "1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpsertBankAccountNormalisesIFSC(t *testing.T) {
	h := newHarness(t)
	vendorID := h.seedVendor("100")

	w, body := h.do(http.MethodGet, "/vendors/"+vendorID.String()+"/bank-account", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HDFC0000123", body["ifsc"])
	assert.Equal(t, h.tenant.String(), body["tenant_id"])
}

func TestCalendarDayPeriodEndCoversTheWholeDay(t *testing.T) {
	h := newHarness(t)
	vendorID := h.seedVendor("6000")
	h.seedCommission(vendorID, "700", time.Date(2026, 3, 31, 14, 0, 0, 0, time.UTC))
	h.seedCommission(vendorID, "50", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	w, body := h.do(http.MethodPost, "/payout-batches/preview",
		gin.H{"period_type": "MONTHLY", "period_start": "2026-03-01", "period_end": "2026-03-31"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "6700", body["total_net"])
	assert.EqualValues(t, 2, body["commission_count"])
	assert.Equal(t, "2026-03-31T23:59:59.999999Z", body["period_end"])
}

func TestDailyPeriodOnCalendarDays(t *testing.T) {
	h := newHarness(t)
	vendorID := h.seedVendor("6000")
	h.seedCommission(vendorID, "700", time.Date(2026, 3, 31, 14, 0, 0, 0, time.UTC))

	daily := gin.H{"period_type": "DAILY", "period_start": "2026-03-31", "period_end": "2026-03-31", "min_threshold": "1"}
	w, body := h.do(http.MethodPost, "/payout-batches/preview", daily)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "700", body["total_net"])
	assert.EqualValues(t, 1, body["commission_count"])

	w, body = h.do(http.MethodPost, "/payout-batches", daily)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "700", batchField(body, "total_net"))
	assert.EqualValues(t, 1, batchField(body, "payout_count"))
}
