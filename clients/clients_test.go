package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() SettlementRequest {
	return SettlementRequest{
		PayoutID:     uuid.New(),
		PayoutNumber: "VP-1780000000000000001",
		VendorID:     uuid.New(),
		Amount:       decimal.RequireFromString("6500.50"),
		Currency:     "INR",
		Bank: payout_batch_models.BankSnapshot{
			BankName:        "HDFC Bank",
			AccountNumber:   "50100012345678",
			AccountName:     "Kiran Textiles",
			IFSC:            "HDFC0000123",
			LinkedAccountID: "acc_Kiran123",
			Verified:        true,
		},
	}
}

func TestDemoSettlementClient(t *testing.T) {
	res, err := NewDemoSettlementClient().Settle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "DEMO-VP-1780000000000000001", res.Reference)
}

func TestCashfreePayoutClientSettle(t *testing.T) {
	var got cashfreeTransferRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "cf-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "cf-secret", r.Header.Get("x-client-secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transfer_id":    got.TransferID,
			"cf_transfer_id": "CF-98765",
			"status":         "RECEIVED",
		})
	}))
	defer server.Close()

	client := NewCashfreePayoutClient("cf-id", "cf-secret", server.URL)
	res, err := client.Settle(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "CF-98765", res.Reference)
	assert.Equal(t, "VP-1780000000000000001", got.TransferID)
	assert.Equal(t, 6500.50, got.TransferAmount)
	assert.Equal(t, "HDFC0000123", got.BeneficiaryDetails.BeneficiaryInstrumentDetails.BankIFSC)
}

func TestSettlementRequestIdempotencyKey(t *testing.T) {
	req := testRequest()
	assert.Equal(t, "VP-1780000000000000001", req.IdempotencyKey())
	req.Attempt = 1
	assert.Equal(t, "VP-1780000000000000001", req.IdempotencyKey())
	req.Attempt = 3
	assert.Equal(t, "VP-1780000000000000001-3", req.IdempotencyKey())
}

func TestCashfreePayoutClientRejectedTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"beneficiary account invalid"}`))
	}))
	defer server.Close()

	_, err := NewCashfreePayoutClient("cf-id", "cf-secret", server.URL).Settle(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beneficiary account invalid")
}

func TestCashfreePayoutClientHonoursDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewCashfreePayoutClient("cf-id", "cf-secret", server.URL).Settle(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeTransfers struct {
	data map[string]interface{}
	resp map[string]interface{}
	err  error
}

func (f *fakeTransfers) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.data = data
	return f.resp, f.err
}

func TestRazorpayClientSettleSendsPaise(t *testing.T) {
	fake := &fakeTransfers{resp: map[string]interface{}{"id": "trf_ABC123", "status": "processed"}}
	client := &RazorpayClient{Transfers: fake}

	res, err := client.Settle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "trf_ABC123", res.Reference)
	assert.Equal(t, int64(650050), fake.data["amount"])
	assert.Equal(t, "acc_Kiran123", fake.data["account"])
}

func TestRazorpayClientRequiresLinkedAccount(t *testing.T) {
	req := testRequest()
	req.Bank.LinkedAccountID = ""
	_, err := (&RazorpayClient{Transfers: &fakeTransfers{}}).Settle(context.Background(), req)
	assert.Error(t, err)
}

func TestRazorpayClientWrapsProviderError(t *testing.T) {
	boom := errors.New("BAD_REQUEST_ERROR")
	_, err := (&RazorpayClient{Transfers: &fakeTransfers{err: boom}}).Settle(context.Background(), testRequest())
	assert.ErrorIs(t, err, boom)
}
