package clients

import (
	"context"
	"fmt"

	"github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

// RazorpayTransferAPI is the slice of the Razorpay SDK used for Route
// transfers. *razorpay.Client's Transfer resource satisfies it.
type RazorpayTransferAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayClient implements SettlementClientWrapper with Razorpay Route
// transfers to the vendor's linked account.
type RazorpayClient struct {
	Transfers RazorpayTransferAPI
}

// NewRazorpayClient creates and returns a new instance of RazorpayClient.
func NewRazorpayClient(keyID, keySecret string) *RazorpayClient {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayClient{
		Transfers: client.Transfer,
	}
}

// Settle creates a direct transfer. Amounts go to Razorpay in the smallest
// currency unit.
func (r *RazorpayClient) Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	if req.Bank.LinkedAccountID == "" {
		return nil, fmt.Errorf("razorpay: vendor has no linked account")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paise := req.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	data := map[string]interface{}{
		"account":  req.Bank.LinkedAccountID,
		"amount":   paise,
		"currency": req.Currency,
		"notes": map[string]interface{}{
			"payout_number": req.PayoutNumber,
			"vendor_id":     req.VendorID.String(),
		},
	}

	// The SDK call is not context aware; run it aside so a deadline still
	// releases the worker.
	type outcome struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		body, err := r.Transfers.Create(data, map[string]string{"X-Payout-Idempotency": req.IdempotencyKey()})
		done <- outcome{body, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("razorpay transfer failed: %w", out.err)
		}
		id, _ := out.body["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("razorpay transfer returned no id")
		}
		status, _ := out.body["status"].(string)
		return &SettlementResult{Reference: id, Status: status}, nil
	}
}
