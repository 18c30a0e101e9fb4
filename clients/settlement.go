package clients

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/joy095/payouts/models/payout_batch_models"
	"github.com/shopspring/decimal"
)

// SettlementRequest is one vendor payout handed to a settlement provider.
type SettlementRequest struct {
	PayoutID     uuid.UUID
	PayoutNumber string
	VendorID     uuid.UUID
	Amount       decimal.Decimal
	Currency     string
	Bank         payout_batch_models.BankSnapshot
	// Attempt starts at 1 and grows with every explicit retry.
	Attempt int
}

// IdempotencyKey identifies one settlement attempt of a payout. Concurrent
// submissions of the same attempt share it.
func (r SettlementRequest) IdempotencyKey() string {
	if r.Attempt <= 1 {
		return r.PayoutNumber
	}
	return fmt.Sprintf("%s-%d", r.PayoutNumber, r.Attempt)
}

type SettlementResult struct {
	Reference string
	Status    string
}

// SettlementClientWrapper provides an interface for moving money to a vendor.
// This interface allows for easier testing by mocking provider interactions.
type SettlementClientWrapper interface {
	Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error)
}

// DemoSettlementClient never contacts a provider. Every request succeeds with
// a reference derived from the payout number.
type DemoSettlementClient struct{}

func NewDemoSettlementClient() *DemoSettlementClient {
	return &DemoSettlementClient{}
}

func (DemoSettlementClient) Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &SettlementResult{
		Reference: fmt.Sprintf("DEMO-%s", req.PayoutNumber),
		Status:    "SUCCESS",
	}, nil
}

// SettlementFunc adapts a plain function to SettlementClientWrapper.
type SettlementFunc func(ctx context.Context, req SettlementRequest) (*SettlementResult, error)

func (f SettlementFunc) Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	return f(ctx, req)
}
