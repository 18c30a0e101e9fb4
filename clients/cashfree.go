package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CashfreePayoutClient implements SettlementClientWrapper using the Cashfree
// Payouts transfer API.
type CashfreePayoutClient struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	HttpClient   *http.Client
}

type cashfreeTransferRequest struct {
	TransferID         string                     `json:"transfer_id"`
	TransferAmount     float64                    `json:"transfer_amount"`
	TransferCurrency   string                     `json:"transfer_currency"`
	TransferMode       string                     `json:"transfer_mode"`
	BeneficiaryDetails cashfreeBeneficiaryDetails `json:"beneficiary_details"`
	TransferRemarks    string                     `json:"transfer_remarks,omitempty"`
}

type cashfreeBeneficiaryDetails struct {
	BeneficiaryID                string                    `json:"beneficiary_id"`
	BeneficiaryName              string                    `json:"beneficiary_name"`
	BeneficiaryInstrumentDetails cashfreeInstrumentDetails `json:"beneficiary_instrument_details"`
}

type cashfreeInstrumentDetails struct {
	BankAccountNumber string `json:"bank_account_number"`
	BankIFSC          string `json:"bank_ifsc"`
}

type cashfreeTransferResponse struct {
	TransferID   string `json:"transfer_id"`
	CFTransferID string `json:"cf_transfer_id"`
	Status       string `json:"status"`
	StatusCode   string `json:"status_code"`
	Message      string `json:"message"`
}

func NewCashfreePayoutClient(clientID, clientSecret, baseURL string) *CashfreePayoutClient {
	if baseURL == "" {
		baseURL = "https://sandbox.cashfree.com/payout"
	}
	return &CashfreePayoutClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HttpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// makeRequest is an HTTP client helper
func (c *CashfreePayoutClient) makeRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-version", "2024-01-01")
	req.Header.Set("x-client-id", c.ClientID)
	req.Header.Set("x-client-secret", c.ClientSecret)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// Settle submits a bank transfer. The attempt's idempotency key doubles as
// the transfer id so a repeated submission is rejected by Cashfree instead of
// paying twice.
func (c *CashfreePayoutClient) Settle(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	if req.Bank.AccountNumber == "" || req.Bank.IFSC == "" {
		return nil, fmt.Errorf("cashfree: bank account number and IFSC are required")
	}

	amount, _ := req.Amount.Round(2).Float64()
	payload := cashfreeTransferRequest{
		TransferID:       req.IdempotencyKey(),
		TransferAmount:   amount,
		TransferCurrency: req.Currency,
		TransferMode:     "banktransfer",
		BeneficiaryDetails: cashfreeBeneficiaryDetails{
			BeneficiaryID:   req.VendorID.String(),
			BeneficiaryName: req.Bank.AccountName,
			BeneficiaryInstrumentDetails: cashfreeInstrumentDetails{
				BankAccountNumber: req.Bank.AccountNumber,
				BankIFSC:          req.Bank.IFSC,
			},
		},
		TransferRemarks: "vendor payout " + req.PayoutNumber,
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/transfers", bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("cashfree transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cashfree transfer failed [%d]: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cfResp cashfreeTransferResponse
	if err := json.NewDecoder(resp.Body).Decode(&cfResp); err != nil {
		return nil, fmt.Errorf("failed to decode transfer response: %w", err)
	}

	switch strings.ToUpper(cfResp.Status) {
	case "FAILED", "REJECTED", "REVERSED":
		return nil, fmt.Errorf("cashfree transfer %s: %s", strings.ToLower(cfResp.Status), cfResp.Message)
	}

	reference := cfResp.CFTransferID
	if reference == "" {
		reference = cfResp.TransferID
	}
	return &SettlementResult{Reference: reference, Status: cfResp.Status}, nil
}
