package vendor_models

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joy095/payouts/models/payout_batch_models"
)

var ErrVendorNotFound = errors.New("vendor bank account not found")

// VendorBankAccount is the settlement destination registered for a vendor.
type VendorBankAccount struct {
	VendorID        uuid.UUID `json:"vendor_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	BankName        string    `json:"bank_name"`
	AccountNumber   string    `json:"account_number"`
	AccountName     string    `json:"account_name"`
	IFSC            string    `json:"ifsc"`
	LinkedAccountID string    `json:"linked_account_id,omitempty"`
	IsVerified      bool      `json:"is_verified"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot copies the account into the form stored on a vendor payout.
func (a *VendorBankAccount) Snapshot() payout_batch_models.BankSnapshot {
	return payout_batch_models.BankSnapshot{
		BankName:        a.BankName,
		AccountNumber:   a.AccountNumber,
		AccountName:     a.AccountName,
		IFSC:            a.IFSC,
		LinkedAccountID: a.LinkedAccountID,
		Verified:        a.IsVerified,
	}
}

// Directory looks up and registers vendor bank accounts.
type Directory interface {
	GetBankAccount(ctx context.Context, tenantID, vendorID uuid.UUID) (*VendorBankAccount, error)
	UpsertBankAccount(ctx context.Context, account *VendorBankAccount) error
}

type PgDirectory struct {
	DB *pgxpool.Pool
}

func NewPgDirectory(db *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{DB: db}
}

func (d *PgDirectory) GetBankAccount(ctx context.Context, tenantID, vendorID uuid.UUID) (*VendorBankAccount, error) {
	var a VendorBankAccount
	err := d.DB.QueryRow(ctx, `
		SELECT vendor_id, tenant_id, bank_name, account_number, account_name, ifsc,
		       linked_account_id, is_verified, updated_at
		FROM vendor_bank_accounts
		WHERE tenant_id = $1 AND vendor_id = $2`,
		tenantID, vendorID,
	).Scan(
		&a.VendorID,
		&a.TenantID,
		&a.BankName,
		&a.AccountNumber,
		&a.AccountName,
		&a.IFSC,
		&a.LinkedAccountID,
		&a.IsVerified,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: vendor %s", ErrVendorNotFound, vendorID)
		}
		return nil, fmt.Errorf("failed to fetch bank account for vendor %s: %w", vendorID, err)
	}
	return &a, nil
}

// UpsertBankAccount registers or replaces a vendor's account. A changed
// account number resets verification.
func (d *PgDirectory) UpsertBankAccount(ctx context.Context, a *VendorBankAccount) error {
	err := d.DB.QueryRow(ctx, `
		INSERT INTO vendor_bank_accounts (
			vendor_id, tenant_id, bank_name, account_number, account_name, ifsc,
			linked_account_id, is_verified, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (tenant_id, vendor_id) DO UPDATE SET
			bank_name = EXCLUDED.bank_name,
			account_number = EXCLUDED.account_number,
			account_name = EXCLUDED.account_name,
			ifsc = EXCLUDED.ifsc,
			linked_account_id = EXCLUDED.linked_account_id,
			is_verified = CASE
				WHEN vendor_bank_accounts.account_number = EXCLUDED.account_number
					THEN vendor_bank_accounts.is_verified OR EXCLUDED.is_verified
				ELSE EXCLUDED.is_verified
			END,
			updated_at = NOW()
		RETURNING is_verified, updated_at`,
		a.VendorID, a.TenantID, a.BankName, a.AccountNumber, a.AccountName, a.IFSC,
		a.LinkedAccountID, a.IsVerified,
	).Scan(&a.IsVerified, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save bank account for vendor %s: %w", a.VendorID, err)
	}
	return nil
}

type directoryKey struct {
	tenantID uuid.UUID
	vendorID uuid.UUID
}

// StaticDirectory is an in-memory Directory for tests and PAYOUT_STORE=memory.
type StaticDirectory struct {
	mu       sync.RWMutex
	accounts map[directoryKey]VendorBankAccount
	now      func() time.Time
}

func NewStaticDirectory(accounts ...VendorBankAccount) *StaticDirectory {
	d := &StaticDirectory{accounts: map[directoryKey]VendorBankAccount{}, now: time.Now}
	for _, a := range accounts {
		d.accounts[directoryKey{a.TenantID, a.VendorID}] = a
	}
	return d
}

func (d *StaticDirectory) GetBankAccount(_ context.Context, tenantID, vendorID uuid.UUID) (*VendorBankAccount, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.accounts[directoryKey{tenantID, vendorID}]
	if !ok {
		return nil, fmt.Errorf("%w: vendor %s", ErrVendorNotFound, vendorID)
	}
	return &a, nil
}

func (d *StaticDirectory) UpsertBankAccount(_ context.Context, a *VendorBankAccount) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := directoryKey{a.TenantID, a.VendorID}
	if prev, ok := d.accounts[key]; ok && prev.AccountNumber == a.AccountNumber {
		a.IsVerified = a.IsVerified || prev.IsVerified
	}
	a.UpdatedAt = d.now().UTC()
	d.accounts[key] = *a
	return nil
}

var (
	_ Directory = (*PgDirectory)(nil)
	_ Directory = (*StaticDirectory)(nil)
)
