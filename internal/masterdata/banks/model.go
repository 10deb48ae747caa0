// Package banks manages bank accounts used to settle purchase
// invoices.
package banks

import "time"

// BankAccount represents a bank account. LedgerAccountID links it to
// the chart of accounts so payments can credit the right account.
type BankAccount struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	AccountNumber   string    `json:"account_number"`
	LedgerAccountID int64     `json:"ledger_account_id"`
	Balance         float64   `json:"balance"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
