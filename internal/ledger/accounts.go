package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Mapping keys recognised in the account_mappings table.
const (
	AccountKeyInventory      = "inventory"
	AccountKeyGoodsInTransit = "goods_in_transit"
	AccountKeyTaxCredit      = "tax_credit"
	AccountKeyPayables       = "payables"
)

// PostingAccounts is the tenant-level accounting configuration handed
// to each posting workflow as an explicit value, never read from
// process-wide state. A zero field means the mapping is absent;
// workflows check their required keys before touching any row.
type PostingAccounts struct {
	Inventory      int64 `json:"inventory"`
	GoodsInTransit int64 `json:"goods_in_transit"`
	TaxCredit      int64 `json:"tax_credit"`
	Payables       int64 `json:"payables"`
}

// ForReceiving verifies the accounts a goods-receipt posting needs.
func (a PostingAccounts) ForReceiving() error {
	return a.require(map[string]int64{
		AccountKeyInventory:      a.Inventory,
		AccountKeyGoodsInTransit: a.GoodsInTransit,
	})
}

// ForInvoicing verifies the accounts an invoice posting needs.
func (a PostingAccounts) ForInvoicing() error {
	return a.require(map[string]int64{
		AccountKeyGoodsInTransit: a.GoodsInTransit,
		AccountKeyTaxCredit:      a.TaxCredit,
		AccountKeyPayables:       a.Payables,
	})
}

// ForPayment verifies the accounts a payment posting needs. The bank
// side comes from the bank account row itself.
func (a PostingAccounts) ForPayment() error {
	return a.require(map[string]int64{
		AccountKeyPayables: a.Payables,
	})
}

func (a PostingAccounts) require(keys map[string]int64) error {
	for key, id := range keys {
		if id == 0 {
			return fmt.Errorf("%w: %s", ErrMissingConfiguration, key)
		}
	}
	return nil
}

// AccountsSource resolves the posting configuration.
type AccountsSource interface {
	PostingAccounts(ctx context.Context) (PostingAccounts, error)
}

// AccountsRepository reads account mappings from PostgreSQL.
type AccountsRepository struct {
	pool *pgxpool.Pool
}

// NewAccountsRepository constructs the repository.
func NewAccountsRepository(pool *pgxpool.Pool) *AccountsRepository {
	return &AccountsRepository{pool: pool}
}

// PostingAccounts assembles the configuration from account_mappings.
// Missing keys stay zero; callers decide which keys they require.
func (r *AccountsRepository) PostingAccounts(ctx context.Context) (PostingAccounts, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, account_id FROM account_mappings`)
	if err != nil {
		return PostingAccounts{}, err
	}
	defer rows.Close()
	var accounts PostingAccounts
	for rows.Next() {
		var key string
		var accountID int64
		if err := rows.Scan(&key, &accountID); err != nil {
			return PostingAccounts{}, err
		}
		switch key {
		case AccountKeyInventory:
			accounts.Inventory = accountID
		case AccountKeyGoodsInTransit:
			accounts.GoodsInTransit = accountID
		case AccountKeyTaxCredit:
			accounts.TaxCredit = accountID
		case AccountKeyPayables:
			accounts.Payables = accountID
		}
	}
	return accounts, rows.Err()
}

// Set upserts one mapping.
func (r *AccountsRepository) Set(ctx context.Context, key string, accountID int64) error {
	switch key {
	case AccountKeyInventory, AccountKeyGoodsInTransit, AccountKeyTaxCredit, AccountKeyPayables:
	default:
		return fmt.Errorf("ledger: unknown mapping key %q", key)
	}
	if accountID <= 0 {
		return errors.New("ledger: account id required")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO account_mappings (key, account_id) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`, key, accountID)
	return err
}

// Get returns a single mapping.
func (r *AccountsRepository) Get(ctx context.Context, key string) (int64, error) {
	var accountID int64
	err := r.pool.QueryRow(ctx, `SELECT account_id FROM account_mappings WHERE key=$1`, key).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrMissingConfiguration, key)
		}
		return 0, err
	}
	return accountID, nil
}
