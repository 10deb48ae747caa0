package banks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type Repository interface {
	List(ctx context.Context) ([]BankAccount, error)
	Get(ctx context.Context, id int64) (BankAccount, error)
	Create(ctx context.Context, account BankAccount) (BankAccount, error)
	Update(ctx context.Context, id int64, account BankAccount) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const bankColumns = `id, code, name, account_number, ledger_account_id, balance, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]BankAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bankColumns+` FROM bank_accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []BankAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (BankAccount, error) {
	acct, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+bankColumns+` FROM bank_accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, fmt.Errorf("%w: bank account %d", shared.ErrNotFound, id)
		}
		return BankAccount{}, err
	}
	return acct, nil
}

func (r *repository) Create(ctx context.Context, account BankAccount) (BankAccount, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO bank_accounts (code, name, account_number, ledger_account_id, balance, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		account.Code, account.Name, account.AccountNumber, account.LedgerAccountID, account.Balance, account.IsActive).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	return account, err
}

func (r *repository) Update(ctx context.Context, id int64, account BankAccount) error {
	tag, err := r.pool.Exec(ctx, `UPDATE bank_accounts SET code=$1, name=$2, account_number=$3, ledger_account_id=$4, is_active=$5, updated_at=NOW() WHERE id=$6`,
		account.Code, account.Name, account.AccountNumber, account.LedgerAccountID, account.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bank account %d", shared.ErrNotFound, id)
	}
	return nil
}

// GetForUpdateTx locks one bank account row on an open transaction.
// Payment settlement locks the bank after the invoice, keeping the
// system-wide lock order stable.
func GetForUpdateTx(ctx context.Context, tx pgx.Tx, id int64) (BankAccount, error) {
	acct, err := scanAccount(tx.QueryRow(ctx, `SELECT `+bankColumns+` FROM bank_accounts WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, fmt.Errorf("%w: bank account %d", shared.ErrNotFound, id)
		}
		return BankAccount{}, err
	}
	return acct, nil
}

// DecrementBalanceTx subtracts a paid amount from the locked account.
func DecrementBalanceTx(ctx context.Context, tx pgx.Tx, id int64, amount float64) error {
	_, err := tx.Exec(ctx, `UPDATE bank_accounts SET balance = balance - $1, updated_at = NOW() WHERE id=$2`, amount, id)
	return err
}

func scanAccount(row pgx.Row) (BankAccount, error) {
	var acct BankAccount
	err := row.Scan(&acct.ID, &acct.Code, &acct.Name, &acct.AccountNumber, &acct.LedgerAccountID, &acct.Balance, &acct.IsActive, &acct.CreatedAt, &acct.UpdatedAt)
	return acct, err
}
