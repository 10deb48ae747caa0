package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/inventory"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata/banks"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// TxRepository is the transactional surface of one purchasing
// operation. Receiving and settlement touch orders, item balances,
// bank accounts and the journal inside a single transaction, so the
// interface spans all of them over the same underlying pgx.Tx.
type TxRepository interface {
	CreateOrder(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line PurchaseOrderLine) error
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	UpdateOrderTotal(ctx context.Context, id int64, total float64) error
	DeleteOrderLines(ctx context.Context, orderID int64) error
	HasReceipts(ctx context.Context, orderID int64) (bool, error)
	SumReceivedBaseByItem(ctx context.Context, orderID int64) (map[int64]float64, error)

	CreateReceipt(ctx context.Context, receipt Receipt) (int64, error)
	InsertReceiptLine(ctx context.Context, line ReceiptLine) error

	GetBalancesForUpdate(ctx context.Context, itemIDs []int64) (map[int64]inventory.Balance, error)
	UpsertBalance(ctx context.Context, balance inventory.Balance) error
	InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error)

	CreateInvoice(ctx context.Context, invoice Invoice) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceSettlement(ctx context.Context, id int64, outstanding float64, status InvoiceStatus) error
	CreatePayment(ctx context.Context, payment Payment) (int64, error)

	GetBankForUpdate(ctx context.Context, id int64) (banks.BankAccount, error)
	DecrementBankBalance(ctx context.Context, id int64, amount float64) error

	PostJournal(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error)
}

// Repository persists purchasing documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction and maps
// lock or serialization failures to the retryable contention error.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsContention(err) {
		return shared.ErrContention
	}
	return err
}

const orderColumns = `id, number, supplier_id, status, issue_date, delivery_date, total, note, COALESCE(created_by, 0), created_at, updated_at`

// GetOrder loads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getOrder(ctx, r.pool, id, "")
}

// ListOrders returns recent orders without lines, newest first.
func (r *Repository) ListOrders(ctx context.Context, status OrderStatus, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE ($1 = '' OR status = $1) ORDER BY id DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// GetReceipt loads a receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var rec Receipt
	err := r.pool.QueryRow(ctx, `SELECT id, number, order_id, kind, received_at, COALESCE(received_by, 0), COALESCE(note,'') FROM receipts WHERE id=$1`, id).
		Scan(&rec.ID, &rec.Number, &rec.OrderID, &rec.Kind, &rec.ReceivedAt, &rec.ReceivedBy, &rec.Note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, fmt.Errorf("%w: receipt %d", shared.ErrNotFound, id)
		}
		return Receipt{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, receipt_id, item_id, ordered_qty, qty, factor, unit_cost FROM receipt_lines WHERE receipt_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line ReceiptLine
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.ItemID, &line.OrderedQty, &line.Qty, &line.Factor, &line.UnitCost); err != nil {
			return Receipt{}, err
		}
		rec.Lines = append(rec.Lines, line)
	}
	return rec, rows.Err()
}

// ListReceipts returns the receipts recorded against an order.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, order_id, kind, received_at, COALESCE(received_by, 0), COALESCE(note,'') FROM receipts WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []Receipt
	for rows.Next() {
		var rec Receipt
		if err := rows.Scan(&rec.ID, &rec.Number, &rec.OrderID, &rec.Kind, &rec.ReceivedAt, &rec.ReceivedBy, &rec.Note); err != nil {
			return nil, err
		}
		receipts = append(receipts, rec)
	}
	return receipts, rows.Err()
}

const invoiceColumns = `id, number, supplier_id, order_id, receipt_id, status, issue_date, due_date, subtotal, tax_total, total, outstanding, created_at`

// GetInvoice loads one invoice.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
		}
		return Invoice{}, err
	}
	return inv, nil
}

// ListOpenInvoices returns unsettled invoices oldest due first.
func (r *Repository) ListOpenInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE status = $1 ORDER BY due_date ASC`, InvoiceStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListPayments returns the payments recorded against an invoice.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, invoice_id, bank_account_id, amount, COALESCE(method,''), COALESCE(reference,''), paid_at
FROM payments WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Number, &p.InvoiceID, &p.BankAccountID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) CreateOrder(ctx context.Context, order PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, issue_date, delivery_date, total, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		order.Number, order.SupplierID, order.Status, order.IssueDate, order.DeliveryDate, order.Total, order.Note, nullInt(order.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepo) InsertOrderLine(ctx context.Context, line PurchaseOrderLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_lines (order_id, item_id, unit_id, factor, qty, unit_cost, total)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		line.OrderID, line.ItemID, line.UnitID, line.Factor, line.Qty, line.UnitCost, line.Total)
	return err
}

// GetOrderForUpdate locks the order header row for the remainder of
// the transaction. This is the first lock every receiving or
// order-mutating operation takes.
func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getOrder(ctx, r.tx, id, " FOR UPDATE")
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *txRepo) UpdateOrderTotal(ctx context.Context, id int64, total float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET total=$1, updated_at=NOW() WHERE id=$2`, total, id)
	return err
}

func (r *txRepo) DeleteOrderLines(ctx context.Context, orderID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE order_id=$1`, orderID)
	return err
}

func (r *txRepo) HasReceipts(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM receipts WHERE order_id=$1)`, orderID).Scan(&exists)
	return exists, err
}

// SumReceivedBaseByItem totals received quantity per item in base
// units across every receipt ever recorded for the order. Read under
// the order lock so the over-receipt check sees all prior receipts.
func (r *txRepo) SumReceivedBaseByItem(ctx context.Context, orderID int64) (map[int64]float64, error) {
	rows, err := r.tx.Query(ctx, `SELECT rl.item_id, COALESCE(SUM(rl.qty * rl.factor), 0)
FROM receipt_lines rl JOIN receipts r ON r.id = rl.receipt_id
WHERE r.order_id = $1 GROUP BY rl.item_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[int64]float64{}
	for rows.Next() {
		var itemID int64
		var qty float64
		if err := rows.Scan(&itemID, &qty); err != nil {
			return nil, err
		}
		totals[itemID] = qty
	}
	return totals, rows.Err()
}

func (r *txRepo) CreateReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receipts (number, order_id, kind, received_at, received_by, note)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		receipt.Number, receipt.OrderID, receipt.Kind, receipt.ReceivedAt, nullInt(receipt.ReceivedBy), receipt.Note).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReceiptLine(ctx context.Context, line ReceiptLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO receipt_lines (receipt_id, item_id, ordered_qty, qty, factor, unit_cost)
VALUES ($1,$2,$3,$4,$5,$6)`,
		line.ReceiptID, line.ItemID, line.OrderedQty, line.Qty, line.Factor, line.UnitCost)
	return err
}

func (r *txRepo) GetBalancesForUpdate(ctx context.Context, itemIDs []int64) (map[int64]inventory.Balance, error) {
	return inventory.GetBalancesForUpdateTx(ctx, r.tx, itemIDs)
}

func (r *txRepo) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	return inventory.UpsertBalanceTx(ctx, r.tx, balance)
}

func (r *txRepo) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	return inventory.InsertMovementTx(ctx, r.tx, movement)
}

func (r *txRepo) CreateInvoice(ctx context.Context, invoice Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_invoices (number, supplier_id, order_id, receipt_id, status, issue_date, due_date, subtotal, tax_total, total, outstanding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id`,
		invoice.Number, invoice.SupplierID, invoice.OrderID, invoice.ReceiptID, invoice.Status, invoice.IssueDate, invoice.DueDate,
		invoice.Subtotal, invoice.TaxTotal, invoice.Total, invoice.Outstanding).Scan(&id)
	return id, err
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepo) UpdateInvoiceSettlement(ctx context.Context, id int64, outstanding float64, status InvoiceStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_invoices SET outstanding=$1, status=$2 WHERE id=$3`, outstanding, status, id)
	return err
}

func (r *txRepo) CreatePayment(ctx context.Context, payment Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (number, invoice_id, bank_account_id, amount, method, reference, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		payment.Number, payment.InvoiceID, payment.BankAccountID, payment.Amount, payment.Method, payment.Reference, payment.PaidAt).Scan(&id)
	return id, err
}

func (r *txRepo) GetBankForUpdate(ctx context.Context, id int64) (banks.BankAccount, error) {
	return banks.GetForUpdateTx(ctx, r.tx, id)
}

func (r *txRepo) DecrementBankBalance(ctx context.Context, id int64, amount float64) error {
	return banks.DecrementBalanceTx(ctx, r.tx, id, amount)
}

func (r *txRepo) PostJournal(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	return ledger.PostTx(ctx, r.tx, in)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrder(ctx context.Context, q querier, id int64, suffix string) (PurchaseOrder, error) {
	order, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, order_id, item_id, unit_id, factor, qty, unit_cost, total FROM purchase_order_lines WHERE order_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line PurchaseOrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.UnitID, &line.Factor, &line.Qty, &line.UnitCost, &line.Total); err != nil {
			return PurchaseOrder{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var order PurchaseOrder
	var createdBy *int64
	err := row.Scan(&order.ID, &order.Number, &order.SupplierID, &order.Status, &order.IssueDate, &order.DeliveryDate,
		&order.Total, &order.Note, &createdBy, &order.CreatedAt, &order.UpdatedAt)
	if createdBy != nil {
		order.CreatedBy = *createdBy
	}
	return order, err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.SupplierID, &inv.OrderID, &inv.ReceiptID, &inv.Status, &inv.IssueDate, &inv.DueDate,
		&inv.Subtotal, &inv.TaxTotal, &inv.Total, &inv.Outstanding, &inv.CreatedAt)
	return inv, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
