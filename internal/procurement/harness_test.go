package procurement

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerline/ledgerline/internal/inventory"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata/banks"
	"github.com/ledgerline/ledgerline/internal/masterdata/items"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// memoryRepo implements RepositoryPort and TxRepository in memory.
// WithTx serializes callers with a mutex, standing in for the row
// locks the real repository takes.
type memoryRepo struct {
	mu           sync.Mutex
	orders       map[int64]PurchaseOrder
	orderLines   map[int64][]PurchaseOrderLine
	receipts     map[int64]Receipt
	receiptLines map[int64][]ReceiptLine
	invoices     map[int64]Invoice
	payments     map[int64][]Payment
	balances     map[int64]inventory.Balance
	movements    []inventory.Movement
	bankAccounts map[int64]banks.BankAccount
	journals     []ledger.PostingInput
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:       map[int64]PurchaseOrder{},
		orderLines:   map[int64][]PurchaseOrderLine{},
		receipts:     map[int64]Receipt{},
		receiptLines: map[int64][]ReceiptLine{},
		invoices:     map[int64]Invoice{},
		payments:     map[int64][]Payment{},
		balances:     map[int64]inventory.Balance{},
		bankAccounts: map[int64]banks.BankAccount{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, r)
}

func (r *memoryRepo) newID() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) GetOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	order.Lines = append([]PurchaseOrderLine(nil), r.orderLines[id]...)
	return order, nil
}

func (r *memoryRepo) ListOrders(_ context.Context, status OrderStatus, _ int) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, order := range r.orders {
		if status == "" || order.Status == status {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetReceipt(_ context.Context, id int64) (Receipt, error) {
	rec, ok := r.receipts[id]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: receipt %d", shared.ErrNotFound, id)
	}
	rec.Lines = append([]ReceiptLine(nil), r.receiptLines[id]...)
	return rec, nil
}

func (r *memoryRepo) ListReceipts(_ context.Context, orderID int64) ([]Receipt, error) {
	var out []Receipt
	for _, rec := range r.receipts {
		if rec.OrderID == orderID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return inv, nil
}

func (r *memoryRepo) ListOpenInvoices(_ context.Context) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.Status == InvoiceStatusOpen {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	return append([]Payment(nil), r.payments[invoiceID]...), nil
}

func (r *memoryRepo) CreateOrder(_ context.Context, order PurchaseOrder) (int64, error) {
	id := r.newID()
	order.ID = id
	r.orders[id] = order
	return id, nil
}

func (r *memoryRepo) InsertOrderLine(_ context.Context, line PurchaseOrderLine) error {
	line.ID = r.newID()
	r.orderLines[line.OrderID] = append(r.orderLines[line.OrderID], line)
	return nil
}

func (r *memoryRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return r.GetOrder(ctx, id)
}

func (r *memoryRepo) UpdateOrderStatus(_ context.Context, id int64, status OrderStatus) error {
	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	order.Status = status
	r.orders[id] = order
	return nil
}

func (r *memoryRepo) UpdateOrderTotal(_ context.Context, id int64, total float64) error {
	order := r.orders[id]
	order.Total = total
	r.orders[id] = order
	return nil
}

func (r *memoryRepo) DeleteOrderLines(_ context.Context, orderID int64) error {
	delete(r.orderLines, orderID)
	return nil
}

func (r *memoryRepo) HasReceipts(_ context.Context, orderID int64) (bool, error) {
	for _, rec := range r.receipts {
		if rec.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) SumReceivedBaseByItem(_ context.Context, orderID int64) (map[int64]float64, error) {
	totals := map[int64]float64{}
	for id, rec := range r.receipts {
		if rec.OrderID != orderID {
			continue
		}
		for _, line := range r.receiptLines[id] {
			totals[line.ItemID] += line.Qty * line.Factor
		}
	}
	return totals, nil
}

func (r *memoryRepo) CreateReceipt(_ context.Context, receipt Receipt) (int64, error) {
	id := r.newID()
	receipt.ID = id
	r.receipts[id] = receipt
	return id, nil
}

func (r *memoryRepo) InsertReceiptLine(_ context.Context, line ReceiptLine) error {
	line.ID = r.newID()
	r.receiptLines[line.ReceiptID] = append(r.receiptLines[line.ReceiptID], line)
	return nil
}

func (r *memoryRepo) GetBalancesForUpdate(_ context.Context, itemIDs []int64) (map[int64]inventory.Balance, error) {
	balances := make(map[int64]inventory.Balance, len(itemIDs))
	for _, id := range itemIDs {
		bal, ok := r.balances[id]
		if !ok {
			bal = inventory.Balance{ItemID: id}
		}
		balances[id] = bal
	}
	return balances, nil
}

func (r *memoryRepo) UpsertBalance(_ context.Context, balance inventory.Balance) error {
	r.balances[balance.ItemID] = balance
	return nil
}

func (r *memoryRepo) InsertMovement(_ context.Context, movement inventory.Movement) (int64, error) {
	movement.ID = r.newID()
	r.movements = append(r.movements, movement)
	return movement.ID, nil
}

func (r *memoryRepo) CreateInvoice(_ context.Context, invoice Invoice) (int64, error) {
	id := r.newID()
	invoice.ID = id
	r.invoices[id] = invoice
	return id, nil
}

func (r *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *memoryRepo) UpdateInvoiceSettlement(_ context.Context, id int64, outstanding float64, status InvoiceStatus) error {
	inv := r.invoices[id]
	inv.Outstanding = outstanding
	inv.Status = status
	r.invoices[id] = inv
	return nil
}

func (r *memoryRepo) CreatePayment(_ context.Context, payment Payment) (int64, error) {
	id := r.newID()
	payment.ID = id
	r.payments[payment.InvoiceID] = append(r.payments[payment.InvoiceID], payment)
	return id, nil
}

func (r *memoryRepo) GetBankForUpdate(_ context.Context, id int64) (banks.BankAccount, error) {
	acct, ok := r.bankAccounts[id]
	if !ok {
		return banks.BankAccount{}, fmt.Errorf("%w: bank account %d", shared.ErrNotFound, id)
	}
	return acct, nil
}

func (r *memoryRepo) DecrementBankBalance(_ context.Context, id int64, amount float64) error {
	acct := r.bankAccounts[id]
	acct.Balance -= amount
	r.bankAccounts[id] = acct
	return nil
}

func (r *memoryRepo) PostJournal(_ context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	r.journals = append(r.journals, in)
	return ledger.JournalEntry{ID: r.newID()}, nil
}

type fakeItems struct {
	byID map[int64]items.Item
}

func (f *fakeItems) GetMany(_ context.Context, ids []int64) (map[int64]items.Item, error) {
	out := map[int64]items.Item{}
	for _, id := range ids {
		if item, ok := f.byID[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

type fakeUnits struct {
	factors map[int64]float64 // keyed by item id for test simplicity
}

func (f *fakeUnits) Resolve(_ context.Context, itemID int64, unitID *int64) (float64, error) {
	if unitID == nil || *unitID == 0 {
		return 1.00, nil
	}
	if factor, ok := f.factors[itemID]; ok {
		return factor, nil
	}
	return 1.00, nil
}

type fakeTaxes struct {
	rates map[int64]float64
}

func (f *fakeTaxes) RatesFor(_ context.Context, ids []int64) (map[int64]float64, error) {
	out := map[int64]float64{}
	for _, id := range ids {
		if rate, ok := f.rates[id]; ok {
			out[id] = rate
		}
	}
	return out, nil
}

type fakeAccounts struct {
	accounts ledger.PostingAccounts
}

func (f *fakeAccounts) PostingAccounts(_ context.Context) (ledger.PostingAccounts, error) {
	return f.accounts, nil
}

type fakeSequences struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (f *fakeSequences) Next(_ context.Context, prefix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[prefix]++
	return fmt.Sprintf("%s-%06d", prefix, f.counts[prefix]), nil
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return fmt.Errorf("%w: %s", shared.ErrIdempotencyConflict, key)
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

// defaultAccounts has every mapping configured.
var defaultAccounts = ledger.PostingAccounts{
	Inventory:      100,
	GoodsInTransit: 200,
	TaxCredit:      300,
	Payables:       400,
}

type harness struct {
	repo  *memoryRepo
	items *fakeItems
	units *fakeUnits
	taxes *fakeTaxes
	svc   *Service
}

func newHarness(accounts ledger.PostingAccounts) *harness {
	repo := newMemoryRepo()
	fi := &fakeItems{byID: map[int64]items.Item{}}
	fu := &fakeUnits{factors: map[int64]float64{}}
	ft := &fakeTaxes{rates: map[int64]float64{}}
	svc := NewService(repo, fi, fu, ft, &fakeAccounts{accounts: accounts}, &fakeSequences{}, nil, nil)
	return &harness{repo: repo, items: fi, units: fu, taxes: ft, svc: svc}
}

func (h *harness) addItem(id int64, kind items.Kind, taxID *int64) {
	h.items.byID[id] = items.Item{ID: id, SKU: fmt.Sprintf("SKU-%d", id), Name: fmt.Sprintf("Item %d", id), Kind: kind, BaseUnitID: 1, TaxID: taxID, IsActive: true}
}

func (h *harness) addBank(id, ledgerAccountID int64, balance float64) {
	h.repo.bankAccounts[id] = banks.BankAccount{ID: id, Code: fmt.Sprintf("BNK-%d", id), Name: "Main", LedgerAccountID: ledgerAccountID, Balance: balance, IsActive: true}
}
