package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// CreateInvoiceInput describes invoice creation. Exactly one of
// ReceiptID or OrderID selects the source document; a receipt-based
// invoice covers the received quantities, an order-based one the full
// order.
type CreateInvoiceInput struct {
	ReceiptID      *int64
	OrderID        *int64
	IssueDate      time.Time
	DueDate        time.Time
	CreatedBy      int64
	IdempotencyKey string
}

type invoiceLine struct {
	itemID   int64
	qty      float64
	unitCost float64
}

// CreateInvoice recognizes the supplier invoice for a receipt or an
// order. It clears the transitional goods-in-transit liability into
// payables: Dr goods-in-transit (subtotal), Dr tax credit (tax),
// Cr payables (grand total). Amounts are computed with decimals so
// the posting balances exactly.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if (input.ReceiptID == nil) == (input.OrderID == nil) {
		return Invoice{}, fmt.Errorf("%w: exactly one of receipt or order required", shared.ErrValidation)
	}

	accounts, err := s.accounts.PostingAccounts(ctx)
	if err != nil {
		return Invoice{}, err
	}
	if err := accounts.ForInvoicing(); err != nil {
		return Invoice{}, err
	}

	var (
		lines      []invoiceLine
		supplierID int64
		orderRef   *int64
	)
	if input.ReceiptID != nil {
		receipt, err := s.repo.GetReceipt(ctx, *input.ReceiptID)
		if err != nil {
			return Invoice{}, err
		}
		order, err := s.repo.GetOrder(ctx, receipt.OrderID)
		if err != nil {
			return Invoice{}, err
		}
		supplierID = order.SupplierID
		orderRef = &receipt.OrderID
		for _, rl := range receipt.Lines {
			lines = append(lines, invoiceLine{itemID: rl.ItemID, qty: rl.Qty, unitCost: rl.UnitCost})
		}
	} else {
		order, err := s.repo.GetOrder(ctx, *input.OrderID)
		if err != nil {
			return Invoice{}, err
		}
		if order.Status == OrderStatusDraft || order.Status == OrderStatusCancelled {
			return Invoice{}, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.Status)
		}
		supplierID = order.SupplierID
		orderRef = input.OrderID
		for _, ol := range order.Lines {
			lines = append(lines, invoiceLine{itemID: ol.ItemID, qty: ol.Qty, unitCost: ol.UnitCost})
		}
	}
	if len(lines) == 0 {
		return Invoice{}, fmt.Errorf("%w: nothing to invoice", shared.ErrValidation)
	}

	subtotal, taxTotal, err := s.computeTotals(ctx, lines)
	if err != nil {
		return Invoice{}, err
	}
	total := subtotal.Add(taxTotal)

	guarded := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "procurement.invoice"); err != nil {
			return Invoice{}, err
		}
		guarded = true
	}

	number, err := s.sequences.Next(ctx, prefixInvoice)
	if err != nil {
		if guarded {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Invoice{}, err
	}

	now := s.now()
	if input.IssueDate.IsZero() {
		input.IssueDate = now
	}
	if input.DueDate.IsZero() {
		input.DueDate = input.IssueDate.AddDate(0, 1, 0)
	}
	invoice := Invoice{
		Number:      number,
		SupplierID:  supplierID,
		OrderID:     orderRef,
		ReceiptID:   input.ReceiptID,
		Status:      InvoiceStatusOpen,
		IssueDate:   input.IssueDate,
		DueDate:     input.DueDate,
		Subtotal:    subtotal.InexactFloat64(),
		TaxTotal:    taxTotal.InexactFloat64(),
		Total:       total.InexactFloat64(),
		Outstanding: total.InexactFloat64(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		invoice.ID = id

		postingLines := []ledger.PostingLineInput{
			{AccountID: accounts.GoodsInTransit, Debit: invoice.Subtotal},
		}
		if taxTotal.IsPositive() {
			postingLines = append(postingLines, ledger.PostingLineInput{AccountID: accounts.TaxCredit, Debit: invoice.TaxTotal})
		}
		postingLines = append(postingLines, ledger.PostingLineInput{AccountID: accounts.Payables, Credit: invoice.Total})

		_, err = tx.PostJournal(ctx, ledger.PostingInput{
			Date:         input.IssueDate,
			Reference:    invoice.Number,
			SourceModule: "PROCUREMENT.INVOICE",
			SourceID:     uuid.NewSHA1(uuid.Nil, []byte("INVOICE:"+invoice.Number)),
			Memo:         fmt.Sprintf("supplier invoice %s", invoice.Number),
			PostedBy:     input.CreatedBy,
			Lines:        postingLines,
		})
		return err
	})
	if err != nil {
		if guarded {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Invoice{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "invoice.create", invoice.ID, map[string]any{"number": invoice.Number, "total": invoice.Total})
	return invoice, nil
}

// PaymentInput describes one payment against an invoice.
type PaymentInput struct {
	InvoiceID      int64
	BankAccountID  int64
	Amount         float64
	Method         string
	Reference      string
	ActorID        int64
	IdempotencyKey string
}

// RecordPayment settles part of an invoice. The invoice row is locked
// first, then the bank account, matching the system-wide lock order.
// Paying more than the outstanding balance is refused.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Payment, error) {
	if input.InvoiceID <= 0 || input.BankAccountID <= 0 {
		return Payment{}, fmt.Errorf("%w: invoice and bank account required", shared.ErrValidation)
	}
	if input.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}

	accounts, err := s.accounts.PostingAccounts(ctx)
	if err != nil {
		return Payment{}, err
	}
	if err := accounts.ForPayment(); err != nil {
		return Payment{}, err
	}

	guarded := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "procurement.payment"); err != nil {
			return Payment{}, err
		}
		guarded = true
	}

	number, err := s.sequences.Next(ctx, prefixPayment)
	if err != nil {
		if guarded {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Payment{}, err
	}

	now := s.now()
	payment := Payment{
		Number:        number,
		InvoiceID:     input.InvoiceID,
		BankAccountID: input.BankAccountID,
		Amount:        input.Amount,
		Method:        input.Method,
		Reference:     input.Reference,
		PaidAt:        now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusOpen {
			return fmt.Errorf("%w: invoice %s is %s", ErrInvalidState, invoice.Number, invoice.Status)
		}
		bank, err := tx.GetBankForUpdate(ctx, input.BankAccountID)
		if err != nil {
			return err
		}

		outstanding := decimal.NewFromFloat(invoice.Outstanding).Round(2)
		amount := decimal.NewFromFloat(input.Amount).Round(2)
		if amount.GreaterThan(outstanding) {
			return &OverPaymentError{
				InvoiceID:   invoice.ID,
				Outstanding: invoice.Outstanding,
				Attempted:   input.Amount,
			}
		}
		remaining := outstanding.Sub(amount)
		status := InvoiceStatusOpen
		if remaining.LessThanOrEqual(decimal.Zero) {
			status = InvoiceStatusSettled
		}

		id, err := tx.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		if err := tx.UpdateInvoiceSettlement(ctx, invoice.ID, remaining.InexactFloat64(), status); err != nil {
			return err
		}
		if err := tx.DecrementBankBalance(ctx, bank.ID, amount.InexactFloat64()); err != nil {
			return err
		}

		_, err = tx.PostJournal(ctx, ledger.PostingInput{
			Date:         now,
			Reference:    payment.Number,
			SourceModule: "PROCUREMENT.PAYMENT",
			SourceID:     uuid.NewSHA1(uuid.Nil, []byte("PAYMENT:"+payment.Number)),
			Memo:         fmt.Sprintf("payment %s for invoice %s", payment.Number, invoice.Number),
			PostedBy:     input.ActorID,
			Lines: []ledger.PostingLineInput{
				{AccountID: accounts.Payables, Debit: amount.InexactFloat64()},
				{AccountID: bank.LedgerAccountID, Credit: amount.InexactFloat64()},
			},
		})
		return err
	})
	if err != nil {
		if guarded {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Payment{}, err
	}
	s.recordAudit(ctx, input.ActorID, "payment.record", payment.ID, map[string]any{"number": payment.Number, "amount": payment.Amount})
	return payment, nil
}

// VoidInvoice cancels an open invoice that has no payments. The
// invoice journal is compensated with a mirrored posting rather than
// deleted, and the row keeps its amounts with outstanding zeroed.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID, actorID int64) (Invoice, error) {
	if invoiceID <= 0 {
		return Invoice{}, fmt.Errorf("%w: invalid invoice id", shared.ErrValidation)
	}
	accounts, err := s.accounts.PostingAccounts(ctx)
	if err != nil {
		return Invoice{}, err
	}
	if err := accounts.ForInvoicing(); err != nil {
		return Invoice{}, err
	}

	var voided Invoice
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.GetInvoiceForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != InvoiceStatusOpen {
			return fmt.Errorf("%w: invoice %s is %s", ErrInvalidState, invoice.Number, invoice.Status)
		}
		payments, err := s.repo.ListPayments(ctx, invoiceID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return fmt.Errorf("%w: invoice %s has payments", ErrInvalidState, invoice.Number)
		}
		if err := tx.UpdateInvoiceSettlement(ctx, invoice.ID, 0, InvoiceStatusVoid); err != nil {
			return err
		}

		postingLines := []ledger.PostingLineInput{
			{AccountID: accounts.Payables, Debit: invoice.Total},
			{AccountID: accounts.GoodsInTransit, Credit: invoice.Subtotal},
		}
		if invoice.TaxTotal > 0 {
			postingLines = append(postingLines, ledger.PostingLineInput{AccountID: accounts.TaxCredit, Credit: invoice.TaxTotal})
		}
		_, err = tx.PostJournal(ctx, ledger.PostingInput{
			Date:         s.now(),
			Reference:    invoice.Number,
			SourceModule: "PROCUREMENT.INVOICE:VOID",
			SourceID:     uuid.NewSHA1(uuid.Nil, []byte("INVOICE:VOID:"+invoice.Number)),
			Memo:         fmt.Sprintf("void invoice %s", invoice.Number),
			PostedBy:     actorID,
			Lines:        postingLines,
		})
		if err != nil {
			return err
		}
		invoice.Status = InvoiceStatusVoid
		invoice.Outstanding = 0
		voided = invoice
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "invoice.void", voided.ID, map[string]any{"number": voided.Number})
	return voided, nil
}

// GetInvoice loads one invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, fmt.Errorf("%w: invalid invoice id", shared.ErrValidation)
	}
	return s.repo.GetInvoice(ctx, id)
}

// ListOutstanding returns open invoices oldest due first.
func (s *Service) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	return s.repo.ListOpenInvoices(ctx)
}

// APAgingBucket summarises outstanding payables by days overdue.
type APAgingBucket struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"bucket_30"`
	Bucket60  float64 `json:"bucket_60"`
	Bucket90  float64 `json:"bucket_90"`
	Bucket120 float64 `json:"bucket_120"`
}

// CalculateAPAging groups open invoices by due date buckets.
func (s *Service) CalculateAPAging(ctx context.Context, asOf time.Time) (APAgingBucket, error) {
	invoices, err := s.repo.ListOpenInvoices(ctx)
	if err != nil {
		return APAgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	var bucket APAgingBucket
	for _, inv := range invoices {
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current += inv.Outstanding
		case days <= 30:
			bucket.Bucket30 += inv.Outstanding
		case days <= 60:
			bucket.Bucket60 += inv.Outstanding
		case days <= 90:
			bucket.Bucket90 += inv.Outstanding
		default:
			bucket.Bucket120 += inv.Outstanding
		}
	}
	return bucket, nil
}

// computeTotals prices invoice lines with per-item tax rates. Line
// totals round to cents before summing so the journal balances to the
// stored amounts exactly.
func (s *Service) computeTotals(ctx context.Context, lines []invoiceLine) (subtotal, taxTotal decimal.Decimal, err error) {
	itemIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		itemIDs = append(itemIDs, line.itemID)
	}
	known, err := s.items.GetMany(ctx, itemIDs)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	taxIDs := make([]int64, 0, len(lines))
	for _, item := range known {
		if item.TaxID != nil && *item.TaxID != 0 {
			taxIDs = append(taxIDs, *item.TaxID)
		}
	}
	rates, err := s.taxes.RatesFor(ctx, taxIDs)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	hundred := decimal.NewFromInt(100)
	for _, line := range lines {
		lineTotal := decimal.NewFromFloat(line.qty).Mul(decimal.NewFromFloat(line.unitCost)).Round(2)
		subtotal = subtotal.Add(lineTotal)
		item, ok := known[line.itemID]
		if !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: item %d", shared.ErrNotFound, line.itemID)
		}
		if item.TaxID != nil {
			if rate, ok := rates[*item.TaxID]; ok && rate > 0 {
				tax := lineTotal.Mul(decimal.NewFromFloat(rate)).Div(hundred).Round(2)
				taxTotal = taxTotal.Add(tax)
			}
		}
	}
	return subtotal, taxTotal, nil
}
