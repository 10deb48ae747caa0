package procurement

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata/items"
	"github.com/ledgerline/ledgerline/internal/shared"
)

func sentOrder(t *testing.T, h *harness, lines []OrderLineInput) PurchaseOrder {
	t.Helper()
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{SupplierID: 5, Lines: lines})
	require.NoError(t, err)
	order, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusSent, 1)
	require.NoError(t, err)
	return order
}

func TestReceiveFullDeliveryCompletesOrder(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	h.addItem(2, items.KindStocked, nil)
	order := sentOrder(t, h, []OrderLineInput{
		{ItemID: 1, Qty: 10, UnitCost: 5},
		{ItemID: 2, Qty: 3, UnitCost: 20},
	})

	receipt, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 10}, {ItemID: 2, Qty: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, "REC-000001", receipt.Number)
	require.Len(t, receipt.Lines, 2)

	got, err := h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusFullyReceived, got.Status)

	require.InDelta(t, 10.0, h.repo.balances[1].Qty, 1e-9)
	require.InDelta(t, 5.00, h.repo.balances[1].AvgCost, 1e-9)
	require.InDelta(t, 3.0, h.repo.balances[2].Qty, 1e-9)

	// One balanced journal: Dr inventory / Cr goods-in-transit at 110.
	require.Len(t, h.repo.journals, 1)
	journal := h.repo.journals[0]
	require.Equal(t, "PROCUREMENT.RECEIPT", journal.SourceModule)
	require.Len(t, journal.Lines, 2)
	require.Equal(t, defaultAccounts.Inventory, journal.Lines[0].AccountID)
	require.InDelta(t, 110.0, journal.Lines[0].Debit, 1e-9)
	require.Equal(t, defaultAccounts.GoodsInTransit, journal.Lines[1].AccountID)
	require.InDelta(t, 110.0, journal.Lines[1].Credit, 1e-9)
}

func TestReceiveBlendsWeightedAverage(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindRawMaterial, nil)
	first := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 100, UnitCost: 2}})
	second := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 50, UnitCost: 5}})

	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: first.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 100}},
	})
	require.NoError(t, err)
	require.InDelta(t, 100.0, h.repo.balances[1].Qty, 1e-9)
	require.InDelta(t, 2.00, h.repo.balances[1].AvgCost, 1e-9)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: second.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 50}},
	})
	require.NoError(t, err)
	require.InDelta(t, 150.0, h.repo.balances[1].Qty, 1e-9)
	require.InDelta(t, 3.00, h.repo.balances[1].AvgCost, 1e-9)
}

func TestReceiveConvertsPurchasingUnits(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	h.units.factors[1] = 12
	unitID := int64(7)
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, UnitID: &unitID, Qty: 2, UnitCost: 24}})

	// 2 boxes of 12 at 24 per box: 24 base units at 2.00 each.
	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 2}},
	})
	require.NoError(t, err)
	require.InDelta(t, 24.0, h.repo.balances[1].Qty, 1e-9)
	require.InDelta(t, 2.00, h.repo.balances[1].AvgCost, 1e-9)
	require.InDelta(t, 48.0, h.repo.journals[0].Lines[0].Debit, 1e-9)
}

func TestReceiveRejectsOverReceipt(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 20, UnitCost: 1}})

	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 15}},
	})
	require.NoError(t, err)
	got, err := h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartiallyReceived, got.Status)

	stockBefore := h.repo.balances[1].Qty
	journalsBefore := len(h.repo.journals)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 10}},
	})
	var overReceipt *OverReceiptError
	require.ErrorAs(t, err, &overReceipt)
	require.Equal(t, int64(1), overReceipt.ItemID)
	require.InDelta(t, 20.0, overReceipt.OrderedQty, 1e-9)
	require.InDelta(t, 15.0, overReceipt.AlreadyReceived, 1e-9)
	require.InDelta(t, 10.0, overReceipt.AttemptedQty, 1e-9)

	// Rejection left stock, status and journals untouched.
	require.InDelta(t, stockBefore, h.repo.balances[1].Qty, 1e-9)
	require.Len(t, h.repo.journals, journalsBefore)
	got, err = h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartiallyReceived, got.Status)
}

func TestReceiveSkipsNonPositiveLines(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	h.addItem(2, items.KindStocked, nil)
	order := sentOrder(t, h, []OrderLineInput{
		{ItemID: 1, Qty: 10, UnitCost: 1},
		{ItemID: 2, Qty: 5, UnitCost: 2},
	})

	receipt, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 10}, {ItemID: 2, Qty: 0}},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 1)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 2, Qty: -3}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceiveRejectsUnknownItem(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 1}})

	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 42, Qty: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiveRejectsDraftOrder(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 1}},
	})
	require.NoError(t, err)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReceiveServiceItemsSkipStock(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindService, nil)
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 500}})

	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.Empty(t, h.repo.balances)
	require.Empty(t, h.repo.movements)

	// Service lines carry no stock but still move through the
	// transitional account at full value.
	require.Len(t, h.repo.journals, 1)
	require.Equal(t, defaultAccounts.GoodsInTransit, h.repo.journals[0].Lines[1].AccountID)
	require.InDelta(t, 500.0, h.repo.journals[0].Lines[1].Credit, 1e-9)

	got, err := h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusFullyReceived, got.Status)
}

func TestReceiveThenInvoiceClearsGoodsInTransit(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	h.addItem(2, items.KindService, nil)
	order := sentOrder(t, h, []OrderLineInput{
		{ItemID: 1, Qty: 10, UnitCost: 10},
		{ItemID: 2, Qty: 1, UnitCost: 500},
	})

	receipt, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 10}, {ItemID: 2, Qty: 1}},
	})
	require.NoError(t, err)

	// Only the stocked line reaches the balance table.
	require.InDelta(t, 10.0, h.repo.balances[1].Qty, 1e-9)
	require.NotContains(t, h.repo.balances, int64(2))

	_, err = h.svc.CreateInvoice(context.Background(), CreateInvoiceInput{ReceiptID: &receipt.ID})
	require.NoError(t, err)

	// Receiving credits and invoicing debits the transitional account
	// at the same value, so mixed orders leave no residual.
	var debits, credits float64
	for _, journal := range h.repo.journals {
		for _, line := range journal.Lines {
			if line.AccountID == defaultAccounts.GoodsInTransit {
				debits += line.Debit
				credits += line.Credit
			}
		}
	}
	require.InDelta(t, 600.0, credits, 1e-9)
	require.InDelta(t, 0.0, debits-credits, 1e-9)
}

func TestReceiveRequiresAccountMappings(t *testing.T) {
	h := newHarness(ledger.PostingAccounts{Inventory: 100})
	h.addItem(1, items.KindStocked, nil)
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 1}})

	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, ledger.ErrMissingConfiguration)
	require.Empty(t, h.repo.receipts)
}

func TestReceiveIdempotencyKeyGuard(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	idem := &fakeIdempotency{}
	h.svc.idempotency = idem
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 1}})

	_, err := h.svc.Receive(context.Background(), ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "rcv-1",
		Lines:          []ReceiveLineInput{{ItemID: 1, Qty: 4}},
	})
	require.NoError(t, err)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "rcv-1",
		Lines:          []ReceiveLineInput{{ItemID: 1, Qty: 4}},
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	// A failed receipt releases its key for retry.
	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID:        order.ID,
		IdempotencyKey: "rcv-2",
		Lines:          []ReceiveLineInput{{ItemID: 1, Qty: 100}},
	})
	var overReceipt *OverReceiptError
	require.ErrorAs(t, err, &overReceipt)
	require.False(t, idem.keys["rcv-2"])
}

func TestConcurrentReceiptsNeverExceedOrdered(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order := sentOrder(t, h, []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 1}})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Receive(context.Background(), ReceiveInput{
				OrderID: order.ID,
				Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 6}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var overReceipt *OverReceiptError
			require.ErrorAs(t, err, &overReceipt)
		}
	}
	require.Equal(t, 1, succeeded, "6+6 against 10 ordered admits exactly one receipt")

	totals, err := h.repo.SumReceivedBaseByItem(context.Background(), order.ID)
	require.NoError(t, err)
	require.LessOrEqual(t, totals[1], 10.0)
}
