package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/masterdata/items"
	"github.com/ledgerline/ledgerline/internal/shared"
)

func TestCreateOrderComputesTotal(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	h.addItem(2, items.KindStocked, nil)

	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines: []OrderLineInput{
			{ItemID: 1, Qty: 10, UnitCost: 5},
			{ItemID: 2, Qty: 3, UnitCost: 20},
		},
	})
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, order.Status)
	require.InDelta(t, 110.0, order.Total, 1e-9)
	require.Equal(t, "OC-000001", order.Number)
	require.Len(t, order.Lines, 2)
	require.InDelta(t, 1.00, order.Lines[0].Factor, 1e-9)
}

func TestCreateOrderSnapshotsConversionFactor(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	h.units.factors[1] = 12

	unitID := int64(7)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, UnitID: &unitID, Qty: 2, UnitCost: 24}},
	})
	require.NoError(t, err)
	require.InDelta(t, 12.0, order.Lines[0].Factor, 1e-9)

	// Editing the link afterwards must not touch the stored line.
	h.units.factors[1] = 6
	stored, err := h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.InDelta(t, 12.0, stored.Lines[0].Factor, 1e-9)
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)

	_, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{SupplierID: 5})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: -1, UnitCost: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 99, Qty: 1, UnitCost: 5}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	issue := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err = h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID:   5,
		IssueDate:    issue,
		DeliveryDate: issue.AddDate(0, 0, -1),
		Lines:        []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 5}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTransitionStateValidatesLabelOnly(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 5}},
	})
	require.NoError(t, err)

	order, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusSent, 1)
	require.NoError(t, err)
	require.Equal(t, OrderStatusSent, order.Status)

	// Any recognized label is accepted, including fulfillment states
	// receiving has not reached yet.
	order, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusPartiallyReceived, 1)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPartiallyReceived, order.Status)

	order, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusConfirmed, 1)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, order.Status)

	_, err = h.svc.TransitionState(context.Background(), order.ID, "BOGUS", 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Cancellation has its own operation with stricter rules.
	_, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusCancelled, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestTransitionStateCancelledIsTerminal(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 5}},
	})
	require.NoError(t, err)
	require.NoError(t, h.svc.Cancel(context.Background(), order.ID, 1))

	_, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusSent, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReceivingOverridesManualTransition(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 2}},
	})
	require.NoError(t, err)

	// A premature manual PARTIALLY_RECEIVED does not stick: the next
	// receipt recomputes the status from actual quantities.
	_, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusPartiallyReceived, 1)
	require.NoError(t, err)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 10}},
	})
	require.NoError(t, err)

	got, err := h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusFullyReceived, got.Status)
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestAuditEntriesCarryTimestamp(t *testing.T) {
	h := newHarness(defaultAccounts)
	audit := &recordingAudit{}
	h.svc.audit = audit
	h.addItem(1, items.KindStocked, nil)

	_, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 5}},
	})
	require.NoError(t, err)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "order.create", audit.logs[0].Action)
	require.False(t, audit.logs[0].At.IsZero())
}

func TestCancelOnlyFromDraft(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 5}},
	})
	require.NoError(t, err)

	require.NoError(t, h.svc.Cancel(context.Background(), order.ID, 1))
	got, err := h.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, got.Status)

	// A sent order cannot be cancelled.
	order2, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 1, UnitCost: 5}},
	})
	require.NoError(t, err)
	_, err = h.svc.TransitionState(context.Background(), order2.ID, OrderStatusSent, 1)
	require.NoError(t, err)
	require.ErrorIs(t, h.svc.Cancel(context.Background(), order2.ID, 1), ErrInvalidState)
}

func TestUpdateLinesRefusedAfterReceipt(t *testing.T) {
	h := newHarness(defaultAccounts)
	h.addItem(1, items.KindStocked, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		SupplierID: 5,
		Lines:      []OrderLineInput{{ItemID: 1, Qty: 10, UnitCost: 2}},
	})
	require.NoError(t, err)
	_, err = h.svc.TransitionState(context.Background(), order.ID, OrderStatusSent, 1)
	require.NoError(t, err)

	// Updating before any receipt recomputes the total.
	updated, err := h.svc.UpdateLines(context.Background(), order.ID, []OrderLineInput{{ItemID: 1, Qty: 4, UnitCost: 3}}, 1)
	require.NoError(t, err)
	require.InDelta(t, 12.0, updated.Total, 1e-9)

	_, err = h.svc.Receive(context.Background(), ReceiveInput{
		OrderID: order.ID,
		Lines:   []ReceiveLineInput{{ItemID: 1, Qty: 2}},
	})
	require.NoError(t, err)

	_, err = h.svc.UpdateLines(context.Background(), order.ID, []OrderLineInput{{ItemID: 1, Qty: 8, UnitCost: 3}}, 1)
	require.ErrorIs(t, err, ErrInvalidState)
}
