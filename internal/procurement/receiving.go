package procurement

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/inventory"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// qtyEpsilon absorbs float accumulation when comparing base-unit
// quantities.
const qtyEpsilon = 1e-9

// ReceiveLineInput is one received line. Qty is in the purchasing
// unit of the matching order line.
type ReceiveLineInput struct {
	ItemID int64
	Qty    float64
}

// ReceiveInput describes one delivery.
type ReceiveInput struct {
	OrderID    int64
	Kind       ReceiptKind
	ReceivedBy int64
	Note       string
	// IdempotencyKey is optional. Receiving itself is not
	// idempotent: every accepted call creates a new receipt. A
	// caller that wants double-submit protection supplies a key.
	IdempotencyKey string
	Lines          []ReceiveLineInput
}

// Receive records a delivery against an order: it persists the
// receipt, blends tracked items into the weighted-average balances,
// recomputes the order's fulfillment status from all receipts ever
// made, and posts the goods-in-transit journal. Everything happens in
// one transaction; the order lock is taken first, then item balances
// in ascending item id order.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Receipt, error) {
	if input.OrderID <= 0 {
		return Receipt{}, fmt.Errorf("%w: order required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Receipt{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if input.Kind == "" {
		input.Kind = ReceiptKindPartial
	}
	if input.Kind != ReceiptKindPartial && input.Kind != ReceiptKindComplete {
		return Receipt{}, fmt.Errorf("%w: unknown receipt kind %q", shared.ErrValidation, input.Kind)
	}

	// Missing account mappings must fail the whole operation before
	// any row is touched.
	accounts, err := s.accounts.PostingAccounts(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if err := accounts.ForReceiving(); err != nil {
		return Receipt{}, err
	}

	guarded := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "procurement.receipt"); err != nil {
			return Receipt{}, err
		}
		guarded = true
	}

	number, err := s.sequences.Next(ctx, prefixReceipt)
	if err != nil {
		return Receipt{}, err
	}

	now := s.now()
	receipt := Receipt{
		Number:     number,
		OrderID:    input.OrderID,
		Kind:       input.Kind,
		ReceivedAt: now,
		ReceivedBy: input.ReceivedBy,
		Note:       input.Note,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if !order.Status.Receivable() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.Status)
		}

		orderLines := make(map[int64]PurchaseOrderLine, len(order.Lines))
		for _, line := range order.Lines {
			orderLines[line.ItemID] = line
		}

		// Zero and negative quantities are skipped, not rejected.
		// Unknown items fail the whole receipt.
		accepted := make([]ReceiveLineInput, 0, len(input.Lines))
		for _, line := range input.Lines {
			if _, ok := orderLines[line.ItemID]; !ok {
				return fmt.Errorf("%w: item %d is not on order %s", shared.ErrNotFound, line.ItemID, order.Number)
			}
			if line.Qty <= 0 {
				continue
			}
			accepted = append(accepted, line)
		}
		if len(accepted) == 0 {
			return fmt.Errorf("%w: no receivable quantity", shared.ErrValidation)
		}

		itemIDs := make([]int64, 0, len(accepted))
		for _, line := range accepted {
			itemIDs = append(itemIDs, line.ItemID)
		}
		kinds, err := s.items.GetMany(ctx, itemIDs)
		if err != nil {
			return err
		}

		// Cumulative received totals are read under the order lock so
		// concurrent receipts cannot jointly exceed the ordered qty.
		prior, err := tx.SumReceivedBaseByItem(ctx, input.OrderID)
		if err != nil {
			return err
		}
		for _, line := range accepted {
			ol := orderLines[line.ItemID]
			orderedBase := ol.Qty * ol.Factor
			attemptedBase := line.Qty * ol.Factor
			if prior[line.ItemID]+attemptedBase > orderedBase+qtyEpsilon {
				return &OverReceiptError{
					ItemID:          line.ItemID,
					OrderedQty:      ol.Qty,
					AlreadyReceived: prior[line.ItemID] / ol.Factor,
					AttemptedQty:    line.Qty,
				}
			}
		}

		receiptID, err := tx.CreateReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = receiptID
		receipt.Lines = receipt.Lines[:0]
		for _, line := range accepted {
			ol := orderLines[line.ItemID]
			rl := ReceiptLine{
				ReceiptID:  receiptID,
				ItemID:     line.ItemID,
				OrderedQty: ol.Qty,
				Qty:        line.Qty,
				Factor:     ol.Factor,
				UnitCost:   ol.UnitCost,
			}
			if err := tx.InsertReceiptLine(ctx, rl); err != nil {
				return err
			}
			receipt.Lines = append(receipt.Lines, rl)
		}

		// Lock balances for tracked items in ascending item id order.
		trackedIDs := make([]int64, 0, len(accepted))
		for _, line := range accepted {
			if kinds[line.ItemID].Kind.Tracked() {
				trackedIDs = append(trackedIDs, line.ItemID)
			}
		}
		sort.Slice(trackedIDs, func(i, j int) bool { return trackedIDs[i] < trackedIDs[j] })

		if len(trackedIDs) > 0 {
			balances, err := tx.GetBalancesForUpdate(ctx, trackedIDs)
			if err != nil {
				return err
			}
			for _, line := range accepted {
				if !kinds[line.ItemID].Kind.Tracked() {
					continue
				}
				ol := orderLines[line.ItemID]
				baseQty := line.Qty * ol.Factor
				// The order line is the source of cost truth; its
				// purchasing-unit cost converts to base units here.
				baseUnitCost := ol.UnitCost / ol.Factor
				next := inventory.Blend(balances[line.ItemID], baseQty, baseUnitCost)
				balances[line.ItemID] = next
				if err := tx.UpsertBalance(ctx, next); err != nil {
					return err
				}
				if _, err := tx.InsertMovement(ctx, inventory.Movement{
					ItemID:      line.ItemID,
					Type:        inventory.MovementTypeIn,
					RefModule:   "PROCUREMENT",
					RefID:       receipt.Number,
					QtyIn:       baseQty,
					BalanceQty:  next.Qty,
					UnitCost:    baseUnitCost,
					BalanceCost: next.AvgCost,
					Note:        fmt.Sprintf("receipt %s", receipt.Number),
					PostedAt:    now,
					CreatedBy:   input.ReceivedBy,
				}); err != nil {
					return err
				}
			}
		}

		// The journal covers every accepted line, service lines
		// included: the goods-in-transit credit must mirror the
		// full-subtotal debit invoicing posts, or the transitional
		// account never clears on mixed orders.
		var receivedValue float64
		for _, line := range accepted {
			ol := orderLines[line.ItemID]
			receivedValue += inventory.Round2(line.Qty * ol.UnitCost)
		}

		// Fulfillment derives from all receipts ever recorded, so a
		// manual status never drifts from reality.
		status := deriveFulfillment(order.Lines, prior, accepted)
		if err := tx.UpdateOrderStatus(ctx, input.OrderID, status); err != nil {
			return err
		}

		receivedValue = inventory.Round2(receivedValue)
		_, err = tx.PostJournal(ctx, ledger.PostingInput{
			Date:         now,
			Reference:    receipt.Number,
			SourceModule: "PROCUREMENT.RECEIPT",
			SourceID:     uuid.NewSHA1(uuid.Nil, []byte("RECEIPT:"+receipt.Number)),
			Memo:         fmt.Sprintf("goods received on %s against %s", now.Format("2006-01-02"), order.Number),
			PostedBy:     input.ReceivedBy,
			Lines: []ledger.PostingLineInput{
				{AccountID: accounts.Inventory, Debit: receivedValue},
				{AccountID: accounts.GoodsInTransit, Credit: receivedValue},
			},
		})
		return err
	})
	if err != nil {
		if guarded {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		if s.metrics != nil && errors.Is(err, shared.ErrContention) {
			s.metrics.ContentionObserved()
		}
		return Receipt{}, err
	}
	if s.metrics != nil {
		s.metrics.ReceiptPosted()
	}
	s.recordAudit(ctx, input.ReceivedBy, "receipt.post", receipt.ID, map[string]any{"number": receipt.Number, "order_id": input.OrderID})
	return receipt, nil
}

// deriveFulfillment compares cumulative received base quantities,
// including the receipt being posted, against the ordered base
// quantities.
func deriveFulfillment(orderLines []PurchaseOrderLine, prior map[int64]float64, accepted []ReceiveLineInput) OrderStatus {
	received := make(map[int64]float64, len(prior))
	for itemID, qty := range prior {
		received[itemID] = qty
	}
	factors := make(map[int64]float64, len(orderLines))
	for _, ol := range orderLines {
		factors[ol.ItemID] = ol.Factor
	}
	for _, line := range accepted {
		received[line.ItemID] += line.Qty * factors[line.ItemID]
	}
	for _, ol := range orderLines {
		if received[ol.ItemID] < ol.Qty*ol.Factor-qtyEpsilon {
			return OrderStatusPartiallyReceived
		}
	}
	return OrderStatusFullyReceived
}
