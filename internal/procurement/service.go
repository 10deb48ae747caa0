package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/inventory"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata/items"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Document number prefixes.
const (
	prefixOrder   = "OC"
	prefixReceipt = "REC"
	prefixInvoice = "INV"
	prefixPayment = "PAY"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, status OrderStatus, limit int) ([]PurchaseOrder, error)
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// ItemsPort resolves item master records.
type ItemsPort interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]items.Item, error)
}

// UnitsPort resolves purchasing-unit conversion factors.
type UnitsPort interface {
	Resolve(ctx context.Context, itemID int64, unitID *int64) (float64, error)
}

// TaxesPort resolves tax rates for invoice computation.
type TaxesPort interface {
	RatesFor(ctx context.Context, ids []int64) (map[int64]float64, error)
}

// SequencesPort reserves human-readable document numbers.
type SequencesPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// IdempotencyPort guards against double submission of receipts,
// invoices and payments when the caller supplies a key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts purchasing events.
type MetricsPort interface {
	ReceiptPosted()
	ContentionObserved()
}

// Service orchestrates the purchasing flow. Every mutating operation
// runs inside one transaction with locks taken in a fixed order:
// order header, item balances ascending by item id, invoice, bank
// account.
type Service struct {
	repo        RepositoryPort
	items       ItemsPort
	units       UnitsPort
	taxes       TaxesPort
	accounts    ledger.AccountsSource
	sequences   SequencesPort
	idempotency IdempotencyPort
	audit       AuditPort
	metrics     MetricsPort
	now         func() time.Time
}

// WithMetrics attaches event counters.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, items ItemsPort, units UnitsPort, taxes TaxesPort, accounts ledger.AccountsSource, sequences SequencesPort, idem IdempotencyPort, audit AuditPort) *Service {
	return &Service{
		repo:        repo,
		items:       items,
		units:       units,
		taxes:       taxes,
		accounts:    accounts,
		sequences:   sequences,
		idempotency: idem,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OrderLineInput describes one ordered line. Qty and UnitCost are in
// the purchasing unit.
type OrderLineInput struct {
	ItemID   int64
	UnitID   *int64
	Qty      float64
	UnitCost float64
}

// CreateOrderInput describes order creation.
type CreateOrderInput struct {
	SupplierID   int64
	IssueDate    time.Time
	DeliveryDate time.Time
	Note         string
	CreatedBy    int64
	Lines        []OrderLineInput
}

// CreateOrder persists a draft order. Conversion factors are resolved
// once here and snapshotted into the lines.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if input.SupplierID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if input.IssueDate.IsZero() {
		input.IssueDate = s.now()
	}
	if !input.DeliveryDate.IsZero() && input.DeliveryDate.Before(input.IssueDate) {
		return PurchaseOrder{}, fmt.Errorf("%w: delivery date before issue date", shared.ErrValidation)
	}

	lines, total, err := s.buildOrderLines(ctx, input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}

	number, err := s.sequences.Next(ctx, prefixOrder)
	if err != nil {
		return PurchaseOrder{}, err
	}
	order := PurchaseOrder{
		Number:       number,
		SupplierID:   input.SupplierID,
		Status:       OrderStatusDraft,
		IssueDate:    input.IssueDate,
		DeliveryDate: input.DeliveryDate,
		Total:        total,
		Note:         input.Note,
		CreatedBy:    input.CreatedBy,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orderID, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i := range lines {
			lines[i].OrderID = orderID
			if err := tx.InsertOrderLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.Lines = lines
	s.recordAudit(ctx, input.CreatedBy, "order.create", order.ID, map[string]any{"number": order.Number, "total": order.Total})
	return order, nil
}

// UpdateLines replaces an order's lines. Refused once any receipt
// exists: the receiving history references the original quantities.
func (s *Service) UpdateLines(ctx context.Context, orderID int64, inputs []OrderLineInput, actorID int64) (PurchaseOrder, error) {
	if len(inputs) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	lines, total, err := s.buildOrderLines(ctx, inputs)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var order PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderStatusCancelled || order.Status == OrderStatusFullyReceived {
			return ErrInvalidState
		}
		received, err := tx.HasReceipts(ctx, orderID)
		if err != nil {
			return err
		}
		if received {
			return fmt.Errorf("%w: order %d already has receipts", ErrInvalidState, orderID)
		}
		if err := tx.DeleteOrderLines(ctx, orderID); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = orderID
			if err := tx.InsertOrderLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderTotal(ctx, orderID, total); err != nil {
			return err
		}
		order.Lines = lines
		order.Total = total
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "order.update_lines", orderID, map[string]any{"total": total})
	return order, nil
}

// TransitionState applies a manual lifecycle transition. Only the
// label is validated; receiving recomputes the status from quantities
// and may override a manual transition on the next receipt.
// Cancellation goes through Cancel, and a cancelled order is terminal.
func (s *Service) TransitionState(ctx context.Context, orderID int64, target OrderStatus, actorID int64) (PurchaseOrder, error) {
	if !target.Valid() {
		return PurchaseOrder{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, target)
	}
	if target == OrderStatusCancelled {
		return PurchaseOrder{}, fmt.Errorf("%w: cancellation has its own operation", ErrInvalidState)
	}
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderStatusCancelled {
			return fmt.Errorf("%w: order %s is cancelled", ErrInvalidState, order.Number)
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, target); err != nil {
			return err
		}
		order.Status = target
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, actorID, "order.transition", orderID, map[string]any{"status": target})
	return order, nil
}

// Cancel cancels a draft order. Any other status is refused.
func (s *Service) Cancel(ctx context.Context, orderID int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderStatusDraft {
			return fmt.Errorf("%w: cancel requires DRAFT, order is %s", ErrInvalidState, order.Status)
		}
		return tx.UpdateOrderStatus(ctx, orderID, OrderStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "order.cancel", orderID, nil)
	return nil
}

// GetOrder loads an order with lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	if id <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists recent orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status OrderStatus, limit int) ([]PurchaseOrder, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	return s.repo.ListOrders(ctx, status, limit)
}

// GetReceipt loads a receipt with lines.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	if id <= 0 {
		return Receipt{}, fmt.Errorf("%w: invalid receipt id", shared.ErrValidation)
	}
	return s.repo.GetReceipt(ctx, id)
}

// ListReceipts lists the receipts recorded against an order.
func (s *Service) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: invalid order id", shared.ErrValidation)
	}
	return s.repo.ListReceipts(ctx, orderID)
}

// ListPayments lists the payments recorded against an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if invoiceID <= 0 {
		return nil, fmt.Errorf("%w: invalid invoice id", shared.ErrValidation)
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

// buildOrderLines validates line inputs, checks items exist and
// resolves conversion factors. Returned lines have no order id yet.
func (s *Service) buildOrderLines(ctx context.Context, inputs []OrderLineInput) ([]PurchaseOrderLine, float64, error) {
	itemIDs := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		if in.ItemID <= 0 {
			return nil, 0, fmt.Errorf("%w: item required on every line", shared.ErrValidation)
		}
		if in.Qty <= 0 {
			return nil, 0, fmt.Errorf("%w: quantity must be positive (item %d)", shared.ErrValidation, in.ItemID)
		}
		if in.UnitCost <= 0 {
			return nil, 0, fmt.Errorf("%w: unit cost must be positive (item %d)", shared.ErrValidation, in.ItemID)
		}
		itemIDs = append(itemIDs, in.ItemID)
	}
	known, err := s.items.GetMany(ctx, itemIDs)
	if err != nil {
		return nil, 0, err
	}
	lines := make([]PurchaseOrderLine, 0, len(inputs))
	var total float64
	for _, in := range inputs {
		if _, ok := known[in.ItemID]; !ok {
			return nil, 0, fmt.Errorf("%w: item %d", shared.ErrNotFound, in.ItemID)
		}
		factor, err := s.units.Resolve(ctx, in.ItemID, in.UnitID)
		if err != nil {
			return nil, 0, err
		}
		lineTotal := inventory.Round2(in.Qty * in.UnitCost)
		lines = append(lines, PurchaseOrderLine{
			ItemID:   in.ItemID,
			UnitID:   in.UnitID,
			Factor:   factor,
			Qty:      in.Qty,
			UnitCost: in.UnitCost,
			Total:    lineTotal,
		})
		total += lineTotal
	}
	return lines, inventory.Round2(total), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "procurement",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
