// Package procurement owns the purchase-to-inventory-to-ledger flow:
// purchase orders, receiving against them, invoicing and settlement.
package procurement

import (
	"errors"
	"fmt"
	"time"
)

// Purchase order lifecycle statuses.
type OrderStatus string

const (
	OrderStatusDraft             OrderStatus = "DRAFT"
	OrderStatusSent              OrderStatus = "SENT"
	OrderStatusConfirmed         OrderStatus = "CONFIRMED"
	OrderStatusPartiallyReceived OrderStatus = "PARTIALLY_RECEIVED"
	OrderStatusFullyReceived     OrderStatus = "FULLY_RECEIVED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// orderStatuses is the set of recognized status labels. Manual
// transitions validate the label only; receiving recomputes the status
// from actual receipt totals and may override a manual transition.
var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusDraft:             {},
	OrderStatusSent:              {},
	OrderStatusConfirmed:         {},
	OrderStatusPartiallyReceived: {},
	OrderStatusFullyReceived:     {},
	OrderStatusCancelled:         {},
}

// Valid reports whether s is a recognized status label.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

// Receivable reports whether goods may be received against an order
// in this status.
func (s OrderStatus) Receivable() bool {
	switch s {
	case OrderStatusSent, OrderStatusConfirmed, OrderStatusPartiallyReceived:
		return true
	}
	return false
}

// ReceiptKind marks whether the operator considered the delivery
// partial or complete. The order status is derived from quantities,
// not from this label.
type ReceiptKind string

const (
	ReceiptKindPartial  ReceiptKind = "PARTIAL"
	ReceiptKindComplete ReceiptKind = "COMPLETE"
)

// Invoice lifecycle statuses.
type InvoiceStatus string

const (
	InvoiceStatusOpen    InvoiceStatus = "OPEN"
	InvoiceStatusSettled InvoiceStatus = "SETTLED"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// PurchaseOrder domain model. Total is always the sum of its lines'
// qty times unit cost.
type PurchaseOrder struct {
	ID           int64               `json:"id"`
	Number       string              `json:"number"`
	SupplierID   int64               `json:"supplier_id"`
	Status       OrderStatus         `json:"status"`
	IssueDate    time.Time           `json:"issue_date"`
	DeliveryDate time.Time           `json:"delivery_date"`
	Total        float64             `json:"total"`
	Note         string              `json:"note"`
	CreatedBy    int64               `json:"created_by"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Lines        []PurchaseOrderLine `json:"lines"`
}

// PurchaseOrderLine is one ordered line. Factor is the purchasing
// unit conversion snapshotted at creation; it is never re-resolved,
// so the document stays consistent if the unit link changes later.
type PurchaseOrderLine struct {
	ID       int64   `json:"id"`
	OrderID  int64   `json:"order_id"`
	ItemID   int64   `json:"item_id"`
	UnitID   *int64  `json:"unit_id"`
	Factor   float64 `json:"factor"`
	Qty      float64 `json:"qty"`
	UnitCost float64 `json:"unit_cost"`
	Total    float64 `json:"total"`
}

// Receipt records one delivery against an order. Immutable once
// created; corrections are new compensating documents.
type Receipt struct {
	ID         int64         `json:"id"`
	Number     string        `json:"number"`
	OrderID    int64         `json:"order_id"`
	Kind       ReceiptKind   `json:"kind"`
	ReceivedAt time.Time     `json:"received_at"`
	ReceivedBy int64         `json:"received_by"`
	Note       string        `json:"note"`
	Lines      []ReceiptLine `json:"lines"`
}

// ReceiptLine snapshots the ordered quantity and the conversion
// factor from the order line. Base-unit received qty = Qty * Factor.
type ReceiptLine struct {
	ID         int64   `json:"id"`
	ReceiptID  int64   `json:"receipt_id"`
	ItemID     int64   `json:"item_id"`
	OrderedQty float64 `json:"ordered_qty"`
	Qty        float64 `json:"qty"`
	Factor     float64 `json:"factor"`
	UnitCost   float64 `json:"unit_cost"`
}

// Invoice is a purchase invoice. Outstanding always equals Total
// minus the sum of recorded payments.
type Invoice struct {
	ID         int64         `json:"id"`
	Number     string        `json:"number"`
	SupplierID int64         `json:"supplier_id"`
	OrderID    *int64        `json:"order_id"`
	ReceiptID  *int64        `json:"receipt_id"`
	Status     InvoiceStatus `json:"status"`
	IssueDate  time.Time     `json:"issue_date"`
	DueDate    time.Time     `json:"due_date"`
	Subtotal   float64       `json:"subtotal"`
	TaxTotal   float64       `json:"tax_total"`
	Total      float64       `json:"total"`
	Outstanding float64      `json:"outstanding"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Payment settles part of an invoice from a bank account.
type Payment struct {
	ID            int64     `json:"id"`
	Number        string    `json:"number"`
	InvoiceID     int64     `json:"invoice_id"`
	BankAccountID int64     `json:"bank_account_id"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
	Reference     string    `json:"reference"`
	PaidAt        time.Time `json:"paid_at"`
}

var (
	// ErrInvalidState occurs when an action violates the lifecycle.
	ErrInvalidState = errors.New("procurement: invalid state transition")
)

// OverReceiptError reports an attempt to receive more than ordered.
// Quantities are in the purchasing unit of the order line.
type OverReceiptError struct {
	ItemID          int64
	OrderedQty      float64
	AlreadyReceived float64
	AttemptedQty    float64
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("procurement: over-receipt for item %d: ordered %.4f, already received %.4f, attempted %.4f",
		e.ItemID, e.OrderedQty, e.AlreadyReceived, e.AttemptedQty)
}

// OverPaymentError reports an attempt to pay more than outstanding.
type OverPaymentError struct {
	InvoiceID   int64
	Outstanding float64
	Attempted   float64
}

func (e *OverPaymentError) Error() string {
	return fmt.Sprintf("procurement: over-payment for invoice %d: outstanding %.2f, attempted %.2f",
		e.InvoiceID, e.Outstanding, e.Attempted)
}
