package inventory

import (
	"errors"
	"time"
)

// MovementType classifies stock movements.
type MovementType string

const (
	MovementTypeIn     MovementType = "IN"
	MovementTypeAdjust MovementType = "ADJUST"
)

// Balance is the per-item stock position in the item's base unit.
// Qty and AvgCost are always written together.
type Balance struct {
	ItemID    int64
	Qty       float64
	AvgCost   float64
	UpdatedAt time.Time
}

// Movement is one immutable stock card row. Corrections are new
// adjustment movements, never edits.
type Movement struct {
	ID          int64
	ItemID      int64
	Type        MovementType
	RefModule   string
	RefID       string
	QtyIn       float64
	QtyOut      float64
	BalanceQty  float64
	UnitCost    float64
	BalanceCost float64
	Note        string
	PostedAt    time.Time
	CreatedBy   int64
}

// MovementFilter narrows stock card queries.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	// ErrInvalidQuantity indicates a zero or wrong-signed quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: invalid unit cost")
	// ErrNegativeStock indicates the movement would drive stock below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
)
