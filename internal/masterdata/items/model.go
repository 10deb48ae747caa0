// Package items manages the item master.
package items

import "time"

// Kind classifies an item for stock tracking purposes.
type Kind string

const (
	KindRawMaterial Kind = "RAW_MATERIAL"
	KindConsumable  Kind = "CONSUMABLE"
	KindStocked     Kind = "STOCKED"
	KindService     Kind = "SERVICE"
)

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRawMaterial, KindConsumable, KindStocked, KindService:
		return true
	}
	return false
}

// Tracked reports whether receiving the item mutates stock. Service
// items never do.
func (k Kind) Tracked() bool {
	return k.Valid() && k != KindService
}

// Item represents an item master record. Stock and average cost live
// in the inventory balance, not here.
type Item struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	BaseUnitID int64     `json:"base_unit_id"`
	TaxID      *int64    `json:"tax_id"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
