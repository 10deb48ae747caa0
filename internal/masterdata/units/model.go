// Package units manages units of measure and the per-item purchasing
// unit conversions.
package units

// Unit represents a unit of measure.
type Unit struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ItemUnit links an item to a purchasing unit with the factor that
// converts one purchasing unit into base units.
type ItemUnit struct {
	ItemID int64   `json:"item_id"`
	UnitID int64   `json:"unit_id"`
	Factor float64 `json:"factor"`
}
