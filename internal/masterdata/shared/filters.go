// Package shared holds filter and pagination types common to the
// masterdata subpackages.
package shared

const (
	DefaultPage  = 1
	DefaultLimit = 20

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilters represents standard list filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
}

// Normalize clamps pagination to sane values.
func (f ListFilters) Normalize() ListFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = DefaultLimit
	}
	return f
}

// Offset returns the SQL offset for the current page.
func (f ListFilters) Offset() int {
	return (f.Page - 1) * f.Limit
}
