package shared

// DefaultPageSize caps unfiltered list queries.
const DefaultPageSize = 20

// Filter carries the paging, ordering and search options a list
// operation accepts. Repositories validate OrderBy against their own
// column whitelist before it reaches SQL.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
	Filters  map[string]interface{}
}

// Offset returns the row offset implied by Page and PageSize,
// clamped at zero for unset or out-of-range pages.
func (f Filter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// Limit returns the page size, falling back to DefaultPageSize.
func (f Filter) Limit() int {
	if f.PageSize <= 0 {
		return DefaultPageSize
	}
	return f.PageSize
}
