package shared

// Filter represents paging options for list queries
type Filter struct {
	Page     int
	PageSize int
}

// MaxPageSize caps list queries
const MaxPageSize = 200

// DefaultFilter returns a filter with default values
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 20,
	}
}

// Normalize clamps page and page size into their valid ranges
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultFilter().PageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the number of rows to skip
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
