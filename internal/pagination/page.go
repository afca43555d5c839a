// Package pagination provides page/pageSize normalization for list endpoints.
package pagination

// Defaults and bounds for page-numbered listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page is a normalized page request.
type Page struct {
	Number int
	Size   int
}

// Normalize clamps a raw page/pageSize pair into valid bounds.
func Normalize(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset returns the SQL offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Slice returns the [start, end) bounds of the page within a result set of n
// items, for in-memory stores.
func (p Page) Slice(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Size
	if end > n {
		end = n
	}
	return start, end
}

// Result wraps one page of items with total count metadata.
type Result[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalCount int64 `json:"totalCount"`
}
