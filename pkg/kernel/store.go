package kernel

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is the pagination metadata returned next to a listing.
type Page struct {
	Number int `json:"page"`      // 1-based
	Size   int `json:"page_size"` // records per page
	Total  int `json:"total"`     // records across all pages
	Pages  int `json:"pages"`
}

// Paginated is one page of a listing.
type Paginated[T any] struct {
	Items []T  `json:"items"`
	Page  Page `json:"pagination"`
	Empty bool `json:"empty"`
}

// NewPaginated computes the page count from total and size.
func NewPaginated[T any](items []T, page, size, total int) Paginated[T] {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{
		Items: items,
		Page: Page{
			Number: page,
			Size:   size,
			Total:  total,
			Pages:  pages,
		},
		Empty: len(items) == 0,
	}
}

func (p Paginated[T]) HasNext() bool {
	return p.Page.Number < p.Page.Pages
}

func (p Paginated[T]) HasPrevious() bool {
	return p.Page.Number > 1
}

// PaginationOptions is what a list endpoint accepts as ?page=&page_size=.
type PaginationOptions struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

// Normalize clamps the page to >= 1 and the size to [1, MaxPageSize],
// defaulting to DefaultPageSize.
func (o PaginationOptions) Normalize() PaginationOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	return o
}

// Offset is the number of rows to skip. Call on normalized options.
func (o PaginationOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}
