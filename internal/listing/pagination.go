package listing

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one page of items. Page numbers start at 1.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	HasNext  bool
	HasPrev  bool
	Total    int
}

// Paginate slices items for the given page. Non-positive arguments fall back
// to the first page and DefaultPageSize; pageSize is capped at MaxPageSize.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	total := len(items)
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	start := total
	if page-1 <= total/pageSize {
		start = min((page-1)*pageSize, total)
	}
	end := start + min(pageSize, total-start)

	return Page[T]{
		Items:    items[start:end],
		Page:     page,
		PageSize: pageSize,
		HasNext:  end < total,
		HasPrev:  page > 1,
		Total:    total,
	}
}
