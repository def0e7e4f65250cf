// Package paginate slices materialized collections into 1-indexed pages.
package paginate

const DefaultPageSize = 10

// Request selects a page. Page is 1-indexed.
type Request struct {
	Page     int
	PageSize int
}

// Page is one slice of a collection plus the numbers needed to navigate it.
type Page[T any] struct {
	Items       []T  `json:"items"`
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Slice returns items[(page-1)*size : page*size]. A page outside the
// collection yields no items but still reports the totals. A non-positive
// page size falls back to DefaultPageSize.
func Slice[T any](items []T, req Request) Page[T] {
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	totalPages := (total + size - 1) / size

	out := Page[T]{
		Items:       []T{},
		Page:        req.Page,
		PageSize:    size,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNext:     req.Page < totalPages,
		HasPrevious: req.Page > 1,
	}
	if req.Page < 1 {
		return out
	}
	start := (req.Page - 1) * size
	if start >= total {
		return out
	}
	end := start + size
	if end > total {
		end = total
	}
	out.Items = items[start:end]
	return out
}
