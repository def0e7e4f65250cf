package paginate

// Cursor walks the pages of a fixed collection. The current page is always
// clamped into [1, TotalPages]; an empty collection has a single empty page.
type Cursor[T any] struct {
	items    []T
	pageSize int
	page     int
}

// NewCursor starts a cursor on the first page.
func NewCursor[T any](items []T, pageSize int) *Cursor[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Cursor[T]{items: items, pageSize: pageSize, page: 1}
}

func (c *Cursor[T]) lastPage() int {
	n := (len(c.items) + c.pageSize - 1) / c.pageSize
	if n < 1 {
		return 1
	}
	return n
}

// Current returns the page the cursor points at.
func (c *Cursor[T]) Current() Page[T] {
	return Slice(c.items, Request{Page: c.page, PageSize: c.pageSize})
}

// GoTo moves to page n, clamped into range.
func (c *Cursor[T]) GoTo(n int) Page[T] {
	switch last := c.lastPage(); {
	case n < 1:
		n = 1
	case n > last:
		n = last
	}
	c.page = n
	return c.Current()
}

func (c *Cursor[T]) Next() Page[T]     { return c.GoTo(c.page + 1) }
func (c *Cursor[T]) Previous() Page[T] { return c.GoTo(c.page - 1) }
func (c *Cursor[T]) First() Page[T]    { return c.GoTo(1) }
func (c *Cursor[T]) Last() Page[T]     { return c.GoTo(c.lastPage()) }
