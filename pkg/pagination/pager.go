package pagination

import (
	"context"
	"errors"
	"iter"
)

// ErrCursorLoop is reported when a server hands back the cursor it was just given.
var ErrCursorLoop = errors.New("pagination: server repeated cursor")

// Page is one server-delivered batch plus the cursor for the batch after it.
// An empty NextCursor means the sequence is exhausted.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// HasNext reports whether another page can be requested.
func (p *Page[T]) HasNext() bool {
	return p != nil && p.NextCursor != ""
}

// FetchFunc loads the page starting at cursor ("" for the first page).
type FetchFunc[T any] func(ctx context.Context, cursor string) (*Page[T], error)

// Pager walks a cursor-paginated sequence lazily, one request per Next call.
// It is single-pass: once exhausted or failed it stays that way.
type Pager[T any] struct {
	fetch  FetchFunc[T]
	cursor string
	pages  int
	done   bool
	err    error
}

// NewPager creates a pager positioned before the first page.
func NewPager[T any](fetch FetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// Next fetches the next page. It returns false when the sequence is exhausted
// or a fetch failed; Err distinguishes the two.
func (p *Pager[T]) Next(ctx context.Context) (*Page[T], bool) {
	if p.done {
		return nil, false
	}

	requested := p.cursor
	page, err := p.fetch(ctx, requested)
	if err != nil {
		p.err = err
		p.done = true
		return nil, false
	}
	if page == nil {
		page = &Page[T]{}
	}
	p.pages++

	switch {
	case !page.HasNext():
		p.done = true
	case page.NextCursor == requested:
		// Serve this page but refuse to spin on it.
		p.err = ErrCursorLoop
		p.done = true
	default:
		p.cursor = page.NextCursor
	}
	return page, true
}

// Stop ends the walk early; later Next calls return false without fetching.
func (p *Pager[T]) Stop() {
	p.done = true
}

// Err returns the fetch error that ended the walk, if any.
func (p *Pager[T]) Err() error {
	return p.err
}

// Pages returns how many pages were fetched successfully.
func (p *Pager[T]) Pages() int {
	return p.pages
}

// All adapts the pager into a range-over-func sequence. Breaking out of the
// loop stops the pager.
func (p *Pager[T]) All(ctx context.Context) iter.Seq[*Page[T]] {
	return func(yield func(*Page[T]) bool) {
		for {
			page, ok := p.Next(ctx)
			if !ok {
				return
			}
			if !yield(page) {
				p.Stop()
				return
			}
		}
	}
}
