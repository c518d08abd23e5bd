// Package pagination windows a dynamic list into pages.
//
// A Paginator never copies or subscribes to its source: every read calls the
// source accessor again, so the window always reflects the current list.
// Callers that change the list's length (a bulk delete, a new filter) must
// call CheckPageBounds afterwards.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"feedrelay/internal/logging"
	"feedrelay/internal/models"
)

const saveTimeout = 10 * time.Second

var ErrInvalidItemsPerPage = errors.New("unsupported items per page")

// SizeStore persists the page size preference
type SizeStore interface {
	ItemsPerPage(ctx context.Context) int
	SetItemsPerPage(ctx context.Context, n int) error
}

type Paginator[T any] struct {
	source func() []T
	store  SizeStore

	mu   sync.RWMutex
	page int
	size int

	wg sync.WaitGroup
	// saveMu orders background saves; persisted is the last size saved
	saveMu    sync.Mutex
	persisted int
}

// New creates a paginator on page 1 with the default page size. store may be
// nil, in which case page size changes are not persisted.
func New[T any](source func() []T, store SizeStore) *Paginator[T] {
	return &Paginator[T]{
		source: source,
		store:  store,
		page:   1,
		size:   models.DefaultItemsPerPage,
	}
}

// LoadItemsPerPage adopts the stored page size if it is a valid option
func (p *Paginator[T]) LoadItemsPerPage(ctx context.Context) {
	if p.store == nil {
		return
	}
	n := p.store.ItemsPerPage(ctx)
	if !models.ValidItemsPerPage(n) {
		logging.Warn("Ignoring stored page size", "items_per_page", n)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n != p.size {
		p.size = n
		p.page = 1
	}
}

func (p *Paginator[T]) TotalItems() int {
	return len(p.source())
}

// TotalPages is zero for an empty source
func (p *Paginator[T]) TotalPages() int {
	p.mu.RLock()
	size := p.size
	p.mu.RUnlock()
	return pages(len(p.source()), size)
}

// Items returns the current page's window of the source
func (p *Paginator[T]) Items() []T {
	p.mu.RLock()
	page, size := p.page, p.size
	p.mu.RUnlock()

	all := p.source()
	start := (page - 1) * size
	if start < 0 || start >= len(all) {
		return []T{}
	}
	end := min(start+size, len(all))
	return all[start:end]
}

func (p *Paginator[T]) CurrentPage() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.page
}

func (p *Paginator[T]) ItemsPerPage() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

func (p *Paginator[T]) HasPreviousPage() bool {
	return p.CurrentPage() > 1
}

func (p *Paginator[T]) HasNextPage() bool {
	p.mu.RLock()
	page, size := p.page, p.size
	p.mu.RUnlock()
	return page < pages(len(p.source()), size)
}

// GoToPage moves to page n and reports whether it did. Pages outside
// [1, TotalPages] are ignored.
func (p *Paginator[T]) GoToPage(n int) bool {
	total := p.TotalPages()
	if n < 1 || n > total {
		return false
	}
	p.mu.Lock()
	p.page = n
	p.mu.Unlock()
	return true
}

func (p *Paginator[T]) NextPage() bool {
	if !p.HasNextPage() {
		return false
	}
	return p.GoToPage(p.CurrentPage() + 1)
}

func (p *Paginator[T]) PreviousPage() bool {
	if !p.HasPreviousPage() {
		return false
	}
	return p.GoToPage(p.CurrentPage() - 1)
}

func (p *Paginator[T]) ResetPage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = 1
}

// SetItemsPerPage changes the page size and returns to page 1. The new size
// is saved in the background; saves run one at a time and always write the
// latest local size. A failed save is logged and the local size is kept.
// Setting the current size again does nothing.
func (p *Paginator[T]) SetItemsPerPage(ctx context.Context, n int) error {
	if !models.ValidItemsPerPage(n) {
		return fmt.Errorf("%w: %d", ErrInvalidItemsPerPage, n)
	}

	p.mu.Lock()
	if n == p.size {
		p.mu.Unlock()
		return nil
	}
	p.size = n
	p.page = 1
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.saveLatest(context.WithoutCancel(ctx))
	}()
	return nil
}

func (p *Paginator[T]) saveLatest(ctx context.Context) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	n := p.ItemsPerPage()
	if n == p.persisted {
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := p.store.SetItemsPerPage(saveCtx, n); err != nil {
		logging.Warn("Failed to save page size", "items_per_page", n, "err", err)
		return
	}
	p.persisted = n
}

// CheckPageBounds pulls the current page back into range after the source
// changed size. It is safe to call repeatedly.
func (p *Paginator[T]) CheckPageBounds() {
	count := len(p.source())

	p.mu.Lock()
	defer p.mu.Unlock()

	total := pages(count, p.size)
	switch {
	case p.page > total && total > 0:
		p.page = total
	case p.page < 1 && count > 0:
		p.page = 1
	}
}

// Wait blocks until pending page size saves have finished
func (p *Paginator[T]) Wait() {
	p.wg.Wait()
}

func pages(count, size int) int {
	if count == 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}
