// Package reader assembles the client side services (item mirror, preference
// adapter, pagination and content resolution) over one backend.
package reader

import (
	"context"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/cache"
	"feedrelay/internal/content"
	"feedrelay/internal/itemcache"
	"feedrelay/internal/models"
	"feedrelay/internal/pagination"
	"feedrelay/internal/preferences"
)

type Options struct {
	PreferenceTTL time.Duration
	RetryWindow   time.Duration
}

// Entry is an item paired with the content chosen for display
type Entry struct {
	Item    models.Item
	Content models.ContentResolution
}

type Session struct {
	items    *itemcache.Cache
	prefs    *preferences.Store
	pages    *pagination.Paginator[models.Item]
	resolver *content.Resolver
	executor *content.Executor
}

func NewSession(b backend.Backend, opts Options) *Session {
	cacheManager := cache.NewManager(opts.PreferenceTTL)

	items := itemcache.New(b)
	prefs := preferences.NewStore(b, cacheManager, opts.PreferenceTTL)
	executor := content.NewExecutor(b, cacheManager, opts.RetryWindow)

	return &Session{
		items:    items,
		prefs:    prefs,
		pages:    pagination.New(items.Items, prefs),
		resolver: content.NewResolver(prefs, executor),
		executor: executor,
	}
}

// Open loads preferences and the item collection, then restores the stored
// page size. A failed fetch is returned; preferences fall back to defaults.
func (s *Session) Open(ctx context.Context, query models.ItemQuery) error {
	s.prefs.Load(ctx)
	err := s.items.Fetch(ctx, query)
	s.pages.LoadItemsPerPage(ctx)
	s.pages.CheckPageBounds()
	return err
}

// Page moves to page n and resolves the content of every item on it. It
// reports false when n is out of range.
func (s *Session) Page(ctx context.Context, n int) ([]Entry, bool) {
	if !s.pages.GoToPage(n) {
		return nil, false
	}

	window := s.pages.Items()
	entries := make([]Entry, len(window))
	for i := range window {
		entries[i] = Entry{
			Item:    window[i],
			Content: s.resolver.Display(ctx, &window[i]),
		}
	}
	return entries, true
}

// Mark moves ids to state and keeps the current page within range
func (s *Session) Mark(ctx context.Context, ids []int64, state models.ItemState, view itemcache.ViewContext) (itemcache.Result, error) {
	result, err := s.items.BulkUpdateState(ctx, ids, state, view)
	s.pages.CheckPageBounds()
	return result, err
}

// MarkOne moves a single item to state
func (s *Session) MarkOne(ctx context.Context, id int64, state models.ItemState) itemcache.Result {
	result := s.items.UpdateState(ctx, id, state)
	s.pages.CheckPageBounds()
	return result
}

func (s *Session) SetItemsPerPage(ctx context.Context, n int) error {
	return s.pages.SetItemsPerPage(ctx, n)
}

func (s *Session) Items() *itemcache.Cache {
	return s.items
}

func (s *Session) Pages() *pagination.Paginator[models.Item] {
	return s.pages
}

func (s *Session) Preferences() *preferences.Store {
	return s.prefs
}

// Close waits for background extraction triggers and page size saves
func (s *Session) Close() {
	s.executor.Wait()
	s.pages.Wait()
}
