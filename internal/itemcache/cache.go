// Package itemcache keeps a local mirror of the backend's item collection.
//
// # Reconciliation
//
// The mirror is only changed after the backend confirms a request. Fetch
// replaces the whole collection; UpdateState and BulkUpdateState patch the
// matching entries and drop entries that leave the current view.
//
// # Thread Safety
//
// Cache is safe for concurrent use. Operations that talk to the backend are
// serialized by a single writer lock held across the request and the
// reconciliation that follows it, so a Fetch that starts after a bulk update
// always observes that update. Readers never wait on the backend.
package itemcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"feedrelay/internal/backend"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"
)

// Outcome tags the result of a reconciliation
type Outcome int

const (
	// OutcomeSkipped means no request was needed
	OutcomeSkipped Outcome = iota
	OutcomeConfirmed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result describes what a state transition did to the mirror
type Result struct {
	Outcome Outcome
	Err     error
	Updated []int64
	Removed []int64
}

// ViewContext tells BulkUpdateState what the loaded collection represents
type ViewContext int

const (
	// ViewInferred derives the context from the loaded items, see InferViewContext
	ViewInferred ViewContext = iota
	ViewNormal
	ViewTrash
)

func (v ViewContext) String() string {
	switch v {
	case ViewNormal:
		return "normal"
	case ViewTrash:
		return "trash"
	default:
		return "inferred"
	}
}

// InferViewContext treats the collection as the trash listing when any
// loaded item is deleted. This is an approximation: an empty trash looks
// like a normal view, and a view mixing deleted and live items looks like
// trash.
func InferViewContext(items []models.Item) ViewContext {
	for _, item := range items {
		if item.State == models.StateDeleted {
			return ViewTrash
		}
	}
	return ViewNormal
}

type Cache struct {
	backend backend.Items

	writeMu sync.Mutex

	mu      sync.RWMutex
	items   []models.Item
	loading int
	lastErr error
}

func New(b backend.Items) *Cache {
	return &Cache{backend: b}
}

// Fetch replaces the collection with the backend's filtered result set. On
// failure the previous collection is kept and the error is recorded.
func (c *Cache) Fetch(ctx context.Context, query models.ItemQuery) error {
	c.mu.Lock()
	c.loading++
	c.lastErr = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading--
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	items, err := c.backend.GetItems(ctx, query)
	if err != nil {
		logging.Error("Failed to fetch items", "state", query.State, "group", query.Group, "err", err)
		err = fmt.Errorf("failed to fetch items: %w", err)
		c.recordError(err)
		return err
	}

	c.mu.Lock()
	c.items = append(make([]models.Item, 0, len(items)), items...)
	c.mu.Unlock()

	logging.Debug("Fetched items", "count", len(items), "state", query.State)
	return nil
}

// FetchOne reads a single item from the backend without touching the mirror.
// It returns nil when the item cannot be read.
func (c *Cache) FetchOne(ctx context.Context, id int64) *models.Item {
	item, err := c.backend.GetItem(ctx, id)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			c.recordError(fmt.Errorf("failed to fetch item %d: %w", id, err))
		}
		logging.Warn("Failed to fetch item", "item_id", id, "err", err)
		return nil
	}
	return item
}

// UpdateState asks the backend to move one item to state. The local entry is
// patched only after confirmation; a confirmed deletion removes it. Failures
// are recorded and reported in the Result, never returned as errors.
func (c *Cache) UpdateState(ctx context.Context, id int64, state models.ItemState) Result {
	if _, err := models.ParseItemState(string(state)); err != nil {
		c.recordError(err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.backend.UpdateItemState(ctx, id, state); err != nil {
		logging.Error("Failed to update item state", "item_id", id, "state", state, "err", err)
		err = fmt.Errorf("failed to update item %d: %w", id, err)
		c.recordError(err)
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	result := Result{Outcome: OutcomeConfirmed}
	kept := c.items[:0]
	for _, item := range c.items {
		if item.ID != id {
			kept = append(kept, item)
			continue
		}
		item.State = state
		result.Updated = append(result.Updated, id)
		if state == models.StateDeleted {
			result.Removed = append(result.Removed, id)
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	return result
}

// BulkUpdateState moves every id to state with a single backend request.
// An empty id list is a no-op. On confirmation:
//
//   - deleting from a normal view removes the items;
//   - deleting inside the trash view only marks them deleted;
//   - any other transition updates the items in place, and items recovered
//     out of deleted are removed, since they no longer belong to the trash.
//
// Failures are recorded and returned; the mirror is left untouched.
func (c *Cache) BulkUpdateState(ctx context.Context, ids []int64, state models.ItemState, view ViewContext) (Result, error) {
	if len(ids) == 0 {
		return Result{Outcome: OutcomeSkipped}, nil
	}
	if _, err := models.ParseItemState(string(state)); err != nil {
		c.recordError(err)
		return Result{Outcome: OutcomeFailed, Err: err}, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.backend.BulkUpdateItemState(ctx, ids, state); err != nil {
		logging.Error("Failed to bulk update item state", "count", len(ids), "state", state, "err", err)
		err = fmt.Errorf("failed to update %d items: %w", len(ids), err)
		c.recordError(err)
		return Result{Outcome: OutcomeFailed, Err: err}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if view == ViewInferred {
		view = InferViewContext(c.items)
	}

	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	result := Result{Outcome: OutcomeConfirmed}
	kept := c.items[:0]
	for _, item := range c.items {
		if _, ok := wanted[item.ID]; !ok {
			kept = append(kept, item)
			continue
		}

		prior := item.State
		item.State = state
		result.Updated = append(result.Updated, item.ID)

		var remove bool
		if state == models.StateDeleted {
			remove = view != ViewTrash
		} else {
			remove = prior == models.StateDeleted
		}
		if remove {
			result.Removed = append(result.Removed, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept

	logging.Debug("Bulk state update reconciled", "state", state, "view", view,
		"updated", len(result.Updated), "removed", len(result.Removed))
	return result, nil
}

// Items returns a copy of the mirrored collection in backend order
func (c *Cache) Items() []models.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Item(nil), c.items...)
}

// Filter returns the mirrored items matching keep, in order
func (c *Cache) Filter(keep func(models.Item) bool) []models.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []models.Item
	for _, item := range c.items {
		if keep(item) {
			result = append(result, item)
		}
	}
	return result
}

// Lookup returns the mirrored copy of an item
func (c *Cache) Lookup(id int64) (models.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	return models.Item{}, false
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, item := range c.items {
		if item.State == models.StateUnread {
			count++
		}
	}
	return count
}

// Loading reports whether a Fetch is in flight
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading > 0
}

// Err returns the last recorded error
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Cache) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

func (c *Cache) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
