// Package backendtest provides an in-memory backend for tests.
package backendtest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"feedrelay/internal/backend"
	"feedrelay/internal/models"
)

// Fake is an in-memory backend.Backend. Set the *Err fields to make the
// corresponding request fail; Calls counts requests by name.
type Fake struct {
	mu sync.Mutex

	items  []models.Item
	prefs  map[string]string
	views  []models.CustomView
	nextID int64

	GetItemsErr     error
	GetItemErr      error
	UpdateStateErr  error
	BulkUpdateErr   error
	TriggerErr      error
	GetPrefErr      error
	SetPrefErr      error
	Calls           map[string]int
	Triggered       []int64
	BulkRequests    [][]int64
	SavedPrefs      map[string]string
	BeforeBulkReply func()

	// BeforeItemsReply runs after get_items was counted, before it answers
	BeforeItemsReply func()
	// BeforePrefReply runs after a preference was read, before it is returned
	BeforePrefReply func(key string)
	// BeforePrefSave runs before a preference write is applied
	BeforePrefSave func(key, value string)
}

var (
	_ backend.Backend = (*Fake)(nil)
	_ backend.Views   = (*Fake)(nil)
)

// New creates a fake seeded with items
func New(items ...models.Item) *Fake {
	return &Fake{
		items:      append([]models.Item(nil), items...),
		prefs:      make(map[string]string),
		Calls:      make(map[string]int),
		SavedPrefs: make(map[string]string),
	}
}

// SetPreference seeds a stored preference without counting a call
func (f *Fake) SetPreference(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[key] = value
}

// SetItems replaces the backend's items
func (f *Fake) SetItems(items ...models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]models.Item(nil), items...)
}

// CallCount returns how many times a request was issued
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[name]
}

// TriggeredIDs returns the item ids extraction was requested for
func (f *Fake) TriggeredIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.Triggered...)
}

// Saved returns the value last written for key
func (f *Fake) Saved(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.SavedPrefs[key]
	return v, ok
}

func (f *Fake) GetItems(ctx context.Context, query models.ItemQuery) ([]models.Item, error) {
	f.mu.Lock()
	f.Calls["get_items"]++
	hook := f.BeforeItemsReply
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetItemsErr != nil {
		return nil, f.GetItemsErr
	}

	var result []models.Item
	for _, item := range f.items {
		if query.State != "" && string(item.State) != query.State {
			continue
		}
		if len(query.SourceIDs) > 0 && !slices.Contains(query.SourceIDs, item.SourceID) {
			continue
		}
		if !matchesGroups(item, query) {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

// matchesGroups applies group_names, falling back to the single group filter
func matchesGroups(item models.Item, query models.ItemQuery) bool {
	wanted := query.GroupNames
	if len(wanted) == 0 && query.Group != "" {
		wanted = []string{query.Group}
	}
	if len(wanted) == 0 {
		return true
	}
	for _, group := range strings.Split(item.SourceGroup, ",") {
		if slices.Contains(wanted, strings.TrimSpace(group)) {
			return true
		}
	}
	return false
}

func (f *Fake) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["get_item"]++
	if f.GetItemErr != nil {
		return nil, f.GetItemErr
	}
	for _, item := range f.items {
		if item.ID == id {
			found := item
			return &found, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (f *Fake) UpdateItemState(ctx context.Context, id int64, state models.ItemState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["update_item_state"]++
	if f.UpdateStateErr != nil {
		return f.UpdateStateErr
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].State = state
			return nil
		}
	}
	return backend.ErrNotFound
}

func (f *Fake) BulkUpdateItemState(ctx context.Context, ids []int64, state models.ItemState) error {
	f.mu.Lock()
	f.Calls["bulk_update_item_state"]++
	f.BulkRequests = append(f.BulkRequests, append([]int64(nil), ids...))
	hook := f.BeforeBulkReply
	if f.BulkUpdateErr != nil {
		err := f.BulkUpdateErr
		f.mu.Unlock()
		return err
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for i := range f.items {
		if wanted[f.items[i].ID] {
			f.items[i].State = state
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *Fake) TriggerExtraction(ctx context.Context, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["trigger_extraction"]++
	f.Triggered = append(f.Triggered, itemID)
	return f.TriggerErr
}

func (f *Fake) GetUserPreference(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["get_user_preference"]++
	if f.GetPrefErr != nil {
		return "", false, f.GetPrefErr
	}
	v, ok := f.prefs[key]
	hook := f.BeforePrefReply
	f.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	f.mu.Lock()
	return v, ok, nil
}

func (f *Fake) SetUserPreference(ctx context.Context, key, value string) error {
	f.mu.Lock()
	hook := f.BeforePrefSave
	f.mu.Unlock()
	if hook != nil {
		hook(key, value)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["set_user_preference"]++
	if f.SetPrefErr != nil {
		return f.SetPrefErr
	}
	f.prefs[key] = value
	f.SavedPrefs[key] = value
	return nil
}

func (f *Fake) ListViews(ctx context.Context) ([]models.CustomView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["get_custom_views"]++
	return append([]models.CustomView(nil), f.views...), nil
}

func (f *Fake) GetView(ctx context.Context, id int64) (*models.CustomView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["get_custom_view"]++
	for _, v := range f.views {
		if v.ID == id {
			found := v
			return &found, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (f *Fake) CreateView(ctx context.Context, in models.CustomViewInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["add_custom_view"]++
	f.nextID++
	f.views = append(f.views, models.CustomView{ID: f.nextID, Name: in.Name, SourceIDs: in.SourceIDs, GroupNames: in.GroupNames})
	return f.nextID, nil
}

func (f *Fake) UpdateView(ctx context.Context, id int64, in models.CustomViewInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["update_custom_view"]++
	for i := range f.views {
		if f.views[i].ID == id {
			f.views[i].Name, f.views[i].SourceIDs, f.views[i].GroupNames = in.Name, in.SourceIDs, in.GroupNames
			return nil
		}
	}
	return backend.ErrNotFound
}

func (f *Fake) DeleteView(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls["remove_custom_view"]++
	for i := range f.views {
		if f.views[i].ID == id {
			f.views = append(f.views[:i], f.views[i+1:]...)
			return nil
		}
	}
	return backend.ErrNotFound
}

// ErrUnavailable is a convenient injected failure
var ErrUnavailable = errors.New("backend unavailable")
