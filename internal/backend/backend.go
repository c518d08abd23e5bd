// Package backend describes the request surface the reader core consumes.
//
// The backend owns persistence, network fetch, content extraction and the
// preference store. The core only ever reaches it through these interfaces,
// so any implementation (the in-process SQLite store, the HTTP client, or a
// test fake) can be injected.
package backend

import (
	"context"
	"errors"

	"feedrelay/internal/models"
)

// ErrNotFound is returned when the requested item does not exist.
var ErrNotFound = errors.New("not found")

// Items is the item half of the backend surface.
type Items interface {
	GetItems(ctx context.Context, query models.ItemQuery) ([]models.Item, error)
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	UpdateItemState(ctx context.Context, id int64, state models.ItemState) error
	BulkUpdateItemState(ctx context.Context, ids []int64, state models.ItemState) error
}

// ExtractionTrigger asks the backend to start full-text extraction for an item.
type ExtractionTrigger interface {
	TriggerExtraction(ctx context.Context, itemID int64) error
}

// Preferences is the scalar key/value preference store.
// GetUserPreference reports found=false when the key was never saved.
type Preferences interface {
	GetUserPreference(ctx context.Context, key string) (value string, found bool, err error)
	SetUserPreference(ctx context.Context, key, value string) error
}

// Views stores saved item filters. Lookups of unknown ids return ErrNotFound.
type Views interface {
	ListViews(ctx context.Context) ([]models.CustomView, error)
	GetView(ctx context.Context, id int64) (*models.CustomView, error)
	CreateView(ctx context.Context, in models.CustomViewInput) (int64, error)
	UpdateView(ctx context.Context, id int64, in models.CustomViewInput) error
	DeleteView(ctx context.Context, id int64) error
}

// Backend is the surface the reader core needs.
type Backend interface {
	Items
	ExtractionTrigger
	Preferences
}
