package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState    = errors.New("invalid item state")
	ErrInvalidViewMode = errors.New("invalid article view mode")
)

// ItemState is the lifecycle state of an item
type ItemState string

const (
	StateUnread   ItemState = "unread"
	StateRead     ItemState = "read"
	StateArchived ItemState = "archived"
	StateDeleted  ItemState = "deleted"
)

// ParseItemState validates a state string coming from a request or the database
func ParseItemState(s string) (ItemState, error) {
	switch ItemState(s) {
	case StateUnread, StateRead, StateArchived, StateDeleted:
		return ItemState(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// ContentStatus tracks the extraction pipeline for an item.
// The empty value means no extraction has been recorded yet.
type ContentStatus string

const (
	ContentStatusNone      ContentStatus = ""
	ContentStatusFetching  ContentStatus = "fetching"
	ContentStatusExtracted ContentStatus = "extracted"
	ContentStatusFailed    ContentStatus = "failed"
	ContentStatusSkipped   ContentStatus = "skipped"
)

// IsNone reports whether no extraction status has been recorded.
// Some backends spell it out as "none".
func (s ContentStatus) IsNone() bool {
	return s == ContentStatusNone || s == "none"
}

// ContentCompleteness is the backend's guess at whether feed content is the whole article
type ContentCompleteness string

const (
	CompletenessUnknown ContentCompleteness = "unknown"
	CompletenessPartial ContentCompleteness = "partial"
	CompletenessFull    ContentCompleteness = "full"
)

// Item represents a single feed, issue or notification entry
type Item struct {
	ID                     int64               `json:"id"`
	SourceID               int64               `json:"source_id"`
	ExternalID             string              `json:"external_id"`
	Title                  string              `json:"title"`
	Summary                string              `json:"summary,omitempty"`
	URL                    string              `json:"url"`
	ItemType               string              `json:"item_type"`
	State                  ItemState           `json:"state"`
	CreatedAt              int64               `json:"created_at"`
	UpdatedAt              int64               `json:"updated_at"`
	ImageURL               string              `json:"image_url,omitempty"`
	ContentHTML            string              `json:"content_html,omitempty"`
	Author                 string              `json:"author,omitempty"`
	Category               string              `json:"category,omitempty"` // JSON array string
	Comments               string              `json:"comments,omitempty"`
	SourceName             string              `json:"source_name,omitempty"`
	SourceGroup            string              `json:"source_group,omitempty"`
	ContentStatus          ContentStatus       `json:"content_status,omitempty"`
	ExtractedContentHTML   string              `json:"extracted_content_html,omitempty"`
	ContentCompleteness    ContentCompleteness `json:"content_completeness,omitempty"`
	ExtractionAttemptedAt  *int64              `json:"extraction_attempted_at,omitempty"`
	ExtractionFailedReason string              `json:"extraction_failed_reason,omitempty"`
}

// FeedContent returns the feed-supplied body, falling back to the summary
func (i *Item) FeedContent() string {
	if i.ContentHTML != "" {
		return i.ContentHTML
	}
	return i.Summary
}

// ItemQuery holds the optional filters of a get_items request.
// GroupNames takes precedence over Group when non-empty.
type ItemQuery struct {
	State      string   `json:"state_filter,omitempty"`
	Group      string   `json:"group_filter,omitempty"`
	SourceIDs  []int64  `json:"source_ids,omitempty"`
	GroupNames []string `json:"group_names,omitempty"`
}

// FeedSource is a configured feed the backend polls
type FeedSource struct {
	Name   string   `json:"name" yaml:"name"`
	URL    string   `json:"url" yaml:"url"`
	Type   string   `json:"type,omitempty" yaml:"type,omitempty"`
	Groups []string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Source is a stored feed source
type Source struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	Type         string   `json:"type"`
	Enabled      bool     `json:"enabled"`
	LastSyncedAt *int64   `json:"last_synced_at,omitempty"`
	Groups       []string `json:"groups,omitempty"`
}
