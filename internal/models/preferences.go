package models

import (
	"fmt"
	"strconv"
)

// Persisted preference keys
const (
	PrefArticleViewMode   = "article_view_mode"
	PrefExtractionEnabled = "extraction_enabled"
	PrefItemsPerPage      = "items_per_page"
)

// ArticleViewMode selects which body the reader prefers
type ArticleViewMode string

const (
	ViewModeAuto        ArticleViewMode = "auto"
	ViewModeFeedOnly    ArticleViewMode = "feed_only"
	ViewModeAlwaysFetch ArticleViewMode = "always_fetch"
)

// ParseArticleViewMode validates a stored view mode
func ParseArticleViewMode(s string) (ArticleViewMode, error) {
	switch ArticleViewMode(s) {
	case ViewModeAuto, ViewModeFeedOnly, ViewModeAlwaysFetch:
		return ArticleViewMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
}

const DefaultItemsPerPage = 10

// ItemsPerPageOptions is the fixed set of accepted page sizes
var ItemsPerPageOptions = []int{10, 20, 50, 100}

// ValidItemsPerPage reports whether n is one of ItemsPerPageOptions
func ValidItemsPerPage(n int) bool {
	for _, option := range ItemsPerPageOptions {
		if option == n {
			return true
		}
	}
	return false
}

// Preferences are the process-wide reader settings
type Preferences struct {
	ArticleViewMode   ArticleViewMode `json:"article_view_mode"`
	ExtractionEnabled bool            `json:"extraction_enabled"`
	ItemsPerPage      int             `json:"items_per_page"`
}

// DefaultPreferences returns the documented defaults
func DefaultPreferences() Preferences {
	return Preferences{
		ArticleViewMode:   ViewModeAuto,
		ExtractionEnabled: true,
		ItemsPerPage:      DefaultItemsPerPage,
	}
}

// ParseExtractionEnabled applies the "false" sentinel: any other value, including absence, enables
func ParseExtractionEnabled(value string, present bool) bool {
	return !present || value != "false"
}

// ParseItemsPerPage accepts only stringified members of ItemsPerPageOptions
func ParseItemsPerPage(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || !ValidItemsPerPage(n) {
		return 0, false
	}
	return n, true
}

// ContentSource names where resolved content came from
type ContentSource string

const (
	SourceFeed      ContentSource = "feed"
	SourceExtracted ContentSource = "extracted"
)

// ContentResolution is the body chosen for display
type ContentResolution struct {
	Content      string        `json:"content"`
	Source       ContentSource `json:"source"`
	IsFetching   bool          `json:"is_fetching"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
}
