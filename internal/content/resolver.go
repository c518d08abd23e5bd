// Package content decides which body of an item to display.
//
// Resolve is a pure function of the item and the reader preferences. When
// the decision calls for extraction it returns an Action instead of calling
// the backend; an Executor carries the action out.
package content

import (
	"context"

	"feedrelay/internal/models"
)

const defaultFailureMessage = "Failed to extract content"

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionTriggerExtraction
)

// Action is a follow-up the caller should perform after rendering
type Action struct {
	Kind   ActionKind
	ItemID int64
}

// Decision is the outcome of Resolve
type Decision struct {
	Resolution models.ContentResolution
	Action     Action
}

// Resolve picks the content to display. Checks run in strict priority order:
// nil item, extraction disabled, feed_only, then the mode specific rules.
// Only always_fetch with no recorded extraction status recommends a trigger.
func Resolve(item *models.Item, prefs models.Preferences) Decision {
	if item == nil {
		return Decision{Resolution: models.ContentResolution{Source: models.SourceFeed}}
	}

	if !prefs.ExtractionEnabled || prefs.ArticleViewMode == models.ViewModeFeedOnly {
		return feed(item)
	}

	if d, ok := resolveStatus(item); ok {
		return d
	}

	if prefs.ArticleViewMode == models.ViewModeAlwaysFetch && item.ContentStatus.IsNone() && item.URL != "" {
		d := feed(item)
		d.Action = Action{Kind: ActionTriggerExtraction, ItemID: item.ID}
		return d
	}

	// auto mode: full feed content and unattempted items alike show the feed body
	return feed(item)
}

// resolveStatus applies the checks shared by auto and always_fetch
func resolveStatus(item *models.Item) (Decision, bool) {
	switch item.ContentStatus {
	case models.ContentStatusExtracted:
		// extracted with no body is treated as nothing extracted
		if item.ExtractedContentHTML == "" {
			return Decision{}, false
		}
		return Decision{Resolution: models.ContentResolution{
			Content: item.ExtractedContentHTML,
			Source:  models.SourceExtracted,
		}}, true
	case models.ContentStatusFetching:
		d := feed(item)
		d.Resolution.IsFetching = true
		return d, true
	case models.ContentStatusFailed:
		d := feed(item)
		d.Resolution.HasError = true
		d.Resolution.ErrorMessage = item.ExtractionFailedReason
		if d.Resolution.ErrorMessage == "" {
			d.Resolution.ErrorMessage = defaultFailureMessage
		}
		return d, true
	}
	return Decision{}, false
}

func feed(item *models.Item) Decision {
	return Decision{Resolution: models.ContentResolution{
		Content: item.FeedContent(),
		Source:  models.SourceFeed,
	}}
}

// PreferenceSource supplies the current reader preferences
type PreferenceSource interface {
	Preferences(ctx context.Context) models.Preferences
}

// Resolver combines Resolve with an Executor for callers that just want content
type Resolver struct {
	prefs    PreferenceSource
	executor *Executor
}

func NewResolver(prefs PreferenceSource, executor *Executor) *Resolver {
	return &Resolver{prefs: prefs, executor: executor}
}

// Display resolves item against the current preferences and dispatches any
// recommended action without waiting for it.
func (r *Resolver) Display(ctx context.Context, item *models.Item) models.ContentResolution {
	d := Resolve(item, r.prefs.Preferences(ctx))
	if r.executor != nil {
		r.executor.Execute(ctx, d.Action)
	}
	return d.Resolution
}
