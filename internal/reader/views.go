package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"feedrelay/internal/backend"
	"feedrelay/internal/models"
)

// FindView resolves a view by numeric id or, failing that, by case-insensitive name
func FindView(ctx context.Context, views backend.Views, ref string) (models.CustomView, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		view, err := views.GetView(ctx, id)
		if err != nil {
			return models.CustomView{}, err
		}
		return *view, nil
	}

	all, err := views.ListViews(ctx)
	if err != nil {
		return models.CustomView{}, err
	}
	for _, view := range all {
		if strings.EqualFold(view.Name, ref) {
			return view, nil
		}
	}
	return models.CustomView{}, fmt.Errorf("view %q: %w", ref, backend.ErrNotFound)
}

// ViewQuery narrows a view's filter to state. An empty ref returns the plain state filter.
func ViewQuery(ctx context.Context, views backend.Views, ref, state string) (models.ItemQuery, error) {
	if ref == "" {
		return models.ItemQuery{State: state}, nil
	}
	view, err := FindView(ctx, views, ref)
	if err != nil {
		return models.ItemQuery{}, err
	}
	return view.Query(state), nil
}
