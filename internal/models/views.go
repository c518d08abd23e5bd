package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidView = errors.New("invalid custom view")

// CustomView is a saved filter over sources and groups
type CustomView struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	SourceIDs  []int64  `json:"source_ids,omitempty"`
	GroupNames []string `json:"group_names,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	UpdatedAt  int64    `json:"updated_at"`
}

// CustomViewInput is the editable part of a view
type CustomViewInput struct {
	Name       string   `json:"name"`
	SourceIDs  []int64  `json:"source_ids,omitempty"`
	GroupNames []string `json:"group_names,omitempty"`
}

// Validate trims the name and rejects an empty one
func (in *CustomViewInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidView)
	}
	return nil
}

// Query turns the view into an item filter, optionally narrowed to a state
func (v CustomView) Query(state string) ItemQuery {
	return ItemQuery{
		State:      state,
		SourceIDs:  append([]int64(nil), v.SourceIDs...),
		GroupNames: append([]string(nil), v.GroupNames...),
	}
}
