package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"
)

const viewColumns = "id, name, source_ids, group_names, created_at, updated_at"

// encodeList stores a filter list as a JSON array, or NULL when empty
func encodeList[T any](values []T) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeList[T any](raw sql.NullString, column string, viewID int64) []T {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var values []T
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		logging.Warn("Ignoring malformed view filter", "view_id", viewID, "column", column, "err", err)
		return nil
	}
	return values
}

func scanView(row rowScanner) (models.CustomView, error) {
	var (
		v          models.CustomView
		sourceIDs  sql.NullString
		groupNames sql.NullString
	)
	if err := row.Scan(&v.ID, &v.Name, &sourceIDs, &groupNames, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return v, err
	}
	v.SourceIDs = decodeList[int64](sourceIDs, "source_ids", v.ID)
	v.GroupNames = decodeList[string](groupNames, "group_names", v.ID)
	return v, nil
}

func encodeViewFilters(in models.CustomViewInput) (sql.NullString, sql.NullString, error) {
	sourceIDs, err := encodeList(in.SourceIDs)
	if err != nil {
		return sql.NullString{}, sql.NullString{}, fmt.Errorf("failed to encode source ids: %w", err)
	}
	groupNames, err := encodeList(in.GroupNames)
	if err != nil {
		return sql.NullString{}, sql.NullString{}, fmt.Errorf("failed to encode group names: %w", err)
	}
	return sourceIDs, groupNames, nil
}

// ListViews returns every saved view ordered by name
func (s *SQLiteStorage) ListViews(ctx context.Context) ([]models.CustomView, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+viewColumns+" FROM custom_views ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()

	views := []models.CustomView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *SQLiteStorage) GetView(ctx context.Context, id int64) (*models.CustomView, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	v, err := scanView(s.db.QueryRowContext(ctx, "SELECT "+viewColumns+" FROM custom_views WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %d: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get view %d: %w", id, err)
	}
	return &v, nil
}

func (s *SQLiteStorage) CreateView(ctx context.Context, in models.CustomViewInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	sourceIDs, groupNames, err := encodeViewFilters(in)
	if err != nil {
		return 0, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO custom_views (name, source_ids, group_names, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		in.Name, sourceIDs, groupNames, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create view: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStorage) UpdateView(ctx context.Context, id int64, in models.CustomViewInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	sourceIDs, groupNames, err := encodeViewFilters(in)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE custom_views SET name = ?, source_ids = ?, group_names = ?, updated_at = ? WHERE id = ?",
		in.Name, sourceIDs, groupNames, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update view %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("view %d: %w", id, backend.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) DeleteView(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM custom_views WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete view %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("view %d: %w", id, backend.ErrNotFound)
	}
	return nil
}
