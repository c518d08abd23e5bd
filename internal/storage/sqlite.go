package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const dbFileName = "feedrelay.db"

type SQLiteStorage struct {
	db    *sql.DB
	mutex sync.RWMutex
}

var _ Storage = (*SQLiteStorage)(nil)

func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	// Ensure data directory exists with secure permissions (0750)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	logging.Info("Initializing database", "path", dbPath)

	if _, err := os.Stat(dbPath); err == nil {
		if !validateSchema(dbPath) {
			logging.Warn("Database schema validation failed, recreating database", "path", dbPath)
			if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to remove existing database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_synchronous=NORMAL&_timeout=30000&_busy_timeout=30000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logging.Warn("Failed to set pragma", "pragma", pragma, "err", err)
		}
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL DEFAULT 'rss',
		name TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_synced_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS source_groups (
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		PRIMARY KEY (source_id, group_id)
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		url TEXT NOT NULL,
		item_type TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'unread',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		image_url TEXT,
		content_html TEXT,
		author TEXT,
		category TEXT, -- JSON array
		comments TEXT,
		content_status TEXT,
		extracted_content_html TEXT,
		content_completeness TEXT,
		extraction_attempted_at INTEGER,
		extraction_failed_reason TEXT,
		UNIQUE(source_id, external_id)
	);

	CREATE TABLE IF NOT EXISTS user_preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS custom_views (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		source_ids TEXT, -- JSON array
		group_names TEXT, -- JSON array
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_source_id ON items(source_id);
	CREATE INDEX IF NOT EXISTS idx_items_state ON items(state);
	CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
	CREATE INDEX IF NOT EXISTS idx_items_content_status ON items(content_status);
	CREATE INDEX IF NOT EXISTS idx_source_groups_group_id ON source_groups(group_id);
	CREATE INDEX IF NOT EXISTS idx_custom_views_name ON custom_views(name);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func validateSchema(dbPath string) bool {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		logging.Warn("Failed to open database for schema validation", "err", err)
		return false
	}
	defer db.Close()

	requiredTables := []string{"sources", "groups", "source_groups", "items", "user_preferences"}
	for _, table := range requiredTables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil || count == 0 {
			logging.Warn("Missing required table", "table", table)
			return false
		}
	}

	requiredItemColumns := []string{
		"id", "source_id", "external_id", "title", "summary", "url", "item_type",
		"state", "created_at", "updated_at", "image_url", "content_html", "author",
		"category", "comments", "content_status", "extracted_content_html",
		"content_completeness", "extraction_attempted_at", "extraction_failed_reason",
	}
	for _, column := range requiredItemColumns {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('items') WHERE name=?", column).Scan(&count)
		if err != nil || count == 0 {
			logging.Warn("Missing required column in items table", "column", column)
			return false
		}
	}

	return true
}

const itemColumns = `i.id, i.source_id, i.external_id, i.title, i.summary, i.url, i.item_type, i.state,
	i.created_at, i.updated_at, i.image_url, i.content_html, i.author, i.category, i.comments,
	i.content_status, i.extracted_content_html, i.content_completeness,
	i.extraction_attempted_at, i.extraction_failed_reason,
	s.name, GROUP_CONCAT(g.name, ', ')`

const itemJoins = ` FROM items i
	INNER JOIN sources s ON i.source_id = s.id
	LEFT JOIN source_groups sg ON s.id = sg.source_id
	LEFT JOIN groups g ON sg.group_id = g.id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		item                                                    models.Item
		state                                                   string
		summary, imageURL, contentHTML, author, category        sql.NullString
		comments, status, extracted, completeness, failedReason sql.NullString
		sourceName, sourceGroup                                 sql.NullString
		attemptedAt                                             sql.NullInt64
	)

	err := row.Scan(&item.ID, &item.SourceID, &item.ExternalID, &item.Title, &summary, &item.URL,
		&item.ItemType, &state, &item.CreatedAt, &item.UpdatedAt, &imageURL, &contentHTML, &author,
		&category, &comments, &status, &extracted, &completeness, &attemptedAt, &failedReason,
		&sourceName, &sourceGroup)
	if err != nil {
		return item, err
	}

	item.State = models.ItemState(state)
	item.Summary = summary.String
	item.ImageURL = imageURL.String
	item.ContentHTML = contentHTML.String
	item.Author = author.String
	item.Category = category.String
	item.Comments = comments.String
	item.ContentStatus = models.ContentStatus(status.String)
	item.ExtractedContentHTML = extracted.String
	item.ContentCompleteness = models.ContentCompleteness(completeness.String)
	item.ExtractionFailedReason = failedReason.String
	item.SourceName = sourceName.String
	item.SourceGroup = sourceGroup.String
	if attemptedAt.Valid {
		ts := attemptedAt.Int64
		item.ExtractionAttemptedAt = &ts
	}
	return item, nil
}

// GetItems returns the items matching query, newest first. GroupNames takes
// precedence over the single Group filter.
func (s *SQLiteStorage) GetItems(ctx context.Context, query models.ItemQuery) ([]models.Item, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sqlQuery, args := buildItemsQuery(query)
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

func buildItemsQuery(query models.ItemQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.State != "" {
		conditions = append(conditions, "i.state = ?")
		args = append(args, query.State)
	}

	if len(query.SourceIDs) > 0 {
		conditions = append(conditions, "i.source_id IN ("+placeholders(len(query.SourceIDs))+")")
		for _, id := range query.SourceIDs {
			args = append(args, id)
		}
	}

	const groupExists = "EXISTS (SELECT 1 FROM source_groups sg2 INNER JOIN groups g2 ON sg2.group_id = g2.id WHERE sg2.source_id = s.id AND g2.name %s)"
	if len(query.GroupNames) > 0 {
		conditions = append(conditions, fmt.Sprintf(groupExists, "IN ("+placeholders(len(query.GroupNames))+")"))
		for _, name := range query.GroupNames {
			args = append(args, name)
		}
	} else if query.Group != "" {
		conditions = append(conditions, fmt.Sprintf(groupExists, "= ?"))
		args = append(args, query.Group)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(itemColumns)
	b.WriteString(itemJoins)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" GROUP BY i.id ORDER BY i.created_at DESC, i.id DESC")
	return b.String(), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteStorage) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+itemJoins+" WHERE i.id = ? GROUP BY i.id", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return &item, nil
}

func (s *SQLiteStorage) UpdateItemState(ctx context.Context, id int64, state models.ItemState) error {
	if _, err := models.ParseItemState(string(state)); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, "UPDATE items SET state = ?, updated_at = ? WHERE id = ?",
		string(state), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %d: %w", id, backend.ErrNotFound)
	}
	return nil
}

// BulkUpdateItemState moves every id to state in one transaction. Unknown ids
// are ignored.
func (s *SQLiteStorage) BulkUpdateItemState(ctx context.Context, ids []int64, state models.ItemState) error {
	if _, err := models.ParseItemState(string(state)); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, string(state), time.Now().Unix())
	for _, id := range ids {
		args = append(args, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE items SET state = ?, updated_at = ? WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return fmt.Errorf("failed to update %d items: %w", len(ids), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state update: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil {
		logging.Debug("Bulk state update", "requested", len(ids), "updated", n, "state", state)
	}
	return nil
}

// TriggerExtraction queues an item for the extraction worker. Items already
// fetching or extracted are left alone; failed and skipped items are retried.
func (s *SQLiteStorage) TriggerExtraction(ctx context.Context, itemID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET content_status = ?, extraction_attempted_at = ?, extraction_failed_reason = NULL
		WHERE id = ? AND url != '' AND (content_status IS NULL OR content_status IN ('', 'none', ?, ?))`,
		string(models.ContentStatusFetching), time.Now().Unix(), itemID,
		string(models.ContentStatusFailed), string(models.ContentStatusSkipped))
	if err != nil {
		return fmt.Errorf("failed to queue extraction for item %d: %w", itemID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE id = ?", itemID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up item %d: %w", itemID, err)
	}
	if exists == 0 {
		return fmt.Errorf("item %d: %w", itemID, backend.ErrNotFound)
	}
	return nil
}

// QueuePartialExtractions marks every untried item the poller judged partial
// as fetching. It returns the number of queued items.
func (s *SQLiteStorage) QueuePartialExtractions(ctx context.Context) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET content_status = ?, extraction_attempted_at = ?
		WHERE content_completeness = ? AND url != '' AND state != ?
		AND (content_status IS NULL OR content_status IN ('', 'none'))`,
		string(models.ContentStatusFetching), time.Now().Unix(),
		string(models.CompletenessPartial), string(models.StateDeleted))
	if err != nil {
		return 0, fmt.Errorf("failed to queue partial items: %w", err)
	}
	return result.RowsAffected()
}

// PendingExtractions returns items waiting for the extraction worker, oldest request first
func (s *SQLiteStorage) PendingExtractions(ctx context.Context, limit int) ([]models.Item, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+itemColumns+itemJoins+
		" WHERE i.content_status = ? GROUP BY i.id ORDER BY i.extraction_attempted_at ASC, i.id ASC LIMIT ?",
		string(models.ContentStatusFetching), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending extractions: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) SaveExtraction(ctx context.Context, id int64, html string) error {
	return s.finishExtraction(ctx, id, models.ContentStatusExtracted, html, "")
}

func (s *SQLiteStorage) FailExtraction(ctx context.Context, id int64, reason string) error {
	return s.finishExtraction(ctx, id, models.ContentStatusFailed, "", reason)
}

func (s *SQLiteStorage) finishExtraction(ctx context.Context, id int64, status models.ContentStatus, html, reason string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET content_status = ?, extracted_content_html = NULLIF(?, ''),
		extraction_failed_reason = NULLIF(?, ''), extraction_attempted_at = ?
		WHERE id = ?`,
		string(status), html, reason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to record extraction for item %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %d: %w", id, backend.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) GetUserPreference(ctx context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM user_preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStorage) SetUserPreference(ctx context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO user_preferences (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

// UpsertSource creates or updates a source by name and replaces its groups
func (s *SQLiteStorage) UpsertSource(ctx context.Context, src models.FeedSource) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sourceType := src.Type
	if sourceType == "" {
		sourceType = "rss"
	}
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sources (type, name, url, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET type = excluded.type, url = excluded.url, updated_at = excluded.updated_at`,
		sourceType, src.Name, src.URL, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source %s: %w", src.Name, err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM sources WHERE name = ?", src.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up source %s: %w", src.Name, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM source_groups WHERE source_id = ?", id); err != nil {
		return 0, fmt.Errorf("failed to clear groups of source %s: %w", src.Name, err)
	}
	for _, group := range src.Groups {
		groupID, err := getOrCreateGroup(ctx, tx, group, now)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO source_groups (source_id, group_id) VALUES (?, ?)", id, groupID); err != nil {
			return 0, fmt.Errorf("failed to link group %s: %w", group, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit source %s: %w", src.Name, err)
	}
	return id, nil
}

func getOrCreateGroup(ctx context.Context, tx *sql.Tx, name string, now int64) (int64, error) {
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO groups (name, created_at) VALUES (?, ?)", name, now); err != nil {
		return 0, fmt.Errorf("failed to create group %s: %w", name, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM groups WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up group %s: %w", name, err)
	}
	return id, nil
}

func (s *SQLiteStorage) ListSources(ctx context.Context) ([]models.Source, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.url, s.type, s.enabled, s.last_synced_at, GROUP_CONCAT(g.name, ',')
		FROM sources s
		LEFT JOIN source_groups sg ON s.id = sg.source_id
		LEFT JOIN groups g ON sg.group_id = g.id
		GROUP BY s.id ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var (
			src    models.Source
			synced sql.NullInt64
			groups sql.NullString
		)
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.Type, &src.Enabled, &synced, &groups); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if synced.Valid {
			ts := synced.Int64
			src.LastSyncedAt = &ts
		}
		if groups.String != "" {
			src.Groups = strings.Split(groups.String, ",")
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *SQLiteStorage) MarkSourceSynced(ctx context.Context, id int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, "UPDATE sources SET last_synced_at = ? WHERE id = ?", time.Now().Unix(), id); err != nil {
		return fmt.Errorf("failed to mark source %d synced: %w", id, err)
	}
	return nil
}

// UpsertItems inserts new items and refreshes the feed fields of known ones.
// State and extraction fields of existing items are preserved. It returns the
// number of newly inserted items.
func (s *SQLiteStorage) UpsertItems(ctx context.Context, sourceID int64, items []models.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	update, err := tx.PrepareContext(ctx, `
		UPDATE items SET title = ?, summary = ?, url = ?, item_type = ?, image_url = ?, content_html = ?,
		author = ?, category = ?, comments = ?, content_completeness = ?, updated_at = ?
		WHERE source_id = ? AND external_id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare update statement: %w", err)
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO items (source_id, external_id, title, summary, url, item_type, state, created_at, updated_at,
		image_url, content_html, author, category, comments, content_completeness)
		VALUES (?, ?, ?, ?, ?, ?, 'unread', ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer insert.Close()

	now := time.Now().Unix()
	inserted := 0
	for _, item := range items {
		itemType := item.ItemType
		if itemType == "" {
			itemType = "post"
		}
		createdAt := item.CreatedAt
		if createdAt == 0 {
			createdAt = now
		}

		result, err := update.ExecContext(ctx, item.Title, nullString(item.Summary), item.URL, itemType,
			nullString(item.ImageURL), nullString(item.ContentHTML), nullString(item.Author),
			nullString(item.Category), nullString(item.Comments), nullString(string(item.ContentCompleteness)),
			now, sourceID, item.ExternalID)
		if err != nil {
			return 0, fmt.Errorf("failed to update item %s: %w", item.ExternalID, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			continue
		}

		if _, err := insert.ExecContext(ctx, sourceID, item.ExternalID, item.Title, nullString(item.Summary),
			item.URL, itemType, createdAt, now, nullString(item.ImageURL), nullString(item.ContentHTML),
			nullString(item.Author), nullString(item.Category), nullString(item.Comments),
			nullString(string(item.ContentCompleteness))); err != nil {
			return 0, fmt.Errorf("failed to insert item %s: %w", item.ExternalID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit items: %w", err)
	}
	return inserted, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CleanupOldItems removes items older than the retention period. Archived
// items are kept.
func (s *SQLiteStorage) CleanupOldItems(ctx context.Context, retention time.Duration) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().Add(-retention).Unix()
	result, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE state != ? AND created_at < ?",
		string(models.StateArchived), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		logging.Info("Cleaned up old items", "count", rowsAffected, "retention", retention)
	}
	return rowsAffected, nil
}

func (s *SQLiteStorage) OptimizeDatabase(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %w", err)
	}

	logging.Info("Database optimization completed")
	return nil
}

// GetDatabaseStats returns item counts by state and extraction status
func (s *SQLiteStorage) GetDatabaseStats(ctx context.Context) (map[string]interface{}, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := make(map[string]interface{})

	var totalItems, totalSources int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("failed to get total items count: %w", err)
	}
	stats["total_items"] = totalItems

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&totalSources); err != nil {
		return nil, fmt.Errorf("failed to get total sources count: %w", err)
	}
	stats["total_sources"] = totalSources

	byState, err := s.countBy(ctx, "state")
	if err != nil {
		return nil, err
	}
	stats["items_by_state"] = byState

	byStatus, err := s.countBy(ctx, "COALESCE(NULLIF(content_status, ''), 'none')")
	if err != nil {
		return nil, err
	}
	stats["items_by_content_status"] = byStatus

	var dbSize int64
	if err := s.db.QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&dbSize); err != nil {
		return nil, fmt.Errorf("failed to get database size: %w", err)
	}
	stats["database_size_bytes"] = dbSize

	return stats, nil
}

func (s *SQLiteStorage) countBy(ctx context.Context, expr string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+expr+", COUNT(*) FROM items GROUP BY 1")
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
