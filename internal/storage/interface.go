package storage

import (
	"context"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/models"
)

// Storage is the persistent backend: the request surface consumed by the
// reader plus the ingestion and extraction operations used by the poller
type Storage interface {
	backend.Backend
	backend.Views

	// Sources
	UpsertSource(ctx context.Context, src models.FeedSource) (int64, error)
	ListSources(ctx context.Context) ([]models.Source, error)
	MarkSourceSynced(ctx context.Context, id int64) error

	// Ingestion
	UpsertItems(ctx context.Context, sourceID int64, items []models.Item) (int, error)
	QueuePartialExtractions(ctx context.Context) (int64, error)

	// Extraction worker
	PendingExtractions(ctx context.Context, limit int) ([]models.Item, error)
	SaveExtraction(ctx context.Context, id int64, html string) error
	FailExtraction(ctx context.Context, id int64, reason string) error

	// Maintenance
	CleanupOldItems(ctx context.Context, retention time.Duration) (int64, error)
	OptimizeDatabase(ctx context.Context) error
	GetDatabaseStats(ctx context.Context) (map[string]interface{}, error)
	Close() error
}
