package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedrelay/internal/extraction"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"
	"feedrelay/internal/storage"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	maxConcurrentFeeds  = 4
	extractionBatchSize = 10
	feedTimeout         = 30 * time.Second
)

// Options tune the poller. Zero values select the defaults.
type Options struct {
	PollInterval       time.Duration
	ExtractionInterval time.Duration
	ExtractionTimeout  time.Duration
	ExtractionRate     float64
	Retention          time.Duration
	AutoExtractPartial bool
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Minute
	}
	if o.ExtractionInterval <= 0 {
		o.ExtractionInterval = time.Minute
	}
	if o.ExtractionTimeout <= 0 {
		o.ExtractionTimeout = extraction.DefaultTimeout
	}
	if o.ExtractionRate <= 0 {
		o.ExtractionRate = 1
	}
	return o
}

// Poller ingests configured feeds into storage and runs the extraction worker
type Poller struct {
	storage   storage.Storage
	extractor extraction.Extractor
	sources   map[string]models.FeedSource
	parser    *gofeed.Parser
	limiter   *rate.Limiter
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	mu         sync.RWMutex
	lastPolled map[string]time.Time
	isPolling  bool
}

func New(store storage.Storage, extractor extraction.Extractor, sources []models.FeedSource, opts Options) *Poller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: feedTimeout}

	byName := make(map[string]models.FeedSource, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}

	return &Poller{
		storage:    store,
		extractor:  extractor,
		sources:    byName,
		parser:     parser,
		limiter:    rate.NewLimiter(rate.Limit(opts.ExtractionRate), 1),
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		lastPolled: make(map[string]time.Time),
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	if p.isPolling {
		p.mu.Unlock()
		return
	}
	p.isPolling = true
	p.mu.Unlock()

	logging.Info("Starting feed poller", "interval", p.opts.PollInterval, "sources", len(p.sources),
		"auto_extract_partial", p.opts.AutoExtractPartial)

	p.wg.Add(2)
	go p.pollLoop()
	go p.extractLoop()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isPolling {
		p.mu.Unlock()
		return
	}
	p.isPolling = false
	p.mu.Unlock()

	logging.Info("Stopping feed poller")
	p.cancel()
	p.wg.Wait()
	logging.Info("Feed poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	// Poll immediately on start
	p.pollAllFeeds(p.ctx)

	for {
		select {
		case <-ticker.C:
			p.pollAllFeeds(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) pollAllFeeds(ctx context.Context) {
	logging.Info("Starting background feed polling")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeeds)
	for _, src := range p.sources {
		g.Go(func() error {
			if err := p.pollSource(gctx, src); err != nil {
				logging.Error("Failed to poll feed", "source", src.Name, "url", src.URL, "err", err)
			}
			// one broken feed must not cancel the others
			return nil
		})
	}
	g.Wait()

	if p.opts.AutoExtractPartial {
		queued, err := p.storage.QueuePartialExtractions(ctx)
		if err != nil {
			logging.Error("Failed to queue partial items for extraction", "err", err)
		} else if queued > 0 {
			logging.Info("Queued partial items for extraction", "count", queued)
		}
	}

	if p.opts.Retention > 0 {
		if _, err := p.storage.CleanupOldItems(ctx, p.opts.Retention); err != nil {
			logging.Error("Failed to clean up old items", "err", err)
		}
	}

	p.WakeExtractor()
	logging.Info("Background feed polling completed")
}

func (p *Poller) pollSource(ctx context.Context, src models.FeedSource) error {
	defer p.markPolled(src.Name)

	sourceID, err := p.storage.UpsertSource(ctx, src)
	if err != nil {
		return err
	}

	feed, err := p.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}

	items := convertFeed(feed)
	inserted, err := p.storage.UpsertItems(ctx, sourceID, items)
	if err != nil {
		return err
	}
	if err := p.storage.MarkSourceSynced(ctx, sourceID); err != nil {
		logging.Warn("Failed to record sync time", "source", src.Name, "err", err)
	}

	logging.Info("Polled feed", "source", src.Name, "items", len(items), "new", inserted)
	return nil
}

func (p *Poller) markPolled(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPolled[name] = time.Now()
}

// convertFeed maps parsed entries to items and classifies their content
func convertFeed(feed *gofeed.Feed) []models.Item {
	items := make([]models.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		externalID := entry.GUID
		if externalID == "" {
			externalID = entry.Link
		}
		if externalID == "" {
			continue
		}

		item := models.Item{
			ExternalID:  externalID,
			Title:       entry.Title,
			Summary:     entry.Description,
			ContentHTML: entry.Content,
			URL:         entry.Link,
			ItemType:    "post",
			CreatedAt:   publishedAt(entry),
		}
		if item.Title == "" {
			item.Title = entry.Link
		}

		if entry.Author != nil {
			item.Author = entry.Author.Name
		} else if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			item.Author = entry.Authors[0].Name
		}

		if len(entry.Categories) > 0 {
			if encoded, err := json.Marshal(entry.Categories); err == nil {
				item.Category = string(encoded)
			}
		}

		item.ImageURL = imageURL(entry)
		item.ContentCompleteness = extraction.DetectCompleteness(item)
		items = append(items, item)
	}
	return items
}

func publishedAt(entry *gofeed.Item) int64 {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.Unix()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.Unix()
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.Unix()
		}
	}
	return time.Now().Unix()
}

func imageURL(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enclosure := range entry.Enclosures {
		if enclosure != nil && strings.HasPrefix(enclosure.Type, "image/") {
			return enclosure.URL
		}
	}
	return ""
}

// WakeExtractor asks the extraction worker to look for queued items now
func (p *Poller) WakeExtractor() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) extractLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.ExtractionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.wake:
		case <-p.ctx.Done():
			return
		}
		p.drainExtractions(p.ctx)
	}
}

// drainExtractions processes queued items until none are left. Every item
// leaves the queue as extracted or failed.
func (p *Poller) drainExtractions(ctx context.Context) int {
	processed := 0
	for {
		pending, err := p.storage.PendingExtractions(ctx, extractionBatchSize)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logging.Error("Failed to load pending extractions", "err", err)
			}
			return processed
		}
		if len(pending) == 0 {
			return processed
		}

		recorded := 0
		for _, item := range pending {
			if err := p.limiter.Wait(ctx); err != nil {
				return processed
			}
			if p.extractItem(ctx, item) {
				recorded++
			}
		}
		processed += recorded
		if recorded == 0 {
			return processed
		}
	}
}

// extractItem reports whether the outcome was recorded
func (p *Poller) extractItem(ctx context.Context, item models.Item) bool {
	extractCtx, cancel := context.WithTimeout(ctx, p.opts.ExtractionTimeout)
	defer cancel()

	content, err := p.extractor.Extract(extractCtx, item.URL)
	if ctx.Err() != nil {
		// shutting down; leave the item queued
		return false
	}
	if err != nil {
		logging.Warn("Extraction failed", "item_id", item.ID, "url", item.URL, "err", err)
		if err := p.storage.FailExtraction(ctx, item.ID, err.Error()); err != nil {
			logging.Error("Failed to record extraction failure", "item_id", item.ID, "err", err)
			return false
		}
		return true
	}

	if err := p.storage.SaveExtraction(ctx, item.ID, content); err != nil {
		logging.Error("Failed to save extracted content", "item_id", item.ID, "err", err)
		return false
	}
	logging.Debug("Extracted item", "item_id", item.ID, "bytes", len(content))
	return true
}

func (p *Poller) GetLastPolledTime() map[string]time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[string]time.Time, len(p.lastPolled))
	for name, polled := range p.lastPolled {
		result[name] = polled
	}
	return result
}

func (p *Poller) IsPolling() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isPolling
}

// Sources returns the configured feed sources
func (p *Poller) Sources() []models.FeedSource {
	result := make([]models.FeedSource, 0, len(p.sources))
	for _, src := range p.sources {
		result = append(result, src)
	}
	return result
}

func (p *Poller) ForcePoll(ctx context.Context, name string) error {
	logging.Info("Force polling source", "source", name)

	src, exists := p.sources[name]
	if !exists {
		return fmt.Errorf("source '%s' not found", name)
	}

	if err := p.pollSource(ctx, src); err != nil {
		return err
	}
	if p.opts.AutoExtractPartial {
		if _, err := p.storage.QueuePartialExtractions(ctx); err != nil {
			logging.Error("Failed to queue partial items for extraction", "err", err)
		}
	}
	p.WakeExtractor()
	return nil
}
