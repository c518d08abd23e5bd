// Package preferences adapts the backend's scalar preference store to typed
// reader settings, caching the loaded values until one of them changes.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"feedrelay/internal/backend"
	"feedrelay/internal/cache"
	"feedrelay/internal/logging"
	"feedrelay/internal/models"
)

const cacheKey = "preferences"

var ErrInvalidItemsPerPage = errors.New("items per page must be one of 10, 20, 50, 100")

type Store struct {
	backend backend.Preferences
	cache   *cache.Manager
	ttl     time.Duration

	mu sync.Mutex
	// generation counts confirmed changes and invalidations; a Load only
	// caches its snapshot when no change landed while it was reading
	generation uint64
}

// NewStore creates a preference adapter. A zero ttl keeps the cached
// preferences for the cache manager's default expiration.
func NewStore(b backend.Preferences, cacheManager *cache.Manager, ttl time.Duration) *Store {
	return &Store{
		backend: b,
		cache:   cacheManager,
		ttl:     ttl,
	}
}

// Load reads every preference key from the backend. A key that fails to load
// keeps its default; the result is only cached when all keys loaded.
func (s *Store) Load(ctx context.Context) models.Preferences {
	s.mu.Lock()
	started := s.generation
	s.mu.Unlock()

	prefs := models.DefaultPreferences()
	complete := true

	if value, found, err := s.backend.GetUserPreference(ctx, models.PrefArticleViewMode); err != nil {
		logging.Warn("Failed to load preference, using default", "key", models.PrefArticleViewMode, "err", err)
		complete = false
	} else if found && value != "" {
		mode, err := models.ParseArticleViewMode(value)
		if err != nil {
			logging.Warn("Ignoring stored preference", "key", models.PrefArticleViewMode, "err", err)
		} else {
			prefs.ArticleViewMode = mode
		}
	}

	if value, found, err := s.backend.GetUserPreference(ctx, models.PrefExtractionEnabled); err != nil {
		logging.Warn("Failed to load preference, using default", "key", models.PrefExtractionEnabled, "err", err)
		complete = false
	} else {
		prefs.ExtractionEnabled = models.ParseExtractionEnabled(value, found)
	}

	if value, found, err := s.backend.GetUserPreference(ctx, models.PrefItemsPerPage); err != nil {
		logging.Warn("Failed to load preference, using default", "key", models.PrefItemsPerPage, "err", err)
		complete = false
	} else if found {
		if n, ok := models.ParseItemsPerPage(value); ok {
			prefs.ItemsPerPage = n
		} else {
			logging.Warn("Ignoring stored preference", "key", models.PrefItemsPerPage, "value", value)
		}
	}

	if complete {
		s.mu.Lock()
		if s.generation == started {
			s.cache.Set(cacheKey, prefs, s.ttl)
		}
		s.mu.Unlock()
	}
	return prefs
}

// Preferences returns the cached preferences, loading them on a miss
func (s *Store) Preferences(ctx context.Context) models.Preferences {
	if cached, found := s.cache.Get(cacheKey); found {
		if prefs, ok := cached.(models.Preferences); ok {
			return prefs
		}
	}
	return s.Load(ctx)
}

// ItemsPerPage returns the page size preference
func (s *Store) ItemsPerPage(ctx context.Context) int {
	return s.Preferences(ctx).ItemsPerPage
}

func (s *Store) SetArticleViewMode(ctx context.Context, mode models.ArticleViewMode) error {
	if _, err := models.ParseArticleViewMode(string(mode)); err != nil {
		return err
	}
	if err := s.save(ctx, models.PrefArticleViewMode, string(mode)); err != nil {
		return err
	}
	s.update(func(p *models.Preferences) { p.ArticleViewMode = mode })
	return nil
}

func (s *Store) SetExtractionEnabled(ctx context.Context, enabled bool) error {
	if err := s.save(ctx, models.PrefExtractionEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	s.update(func(p *models.Preferences) { p.ExtractionEnabled = enabled })
	return nil
}

func (s *Store) SetItemsPerPage(ctx context.Context, n int) error {
	if !models.ValidItemsPerPage(n) {
		return fmt.Errorf("%w: %d", ErrInvalidItemsPerPage, n)
	}
	if err := s.save(ctx, models.PrefItemsPerPage, strconv.Itoa(n)); err != nil {
		return err
	}
	s.update(func(p *models.Preferences) { p.ItemsPerPage = n })
	return nil
}

// Invalidate drops the cached preferences so the next read reloads them
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cache.Delete(cacheKey)
}

func (s *Store) save(ctx context.Context, key, value string) error {
	if err := s.backend.SetUserPreference(ctx, key, value); err != nil {
		logging.Error("Failed to save preference", "key", key, "err", err)
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}

// update patches the cached copy, if any, after a confirmed save
func (s *Store) update(patch func(*models.Preferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++

	cached, found := s.cache.Get(cacheKey)
	if !found {
		return
	}
	prefs, ok := cached.(models.Preferences)
	if !ok {
		return
	}
	patch(&prefs)
	s.cache.Set(cacheKey, prefs, s.ttl)
}
