package cache

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Manager is a TTL key/value cache shared by the preference adapter and the
// extraction trigger executor.
type Manager struct {
	cache *cache.Cache
	mu    sync.RWMutex
}

func NewManager(defaultTTL time.Duration) *Manager {
	return &Manager{
		cache: cache.New(defaultTTL, 10*time.Minute),
	}
}

func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Get(key)
}

// Set stores value; a zero ttl uses the manager's default
func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl == 0 {
		ttl = cache.DefaultExpiration
	}
	m.cache.Set(key, value, ttl)
}

// SetIfAbsent stores value only when key is missing or expired and reports
// whether it did. Used to claim a key exactly once per TTL window.
func (m *Manager) SetIfAbsent(key string, value interface{}, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl == 0 {
		ttl = cache.DefaultExpiration
	}
	return m.cache.Add(key, value, ttl) == nil
}

func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
}
