package content

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-catalog/internal/platform/cache"
)

// Entry is a cached response body with its declared content type.
type Entry struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// BodyCache stores raw response bodies by URL. Cache failures are never
// surfaced to callers; a failed lookup behaves like a miss.
type BodyCache interface {
	Get(ctx context.Context, url string) (Entry, bool)
	Put(ctx context.Context, url string, e Entry)
}

type bypassKey struct{}

// Fresh returns a context whose fetches go to the backend even when a cached
// body exists. A fresh body still replaces the cached one.
func Fresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

// IsFresh reports whether ctx was made with Fresh.
func IsFresh(ctx context.Context) bool {
	b, _ := ctx.Value(bypassKey{}).(bool)
	return b
}

// MemoryCache is an in-process BodyCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates an empty in-memory body cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (m *MemoryCache) Get(_ context.Context, url string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[url]
	return e, ok
}

func (m *MemoryCache) Put(_ context.Context, url string, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[url] = e
}

// RedisCache is a BodyCache backed by Dragonfly/Redis.
type RedisCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisCache creates a body cache whose entries expire after ttl.
func NewRedisCache(c *cache.Cache, ttl time.Duration) *RedisCache {
	return &RedisCache{cache: c, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, url string) (Entry, bool) {
	var e Entry
	if err := r.cache.GetJSON(ctx, bodyKey(url), &e); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("content cache lookup failed", "url", url, "error", err)
		}
		return Entry{}, false
	}
	return e, true
}

func (r *RedisCache) Put(ctx context.Context, url string, e Entry) {
	if err := r.cache.SetJSON(ctx, bodyKey(url), e, r.ttl); err != nil {
		slog.Warn("content cache store failed", "url", url, "error", err)
	}
}

func bodyKey(url string) string {
	return "body:" + url
}
