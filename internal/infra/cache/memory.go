package cache

import (
	"context"
	"path"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"relink/internal/domain"
)

const defaultMaxEntries = 4096

// MemoryCache хранит значения в процессе: LRU с ограничением размера и TTL на запись.
type MemoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ domain.Cache = (*MemoryCache)(nil)

// NewMemory создаёт кэш. now можно подменить в тестах.
func NewMemory(maxEntries int, now func() time.Time) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if now == nil {
		now = time.Now
	}
	// ошибка возможна только при неположительном размере
	entries, _ := lru.New[string, memoryEntry](maxEntries)
	return &MemoryCache{entries: entries, now: now}
}

// Get возвращает значение, если оно есть и не истекло.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set сохраняет значение. Нулевой или отрицательный TTL означает, что значение не кэшируется.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.evictExpired(now)
	c.entries.Add(key, memoryEntry{value: stored, expiresAt: now.Add(ttl)})
	return nil
}

// Invalidate удаляет ключи, подходящие под glob-шаблон.
func (c *MemoryCache) Invalidate(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range c.entries.Keys() {
		if ok, _ := path.Match(pattern, key); ok && c.entries.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Len возвращает число записей, включая ещё не вычищенные истёкшие.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

func (c *MemoryCache) evictExpired(now time.Time) {
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && !now.Before(entry.expiresAt) {
			c.entries.Remove(key)
		}
	}
}
