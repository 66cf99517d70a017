// Package tokencache implements C3: a bounded, concurrent cache of
// already-validated tokens keyed by the raw token string, adapted from
// the gateway's in-memory LRU cache design.
package tokencache

import (
	"container/list"
	"sync"
	"time"

	"github.com/haloedge/authcore/internal/jwt"
	"github.com/haloedge/authcore/internal/observability"
)

// Entry is a TokenCacheEntry: the projection handed back on a cache hit.
type Entry struct {
	UserInfo     jwt.UserInfo
	TokenExpiry  time.Time
	InsertedAt   time.Time
}

// Cache is C3's operation surface.
type Cache interface {
	// Lookup returns a snapshot of the cached entry for token, if present.
	// The caller must still check entry.TokenExpiry against now.
	Lookup(token string) (Entry, bool)

	// Insert records a validated token; later inserts overwrite earlier ones.
	Insert(token string, info jwt.UserInfo, tokenExpiry time.Time)

	// Remove evicts token, if present. Best-effort.
	Remove(token string)

	// Len reports the current number of entries, for tests and diagnostics.
	Len() int
}

type element struct {
	token string
	entry Entry
}

// lruCache is a container/list-backed LRU guarded by a single mutex,
// mirroring the shape of the gateway's memoryCache.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	logger   observability.Logger
}

// New constructs a Cache with the given capacity; a capacity <= 0 falls
// back to 10000.
func New(capacity int, logger observability.Logger) Cache {
	if capacity <= 0 {
		capacity = 10000
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &lruCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		logger:   logger,
	}
}

func (c *lruCache) Lookup(token string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[token]
	if !ok {
		observability.GetMetrics().CacheMisses.WithLabelValues("token").Inc()
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	observability.GetMetrics().CacheHits.WithLabelValues("token").Inc()
	return el.Value.(*element).entry, true
}

func (c *lruCache) Insert(token string, info jwt.UserInfo, tokenExpiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{UserInfo: info, TokenExpiry: tokenExpiry, InsertedAt: time.Now()}

	if el, ok := c.items[token]; ok {
		el.Value.(*element).entry = entry
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&element{token: token, entry: entry})
	c.items[token] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*element).token)
		observability.GetMetrics().CacheEvictions.WithLabelValues("token").Inc()
	}
}

func (c *lruCache) Remove(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[token]; ok {
		c.order.Remove(el)
		delete(c.items, token)
	}
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

var _ Cache = (*lruCache)(nil)
