// Package keycache implements C2: a per-issuer cache of verification
// key sets with TTL and sticky negative entries, adapted from the
// gateway's in-memory LRU cache design.
package keycache

import (
	"container/list"
	"sync"
	"time"

	"github.com/haloedge/authcore/internal/observability"
)

// DefaultTTL is the default lifetime of a positive entry: 300 seconds,
// matching the original source's kPubKeyCacheDuration.
const DefaultTTL = 300 * time.Second

// Entry is a KeySetEntry: a key-set blob or a negative marker.
type Entry struct {
	KeyBlob    []byte
	ExpiresAt  time.Time
	IsNegative bool
}

// Cache is C2's operation surface.
type Cache interface {
	// Get returns the entry for issuer if present and unexpired.
	Get(issuer string) (Entry, bool)

	// Update atomically replaces the entry for issuer. An empty keyBlob
	// denotes a negative entry, which does not expire until Reset.
	Update(issuer string, keyBlob []byte, expiresAt time.Time)

	// Reset clears any entry (positive or negative) for issuer, so the
	// next lookup is a miss. Invoked on out-of-band reconfiguration.
	Reset(issuer string)

	// Len reports the current number of entries, for tests and diagnostics.
	Len() int
}

type item struct {
	issuer string
	entry  Entry
}

type lruCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	logger   observability.Logger
}

// New constructs a Cache with the given capacity; a capacity <= 0 falls
// back to 1000.
func New(capacity int, logger observability.Logger) Cache {
	if capacity <= 0 {
		capacity = 1000
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

func (c *lruCache) Get(issuer string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[issuer]
	if !ok {
		observability.GetMetrics().CacheMisses.WithLabelValues("key").Inc()
		return Entry{}, false
	}
	entry := el.Value.(*item).entry

	if !entry.IsNegative && !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		c.order.Remove(el)
		delete(c.items, issuer)
		observability.GetMetrics().CacheMisses.WithLabelValues("key").Inc()
		return Entry{}, false
	}

	c.order.MoveToFront(el)
	observability.GetMetrics().CacheHits.WithLabelValues("key").Inc()
	return entry, true
}

func (c *lruCache) Update(issuer string, keyBlob []byte, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{KeyBlob: keyBlob, ExpiresAt: expiresAt, IsNegative: len(keyBlob) == 0}

	if el, ok := c.items[issuer]; ok {
		el.Value.(*item).entry = entry
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&item{issuer: issuer, entry: entry})
	c.items[issuer] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*item).issuer)
		observability.GetMetrics().CacheEvictions.WithLabelValues("key").Inc()
	}
}

func (c *lruCache) Reset(issuer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[issuer]; ok {
		c.order.Remove(el)
		delete(c.items, issuer)
		c.logger.Debug("key cache entry reset", observability.String("issuer", issuer))
	}
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

var _ Cache = (*lruCache)(nil)
