package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/haloedge/authcore/internal/keycache"
	"github.com/haloedge/authcore/internal/observability"
)

const keyEntryPrefix = "keyset:"

type keyRecord struct {
	KeyBlob    []byte    `json:"key_blob"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsNegative bool      `json:"is_negative"`
}

// negativeTTL bounds how long a sticky-negative key-lookup failure is
// shared across replicas, so a fixed misconfiguration does not live in
// Redis forever once corrected.
const negativeTTL = 10 * time.Minute

// KeyCache is a keycache.Cache backed by the shared Redis store, sharing
// C2's per-issuer key sets (and negative entries) across replicas.
type KeyCache struct {
	store  *Store
	logger observability.Logger
}

// NewKeyCache wraps store as a keycache.Cache.
func NewKeyCache(store *Store, logger observability.Logger) *KeyCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &KeyCache{store: store, logger: logger}
}

func (c *KeyCache) Get(issuer string) (keycache.Entry, bool) {
	ctx := context.Background()
	raw, err := c.store.Get(ctx, keyEntryPrefix+issuer)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("shared key cache lookup failed", observability.Error(err))
		}
		return keycache.Entry{}, false
	}

	var rec keyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn("shared key cache entry corrupt", observability.Error(err))
		return keycache.Entry{}, false
	}

	if !rec.IsNegative && !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		return keycache.Entry{}, false
	}
	return keycache.Entry{KeyBlob: rec.KeyBlob, ExpiresAt: rec.ExpiresAt, IsNegative: rec.IsNegative}, true
}

func (c *KeyCache) Update(issuer string, keyBlob []byte, expiresAt time.Time) {
	rec := keyRecord{KeyBlob: keyBlob, ExpiresAt: expiresAt, IsNegative: len(keyBlob) == 0}
	raw, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("shared key cache marshal failed", observability.Error(err))
		return
	}

	ttl := negativeTTL
	if !rec.IsNegative {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			ttl = keycache.DefaultTTL
		}
	}

	ctx := context.Background()
	if err := c.store.Set(ctx, keyEntryPrefix+issuer, raw, ttl); err != nil {
		c.logger.Warn("shared key cache update failed", observability.Error(err))
	}
}

func (c *KeyCache) Reset(issuer string) {
	ctx := context.Background()
	if err := c.store.Delete(ctx, keyEntryPrefix+issuer); err != nil {
		c.logger.Warn("shared key cache reset failed", observability.Error(err))
	}
}

func (c *KeyCache) Len() int {
	return 0
}

var _ keycache.Cache = (*KeyCache)(nil)
