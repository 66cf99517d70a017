package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/haloedge/authcore/internal/jwt"
	"github.com/haloedge/authcore/internal/observability"
	"github.com/haloedge/authcore/internal/tokencache"
)

const tokenKeyPrefix = "token:"

type tokenRecord struct {
	UserInfo    jwt.UserInfo `json:"user_info"`
	TokenExpiry time.Time    `json:"token_expiry"`
	InsertedAt  time.Time    `json:"inserted_at"`
}

// TokenCache is a tokencache.Cache backed by the shared Redis store, so
// that C3's entries are visible across every authentication-core replica
// instead of being confined to one process's in-memory LRU.
type TokenCache struct {
	store  *Store
	ttl    time.Duration
	logger observability.Logger
}

// NewTokenCache wraps store as a tokencache.Cache. ttl bounds how long a
// record survives in Redis regardless of the token's own expiry, as a
// backstop against unbounded growth.
func NewTokenCache(store *Store, ttl time.Duration, logger observability.Logger) *TokenCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenCache{store: store, ttl: ttl, logger: logger}
}

func (c *TokenCache) Lookup(token string) (tokencache.Entry, bool) {
	ctx := context.Background()
	raw, err := c.store.Get(ctx, tokenKeyPrefix+token)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("shared token cache lookup failed", observability.Error(err))
		}
		return tokencache.Entry{}, false
	}

	var rec tokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Warn("shared token cache entry corrupt", observability.Error(err))
		return tokencache.Entry{}, false
	}
	return tokencache.Entry{UserInfo: rec.UserInfo, TokenExpiry: rec.TokenExpiry, InsertedAt: rec.InsertedAt}, true
}

func (c *TokenCache) Insert(token string, info jwt.UserInfo, tokenExpiry time.Time) {
	rec := tokenRecord{UserInfo: info, TokenExpiry: tokenExpiry, InsertedAt: time.Now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("shared token cache marshal failed", observability.Error(err))
		return
	}

	ctx := context.Background()
	if err := c.store.Set(ctx, tokenKeyPrefix+token, raw, c.ttl); err != nil {
		c.logger.Warn("shared token cache insert failed", observability.Error(err))
	}
}

func (c *TokenCache) Remove(token string) {
	ctx := context.Background()
	if err := c.store.Delete(ctx, tokenKeyPrefix+token); err != nil {
		c.logger.Warn("shared token cache remove failed", observability.Error(err))
	}
}

func (c *TokenCache) Len() int {
	return 0
}

var _ tokencache.Cache = (*TokenCache)(nil)
