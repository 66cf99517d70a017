package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/haloedge/authcore/internal/jwt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client, "test:", nil)
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, "v1", string(val))
}

func TestStoreGetMiss(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrMiss)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k1"))

	_, err := store.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrMiss)
}

func TestTokenCacheRoundTripsAndRemoves(t *testing.T) {
	store := newTestStore(t)
	cache := NewTokenCache(store, time.Hour, nil)

	info := jwt.UserInfo{ID: "user-1", Issuer: "https://issuer1.com"}
	expiry := time.Now().Add(time.Minute)
	cache.Insert("tok-1", info, expiry)

	entry, ok := cache.Lookup("tok-1")
	require.True(t, ok)
	require.Equal(t, "user-1", entry.UserInfo.ID)
	require.WithinDuration(t, expiry, entry.TokenExpiry, time.Second)

	cache.Remove("tok-1")
	_, ok = cache.Lookup("tok-1")
	require.False(t, ok)
}

func TestKeyCacheRoundTripsPositiveAndNegative(t *testing.T) {
	store := newTestStore(t)
	cache := NewKeyCache(store, nil)

	cache.Update("https://issuer1.com", []byte(`{"keys":[]}`), time.Now().Add(time.Minute))
	entry, ok := cache.Get("https://issuer1.com")
	require.True(t, ok)
	require.False(t, entry.IsNegative)
	require.Equal(t, `{"keys":[]}`, string(entry.KeyBlob))

	cache.Update("https://issuer2.com", nil, time.Time{})
	entry, ok = cache.Get("https://issuer2.com")
	require.True(t, ok)
	require.True(t, entry.IsNegative)

	cache.Reset("https://issuer1.com")
	_, ok = cache.Get("https://issuer1.com")
	require.False(t, ok)
}
