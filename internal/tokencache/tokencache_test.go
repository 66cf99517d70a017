package tokencache

import (
	"testing"
	"time"

	"github.com/haloedge/authcore/internal/jwt"
	"github.com/stretchr/testify/require"
)

func TestInsertThenLookupWithinTTL(t *testing.T) {
	c := New(10, nil)
	info := jwt.UserInfo{ID: "user-1", Issuer: "https://issuer1.com", Audiences: jwt.Audience{"svc"}}
	exp := time.Now().Add(time.Hour)

	c.Insert("tok-1", info, exp)

	entry, ok := c.Lookup("tok-1")
	require.True(t, ok)
	require.Equal(t, info, entry.UserInfo)
	require.WithinDuration(t, exp, entry.TokenExpiry, time.Millisecond)
}

func TestLookupMiss(t *testing.T) {
	c := New(10, nil)
	_, ok := c.Lookup("absent")
	require.False(t, ok)
}

func TestInsertOverwrites(t *testing.T) {
	c := New(10, nil)
	info1 := jwt.UserInfo{ID: "user-1"}
	info2 := jwt.UserInfo{ID: "user-2"}
	exp := time.Now().Add(time.Hour)

	c.Insert("tok-1", info1, exp)
	c.Insert("tok-1", info2, exp)

	entry, ok := c.Lookup("tok-1")
	require.True(t, ok)
	require.Equal(t, "user-2", entry.UserInfo.ID)
	require.Equal(t, 1, c.Len())
}

func TestEvictsOldestBeyondCapacity(t *testing.T) {
	c := New(2, nil)
	exp := time.Now().Add(time.Hour)

	c.Insert("a", jwt.UserInfo{ID: "a"}, exp)
	c.Insert("b", jwt.UserInfo{ID: "b"}, exp)
	c.Insert("c", jwt.UserInfo{ID: "c"}, exp)

	require.Equal(t, 2, c.Len())
	_, ok := c.Lookup("a")
	require.False(t, ok, "oldest entry should have been evicted")
}

func TestRemove(t *testing.T) {
	c := New(10, nil)
	exp := time.Now().Add(time.Hour)
	c.Insert("tok-1", jwt.UserInfo{ID: "user-1"}, exp)
	c.Remove("tok-1")
	_, ok := c.Lookup("tok-1")
	require.False(t, ok)
}

func TestConcurrentInsertSameToken(t *testing.T) {
	c := New(100, nil)
	exp := time.Now().Add(time.Hour)
	info := jwt.UserInfo{ID: "user-1"}

	done := make(chan struct{})
	for i := 0; i < 16; i++ {
		go func() {
			c.Insert("tok-1", info, exp)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 16; i++ {
		<-done
	}

	require.Equal(t, 1, c.Len())
	entry, ok := c.Lookup("tok-1")
	require.True(t, ok)
	require.Equal(t, info, entry.UserInfo)
}
