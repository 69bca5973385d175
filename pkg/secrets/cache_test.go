package secrets

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutAndGet(t *testing.T) {
	cache := NewCache[map[string]string](2 * time.Second)
	key := "prod/gims/tokens"

	_, ok := cache.Get(key)
	assert.False(t, ok, "expected miss on empty cache")

	cache.Put(key, map[string]string{"access_token": "abc123"})

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "abc123", got["access_token"])
}

func TestCache_Expiration(t *testing.T) {
	cache := NewCache[string](time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("k", "v")
	_, ok := cache.Get("k")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok, "expected expired cache entry")
	assert.Zero(t, cache.Len(), "expired entry removed on read")
}

func TestCache_Bust(t *testing.T) {
	cache := NewCache[string](5 * time.Second)
	cache.Put("k", "v")

	cache.Bust("k")
	_, ok := cache.Get("k")
	assert.False(t, ok, "expected cache miss after bust")
}

func TestCache_CleanerRemovesExpired(t *testing.T) {
	cache := NewCache[string](10 * time.Millisecond)
	cache.Put("a", "1")
	cache.Put("b", "2")

	stop := make(chan struct{})
	defer close(stop)
	go cache.StartCleaner(5*time.Millisecond, stop)

	assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[int](2 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%5)
			cache.Put(key, i)
			_, _ = cache.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, cache.Len())
}
