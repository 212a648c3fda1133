package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache[string]()
	c.Set("k", "v", time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache[string]()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("k", "v", time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock = clock.Add(1500 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)

	// Lazy eviction removed the entry.
	assert.Equal(t, 0, c.Len())
}

func TestCacheNoTTLNeverExpires(t *testing.T) {
	c := NewCache[int]()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("k", 42, 0)
	clock = clock.Add(24 * time.Hour)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := NewCache[string]()
	c.Set("a", "1", 0)
	c.Set("b", "2", 0)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheStats(t *testing.T) {
	c := NewCache[string]()
	c.Set("k", "v", 0)

	c.Get("k")
	c.Get("k")
	c.Get("missing")

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}
