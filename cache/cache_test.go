package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/depreciation/store"
)

func newTestMemory(t *testing.T, ttl time.Duration) (*Memory, *time.Time) {
	t.Helper()
	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(WithTTL(ttl))
	m.now = func() time.Time { return clock }
	t.Cleanup(func() { _ = m.Close() })
	return m, &clock
}

func TestMemory_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t, time.Minute)

	_, ok := m.Get(ctx, "Acme Corp")
	assert.False(t, ok)

	m.Set(ctx, "Acme Corp", "Main Book")
	book, ok := m.Get(ctx, "Acme Corp")
	assert.True(t, ok)
	assert.Equal(t, "Main Book", book)

	require.NoError(t, m.Invalidate(ctx, "Acme Corp"))
	_, ok = m.Get(ctx, "Acme Corp")
	assert.False(t, ok)

	hits, misses := m.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestMemory_Expiry(t *testing.T) {
	// GIVEN: Two entries cached one minute apart with a 90s TTL
	// WHEN: The clock moves past the first entry's expiry
	// THEN: Only the second entry is served and cleanup drops the first

	ctx := context.Background()
	m, clock := newTestMemory(t, 90*time.Second)

	m.Set(ctx, "Acme Corp", "Main Book")
	*clock = clock.Add(time.Minute)
	m.Set(ctx, "Globex", "Tax Book")
	*clock = clock.Add(time.Minute)

	_, ok := m.Get(ctx, "Acme Corp")
	assert.False(t, ok)
	book, ok := m.Get(ctx, "Globex")
	assert.True(t, ok)
	assert.Equal(t, "Tax Book", book)

	*clock = clock.Add(time.Minute)
	assert.Equal(t, 1, m.doCleanup())
	assert.Equal(t, 0, m.Count())
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestMemory_WithCachedBooks(t *testing.T) {
	// GIVEN: A company whose default finance book is "Main Book"
	// WHEN: It is looked up twice through the cache, then changed and invalidated
	// THEN: The second lookup is a hit and the change is seen after invalidation

	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SaveCompany(ctx, depreciation.Company{Name: "Acme Corp", DefaultFinanceBook: "Main Book"}))
	m, _ := newTestMemory(t, time.Hour)
	books := depreciation.CachedBooks{Dir: st, Cache: m}

	book, err := books.DefaultFinanceBook(ctx, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "Main Book", book)
	_, err = books.DefaultFinanceBook(ctx, "Acme Corp")
	require.NoError(t, err)
	hits, _ := m.Stats()
	assert.Equal(t, int64(1), hits)

	require.NoError(t, st.SaveCompany(ctx, depreciation.Company{Name: "Acme Corp", DefaultFinanceBook: "Tax Book"}))
	require.NoError(t, m.Invalidate(ctx, "Acme Corp"))
	book, err = books.DefaultFinanceBook(ctx, "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, "Tax Book", book)
}

func TestRedis_Unreachable(t *testing.T) {
	// GIVEN: A redis client pointing at a closed port
	// WHEN: The cache is used
	// THEN: Reads degrade to misses and invalidation reports the failure

	_, err := NewRedis(RedisConfig{Host: "127.0.0.1", Port: 1}, nil)
	require.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: time.Second})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisWithClient(client, 0, nil)
	ctx := context.Background()

	assert.Equal(t, defaultKeyPrefix+"Acme Corp", c.key("Acme Corp"))
	assert.Equal(t, defaultTTL, c.ttl)

	c.Set(ctx, "Acme Corp", "Main Book")
	_, ok := c.Get(ctx, "Acme Corp")
	assert.False(t, ok)
	assert.Error(t, c.Invalidate(ctx, "Acme Corp"))
	assert.NoError(t, c.Close())
}
