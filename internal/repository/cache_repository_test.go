package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

// mapRedis implements the handful of commands CacheRepository issues.
type mapRedis struct {
	redis.Cmdable
	values  map[string]string
	ttls    map[string]time.Duration
	deleted []string
}

func newMapRedis() *mapRedis {
	return &mapRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	value, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (m *mapRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *mapRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.values, key)
		m.deleted = append(m.deleted, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mapRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	keys := make([]string, 0)
	prefix := match
	if n := len(prefix); n > 0 && prefix[n-1] == '*' {
		prefix = prefix[:n-1]
	}
	for key := range m.values {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

type cachedQueue struct {
	Role  string  `json:"role"`
	Items []int64 `json:"items"`
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	client := newMapRedis()
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()

	var miss cachedQueue
	require.ErrorIs(t, repo.Get(ctx, "queue:DEAN:all", &miss), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "queue:DEAN:all", cachedQueue{Role: "DEAN", Items: []int64{4, 2}}, 30*time.Second))
	assert.Equal(t, 30*time.Second, client.ttls["queue:DEAN:all"])

	var hit cachedQueue
	require.NoError(t, repo.Get(ctx, "queue:DEAN:all", &hit))
	assert.Equal(t, []int64{4, 2}, hit.Items)
}

func TestCacheRepositoryDropsUndecodableEntry(t *testing.T) {
	client := newMapRedis()
	client.values["queue:AFO:all"] = "{not json"
	repo := NewCacheRepository(client, nil)

	var dest cachedQueue
	require.ErrorIs(t, repo.Get(context.Background(), "queue:AFO:all", &dest), appErrors.ErrCacheMiss)
	assert.Equal(t, []string{"queue:AFO:all"}, client.deleted)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	client := newMapRedis()
	client.values["queue:DEAN:all"] = "{}"
	client.values["queue:ADVISER:10"] = "{}"
	client.values["notifications:dispatch"] = "lock"
	repo := NewCacheRepository(client, nil)

	require.NoError(t, repo.DeleteByPattern(context.Background(), "queue:*"))
	assert.ElementsMatch(t, []string{"queue:DEAN:all", "queue:ADVISER:10"}, client.deleted)
	assert.Contains(t, client.values, "notifications:dispatch")
}
