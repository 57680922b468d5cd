package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/signatory-approval-api/internal/approval"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
)

type stubCacheRepo struct {
	getErr   error
	patterns []string
	ttl      time.Duration
}

func (s *stubCacheRepo) Get(context.Context, string, interface{}) error { return s.getErr }

func (s *stubCacheRepo) Set(_ context.Context, _ string, _ interface{}, ttl time.Duration) error {
	s.ttl = ttl
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func TestQueueKey(t *testing.T) {
	assert.Equal(t, "queue:DEAN:all", QueueKey(approval.RoleDean, nil))
	assert.Equal(t, "queue:ADVISER:10", QueueKey(approval.RoleAdviser, testOrg))
}

func TestCacheServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := &stubCacheRepo{getErr: appErrors.ErrCacheMiss}
	svc := NewCacheService(repo, NewMetricsService(), 0, nil, true)

	hit, err := svc.Get(ctx, "queue:DEAN:all", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)

	repo.getErr = nil
	hit, err = svc.Get(ctx, "queue:DEAN:all", &struct{}{})
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, svc.Set(ctx, "queue:DEAN:all", 1, 0))
	assert.Equal(t, 30*time.Second, repo.ttl)

	require.NoError(t, svc.InvalidateQueues(ctx))
	assert.Equal(t, []string{"queue:*"}, repo.patterns)

	repo.getErr = errors.New("redis down")
	_, err = svc.Get(ctx, "k", &struct{}{})
	require.Error(t, err)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	hit, err := svc.Get(context.Background(), "k", &struct{}{})
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.InvalidateQueues(context.Background()))
	assert.Empty(t, repo.patterns)

	var none *CacheService
	assert.False(t, none.Enabled())
}
