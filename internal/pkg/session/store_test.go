package session

import (
	"context"
	"testing"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	xerrors "boost-service/internal/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestStoreRoundTripAndOwnership(t *testing.T) {
	client, _ := setupTestRedis(t)
	s := NewStore(client, time.Hour)
	ctx := context.Background()

	wf, err := promotion.New("wf-1", 10, "listing-1", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, wf.Configure(boost.TypeFeatured, 7, true))
	require.NoError(t, s.Save(ctx, wf))

	got, err := s.Get(ctx, 10, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, promotion.StateConfiguring, got.State)
	assert.Equal(t, boost.TypeFeatured, got.Intent.Type)
	assert.True(t, got.Intent.AutoRenew)

	_, err = s.Get(ctx, 11, "wf-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	list, err := s.ListByIdentity(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListByIdentity(ctx, 11)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoreIdleExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	s := NewStore(client, 10*time.Minute)
	ctx := context.Background()

	wf, err := promotion.New("wf-2", 10, "listing-1", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, wf))

	mr.FastForward(11 * time.Minute)
	_, err = s.Get(ctx, 10, "wf-2")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestSubmitLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewSubmitLock(client, 30*time.Second)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "wf-1", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "wf-1", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	// Releasing with the wrong token keeps the lock.
	require.NoError(t, l.Release(ctx, "wf-1", "b"))
	assert.True(t, mr.Exists("lock:promotion:submit:wf-1"))

	require.NoError(t, l.Release(ctx, "wf-1", "a"))
	ok, err = l.Acquire(ctx, "wf-1", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(31 * time.Second)
	ok, err = l.Acquire(ctx, "wf-1", "c")
	require.NoError(t, err)
	assert.True(t, ok, "lock expires with its ttl")
}
