package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"boost-service/internal/pkg/identity"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Balance float64 `json:"balance"`
}

type countingObserver struct {
	results map[string]int
}

func (o *countingObserver) ObserveLedger(_ string, result string) {
	o.results[result]++
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func userCtx(id int64) context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{IdentityID: id, Token: "t"})
}

func TestGetReadsThroughAndCaches(t *testing.T) {
	client, mr := setupTestRedis(t)
	calls := 0
	obs := &countingObserver{results: map[string]int{}}

	l := New(client, "wallet", PerUser("wallet"), func(ctx context.Context) (snapshot, error) {
		calls++
		return snapshot{Balance: 100}, nil
	}, time.Minute, nil, WithObserver[snapshot](obs))

	ctx := userCtx(7)
	v, err := l.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Balance)

	v, err = l.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Balance)

	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("ledger:wallet:7"))
	assert.Equal(t, 1, obs.results[ResultHit])
	assert.Equal(t, 1, obs.results[ResultMiss])
}

func TestInvalidateForcesReload(t *testing.T) {
	client, _ := setupTestRedis(t)
	balance := 100.0

	l := New(client, "wallet", PerUser("wallet"), func(ctx context.Context) (snapshot, error) {
		return snapshot{Balance: balance}, nil
	}, time.Minute, nil)

	ctx := userCtx(7)
	_, err := l.Get(ctx)
	require.NoError(t, err)

	balance = 40
	v, err := l.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Balance, "stale until invalidated")

	require.NoError(t, l.Invalidate(ctx))
	v, err = l.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, v.Balance)
}

func TestPerUserKeysAreIsolated(t *testing.T) {
	client, _ := setupTestRedis(t)

	l := New(client, "credits", PerUser("credits"), func(ctx context.Context) (snapshot, error) {
		p, _ := identity.FromContext(ctx)
		return snapshot{Balance: float64(p.IdentityID)}, nil
	}, time.Minute, nil)

	a, err := l.Get(userCtx(1))
	require.NoError(t, err)
	b, err := l.Get(userCtx(2))
	require.NoError(t, err)

	assert.Equal(t, 1.0, a.Balance)
	assert.Equal(t, 2.0, b.Balance)
}

func TestPerUserRequiresPrincipal(t *testing.T) {
	l := New[snapshot](nil, "wallet", PerUser("wallet"), func(ctx context.Context) (snapshot, error) {
		return snapshot{}, nil
	}, time.Minute, nil)

	_, err := l.Get(context.Background())
	assert.ErrorIs(t, err, identity.ErrMissing)
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	client, mr := setupTestRedis(t)
	boom := errors.New("upstream down")

	l := New(client, "pricing", Global("pricing"), func(ctx context.Context) ([]snapshot, error) {
		return nil, boom
	}, time.Minute, nil)

	_, err := l.Get(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("ledger:pricing"))
}

func TestRedisOutageFallsBackToLoader(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	l := New(client, "pricing", Global("pricing"), func(ctx context.Context) (snapshot, error) {
		return snapshot{Balance: 5}, nil
	}, time.Minute, nil)

	v, err := l.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Balance)
}
