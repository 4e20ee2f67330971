package boost

import (
	"context"
	"fmt"
	"testing"
	"time"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/pkg/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	boosts []boost.Boost
}

func (f *fakeAPI) ListMyBoosts(ctx context.Context) ([]boost.Boost, error) {
	return f.boosts, nil
}

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func ctxFor(id int64) context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{IdentityID: id})
}

func TestPartitionIsTotalAndExclusive(t *testing.T) {
	offsets := []time.Duration{-48 * time.Hour, -time.Second, 0, time.Second, 72 * time.Hour}
	boosts := make([]boost.Boost, 0, len(offsets))
	for i, off := range offsets {
		boosts = append(boosts, boost.Boost{ID: fmt.Sprintf("b-%d", i), ExpiresAt: now.Add(off)})
	}

	p := Partition(boosts, now)
	assert.Len(t, p.Active, 2)
	assert.Len(t, p.Expired, 3, "expiresAt == now is already expired")
	assert.Equal(t, len(boosts), len(p.Active)+len(p.Expired))

	seen := map[string]int{}
	for _, b := range append(append([]boost.Boost{}, p.Active...), p.Expired...) {
		seen[b.ID]++
	}
	for _, b := range boosts {
		assert.Equal(t, 1, seen[b.ID], b.ID)
	}
}

func TestMineRecomputesAtEachRead(t *testing.T) {
	api := &fakeAPI{boosts: []boost.Boost{{ID: "b-1", ExpiresAt: now.Add(time.Minute)}}}
	s := NewBoostService(NewBoostLedger(nil, api, time.Minute, zap.NewNop()), zap.NewNop())

	clock := now
	s.SetClock(func() time.Time { return clock })

	p, err := s.Mine(ctxFor(1))
	require.NoError(t, err)
	assert.Len(t, p.Active, 1)

	clock = now.Add(2 * time.Minute)
	p, err = s.Mine(ctxFor(1))
	require.NoError(t, err)
	assert.Empty(t, p.Active)
	assert.Len(t, p.Expired, 1)
}

func TestFind(t *testing.T) {
	api := &fakeAPI{boosts: []boost.Boost{{ID: "b-1"}, {ID: "b-2"}}}
	s := NewBoostService(NewBoostLedger(nil, api, time.Minute, zap.NewNop()), zap.NewNop())

	b, err := s.Find(ctxFor(1), "b-2")
	require.NoError(t, err)
	assert.Equal(t, "b-2", b.ID)

	_, err = s.Find(ctxFor(1), "missing")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestFindPurchasedPicksNewestMatch(t *testing.T) {
	api := &fakeAPI{boosts: []boost.Boost{
		{ID: "old", ListingID: "l-1", Type: boost.TypeUrgent, CreatedAt: now.Add(-time.Hour)},
		{ID: "other-type", ListingID: "l-1", Type: boost.TypeFeatured, CreatedAt: now.Add(time.Minute)},
		{ID: "new", ListingID: "l-1", Type: boost.TypeUrgent, CreatedAt: now.Add(2 * time.Minute)},
	}}
	s := NewBoostService(NewBoostLedger(nil, api, time.Minute, zap.NewNop()), zap.NewNop())

	b, err := s.FindPurchased(ctxFor(1), "l-1", boost.TypeUrgent, now)
	require.NoError(t, err)
	assert.Equal(t, "new", b.ID)

	_, err = s.FindPurchased(ctxFor(1), "l-2", boost.TypeUrgent, now)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestFindPurchasedSkipsInternallyPaidBoosts(t *testing.T) {
	api := &fakeAPI{boosts: []boost.Boost{
		{ID: "ext", ListingID: "l-1", Type: boost.TypeUrgent, PaymentMethod: "mpesa", CreatedAt: now.Add(time.Minute)},
		{ID: "wallet", ListingID: "l-1", Type: boost.TypeUrgent, PaymentMethod: boost.PaymentMethodWallet, CreatedAt: now.Add(2 * time.Minute)},
		{ID: "credit", ListingID: "l-1", Type: boost.TypeUrgent, PaymentMethod: boost.PaymentMethodSubscription, CreatedAt: now.Add(3 * time.Minute)},
		{ID: "before", ListingID: "l-1", Type: boost.TypeUrgent, CreatedAt: now.Add(-30 * time.Second)},
	}}
	s := NewBoostService(NewBoostLedger(nil, api, time.Minute, zap.NewNop()), zap.NewNop())

	b, err := s.FindPurchased(ctxFor(1), "l-1", boost.TypeUrgent, now)
	require.NoError(t, err)
	assert.Equal(t, "ext", b.ID)
}
