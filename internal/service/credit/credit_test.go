package credit

import (
	"context"
	"testing"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/pkg/identity"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAPI struct {
	credits boost.SubscriptionCredit
	calls   int
}

func (f *fakeAPI) GetSubscriptionCredits(ctx context.Context) (*boost.SubscriptionCredit, error) {
	f.calls++
	c := f.credits
	return &c, nil
}

func TestCanUseCreditFor(t *testing.T) {
	types := []boost.Type{
		boost.TypeFeatured, boost.TypeTopSearch, boost.TypeHomepage,
		boost.TypeCategoryTop, boost.TypeUrgent, boost.TypeHighlight,
	}

	for _, typ := range types {
		for _, remaining := range []int{0, 1, 5} {
			c := &boost.SubscriptionCredit{TotalCredits: 5, RemainingCredits: remaining, UsedCredits: 5 - remaining}
			want := typ == boost.TypeFeatured && remaining > 0
			assert.Equal(t, want, CanUseCreditFor(typ, c), "%s with %d remaining", typ, remaining)
		}
	}
	assert.False(t, CanUseCreditFor(boost.TypeFeatured, nil))
}

func TestGetCreditsInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	api := &fakeAPI{credits: boost.SubscriptionCredit{TotalCredits: 3, UsedCredits: 1, RemainingCredits: 2}}
	s := NewCreditService(NewCreditLedger(client, api, time.Minute, zap.NewNop()), zap.NewNop())

	ctx := identity.WithPrincipal(context.Background(), identity.Principal{IdentityID: 5})

	c, err := s.GetCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.RemainingCredits)

	api.credits = boost.SubscriptionCredit{TotalCredits: 3, UsedCredits: 2, RemainingCredits: 1}
	c, err = s.GetCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.RemainingCredits)
	assert.Equal(t, 1, api.calls)

	require.NoError(t, s.Invalidate(ctx))
	c, err = s.GetCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.RemainingCredits)
	assert.Equal(t, 2, api.calls)
}

func TestInconsistentSnapshotIsLoggedAndKept(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	api := &fakeAPI{credits: boost.SubscriptionCredit{TotalCredits: 3, UsedCredits: 2, RemainingCredits: 2}}
	s := NewCreditService(NewCreditLedger(nil, api, time.Minute, zap.NewNop()), zap.New(core))

	ctx := identity.WithPrincipal(context.Background(), identity.Principal{IdentityID: 5})
	c, err := s.GetCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.RemainingCredits)
	assert.Equal(t, 1, logs.FilterMessage("subscription credit snapshot is inconsistent").Len())
}
