// internal/service/boost/boost.go
package boost

import (
	"context"
	"fmt"
	"time"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const boostLedger = "my_boosts"

type API interface {
	ListMyBoosts(ctx context.Context) ([]boost.Boost, error)
}

type BoostService struct {
	boosts *ledger.Ledger[[]boost.Boost]
	logger *zap.Logger
	now    func() time.Time
}

func NewBoostLedger(client *redis.Client, api API, ttl time.Duration, logger *zap.Logger, opts ...ledger.Option[[]boost.Boost]) *ledger.Ledger[[]boost.Boost] {
	return ledger.New(client, boostLedger, ledger.PerUser(boostLedger), api.ListMyBoosts, ttl, logger, opts...)
}

func NewBoostService(boosts *ledger.Ledger[[]boost.Boost], logger *zap.Logger) *BoostService {
	return &BoostService{
		boosts: boosts,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (tests).
func (s *BoostService) SetClock(now func() time.Time) { s.now = now }

// ListMine returns the caller's boosts in upstream order.
func (s *BoostService) ListMine(ctx context.Context) ([]boost.Boost, error) {
	boosts, err := s.boosts.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load boosts: %w", err)
	}
	return boosts, nil
}

// Mine returns the caller's boosts split at the current clock reading. The split is
// never cached; a boost moves to expired as soon as its expiry passes.
func (s *BoostService) Mine(ctx context.Context) (*boost.Partition, error) {
	boosts, err := s.ListMine(ctx)
	if err != nil {
		return nil, err
	}
	p := Partition(boosts, s.now())
	return &p, nil
}

// Partition places every boost in exactly one bucket: active while now < expiresAt.
func Partition(boosts []boost.Boost, now time.Time) boost.Partition {
	p := boost.Partition{
		Active:     make([]boost.Boost, 0, len(boosts)),
		Expired:    make([]boost.Boost, 0),
		ComputedAt: now,
	}
	for _, b := range boosts {
		if b.IsActive(now) {
			p.Active = append(p.Active, b)
		} else {
			p.Expired = append(p.Expired, b)
		}
	}
	return p
}

// Find returns one of the caller's boosts.
func (s *BoostService) Find(ctx context.Context, boostID string) (*boost.Boost, error) {
	boosts, err := s.ListMine(ctx)
	if err != nil {
		return nil, err
	}
	for i := range boosts {
		if boosts[i].ID == boostID {
			return &boosts[i], nil
		}
	}
	return nil, xerrors.ErrNotFound
}

// FindPurchased looks, after a refetch, for a boost on listingID of type t created at
// or after since. It is how an external purchase is observed once the provider settles,
// so boosts paid from wallet or subscription credit are skipped.
func (s *BoostService) FindPurchased(ctx context.Context, listingID string, t boost.Type, since time.Time) (*boost.Boost, error) {
	boosts, err := s.boosts.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh boosts: %w", err)
	}
	var found *boost.Boost
	for i := range boosts {
		b := boosts[i]
		if b.ListingID != listingID || b.Type != t || b.CreatedAt.Before(since) {
			continue
		}
		if b.PaymentMethod == boost.PaymentMethodWallet || b.PaymentMethod == boost.PaymentMethodSubscription {
			continue
		}
		if found == nil || b.CreatedAt.After(found.CreatedAt) {
			found = &boosts[i]
		}
	}
	if found == nil {
		return nil, xerrors.ErrNotFound
	}
	return found, nil
}

func (s *BoostService) Invalidate(ctx context.Context) error {
	return s.boosts.Invalidate(ctx)
}
