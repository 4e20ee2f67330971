// internal/service/pricing/pricing.go
package pricing

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

const catalogLedger = "pricing"

// API is the slice of the marketplace client the catalog needs.
type API interface {
	ListPricing(ctx context.Context) ([]boost.PricingTier, error)
	CalculatePrice(ctx context.Context, t boost.Type, durationDays int) (*boost.Quote, error)
}

type PricingService struct {
	api     API
	catalog *ledger.Ledger[[]boost.PricingTier]
	logger  *zap.Logger
}

// NewCatalogLedger builds the global tier snapshot. Tiers are reference data shared by all users.
func NewCatalogLedger(client *redis.Client, api API, ttl time.Duration, logger *zap.Logger, opts ...ledger.Option[[]boost.PricingTier]) *ledger.Ledger[[]boost.PricingTier] {
	return ledger.New(client, catalogLedger, ledger.Global(catalogLedger), api.ListPricing, ttl, logger, opts...)
}

func NewPricingService(api API, catalog *ledger.Ledger[[]boost.PricingTier], logger *zap.Logger) *PricingService {
	return &PricingService{
		api:     api,
		catalog: catalog,
		logger:  logger,
	}
}

// ListTiers returns the tier catalog.
func (s *PricingService) ListTiers(ctx context.Context) ([]boost.PricingTier, error) {
	tiers, err := s.catalog.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing catalog: %w", err)
	}
	return tiers, nil
}

// Tier looks a single tier up by type.
func (s *PricingService) Tier(ctx context.Context, t boost.Type) (*boost.PricingTier, error) {
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tiers {
		if tiers[i].Type == t {
			return &tiers[i], nil
		}
	}
	return nil, xerrors.Validation("unknown promotion type %q", t)
}

// ValidateDuration checks days against the tier bounds, inclusive on both ends.
func ValidateDuration(tier boost.PricingTier, days int) error {
	if !tier.AllowsDuration(days) {
		return xerrors.Validation("duration for %s must be between %d and %d days, got %d",
			tier.Type, tier.MinDays, tier.MaxDays, days)
	}
	return nil
}

// CalculatePrice validates locally and then asks the upstream for the authoritative
// price. An out-of-range duration never reaches the network.
func (s *PricingService) CalculatePrice(ctx context.Context, t boost.Type, durationDays int) (*boost.Quote, error) {
	tier, err := s.Tier(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := ValidateDuration(*tier, durationDays); err != nil {
		return nil, err
	}

	quote, err := s.api.CalculatePrice(ctx, t, durationDays)
	if err != nil {
		s.logger.Info("price calculation rejected",
			zap.String("type", string(t)),
			zap.Int("duration_days", durationDays),
			zap.Error(err))
		return nil, err
	}

	if quote.PricePerDay == 0 {
		quote.PricePerDay = tier.PricePerDay
	}
	return quote, nil
}
