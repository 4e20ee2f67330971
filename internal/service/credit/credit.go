// internal/service/credit/credit.go
package credit

import (
	"context"
	"fmt"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const creditLedger = "credits"

type API interface {
	GetSubscriptionCredits(ctx context.Context) (*boost.SubscriptionCredit, error)
}

type CreditService struct {
	credits *ledger.Ledger[boost.SubscriptionCredit]
	logger  *zap.Logger
}

// NewCreditLedger builds the per-user credit snapshot.
func NewCreditLedger(client *redis.Client, api API, ttl time.Duration, logger *zap.Logger, opts ...ledger.Option[boost.SubscriptionCredit]) *ledger.Ledger[boost.SubscriptionCredit] {
	load := func(ctx context.Context) (boost.SubscriptionCredit, error) {
		c, err := api.GetSubscriptionCredits(ctx)
		if err != nil {
			return boost.SubscriptionCredit{}, err
		}
		return *c, nil
	}
	return ledger.New(client, creditLedger, ledger.PerUser(creditLedger), load, ttl, logger, opts...)
}

func NewCreditService(credits *ledger.Ledger[boost.SubscriptionCredit], logger *zap.Logger) *CreditService {
	return &CreditService{
		credits: credits,
		logger:  logger,
	}
}

// GetCredits returns the caller's credit snapshot. An inconsistent snapshot is
// logged and returned as the server sent it.
func (s *CreditService) GetCredits(ctx context.Context) (*boost.SubscriptionCredit, error) {
	c, err := s.credits.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription credits: %w", err)
	}
	if !c.Consistent() {
		s.logger.Warn("subscription credit snapshot is inconsistent",
			zap.Int("total", c.TotalCredits),
			zap.Int("used", c.UsedCredits),
			zap.Int("remaining", c.RemainingCredits))
	}
	return &c, nil
}

// Invalidate drops the snapshot so the next read reflects the server.
func (s *CreditService) Invalidate(ctx context.Context) error {
	return s.credits.Invalidate(ctx)
}

// CanUseCreditFor is the only credit eligibility rule: featured promotions while credits remain.
func CanUseCreditFor(t boost.Type, c *boost.SubscriptionCredit) bool {
	return c != nil && t == boost.TypeFeatured && c.RemainingCredits > 0
}
