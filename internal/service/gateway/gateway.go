// internal/service/gateway/gateway.go
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/ledger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const providerLedger = "external_providers"

type API interface {
	ListExternalServices(ctx context.Context) ([]boost.PaymentProvider, error)
	CreateBoost(ctx context.Context, req boost.CreateBoostRequest, idempotencyKey string) (*boost.CreateBoostResult, error)
}

// Order is the result of handing a purchase to an external provider. Normally only
// RedirectURL is set; a provider that settles instantly returns the Boost instead.
type Order struct {
	Reference   string       `json:"reference"`
	ProviderID  string       `json:"provider_id"`
	RedirectURL string       `json:"redirect_url,omitempty"`
	Boost       *boost.Boost `json:"boost,omitempty"`
}

type GatewayService struct {
	api           API
	providers     *ledger.Ledger[[]boost.PaymentProvider]
	insecureHosts map[string]bool
	logger        *zap.Logger
}

func NewProviderLedger(client *redis.Client, api API, ttl time.Duration, logger *zap.Logger, opts ...ledger.Option[[]boost.PaymentProvider]) *ledger.Ledger[[]boost.PaymentProvider] {
	return ledger.New(client, providerLedger, ledger.Global(providerLedger), api.ListExternalServices, ttl, logger, opts...)
}

// NewGatewayService builds the adapter. insecureHosts lists hosts allowed to redirect
// over plain http (local provider sandboxes).
func NewGatewayService(api API, providers *ledger.Ledger[[]boost.PaymentProvider], insecureHosts []string, logger *zap.Logger) *GatewayService {
	hosts := make(map[string]bool, len(insecureHosts))
	for _, h := range insecureHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = true
		}
	}
	return &GatewayService{
		api:           api,
		providers:     providers,
		insecureHosts: hosts,
		logger:        logger,
	}
}

// ListProviders returns the external payment providers.
func (s *GatewayService) ListProviders(ctx context.Context) ([]boost.PaymentProvider, error) {
	providers, err := s.providers.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment providers: %w", err)
	}
	return providers, nil
}

// CreateOrder submits the purchase with the provider as payment method. Every failure
// matches ErrGateway; the upstream's own classification is kept alongside.
func (s *GatewayService) CreateOrder(ctx context.Context, intent promotion.PurchaseIntent, reference string) (*Order, error) {
	if intent.Channel == nil || !intent.Channel.IsExternal() {
		return nil, xerrors.Validation("an external payment channel is required")
	}
	providerID := intent.Channel.ProviderID

	res, err := s.api.CreateBoost(ctx, boost.CreateBoostRequest{
		ListingID:     intent.ListingID,
		Type:          intent.Type,
		DurationDays:  intent.DurationDays,
		PaymentMethod: intent.Channel.PaymentMethod(),
		AutoRenew:     intent.AutoRenew,
	}, reference)
	if err != nil {
		s.logger.Warn("external order failed",
			zap.String("provider_id", providerID),
			zap.String("reference", reference),
			zap.Error(err))
		if xerrors.Is(err, xerrors.ErrGateway) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", xerrors.ErrGateway, err)
	}

	order := &Order{Reference: reference, ProviderID: providerID}
	if res.RedirectURL == "" {
		if res.Boost != nil {
			order.Boost = res.Boost
			return order, nil
		}
		return nil, fmt.Errorf("%w: provider %s returned no redirect", xerrors.ErrGateway, providerID)
	}

	if err := s.ValidateRedirect(res.RedirectURL); err != nil {
		s.logger.Warn("rejecting provider redirect",
			zap.String("provider_id", providerID),
			zap.String("reference", reference),
			zap.Error(err))
		return nil, err
	}

	order.RedirectURL = res.RedirectURL
	return order, nil
}

// ValidateRedirect requires an absolute https URL, or http for configured sandbox hosts.
func (s *GatewayService) ValidateRedirect(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: redirect url %q is not absolute", xerrors.ErrGateway, raw)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if s.insecureHosts[strings.ToLower(u.Hostname())] {
			return nil
		}
	}
	return fmt.Errorf("%w: redirect url scheme %q is not allowed", xerrors.ErrGateway, u.Scheme)
}
