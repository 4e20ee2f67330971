// internal/handlers/boost/boost.go
package boost

import (
	"net/http"
	"strconv"
	"strings"

	"boost-service/internal/domain/boost"
	xerrors "boost-service/internal/pkg/errors"
	"boost-service/internal/pkg/response"
	boostsvc "boost-service/internal/service/boost"
	"boost-service/internal/service/credit"
	"boost-service/internal/service/gateway"
	"boost-service/internal/service/pricing"
	"boost-service/internal/service/wallet"

	"github.com/gin-gonic/gin"
)

// BoostHandler serves the read-only boost data: catalog, quotes, credits, wallet,
// providers and the caller's boosts.
type BoostHandler struct {
	pricing *pricing.PricingService
	credits *credit.CreditService
	wallets *wallet.WalletService
	gateway *gateway.GatewayService
	boosts  *boostsvc.BoostService
}

func NewBoostHandler(
	pricingService *pricing.PricingService,
	creditService *credit.CreditService,
	walletService *wallet.WalletService,
	gatewayService *gateway.GatewayService,
	boostService *boostsvc.BoostService,
) *BoostHandler {
	return &BoostHandler{
		pricing: pricingService,
		credits: creditService,
		wallets: walletService,
		gateway: gatewayService,
		boosts:  boostService,
	}
}

// ========== Pricing ==========

// ListPricing returns every promotion tier
func (h *BoostHandler) ListPricing(c *gin.Context) {
	tiers, err := h.pricing.ListTiers(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load pricing", err)
		return
	}

	response.Success(c, http.StatusOK, "pricing retrieved", tiers)
}

// CalculatePrice quotes a type and duration outside of any workflow
func (h *BoostHandler) CalculatePrice(c *gin.Context) {
	t := boost.Type(strings.TrimSpace(c.Query("type")))
	if t == "" {
		response.FromError(c, "invalid query parameters", xerrors.Validation("type is required"))
		return
	}

	days, err := strconv.Atoi(c.Query("durationDays"))
	if err != nil {
		response.FromError(c, "invalid query parameters", xerrors.Validation("durationDays must be a whole number"))
		return
	}

	quote, err := h.pricing.CalculatePrice(c.Request.Context(), t, days)
	if err != nil {
		response.FromError(c, "failed to calculate price", err)
		return
	}

	response.Success(c, http.StatusOK, "price calculated", quote)
}

// ========== Funding ==========

// GetCredits returns the caller's subscription credit snapshot
func (h *BoostHandler) GetCredits(c *gin.Context) {
	credits, err := h.credits.GetCredits(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load subscription credits", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription credits retrieved", credits)
}

// GetWallet returns the caller's wallet balance
func (h *BoostHandler) GetWallet(c *gin.Context) {
	w, err := h.wallets.GetWallet(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load wallet", err)
		return
	}

	response.Success(c, http.StatusOK, "wallet retrieved", w)
}

// ListProviders returns the external payment providers
func (h *BoostHandler) ListProviders(c *gin.Context) {
	providers, err := h.gateway.ListProviders(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load payment providers", err)
		return
	}

	response.Success(c, http.StatusOK, "payment providers retrieved", providers)
}

// ========== My Boosts ==========

// ListMine returns the caller's boosts split into active and expired
func (h *BoostHandler) ListMine(c *gin.Context) {
	partition, err := h.boosts.Mine(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load boosts", err)
		return
	}

	response.Success(c, http.StatusOK, "boosts retrieved", partition)
}
