// internal/handlers/promotion/promotion.go
package promotion

import (
	"net/http"

	"boost-service/internal/domain/boost"
	"boost-service/internal/domain/promotion"
	"boost-service/internal/middleware"
	"boost-service/internal/pkg/response"
	service "boost-service/internal/service/promotion"

	"github.com/gin-gonic/gin"
)

type PromotionHandler struct {
	promotionService *service.PromotionService
}

func NewPromotionHandler(promotionService *service.PromotionService) *PromotionHandler {
	return &PromotionHandler{
		promotionService: promotionService,
	}
}

// ========== Workflow Lifecycle ==========

// StartPromotion opens a new promotion workflow for a listing
func (h *PromotionHandler) StartPromotion(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req service.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.promotionService.Start(c.Request.Context(), identityID, &req)
	if err != nil {
		response.FromError(c, "failed to start promotion", err)
		return
	}

	response.Success(c, http.StatusCreated, "promotion started", result)
}

// ListPromotions returns the caller's live workflows, newest first
func (h *PromotionHandler) ListPromotions(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.List(c.Request.Context(), identityID)
	if err != nil {
		response.FromError(c, "failed to list promotions", err)
		return
	}

	response.Success(c, http.StatusOK, "promotions retrieved", result)
}

// Reboost opens a workflow prefilled from an expired boost
func (h *PromotionHandler) Reboost(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.Reboost(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to reboost", err)
		return
	}

	response.Success(c, http.StatusCreated, "promotion started", result)
}

// GetPromotion returns the current workflow snapshot
func (h *PromotionHandler) GetPromotion(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.Get(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		response.FromError(c, "promotion not found", err)
		return
	}

	response.Success(c, http.StatusOK, "promotion retrieved", result)
}

// Configure sets the boost type, duration and renewal flag
func (h *PromotionHandler) Configure(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req service.ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.promotionService.Configure(c.Request.Context(), identityID, c.Param("id"), &req)
	if err != nil {
		response.FromError(c, "failed to configure promotion", err)
		return
	}

	response.Success(c, http.StatusOK, "promotion configured", result)
}

// CalculatePrice asks upstream for the authoritative price of the configuration
func (h *PromotionHandler) CalculatePrice(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.CalculatePrice(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to calculate price", err)
		return
	}

	response.Success(c, http.StatusOK, "price calculated", result)
}

// ========== Payment Channel ==========

// ListChannels returns the payment channels available for the priced configuration
func (h *PromotionHandler) ListChannels(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.Channels(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to load payment channels", err)
		return
	}

	response.Success(c, http.StatusOK, "payment channels retrieved", result)
}

// SelectChannel picks one of the offered payment channels
func (h *PromotionHandler) SelectChannel(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req service.SelectChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.promotionService.SelectChannel(c.Request.Context(), identityID, c.Param("id"), &req)
	if err != nil {
		response.FromError(c, "failed to select payment channel", err)
		return
	}

	response.Success(c, http.StatusOK, "payment channel selected", result)
}

// ========== Submission ==========

// Submit purchases the boost. A failed purchase still carries the workflow so the
// client can render the retry state.
func (h *PromotionHandler) Submit(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.Submit(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		if response.StatusFor(err) >= http.StatusInternalServerError {
			middleware.CaptureError(c, err)
		}
		if result != nil {
			response.FromError(c, "boost purchase failed", err, result)
			return
		}
		response.FromError(c, "failed to submit promotion", err)
		return
	}

	switch result.State {
	case promotion.StateConfirmed:
		response.Success(c, http.StatusCreated, "boost purchased", result)
	case promotion.StateRedirectPending:
		response.Success(c, http.StatusAccepted, "continue payment with provider", result)
	default:
		response.Success(c, http.StatusAccepted, "submission in progress", result)
	}
}

// HandleReturn is hit when the user comes back from the payment provider
func (h *PromotionHandler) HandleReturn(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.HandleReturn(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to refresh promotion", err)
		return
	}

	response.Success(c, http.StatusOK, "promotion refreshed", result)
}

// Cancel abandons the workflow
func (h *PromotionHandler) Cancel(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	result, err := h.promotionService.Cancel(c.Request.Context(), identityID, c.Param("id"))
	if err != nil {
		response.FromError(c, "failed to cancel promotion", err)
		return
	}

	response.Success(c, http.StatusOK, "promotion cancelled", result)
}

// ========== Purchase History ==========

// ListAttempts returns the caller's purchase attempts
func (h *PromotionHandler) ListAttempts(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var filters boost.AttemptListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.promotionService.ListAttempts(c.Request.Context(), identityID, &filters)
	if err != nil {
		response.FromError(c, "failed to list purchase attempts", err)
		return
	}

	response.Success(c, http.StatusOK, "purchase attempts retrieved", result)
}
